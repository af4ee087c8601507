package bridge

import (
	"context"
	"errors"
	"fmt"
)

// sliceMemory is a Memory backed by a Go byte slice.
type sliceMemory struct {
	buf []byte
}

func (m *sliceMemory) Read(offset, byteCount uint32) ([]byte, bool) {
	end := uint64(offset) + uint64(byteCount)
	if end > uint64(len(m.buf)) {
		return nil, false
	}
	return m.buf[offset:end], true
}

func (m *sliceMemory) Write(offset uint32, v []byte) bool {
	end := uint64(offset) + uint64(len(v))
	if end > uint64(len(m.buf)) {
		return false
	}
	copy(m.buf[offset:], v)
	return true
}

func (m *sliceMemory) Size() uint32 {
	return uint32(len(m.buf))
}

// fakeModule mimics the parser module: a bump allocator over sliceMemory
// with a Go parse function. It records every call for assertions.
type fakeModule struct {
	mem  *sliceMemory
	heap uint32

	// parse produces the result content; nil echoes the text.
	parse func(name, text []byte) []byte
	// raw, when set, is written verbatim without a terminator.
	raw []byte

	allocErrAt int // fail the n-th Allocate (1-based); 0 disables
	allocs     int

	gotName []byte
	gotText []byte

	allocated map[uint32]uint32
	released  []released
}

type released struct {
	ptr, length uint32
}

func newFakeModule(size int) *fakeModule {
	return &fakeModule{
		mem:       &sliceMemory{buf: make([]byte, size)},
		heap:      8,
		allocated: make(map[uint32]uint32),
	}
}

func (f *fakeModule) Allocate(_ context.Context, length uint32) (uint32, error) {
	f.allocs++
	if f.allocErrAt > 0 && f.allocs == f.allocErrAt {
		return 0, errors.New("out of memory")
	}
	if uint64(f.heap)+uint64(length) > uint64(len(f.mem.buf)) {
		return 0, fmt.Errorf("heap exhausted allocating %d bytes", length)
	}
	ptr := f.heap
	// Keep zero-length regions distinct so release checks stay simple.
	f.heap += length + 1
	f.allocated[ptr] = length
	return ptr, nil
}

func (f *fakeModule) Release(_ context.Context, ptr, length uint32) error {
	f.released = append(f.released, released{ptr: ptr, length: length})
	return nil
}

func (f *fakeModule) Parse(ctx context.Context, namePtr, nameLen, textPtr, textLen uint32) (uint32, error) {
	name, _ := f.mem.Read(namePtr, nameLen)
	text, _ := f.mem.Read(textPtr, textLen)
	f.gotName = append([]byte(nil), name...)
	f.gotText = append([]byte(nil), text...)

	if f.raw != nil {
		ptr := uint32(len(f.mem.buf) - len(f.raw))
		f.mem.Write(ptr, f.raw)
		return ptr, nil
	}

	out := f.gotText
	if f.parse != nil {
		out = f.parse(f.gotName, f.gotText)
	}

	ptr, err := f.Allocate(ctx, uint32(len(out))+1)
	if err != nil {
		return 0, err
	}
	f.mem.Write(ptr, append(append([]byte(nil), out...), 0))
	return ptr, nil
}

func (f *fakeModule) Memory() Memory {
	return f.mem
}
