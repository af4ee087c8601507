package bridge

import (
	"bytes"
	"unicode/utf8"

	"github.com/woxQAQ/oracle-bridge/pkg/protocol"
)

// Memory is the linear memory shared with the module.
// wazero's api.Memory satisfies it.
type Memory interface {
	Read(offset, byteCount uint32) ([]byte, bool)
	Write(offset uint32, v []byte) bool
	Size() uint32
}

// ReadCString scans forward from ptr for the terminator and returns a copy
// of the content bytes together with the release length (content + 1).
// maxLen bounds the scan; zero scans to the end of memory.
func ReadCString(mem Memory, ptr uint32, maxLen uint32) ([]byte, uint32, error) {
	size := mem.Size()
	if ptr >= size {
		return nil, 0, &UnterminatedResultError{Address: ptr}
	}

	window := size - ptr
	if maxLen > 0 && maxLen < window {
		window = maxLen
	}

	view, ok := mem.Read(ptr, window)
	if !ok {
		return nil, 0, &UnterminatedResultError{Address: ptr}
	}

	end := bytes.IndexByte(view, protocol.Terminator)
	if end < 0 {
		return nil, 0, &UnterminatedResultError{Address: ptr, Scanned: window}
	}

	// The view aliases module memory, which the next call may reuse.
	content := make([]byte, end)
	copy(content, view[:end])

	return content, uint32(end) + 1, nil
}

// decodeUTF8 validates content and converts it to a string.
func decodeUTF8(ptr uint32, content []byte) (string, error) {
	if utf8.Valid(content) {
		return string(content), nil
	}

	offset := 0
	for offset < len(content) {
		r, size := utf8.DecodeRune(content[offset:])
		if r == utf8.RuneError && size <= 1 {
			break
		}
		offset += size
	}

	return "", &InvalidUTF8Error{Address: ptr, Offset: offset}
}
