package bridge

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// owner records which side allocated a region.
type owner int

const (
	ownerHost owner = iota
	ownerModule
)

func (o owner) String() string {
	if o == ownerModule {
		return "module"
	}
	return "host"
}

// region is a (pointer, length) pair inside module memory.
type region struct {
	ptr      uint32
	length   uint32
	owner    owner
	released bool
}

// scope holds every region acquired during one marshal cycle so that all of
// them are released exactly once, whichever way the cycle exits.
type scope struct {
	mod     Module
	logger  *zap.Logger
	regions []*region
}

func newScope(mod Module, logger *zap.Logger) *scope {
	return &scope{mod: mod, logger: logger}
}

// allocate reserves a region of exactly len(data) bytes and copies data in.
// A zero-length region is still allocated; the copy is then a no-op.
func (s *scope) allocate(ctx context.Context, data []byte) (*region, error) {
	length := uint32(len(data))

	ptr, err := s.mod.Allocate(ctx, length)
	if err != nil {
		return nil, &AllocationError{Length: length, Err: err}
	}

	r := s.adopt(ptr, length, ownerHost)

	if size := s.mod.Memory().Size(); uint64(ptr)+uint64(length) > uint64(size) {
		return nil, &AllocationError{
			Length: length,
			Err:    fmt.Errorf("region at %d ends past memory size %d", ptr, size),
		}
	}

	if length == 0 {
		return r, nil
	}

	if !s.mod.Memory().Write(ptr, data) {
		return nil, &WriteError{Address: ptr, Length: length}
	}

	return r, nil
}

// adopt takes ownership of a region allocated elsewhere.
func (s *scope) adopt(ptr, length uint32, o owner) *region {
	r := &region{ptr: ptr, length: length, owner: o}
	s.regions = append(s.regions, r)
	return r
}

// releaseAll releases every region not yet released, in acquisition order.
func (s *scope) releaseAll(ctx context.Context) error {
	var errs []error

	for _, r := range s.regions {
		if r.released {
			continue
		}
		r.released = true

		if err := s.mod.Release(ctx, r.ptr, r.length); err != nil {
			s.logger.Error("Failed to release module region",
				zap.Uint32("ptr", r.ptr),
				zap.Uint32("length", r.length),
				zap.Stringer("owner", r.owner),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
