// Package bridge marshals strings across the linear-memory boundary of the
// oracle parser module and reads its NUL-terminated result back.
package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/woxQAQ/oracle-bridge/pkg/protocol"
	"go.uber.org/zap"
)

// Module is the capability set the bridge consumes from a loaded module.
// Pointers and lengths are 32-bit because wasm32 memory is 32-bit addressed.
type Module interface {
	// Allocate reserves length bytes and returns the region start.
	Allocate(ctx context.Context, length uint32) (uint32, error)

	// Release returns a region to the module allocator. The length must be
	// the one used at allocation time.
	Release(ctx context.Context, ptr, length uint32) error

	// Parse calls the parse entry point and returns the result pointer.
	Parse(ctx context.Context, namePtr, nameLen, textPtr, textLen uint32) (uint32, error)

	// Memory returns the shared linear memory.
	Memory() Memory
}

// State is the readiness of the bridge.
type State int32

const (
	StateUnloaded State = iota
	StateLoaded
)

func (s State) String() string {
	if s == StateLoaded {
		return "loaded"
	}
	return "unloaded"
}

// Bridge performs request/response cycles against a Module.
// It is safe for concurrent use; cycles are serialised because they mutate
// the same linear memory.
type Bridge struct {
	logger      *zap.Logger
	placeholder string
	maxResult   uint32

	state atomic.Int32

	// mu guards mod and the allocate -> write -> call -> read -> release sequence.
	mu  sync.Mutex
	mod Module
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithPlaceholder sets the name substituted for an empty card name.
func WithPlaceholder(name string) Option {
	return func(b *Bridge) {
		if name != "" {
			b.placeholder = name
		}
	}
}

// WithMaxResultBytes bounds the terminator scan. Zero scans to the end of
// memory.
func WithMaxResultBytes(n uint32) Option {
	return func(b *Bridge) {
		b.maxResult = n
	}
}

// New creates an unloaded bridge.
func New(logger *zap.Logger, opts ...Option) *Bridge {
	b := &Bridge{
		logger:      logger.With(zap.String("component", "bridge")),
		placeholder: protocol.PlaceholderName,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Attach moves the bridge from unloaded to loaded. It can only succeed once.
// opts are applied together with the module, for settings that are only
// known after loading such as an add-on's placeholder name.
func (b *Bridge) Attach(mod Module, opts ...Option) error {
	if mod == nil {
		return errors.New("cannot attach a nil module")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.mod != nil {
		return ErrAlreadyLoaded
	}

	for _, opt := range opts {
		opt(b)
	}
	b.mod = mod
	b.state.Store(int32(StateLoaded))

	b.logger.Info("Parser module attached")

	return nil
}

// State returns the current readiness state.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

// Loaded reports whether a module is attached.
func (b *Bridge) Loaded() bool {
	return b.State() == StateLoaded
}

// Placeholder returns the name used when the card name is empty.
func (b *Bridge) Placeholder() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.placeholder
}

// Parse sends cardName and oracleText to the module and returns the decoded
// result text. Every region allocated during the call is released before
// Parse returns, on success and on failure.
func (b *Bridge) Parse(ctx context.Context, cardName, oracleText string) (result string, err error) {
	if !b.Loaded() {
		return "", &NotLoadedError{Operation: "Parse"}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if cardName == "" {
		cardName = b.placeholder
	}

	regions := newScope(b.mod, b.logger)
	defer func() {
		if releaseErr := regions.releaseAll(ctx); releaseErr != nil {
			result = ""
			err = errors.Join(err, releaseErr)
		}
	}()

	name, err := regions.allocate(ctx, []byte(cardName))
	if err != nil {
		return "", err
	}

	text, err := regions.allocate(ctx, []byte(oracleText))
	if err != nil {
		return "", err
	}

	resultPtr, err := b.mod.Parse(ctx, name.ptr, name.length, text.ptr, text.length)
	if err != nil {
		return "", err
	}

	content, releaseLen, err := ReadCString(b.mod.Memory(), resultPtr, b.maxResult)
	if err != nil {
		b.logger.Error("Parser returned an unterminated result",
			zap.Uint32("ptr", resultPtr),
			zap.Error(err),
		)
		return "", err
	}
	regions.adopt(resultPtr, releaseLen, ownerModule)

	result, err = decodeUTF8(resultPtr, content)
	if err != nil {
		return "", err
	}

	b.logger.Debug("Parse cycle complete",
		zap.Int("name_len", int(name.length)),
		zap.Int("text_len", int(text.length)),
		zap.Uint32("result_len", releaseLen),
	)

	return result, nil
}
