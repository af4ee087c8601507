package bridge

import (
	"context"
	"errors"
	"testing"

	"github.com/woxQAQ/oracle-bridge/pkg/protocol"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func newLoadedBridge(t *testing.T, mod Module, opts ...Option) *Bridge {
	t.Helper()

	b := New(zaptest.NewLogger(t), opts...)
	if err := b.Attach(mod); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	return b
}

func TestBridgeRoundTrip(t *testing.T) {
	ctx := context.Background()

	inputs := []string{
		"Flying",
		"~ deals 3 damage to any target.",
		"Æther Vial — ⚡ “quoted” 日本語",
		"line one\nline two\ttabbed",
		"🐉🔥",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			mod := newFakeModule(1 << 16)
			b := newLoadedBridge(t, mod)

			got, err := b.Parse(ctx, "Lightning Bolt", input)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if got != input {
				t.Errorf("Round trip = %q, want %q", got, input)
			}
		})
	}
}

func TestBridgeEmptyNameUsesPlaceholder(t *testing.T) {
	mod := newFakeModule(1 << 16)
	b := newLoadedBridge(t, mod)

	if _, err := b.Parse(context.Background(), "", "Flying"); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if string(mod.gotName) != protocol.PlaceholderName {
		t.Errorf("Name passed to module = %q, want %q", mod.gotName, protocol.PlaceholderName)
	}
}

func TestBridgeCustomPlaceholder(t *testing.T) {
	mod := newFakeModule(1 << 16)
	b := newLoadedBridge(t, mod, WithPlaceholder("CARDNAME"))

	if _, err := b.Parse(context.Background(), "", "Flying"); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if string(mod.gotName) != "CARDNAME" {
		t.Errorf("Name passed to module = %q, want CARDNAME", mod.gotName)
	}
}

func TestBridgeZeroLengthInputs(t *testing.T) {
	tests := []struct {
		name string
		card string
		text string
	}{
		{name: "empty text", card: "Grizzly Bears", text: ""},
		{name: "empty name and text", card: "", text: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod := newFakeModule(1 << 16)
			b := newLoadedBridge(t, mod)

			got, err := b.Parse(context.Background(), tt.card, tt.text)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if got != "" {
				t.Errorf("Parse = %q, want empty string", got)
			}
			if len(mod.gotText) != 0 {
				t.Errorf("Text passed to module has %d bytes, want 0", len(mod.gotText))
			}
			if len(mod.released) != 3 {
				t.Errorf("Released %d regions, want 3", len(mod.released))
			}
		})
	}
}

func TestBridgeReleasesEveryRegion(t *testing.T) {
	mod := newFakeModule(1 << 16)
	mod.parse = func(name, text []byte) []byte {
		return []byte(`{"abilities":[]}`)
	}
	b := newLoadedBridge(t, mod)

	if _, err := b.Parse(context.Background(), "Shock", "Shock deals 2 damage to any target."); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(mod.released) != len(mod.allocated) {
		t.Fatalf("Released %d regions, allocated %d", len(mod.released), len(mod.allocated))
	}

	seen := make(map[uint32]bool)
	for _, r := range mod.released {
		want, ok := mod.allocated[r.ptr]
		if !ok {
			t.Errorf("Released unknown pointer %d", r.ptr)
			continue
		}
		if seen[r.ptr] {
			t.Errorf("Pointer %d released twice", r.ptr)
		}
		seen[r.ptr] = true
		if r.length != want {
			t.Errorf("Pointer %d released with length %d, allocated %d", r.ptr, r.length, want)
		}
	}

	// The result region includes its terminator.
	last := mod.released[len(mod.released)-1]
	if last.length != uint32(len(`{"abilities":[]}`))+1 {
		t.Errorf("Result release length = %d, want %d", last.length, len(`{"abilities":[]}`)+1)
	}
}

func TestBridgeNotLoaded(t *testing.T) {
	b := New(zap.NewNop())

	if b.State() != StateUnloaded {
		t.Errorf("Initial state = %s, want unloaded", b.State())
	}

	_, err := b.Parse(context.Background(), "Shock", "text")
	var notLoaded *NotLoadedError
	if !errors.As(err, &notLoaded) {
		t.Fatalf("Expected NotLoadedError, got %v", err)
	}
}

func TestBridgeAttachOnce(t *testing.T) {
	b := New(zap.NewNop())

	if err := b.Attach(nil); err == nil {
		t.Error("Attach(nil) should fail")
	}
	if err := b.Attach(newFakeModule(64)); err != nil {
		t.Fatalf("First attach failed: %v", err)
	}
	if b.State() != StateLoaded {
		t.Errorf("State = %s, want loaded", b.State())
	}
	if err := b.Attach(newFakeModule(64)); !errors.Is(err, ErrAlreadyLoaded) {
		t.Errorf("Second attach error = %v, want ErrAlreadyLoaded", err)
	}
}

func TestBridgeAttachOptions(t *testing.T) {
	b := New(zap.NewNop())
	mod := newFakeModule(1 << 16)

	if err := b.Attach(mod, WithPlaceholder("CARDNAME")); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if b.Placeholder() != "CARDNAME" {
		t.Errorf("Placeholder = %q, want CARDNAME", b.Placeholder())
	}

	if _, err := b.Parse(context.Background(), "", "text"); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if string(mod.gotName) != "CARDNAME" {
		t.Errorf("Name passed to module = %q, want CARDNAME", mod.gotName)
	}
}

func TestBridgeInvalidUTF8IsReported(t *testing.T) {
	mod := newFakeModule(1 << 16)
	mod.parse = func(name, text []byte) []byte {
		return []byte{'o', 'k', 0xff, 0xfe}
	}
	b := newLoadedBridge(t, mod)

	got, err := b.Parse(context.Background(), "Shock", "text")
	var invalid *InvalidUTF8Error
	if !errors.As(err, &invalid) {
		t.Fatalf("Expected InvalidUTF8Error, got %v (result %q)", err, got)
	}
	if invalid.Offset != 2 {
		t.Errorf("Bad byte offset = %d, want 2", invalid.Offset)
	}

	// Decoding failed after the read, so all three regions are still released.
	if len(mod.released) != 3 {
		t.Errorf("Released %d regions, want 3", len(mod.released))
	}
}

func TestBridgeAllocationFailureReleasesAcquired(t *testing.T) {
	mod := newFakeModule(1 << 16)
	mod.allocErrAt = 2
	b := newLoadedBridge(t, mod)

	_, err := b.Parse(context.Background(), "Shock", "text")
	var allocErr *AllocationError
	if !errors.As(err, &allocErr) {
		t.Fatalf("Expected AllocationError, got %v", err)
	}

	if len(mod.released) != 1 {
		t.Fatalf("Released %d regions, want 1 (the name)", len(mod.released))
	}
	if mod.released[0].length != uint32(len("Shock")) {
		t.Errorf("Name released with length %d, want %d", mod.released[0].length, len("Shock"))
	}
}

func TestBridgeUnterminatedResult(t *testing.T) {
	mod := newFakeModule(256)
	mod.raw = []byte("no terminator here")
	b := newLoadedBridge(t, mod)

	_, err := b.Parse(context.Background(), "Shock", "text")
	var unterminated *UnterminatedResultError
	if !errors.As(err, &unterminated) {
		t.Fatalf("Expected UnterminatedResultError, got %v", err)
	}

	// The inputs are released; the result is not, its size is unknown.
	if len(mod.released) != 2 {
		t.Errorf("Released %d regions, want 2", len(mod.released))
	}
}

func TestBridgeMaxResultBytes(t *testing.T) {
	mod := newFakeModule(1 << 16)
	mod.parse = func(name, text []byte) []byte {
		return []byte("a result longer than eight bytes")
	}
	b := newLoadedBridge(t, mod, WithMaxResultBytes(8))

	_, err := b.Parse(context.Background(), "Shock", "text")
	var unterminated *UnterminatedResultError
	if !errors.As(err, &unterminated) {
		t.Fatalf("Expected UnterminatedResultError, got %v", err)
	}
	if unterminated.Scanned != 8 {
		t.Errorf("Scanned = %d, want 8", unterminated.Scanned)
	}
}

func TestBridgeWithTracker(t *testing.T) {
	mod := newFakeModule(1 << 16)
	tracked := Track(mod)
	b := newLoadedBridge(t, tracked)

	for _, text := range []string{"Flying", "", "Trample"} {
		if _, err := b.Parse(context.Background(), "", text); err != nil {
			t.Fatalf("Parse(%q) failed: %v", text, err)
		}
	}

	stats := tracked.Stats()
	if !stats.Balanced() {
		t.Errorf("Allocations not balanced: %+v", stats)
	}
	if stats.Allocations != 6 || stats.ModuleResults != 3 || stats.Releases != 9 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

// strayAllocator hands out a region that runs past the end of memory.
type strayAllocator struct {
	*fakeModule
}

func (m strayAllocator) Allocate(_ context.Context, _ uint32) (uint32, error) {
	return uint32(len(m.mem.buf)) - 1, nil
}

func TestBridgeAllocationOutsideMemory(t *testing.T) {
	mod := strayAllocator{newFakeModule(256)}
	b := newLoadedBridge(t, mod)

	_, err := b.Parse(context.Background(), "Shock", "text")
	var allocErr *AllocationError
	if !errors.As(err, &allocErr) {
		t.Fatalf("Expected AllocationError, got %v", err)
	}

	// The module handed the region out, so it is still given back.
	if len(mod.released) != 1 {
		t.Errorf("Released %d regions, want 1", len(mod.released))
	}
}
