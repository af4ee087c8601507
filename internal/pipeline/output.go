package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Output is the display region. Replace swaps the whole content; nothing
// from an earlier cycle survives it.
type Output interface {
	Replace(ctx context.Context, content string) error
}

// WriterOutput writes each rendering to a stream, one per line.
// A stream cannot be rewound, so each rendering follows the previous one.
type WriterOutput struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterOutput returns an Output writing to w.
func NewWriterOutput(w io.Writer) *WriterOutput {
	return &WriterOutput{w: w}
}

func (o *WriterOutput) Replace(_ context.Context, content string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, err := io.WriteString(o.w, content+"\n"); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// FileOutput replaces a file atomically: content goes to a temp file in
// the same directory which is then renamed over the target, so a reader
// sees either the previous rendering or the new one.
type FileOutput struct {
	mu   sync.Mutex
	path string
}

// NewFileOutput returns an Output replacing path.
func NewFileOutput(path string) *FileOutput {
	return &FileOutput{path: path}
}

// Path returns the target file.
func (o *FileOutput) Path() string {
	return o.path
}

func (o *FileOutput) Replace(_ context.Context, content string) (err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(o.path), ".oracle-bridge-*")
	if err != nil {
		return fmt.Errorf("create temp output: %w", err)
	}
	defer func() {
		if err != nil {
			// Best-effort removal of partially written temp file.
			_ = os.Remove(tmp.Name())
		}
	}()

	if writeErr := func() (writeErr error) {
		defer func() {
			if closeErr := tmp.Close(); closeErr != nil && writeErr == nil {
				writeErr = closeErr
			}
		}()
		_, writeErr = io.WriteString(tmp, content)
		return writeErr
	}(); writeErr != nil {
		return fmt.Errorf("write temp output: %w", writeErr)
	}

	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod temp output: %w", err)
	}

	if err := os.Rename(tmp.Name(), o.path); err != nil {
		return fmt.Errorf("replace output %s: %w", o.path, err)
	}
	return nil
}
