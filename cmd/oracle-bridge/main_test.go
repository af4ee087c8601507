package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var echoModule = filepath.Join("..", "..", "internal", "wasm", "testdata", "echo.wasm")

func run(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()

	var stdout bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))

	err := cmd.ExecuteContext(ctx)
	return stdout.String(), err
}

func TestParseRendersTree(t *testing.T) {
	out, err := run(t, context.Background(),
		"parse", "--module", echoModule,
		"--name", "Test", "--text", `{"abilities":{"A":[1,2]}}`,
	)
	require.NoError(t, err)

	want := `<div class="tree"><details open><summary>Ability Tree</summary>` +
		`<details open><summary>A</summary>` +
		`<div class="leaf"><span class="key">Elem 0</span> <span class="value">1</span></div>` +
		`<div class="leaf"><span class="key">Elem 1</span> <span class="value">2</span></div>` +
		"</details></details></div>\n"
	assert.Equal(t, want, out)
}

func TestParseRendersParserError(t *testing.T) {
	out, err := run(t, context.Background(),
		"parse", "--module", echoModule,
		"--name", "Test", "--text", "Unexpected token at position 4",
	)
	require.NoError(t, err)

	assert.Equal(t, "<p class=\"error\">Unexpected token at position 4</p>\n", out)
}

func TestParseTextFormatToFile(t *testing.T) {
	dir := t.TempDir()
	textFile := filepath.Join(dir, "card.txt")
	outFile := filepath.Join(dir, "tree.txt")
	require.NoError(t, os.WriteFile(textFile, []byte(`{"abilities":[{"Keyword":"Flying"}]}`+"\n"), 0o644))

	out, err := run(t, context.Background(),
		"parse", "--module", echoModule,
		"--text-file", textFile, "--format", "text", "--out", outFile,
	)
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Ability Tree")
	assert.Contains(t, string(data), "Keyword:")
	assert.Contains(t, string(data), "Flying")
}

func TestParseFlagErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "no text", args: []string{"parse", "--module", echoModule}},
		{name: "both texts", args: []string{"parse", "--module", echoModule, "--text", "x", "--text-file", "y"}},
		{name: "bad format", args: []string{"parse", "--module", echoModule, "--text", "x", "--format", "pdf"}},
		{name: "missing module", args: []string{"parse", "--module", "missing.wasm", "--text", "x"}},
		{name: "bad log level", args: []string{"parse", "--module", echoModule, "--text", "x", "--log-level", "loud"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, context.Background(), tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestInspect(t *testing.T) {
	out, err := run(t, context.Background(), "inspect", "--module", echoModule)
	require.NoError(t, err)

	for _, want := range []string{"echo", "✓ alloc", "✓ free", "✓ parse_oracle_text", "✓ memory", "Memory:"} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "✗")
}

func TestInspectNotAParser(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "wrong"), 0o755))
	data, err := os.ReadFile(echoModule)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong", "parser.wasm"), data, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong", "manifest.yaml"), []byte(
		"name: wrong\nversion: 1.0.0\nwasm:\n  file: parser.wasm\nabi:\n  parse: parse_card\n"), 0o644))

	out, err := run(t, context.Background(), "inspect", "--module", filepath.Join(dir, "wrong"))
	require.Error(t, err)
	assert.Contains(t, out, "✗ parse_card: not exported")
}

func TestWatchRerendersOnChange(t *testing.T) {
	dir := t.TempDir()
	nameFile := filepath.Join(dir, "name.txt")
	textFile := filepath.Join(dir, "text.txt")
	outFile := filepath.Join(dir, "tree.html")
	require.NoError(t, os.WriteFile(nameFile, []byte("Shock\n"), 0o644))
	require.NoError(t, os.WriteFile(textFile, []byte(`{"abilities":{"First":1}}`), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := run(t, ctx,
			"watch", "--module", echoModule,
			"--name-file", nameFile, "--text-file", textFile,
			"--out", outFile, "--debounce", "50ms",
		)
		errCh <- err
	}()

	waitForOutput := func(want string) {
		t.Helper()
		deadline := time.Now().Add(10 * time.Second)
		for time.Now().Before(deadline) {
			if data, err := os.ReadFile(outFile); err == nil && strings.Contains(string(data), want) {
				return
			}
			time.Sleep(20 * time.Millisecond)
		}
		t.Fatalf("output never contained %q", want)
	}

	waitForOutput("First")

	require.NoError(t, os.WriteFile(textFile, []byte("Unexpected token"), 0o644))
	waitForOutput(`<p class="error">Unexpected token</p>`)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not stop after cancellation")
	}
}

func TestWatchRequiresTextFile(t *testing.T) {
	_, err := run(t, context.Background(), "watch", "--module", echoModule)
	assert.Error(t, err)
}
