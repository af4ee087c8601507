package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/woxQAQ/oracle-bridge/internal/addon"
	"github.com/woxQAQ/oracle-bridge/internal/wasm"
)

func newInspectCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Check that a module implements the parser ABI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, root)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			loaded, err := addon.NewLoader(a.runtime, a.logger).Load(ctx, a.cfg.Module)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			issues := wasm.CheckABI(loaded.Compiled, loaded.ABI())
			printReport(w, loaded, issues)

			if len(issues) > 0 {
				return fmt.Errorf("module %s does not implement the parser ABI (%d issues)", loaded.Name(), len(issues))
			}

			if err := a.manager.Load(ctx); err != nil {
				return err
			}
			fmt.Fprintf(w, "\n%s %d bytes (%d pages)\n",
				subtitleStyle.Render("Memory:"),
				a.manager.Instance().MemorySize(),
				a.manager.Instance().MemorySize()/65536,
			)
			return nil
		},
	}
}

func printReport(w io.Writer, loaded *addon.Addon, issues []wasm.ABIIssue) {
	fmt.Fprintln(w, titleStyle.Render(loaded.Name())+" "+subtitleStyle.Render(loaded.Version()))
	fmt.Fprintf(w, "%s %s (%d bytes, sha256 %s)\n",
		subtitleStyle.Render("Source:"),
		loaded.Compiled.Source,
		loaded.Compiled.SizeBytes,
		loaded.Compiled.Digest[:12],
	)
	fmt.Fprintf(w, "%s %q\n", subtitleStyle.Render("Placeholder:"), loaded.Placeholder())
	fmt.Fprintf(w, "%s %t\n", subtitleStyle.Render("Imports WASI:"), wasm.ImportsWASI(loaded.Compiled))

	failed := make(map[string]string, len(issues))
	for _, issue := range issues {
		failed[issue.Export] = issue.Reason
	}

	abi := loaded.ABI()
	fmt.Fprintln(w, "\n"+subtitleStyle.Render("Parser ABI:"))
	for _, name := range []string{abi.Alloc, abi.Free, abi.Parse, abi.Memory} {
		if reason, bad := failed[name]; bad {
			fmt.Fprintf(w, "  %s %s: %s\n", errorStyle.Render("✗"), name, reason)
			continue
		}
		fmt.Fprintf(w, "  %s %s\n", successStyle.Render("✓"), name)
	}

	fmt.Fprintln(w, "\n"+subtitleStyle.Render("Exports:"))
	for _, sig := range wasm.Exports(loaded.Compiled) {
		fmt.Fprintf(w, "  %s(%s) -> (%s)\n",
			exportStyle.Render(sig.Name),
			strings.Join(sig.Params, ", "),
			strings.Join(sig.Results, ", "),
		)
	}
}
