package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := fang.Execute(
		context.Background(),
		newRootCmd(),
		fang.WithVersion(versionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

func versionString() string {
	if version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}

// rootFlags are the persistent flags shared by every subcommand.
type rootFlags struct {
	configPath string
	logLevel   string
	module     string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "oracle-bridge",
		Short: "Parse card rules text with a Wasm parser and render the ability tree",
		Long: titleStyle.Render("oracle-bridge") + subtitleStyle.Render(" - rules text to ability tree") + `

oracle-bridge loads a compiled rules-text parser (a WebAssembly module
exporting alloc, free, parse_oracle_text and memory), sends it a card's
name and oracle text, and renders the JSON ability tree it returns.

` + subtitleStyle.Render("Examples:") + `
  oracle-bridge parse --module boseiju.wasm --name "Shock" --text "~ deals 2 damage to any target."
  oracle-bridge watch --module ./addons/boseiju --text-file card.txt --out tree.html
  oracle-bridge inspect --module boseiju.wasm`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to configuration file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flags.module, "module", "", "parser module: a .wasm file or an add-on directory")

	root.AddCommand(newParseCmd(flags))
	root.AddCommand(newWatchCmd(flags))
	root.AddCommand(newInspectCmd(flags))

	return root
}
