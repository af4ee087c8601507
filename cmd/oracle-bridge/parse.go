package main

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/woxQAQ/oracle-bridge/internal/pipeline"
	"github.com/woxQAQ/oracle-bridge/internal/render"
)

type outputFlags struct {
	format string
	out    string
}

func (f *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.format, "format", "", "output format: html or text (default from config)")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "write the rendering to this file instead of stdout")
}

// build resolves the output and format against the config default.
func (f *outputFlags) build(cmd *cobra.Command, a *app) (pipeline.Output, render.Format, error) {
	name := f.format
	if name == "" {
		name = a.cfg.Render.Format
	}
	format, err := render.ParseFormat(name)
	if err != nil {
		return nil, "", err
	}

	if f.out != "" {
		return pipeline.NewFileOutput(f.out), format, nil
	}
	return pipeline.NewWriterOutput(cmd.OutOrStdout()), format, nil
}

func newParseCmd(root *rootFlags) *cobra.Command {
	var (
		name     string
		text     string
		textFile string
		output   outputFlags
	)

	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Parse one card and render its ability tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("text") == (textFile != "") {
				return errors.New("exactly one of --text or --text-file is required")
			}
			if textFile != "" {
				var err error
				if text, err = readInput(textFile); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, root)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			out, format, err := output.build(cmd, a)
			if err != nil {
				return err
			}

			if err := a.manager.Load(ctx); err != nil {
				return err
			}

			p := pipeline.New(a.manager.Bridge(), out, format, a.logger)
			_, err = p.Cycle(ctx, name, text)
			return err
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "card name (empty uses the placeholder)")
	cmd.Flags().StringVarP(&text, "text", "t", "", "oracle text")
	cmd.Flags().StringVar(&textFile, "text-file", "", "read the oracle text from a file")
	output.register(cmd)

	return cmd
}
