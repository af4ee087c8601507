package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"github.com/woxQAQ/oracle-bridge/internal/pipeline"
	"github.com/woxQAQ/oracle-bridge/internal/watch"
	"go.uber.org/zap"
)

func newWatchCmd(root *rootFlags) *cobra.Command {
	var (
		nameFile string
		textFile string
		debounce time.Duration
		output   outputFlags
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-render the ability tree whenever the input files change",
		Long: `watch loads the parser module once, renders the current inputs, and
then runs one parse cycle per change to the name or text file until
interrupted. Each cycle replaces the previous rendering.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if textFile == "" {
				return errors.New("--text-file is required")
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

			files := []string{textFile}
			if nameFile != "" {
				files = append(files, nameFile)
			}
			for _, f := range files {
				if _, err := readInput(f); err != nil {
					return err
				}
			}
			if debounce <= 0 {
				debounce = a.cfg.Watch.Debounce
			}

			p := pipeline.New(a.manager.Bridge(), out, format, a.logger)
			cycle := func(ctx context.Context, _ []string) error {
				name, err := readInput(nameFile)
				if err != nil {
					return err
				}
				text, err := readInput(textFile)
				if err != nil {
					return err
				}
				_, err = p.Cycle(ctx, name, text)
				return err
			}

			// The module compiles while the watcher is set up.
			loaded := a.manager.LoadAsync(ctx)

			w, watchErr := watch.New(watch.Config{
				Files:    files,
				Debounce: debounce,
				OnChange: cycle,
				Logger:   a.logger,
			})
			if err := errors.Join(watchErr, <-loaded); err != nil {
				if w != nil {
					_ = w.Close()
				}
				return err
			}

			if err := cycle(ctx, files); err != nil {
				a.logger.Error("Initial cycle failed", zap.Error(err))
			}

			return w.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&nameFile, "name-file", "", "file holding the card name")
	cmd.Flags().StringVar(&textFile, "text-file", "", "file holding the oracle text")
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "quiet period before a change is processed (default from config)")
	output.register(cmd)

	return cmd
}
