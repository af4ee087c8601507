// Package pipeline runs one input-change cycle: parse through the bridge,
// render the result and replace the output.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/woxQAQ/oracle-bridge/internal/render"
	"github.com/woxQAQ/oracle-bridge/pkg/protocol"
	"go.uber.org/zap"
)

// Parser is the bridge operation a cycle needs.
type Parser interface {
	Parse(ctx context.Context, cardName, oracleText string) (string, error)
}

// Pipeline connects a parser to an output.
type Pipeline struct {
	parser Parser
	output Output
	format render.Format
	logger *zap.Logger
}

// New creates a pipeline.
func New(parser Parser, output Output, format render.Format, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		parser: parser,
		output: output,
		format: format,
		logger: logger.With(zap.String("component", "pipeline")),
	}
}

// Cycle parses one card and replaces the output with its rendering.
// Parser error messages are rendered, not returned. A failure at the module
// boundary is returned after the output has been replaced with an error
// node, so the previous tree is never shown for the new input.
func (p *Pipeline) Cycle(ctx context.Context, cardName, oracleText string) (*render.Node, error) {
	start := time.Now()

	result, err := p.parser.Parse(ctx, cardName, oracleText)
	if err != nil {
		err = fmt.Errorf("parse %q: %w", cardName, err)
		p.logger.Error("Parse failed",
			zap.String("card", cardName),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)

		node := render.ErrorNode(err.Error())
		if replaceErr := p.output.Replace(ctx, render.Encode(node, p.format)); replaceErr != nil {
			return node, errors.Join(err, replaceErr)
		}
		return node, err
	}

	outcome := render.Classify(result)
	node := render.RenderOutcome(outcome)

	if err := p.output.Replace(ctx, render.Encode(node, p.format)); err != nil {
		return node, err
	}

	fields := []zap.Field{
		zap.String("card", cardName),
		zap.Stringer("kind", outcome.Kind),
		zap.Int("result_bytes", len(result)),
		zap.Duration("duration", time.Since(start)),
	}
	if outcome.Kind == protocol.ResultKindMalformed {
		p.logger.Warn("Parser returned a malformed ability tree", append(fields, zap.Error(outcome.Err))...)
	} else {
		p.logger.Info("Cycle complete", fields...)
	}

	return node, nil
}
