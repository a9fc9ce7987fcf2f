// Package progress provides the capability interface used to report
// pipeline progress without any global mutable state. A Reporter is
// threaded through context.Context rather than reached for as a package
// global, so tests can swap in a no-op implementation freely.
package progress

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reporter is the progress-reporting capability. Concrete implementations
// include Noop and the zap-backed Logging reporter.
type Reporter interface {
	StepBegin(step string)
	StepEnd(step string, d time.Duration)
}

type noop struct{}

func (noop) StepBegin(string)             {}
func (noop) StepEnd(string, time.Duration) {}

// Noop is a Reporter that does nothing, used in verbosity "silent".
var Noop Reporter = noop{}

// Logging reports steps through a zap.Logger, used for verbosity
// "transient" and "normal" alike — this module has no terminal UI library
// in its dependency pack, so both verbosity levels above "silent" render as
// structured log lines rather than an in-place progress bar.
type Logging struct {
	Log *zap.Logger
}

func (l *Logging) StepBegin(step string) {
	l.Log.Info("step begin", zap.String("step", step))
}

func (l *Logging) StepEnd(step string, d time.Duration) {
	l.Log.Info("step end", zap.String("step", step), zap.Duration("elapsed", d))
}

type ctxKey struct{}

// WithReporter returns a context carrying r, retrievable with FromContext.
func WithReporter(ctx context.Context, r Reporter) context.Context {
	return context.WithValue(ctx, ctxKey{}, r)
}

// FromContext returns the Reporter stored in ctx, or Noop if none was set.
func FromContext(ctx context.Context) Reporter {
	if r, ok := ctx.Value(ctxKey{}).(Reporter); ok && r != nil {
		return r
	}
	return Noop
}

// Step runs fn between a StepBegin/StepEnd pair for the reporter in ctx.
func Step(ctx context.Context, name string, fn func() error) error {
	r := FromContext(ctx)
	r.StepBegin(name)
	start := time.Now()
	err := fn()
	r.StepEnd(name, time.Since(start))
	return err
}
