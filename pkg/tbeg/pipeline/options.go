// Package pipeline wires every processor (spec §4) into the fixed
// execution order: TemplateAnalyze, PositionCalculate, ChartExtract,
// PivotExtract, LayoutSnapshot, TemplateRender, FormulaAdjust, NumberFormat, XmlVariableReplace,
// LayoutRestore, PivotRecreate, ChartRestore, Metadata. Stages run
// strictly sequentially — never concurrently — and the pipeline checks
// ctx.Cancelled between every stage, mirroring the cooperative
// cancellation the generator facade exposes to callers of GenerateAsync.
//
// The retry/options shape below is lifted from the teacher's
// pkg/pipeline.BlockOptions: a RetryPolicy with MaxRetries/Backoff,
// applied through functional Options, generalized here from "per
// worker goroutine" to "per pipeline stage" since a Pipeline run has no
// concurrency of its own to configure.
package pipeline

import "time"

// RetryPolicy controls how many times a failing stage is retried and the
// backoff between attempts, mirroring pkg/pipeline.RetryPolicy.
type RetryPolicy struct {
	// MaxRetries is the maximum number of attempts, including the first
	// (1 disables retry).
	MaxRetries int
	// Backoff is the base delay; actual delay is Backoff * (attempt+1).
	Backoff time.Duration
}

// Options configures a Pipeline.
type Options struct {
	RetryPolicy *RetryPolicy
}

// Option configures Options.
type Option func(*Options)

// WithRetryPolicy sets the retry policy applied to every stage.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(o *Options) { o.RetryPolicy = &policy }
}

func applyOptions(opts []Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
