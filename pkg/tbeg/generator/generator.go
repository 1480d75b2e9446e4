// Package generator implements the ExcelGenerator facade (spec §4.13):
// the module's only public entry point. It builds a ProcessingContext,
// hands it to a Pipeline, and offers synchronous, async-with-handle, and
// background-with-listener ways to call it — the last two submitted onto
// a bounded internal/workerpool.Pool, grounded on the teacher's
// ConcurrencyDegree worker pattern (pkg/pipeline/action_block.go)
// generalized from per-message to per-generation-call concurrency.
package generator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jogakdal/tbeg/internal/workerpool"
	"github.com/jogakdal/tbeg/pkg/tbeg/model"
	"github.com/jogakdal/tbeg/pkg/tbeg/pipeline"
)

// Generator is the public entry point for rendering a template against a
// DataProvider. The zero value is not usable; build one with New.
type Generator struct {
	pool     *workerpool.Pool
	pipeline *pipeline.Pipeline
}

// Option configures a Generator.
type Option func(*Generator)

// WithConcurrency bounds how many background/async generations may run
// at once. Default is 1 (fully sequential).
func WithConcurrency(degree int) Option {
	return func(g *Generator) { g.pool = workerpool.New(degree) }
}

// WithPipelineOptions forwards options to the underlying Pipeline, e.g.
// pipeline.WithRetryPolicy.
func WithPipelineOptions(opts ...pipeline.Option) Option {
	return func(g *Generator) { g.pipeline = pipeline.New(opts...) }
}

// New builds a Generator ready for Generate/GenerateFile/GenerateAsync/
// SubmitBackground.
func New(opts ...Option) *Generator {
	g := &Generator{pool: workerpool.New(1), pipeline: pipeline.New()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate synchronously renders templateBytes against provider/cfg and
// returns the rendered workbook's bytes. ctx's cancellation is checked
// between pipeline stages.
func (g *Generator) Generate(ctx context.Context, templateBytes []byte, provider model.DataProvider, cfg model.Config) ([]byte, error) {
	pctx := model.NewProcessingContext(templateBytes, provider, cfg)
	pctx.Cancelled = func() bool {
		select {
		case <-ctx.Done():
			return true
		default:
			return false
		}
	}
	if err := g.pipeline.Run(pctx); err != nil {
		return nil, err
	}
	return pctx.ResultBytes, nil
}

// GenerateFile synchronously renders templatePath against provider/cfg
// and writes the result to outputPath, applying cfg's file-naming and
// conflict policy. A partially written file is removed before the error
// is returned.
func (g *Generator) GenerateFile(ctx context.Context, templatePath, outputPath string, provider model.DataProvider, cfg model.Config) error {
	templateBytes, err := os.ReadFile(templatePath)
	if err != nil {
		return &model.PackageIoError{Op: "ReadFile.Template", Cause: err}
	}

	out, err := g.Generate(ctx, templateBytes, provider, cfg)
	if err != nil {
		return err
	}

	finalPath, err := resolveOutputPath(outputPath, cfg)
	if err != nil {
		return err
	}

	if err := os.WriteFile(finalPath, out, 0644); err != nil {
		_ = os.Remove(finalPath)
		return &model.PackageIoError{Op: "WriteFile.Output", Cause: err}
	}
	return nil
}

// resolveOutputPath applies FileNamingMode (optionally inserting a
// timestamp before the extension) and FileConflictPolicy (erroring or
// finding the next free sequenced name) to outputPath.
func resolveOutputPath(outputPath string, cfg model.Config) (string, error) {
	path := outputPath
	if cfg.FileNamingMode == model.FileNamingTimestamp {
		ext := filepath.Ext(path)
		base := strings.TrimSuffix(path, ext)
		format := cfg.TimestampFormat
		if format == "" {
			format = "20060102_150405"
		}
		path = fmt.Sprintf("%s_%s%s", base, stampNow(format), ext)
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return path, nil
		}
		return "", &model.PackageIoError{Op: "Stat.Output", Cause: err}
	}

	switch cfg.FileConflictPolicy {
	case model.FileConflictSequence:
		ext := filepath.Ext(path)
		base := strings.TrimSuffix(path, ext)
		for i := 1; ; i++ {
			candidate := fmt.Sprintf("%s(%d)%s", base, i, ext)
			if _, err := os.Stat(candidate); os.IsNotExist(err) {
				return candidate, nil
			}
		}
	default:
		return "", &model.PackageIoError{Op: "resolveOutputPath", Cause: fmt.Errorf("output path %q already exists", path)}
	}
}

// stampNow formats the current time with layout. Defined as a var so
// tests can override it without touching the real clock.
var stampNow = func(layout string) string { return time.Now().Format(layout) }

// Handle is a future-like reference to a generation submitted via
// GenerateAsync: Wait blocks for the result, Cancel requests cooperative
// cancellation at the next processor boundary.
type Handle struct {
	once   sync.Once
	done   chan struct{}
	result []byte
	err    error
	cancel context.CancelFunc
}

// Wait blocks until the generation completes and returns its result.
// Safe to call more than once or from more than one goroutine.
func (h *Handle) Wait() ([]byte, error) {
	<-h.done
	return h.result, h.err
}

// Cancel requests cancellation; the running generation observes it the
// next time the Pipeline checks between processors.
func (h *Handle) Cancel() {
	h.once.Do(func() {
		if h.cancel != nil {
			h.cancel()
		}
	})
}

func (h *Handle) finish(result []byte, err error) {
	h.result = result
	h.err = err
	close(h.done)
}

// GenerateAsync submits a generation onto the Generator's worker pool and
// returns immediately with a Handle.
func (g *Generator) GenerateAsync(ctx context.Context, templateBytes []byte, provider model.DataProvider, cfg model.Config) *Handle {
	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{done: make(chan struct{}), cancel: cancel}

	go func() {
		result, err := g.submitAndRun(runCtx, templateBytes, provider, cfg)
		h.finish(result, err)
	}()
	return h
}

// Listener receives the result of a SubmitBackground generation.
type Listener func(result []byte, err error)

// SubmitBackground submits a generation onto the Generator's worker pool
// and invokes listener with its result once it completes. listener runs
// on the pool's goroutine, not the caller's.
func (g *Generator) SubmitBackground(ctx context.Context, templateBytes []byte, provider model.DataProvider, cfg model.Config, listener Listener) {
	go func() {
		result, err := g.submitAndRun(ctx, templateBytes, provider, cfg)
		if listener != nil {
			listener(result, err)
		}
	}()
}

// submitAndRun acquires a worker-pool slot and runs Generate under it,
// so GenerateAsync/SubmitBackground calls beyond the pool's concurrency
// degree queue rather than running unbounded.
func (g *Generator) submitAndRun(ctx context.Context, templateBytes []byte, provider model.DataProvider, cfg model.Config) ([]byte, error) {
	var result []byte
	err := g.pool.Submit(ctx, func(ctx context.Context) error {
		out, err := g.Generate(ctx, templateBytes, provider, cfg)
		result = out
		return err
	})
	return result, err
}
