package pipeline

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"github.com/jogakdal/tbeg/pkg/tbeg/analyzer"
	"github.com/jogakdal/tbeg/pkg/tbeg/chart"
	"github.com/jogakdal/tbeg/pkg/tbeg/collection"
	"github.com/jogakdal/tbeg/pkg/tbeg/formula"
	"github.com/jogakdal/tbeg/pkg/tbeg/layout"
	"github.com/jogakdal/tbeg/pkg/tbeg/metadata"
	"github.com/jogakdal/tbeg/pkg/tbeg/model"
	"github.com/jogakdal/tbeg/pkg/tbeg/pivot"
	"github.com/jogakdal/tbeg/pkg/tbeg/position"
	"github.com/jogakdal/tbeg/pkg/tbeg/render"
)

// byteReader wraps a byte slice as an io.Reader for excelize.OpenReader.
func byteReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

// Pipeline runs the fixed processor chain against one ProcessingContext.
type Pipeline struct {
	options Options
}

// New builds a Pipeline configured by opts.
func New(opts ...Option) *Pipeline {
	return &Pipeline{options: applyOptions(opts)}
}

// stage names a single step for retry/cancellation bookkeeping.
type stage struct {
	name string
	run  func(ctx *model.ProcessingContext) error
}

// Run executes every stage in the fixed order, checking ctx.Cancelled
// between each one. The first stage failure (after retries) aborts the
// run and is returned as-is.
func (p *Pipeline) Run(ctx *model.ProcessingContext) error {
	mgr := collection.NewManager("")
	defer mgr.CloseAll()

	var workFile *excelize.File
	var calculators map[string]*position.Calculator
	var strategy render.Strategy

	stages := []stage{
		{"TemplateAnalyze", func(ctx *model.ProcessingContext) error {
			f, err := excelize.OpenReader(byteReader(ctx.TemplateBytes))
			if err != nil {
				return &model.PackageIoError{Op: "OpenReader", Cause: err}
			}
			workFile = f
			wb, required, err := analyzer.New(ctx.Config).Analyze(f)
			if err != nil {
				return err
			}
			ctx.WorkbookSpec = wb
			ctx.RequiredNames = required
			return nil
		}},
		{"PositionCalculate", func(ctx *model.ProcessingContext) error {
			sized, err := sizeCollections(ctx, mgr)
			if err != nil {
				return err
			}
			ctx.CollectionSizes = sized
			calculators = make(map[string]*position.Calculator)
			for _, sheet := range ctx.WorkbookSpec.Sheets {
				calc := position.NewCalculator(sheet, sized)
				calculators[sheet.Name] = calc
				ctx.Calculators[sheet.Name] = calc
			}
			strategy = chooseStrategy(ctx, calculators)
			return nil
		}},
		{"ChartExtract", func(ctx *model.ProcessingContext) error {
			// StreamWriter never carries charts across; an in-memory
			// render edits the template file in place, so its charts
			// survive untouched without this processor's help.
			if _, streaming := strategy.(render.Streaming); !streaming {
				return nil
			}
			charts, err := (chart.Processor{}).Extract(workFile, ctx.WorkbookSpec)
			if err != nil {
				return err
			}
			ctx.ChartInfo = charts
			return nil
		}},
		{"PivotExtract", func(ctx *model.ProcessingContext) error {
			pivots, err := (pivot.Processor{}).Extract(workFile, ctx.WorkbookSpec)
			if err != nil {
				return err
			}
			ctx.PivotInfos = pivots
			return nil
		}},
		{"LayoutSnapshot", func(ctx *model.ProcessingContext) error {
			defer workFile.Close()
			if !ctx.Config.PreserveTemplateLayout {
				return nil
			}
			snap, err := (layout.Preserver{}).Snapshot(workFile, ctx.WorkbookSpec)
			if err != nil {
				return err
			}
			ctx.LayoutSnapshot = snap
			return nil
		}},
		{"TemplateRender", func(ctx *model.ProcessingContext) error {
			out, err := strategy.Render(ctx)
			if err != nil {
				return err
			}
			ctx.ResultBytes = out
			return nil
		}},
		{"FormulaAdjust", func(ctx *model.ProcessingContext) error {
			if !ctx.Config.FormulaProcessingEnabled {
				return nil
			}
			return adjustFormulas(ctx, calculators)
		}},
		{"NumberFormat", func(ctx *model.ProcessingContext) error {
			applyPivotNumberFormats(ctx)
			return nil
		}},
		{"XmlVariableReplace", func(ctx *model.ProcessingContext) error {
			return replaceXmlVariables(ctx)
		}},
		{"LayoutRestore", func(ctx *model.ProcessingContext) error {
			if ctx.LayoutSnapshot == nil {
				return nil
			}
			return withReopenedResult(ctx, func(f *excelize.File) error {
				return (layout.Preserver{}).Restore(f, ctx.LayoutSnapshot, calculators)
			})
		}},
		{"PivotRecreate", func(ctx *model.ProcessingContext) error {
			if len(ctx.PivotInfos) == 0 {
				return nil
			}
			return withReopenedResult(ctx, func(f *excelize.File) error {
				return (pivot.Processor{}).Restore(f, ctx.PivotInfos, calculators)
			})
		}},
		{"ChartRestore", func(ctx *model.ProcessingContext) error {
			if _, streaming := strategy.(render.Streaming); !streaming || len(ctx.ChartInfo) == 0 {
				return nil
			}
			return withReopenedResult(ctx, func(f *excelize.File) error {
				return (chart.Processor{}).Restore(f, ctx.ChartInfo, calculators)
			})
		}},
		{"Metadata", func(ctx *model.ProcessingContext) error {
			meta, ok := ctx.DataProvider.Metadata()
			if !ok {
				return nil
			}
			ctx.Metadata = meta
			return withReopenedResult(ctx, func(f *excelize.File) error {
				return (metadata.Writer{}).Write(f, meta)
			})
		}},
	}

	for _, s := range stages {
		if ctx.Cancelled != nil && ctx.Cancelled() {
			return &model.CancellationSignal{}
		}
		if err := p.runStage(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// runStage invokes s.run, retrying per p.options.RetryPolicy on failure.
func (p *Pipeline) runStage(ctx *model.ProcessingContext, s stage) error {
	policy := p.options.RetryPolicy
	if policy == nil || policy.MaxRetries <= 1 {
		err := s.run(ctx)
		if err != nil {
			log.Error().Str("stage", s.name).Err(err).Msg("pipeline stage failed")
		} else {
			log.Debug().Str("stage", s.name).Msg("pipeline stage completed")
		}
		return err
	}

	var lastErr error
	for attempt := 0; attempt < policy.MaxRetries; attempt++ {
		if err := s.run(ctx); err == nil {
			log.Debug().Str("stage", s.name).Int("attempt", attempt+1).Msg("pipeline stage completed")
			return nil
		} else {
			lastErr = err
			log.Warn().Str("stage", s.name).Int("attempt", attempt+1).Err(err).Msg("pipeline stage attempt failed")
		}
		if attempt == policy.MaxRetries-1 {
			break
		}
		if policy.Backoff > 0 {
			time.Sleep(time.Duration(attempt+1) * policy.Backoff)
		}
	}
	log.Error().Str("stage", s.name).Int("attempts", policy.MaxRetries).Err(lastErr).Msg("pipeline stage exhausted retries")
	return lastErr
}

// withReopenedResult opens ctx.ResultBytes, runs fn against it, and
// re-serializes the result back into ctx.ResultBytes. Every post-render
// processor (layout/pivot/chart/metadata restore) shares this shape since
// each needs a live *excelize.File, not raw bytes.
func withReopenedResult(ctx *model.ProcessingContext, fn func(f *excelize.File) error) error {
	f, err := excelize.OpenReader(byteReader(ctx.ResultBytes))
	if err != nil {
		return &model.PackageIoError{Op: "OpenReader.ResultBytes", Cause: err}
	}
	defer f.Close()

	if err := fn(f); err != nil {
		return err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return &model.PackageIoError{Op: "WriteToBuffer", Cause: err}
	}
	ctx.ResultBytes = buf.Bytes()
	return nil
}

// sizeCollections resolves every repeat's collection size, preferring the
// DataProvider's ItemCount fast path and falling back to materializing
// the collection through mgr so single-shot sources (e.g. a channel) can
// still be replayed when Items() is actually called during render.
func sizeCollections(ctx *model.ProcessingContext, mgr *collection.Manager) (model.CollectionSizes, error) {
	sizes := make(model.CollectionSizes)
	seen := make(map[string]bool)

	for _, r := range ctx.WorkbookSpec.AllRepeats() {
		if seen[r.Collection] {
			continue
		}
		seen[r.Collection] = true

		if n, ok := ctx.DataProvider.ItemCount(r.Collection); ok {
			sizes[r.Collection] = n
			continue
		}

		buf, err := mgr.GetOrCreate(r.Collection, func() (model.ItemIterator, error) {
			it, ok := ctx.DataProvider.Items(r.Collection)
			if !ok {
				return nil, &model.MissingTemplateDataError{Collections: []string{r.Collection}}
			}
			return it, nil
		})
		if err != nil {
			return nil, err
		}
		sizes[r.Collection] = buf.Count()
	}

	ctx.DataProvider = bufferedProvider{inner: ctx.DataProvider, mgr: mgr, buffered: seen}
	return sizes, nil
}

// bufferedProvider overrides Items for every collection a repeat
// references, reading it through mgr's replayable buffer (filled during
// sizeCollections, or on first use for a collection sized through the
// ItemCount fast path) instead of re-invoking a possibly single-shot
// source a second time.
type bufferedProvider struct {
	inner    model.DataProvider
	mgr      *collection.Manager
	buffered map[string]bool
}

func (p bufferedProvider) Value(name string) (model.Value, bool) { return p.inner.Value(name) }

func (p bufferedProvider) Items(name string) (model.ItemIterator, bool) {
	if !p.buffered[name] {
		return p.inner.Items(name)
	}
	buf, err := p.mgr.GetOrCreate(name, func() (model.ItemIterator, error) {
		it, ok := p.inner.Items(name)
		if !ok {
			return nil, &model.MissingTemplateDataError{Collections: []string{name}}
		}
		return it, nil
	})
	if err != nil {
		return nil, false
	}
	it, err := buf.Iterator()
	if err != nil {
		return nil, false
	}
	return it, true
}

func (p bufferedProvider) Image(name string) ([]byte, bool)    { return p.inner.Image(name) }
func (p bufferedProvider) ItemCount(name string) (int, bool)   { return p.inner.ItemCount(name) }
func (p bufferedProvider) Metadata() (model.DocumentMetadata, bool) { return p.inner.Metadata() }
func (p bufferedProvider) AvailableNames() []string            { return p.inner.AvailableNames() }

var _ model.DataProvider = bufferedProvider{}

// chooseStrategy picks InMemory or Streaming per Config.StreamingMode,
// resolving StreamingAuto by projecting every sheet's final row count
// against Config.StreamingRowThreshold.
func chooseStrategy(ctx *model.ProcessingContext, calculators map[string]*position.Calculator) render.Strategy {
	switch ctx.Config.StreamingMode {
	case model.StreamingEnabled:
		return render.Streaming{}
	case model.StreamingDisabled:
		return render.InMemory{}
	default:
		maxRow := 0
		for _, sheet := range ctx.WorkbookSpec.Sheets {
			calc := calculators[sheet.Name]
			final := calc.GetFinalPosition(model.CellCoord{Row: sheet.LastRowWithData, Col: 0})
			if final.Row > maxRow {
				maxRow = final.Row
			}
		}
		if maxRow >= ctx.Config.StreamingRowThreshold {
			return render.Streaming{}
		}
		return render.InMemory{}
	}
}

// adjustFormulas rewrites every formula cell's references in the rendered
// workbook to account for repeat expansion, using the calculators built
// from the pre-render WorkbookSpec (whose coordinates are exactly what
// authored formulas referenced).
func adjustFormulas(ctx *model.ProcessingContext, calculators map[string]*position.Calculator) error {
	return withReopenedResult(ctx, func(f *excelize.File) error {
		adjuster := &formula.Adjuster{Calculators: calculators}
		for _, sheetName := range f.GetSheetList() {
			rows, err := f.GetRows(sheetName)
			if err != nil {
				return &model.PackageIoError{Op: "GetRows", Cause: err}
			}
			for r := range rows {
				for c := range rows[r] {
					cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
					text, err := f.GetCellFormula(sheetName, cell)
					if err != nil || text == "" {
						continue
					}
					adjusted, err := adjuster.Adjust(sheetName, cell, text)
					if err != nil {
						return err
					}
					if adjusted != text {
						if err := f.SetCellFormula(sheetName, cell, adjusted); err != nil {
							return &model.PackageIoError{Op: "SetCellFormula", Cause: err}
						}
					}
				}
			}
		}
		return nil
	})
}

// applyPivotNumberFormats assigns Config's pivot format indices to every
// extracted pivot data field that doesn't already carry one: Count/
// CountNums aggregates get the integer format, every other aggregate
// (Sum, Average, Min, Max) gets the decimal one. PivotRecreate later
// turns NumberFormatID into the field's actual NumFmt code.
func applyPivotNumberFormats(ctx *model.ProcessingContext) {
	for i := range ctx.PivotInfos {
		for j, df := range ctx.PivotInfos[i].DataFields {
			if df.NumberFormatID != 0 {
				continue
			}
			if df.Function == model.AggCount || df.Function == model.AggCountNums {
				ctx.PivotInfos[i].DataFields[j].NumberFormatID = ctx.Config.PivotIntegerFormatIndex
			} else {
				ctx.PivotInfos[i].DataFields[j].NumberFormatID = ctx.Config.PivotDecimalFormatIndex
			}
		}
	}
}

// replaceXmlVariables substitutes ${var} tokens found in sheet
// header/footer text — template content outside the cell grid that
// TemplateRender never touches. Defined names are not examined.
func replaceXmlVariables(ctx *model.ProcessingContext) error {
	if ctx.VariableResolver == nil {
		return nil
	}
	return withReopenedResult(ctx, func(f *excelize.File) error {
		for _, sheetName := range f.GetSheetList() {
			hf, err := f.GetHeaderFooter(sheetName)
			if err != nil || hf == nil {
				continue
			}
			changed := false
			for _, field := range []*string{&hf.OddHeader, &hf.OddFooter, &hf.EvenHeader, &hf.EvenFooter} {
				if strings.Contains(*field, "${") {
					*field = substituteSimple(ctx, *field)
					changed = true
				}
			}
			if changed {
				if err := f.SetHeaderFooter(sheetName, hf); err != nil {
					return &model.PackageIoError{Op: "SetHeaderFooter", Cause: err}
				}
			}
		}
		return nil
	})
}

func substituteSimple(ctx *model.ProcessingContext, text string) string {
	var b strings.Builder
	for {
		start := strings.Index(text, "${")
		if start < 0 {
			b.WriteString(text)
			break
		}
		b.WriteString(text[:start])
		end := strings.Index(text[start:], "}")
		if end < 0 {
			b.WriteString(text[start:])
			break
		}
		name := text[start+2 : start+end]
		if v, ok := ctx.VariableResolver(name); ok {
			b.WriteString(v.String())
		}
		text = text[start+end+1:]
	}
	return b.String()
}
