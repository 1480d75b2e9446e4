package render

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/xuri/excelize/v2"

	"github.com/jogakdal/tbeg/pkg/tbeg/model"
	"github.com/jogakdal/tbeg/pkg/tbeg/position"
)

// InMemory renders the whole workbook by editing a fully loaded
// excelize.File in place: every resolved cell — repeat items and static
// content alike — is written straight at its final (post-expansion)
// coordinate, as computed by position.Calculator. excelize grows a sheet
// automatically as cells are set beyond its current extent, so no
// InsertRows/InsertCols bookkeeping is required.
//
// This mirrors how Streaming places output (forward placement driven by
// the calculator, never physical row surgery): a repeat's own band
// governs where its items land, independently of any other repeat that
// doesn't share its column/row swath. A row-insert-per-repeat approach
// can't do that, because inserting rows shifts every column in that row
// range uniformly — it can't grow two side-by-side repeats by different
// amounts without disturbing each other.
//
// Suited to templates small enough that holding the whole output in
// memory is cheap — the renderer picks this strategy under
// model.StreamingDisabled/StreamingAuto below the row threshold (spec
// §4.5).
//
// Nested repeats (one repeat's area overlapping another's) are not
// supported: the analyzer rejects overlapping repeat areas with an error,
// so this renderer never receives them.
type InMemory struct{}

func (InMemory) Render(ctx *model.ProcessingContext) ([]byte, error) {
	f, err := excelize.OpenReader(byteReader(ctx.TemplateBytes))
	if err != nil {
		return nil, &model.PackageIoError{Op: "InMemory.Render.Open", Cause: err}
	}
	defer f.Close()

	for _, sheet := range ctx.WorkbookSpec.Sheets {
		if err := renderSheetInMemory(f, ctx, sheet); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, &model.PackageIoError{Op: "InMemory.Render.Write", Cause: err}
	}
	return buf.Bytes(), nil
}

func renderSheetInMemory(f *excelize.File, ctx *model.ProcessingContext, sheet *model.SheetSpec) error {
	calcAny, ok := ctx.Calculators[sheet.Name]
	if !ok {
		return fmt.Errorf("no position calculator registered for sheet %q", sheet.Name)
	}
	calc := calcAny.(*position.Calculator)
	cache := newStyleCache(f)

	// Every template cell gets rewritten at its final coordinate below;
	// the cell's ORIGINAL location must be blanked first, since final
	// positions rarely coincide with template positions once any repeat
	// upstream of them has expanded or collapsed. Clearing up front (before
	// any write) means a write that happens to land back on an original
	// template coordinate is unaffected.
	for coord := range sheet.Cells {
		cellRef, _ := excelize.CoordinatesToCellName(coord.Col+1, coord.Row+1)
		if err := clearTemplateCell(f, sheet.Name, cellRef); err != nil {
			return err
		}
	}

	for _, exp := range calc.FinalExpansions() {
		if err := expandRepeatInMemory(f, ctx, sheet, exp, cache); err != nil {
			return err
		}
	}

	for coord, content := range sheet.Cells {
		if content.Kind == model.ContentRepeatMarker {
			continue
		}
		if cellInsideAnyRepeat(coord, sheet.Repeats) {
			continue
		}
		final := calc.GetFinalPosition(coord)
		if err := copyStyleTo(f, cache, sheet.Name, coord, final); err != nil {
			return err
		}
		if err := writeResolvedCell(f, ctx, sheet.Name, final, content, nil, ""); err != nil {
			return err
		}
	}

	return nil
}

// clearTemplateCell blanks a cell's value and, if it carries one, its
// formula — leaving its style untouched so a later copyStyleTo still has
// a source to read from.
func clearTemplateCell(f *excelize.File, sheetName, cellRef string) error {
	if formula, err := f.GetCellFormula(sheetName, cellRef); err == nil && formula != "" {
		if err := f.SetCellFormula(sheetName, cellRef, ""); err != nil {
			return &model.PackageIoError{Op: "clearTemplateCell.SetCellFormula", Cause: err}
		}
	}
	if err := f.SetCellValue(sheetName, cellRef, nil); err != nil {
		return &model.PackageIoError{Op: "clearTemplateCell.SetCellValue", Cause: err}
	}
	return nil
}

func cellInsideAnyRepeat(c model.CellCoord, repeats []model.RepeatRegionSpec) bool {
	for _, r := range repeats {
		if r.Area.Contains(c) {
			return true
		}
	}
	return false
}

// expandRepeatInMemory fills one repeat's block of resolved cells per
// item, placed at exp's calculator-assigned final origin.
func expandRepeatInMemory(f *excelize.File, ctx *model.ProcessingContext, sheet *model.SheetSpec, exp model.RepeatExpansion, cache *styleCache) error {
	n := exp.ItemCount
	if n <= 0 {
		// The template block was already blanked above; an EmptyArea (if
		// any) lives elsewhere on the sheet as ordinary static content the
		// author placed for this case.
		return nil
	}

	spec := exp.Spec
	area := spec.Area

	it, ok := ctx.DataProvider.Items(spec.Collection)
	if !ok {
		return &model.MissingTemplateDataError{Collections: []string{spec.Collection}}
	}
	defer it.Close()

	var offsetForItem func(item int) model.CellCoord
	if spec.Direction == model.DirectionDown {
		rowSpan := area.RowSpan()
		offsetForItem = func(item int) model.CellCoord {
			return model.CellCoord{Row: exp.FinalStartRow + item*rowSpan, Col: exp.FinalStartCol}
		}
	} else {
		colSpan := area.ColSpan()
		offsetForItem = func(item int) model.CellCoord {
			return model.CellCoord{Row: exp.FinalStartRow, Col: exp.FinalStartCol + item*colSpan}
		}
	}

	itemIdx := 0
	for itemIdx < n {
		item, hasItem, err := it.Next()
		if err != nil {
			return err
		}
		if !hasItem {
			break
		}
		blockOrigin := offsetForItem(itemIdx)
		for r := 0; r <= area.End.Row-area.Start.Row; r++ {
			for c := 0; c <= area.End.Col-area.Start.Col; c++ {
				templateCoord := model.CellCoord{Row: area.Start.Row + r, Col: area.Start.Col + c}
				content, ok := sheet.Cells[templateCoord]
				if !ok {
					continue
				}
				dest := blockOrigin.Add(r, c)
				if err := copyStyleTo(f, cache, sheet.Name, templateCoord, dest); err != nil {
					return err
				}
				if err := writeResolvedCell(f, ctx, sheet.Name, dest, content, item, spec.Variable); err != nil {
					return err
				}
			}
		}
		itemIdx++
	}
	return nil
}

// copyStyleTo applies src's template style to dest, so content written at
// a shifted final coordinate keeps the formatting the author gave the
// template cell it came from.
func copyStyleTo(f *excelize.File, cache *styleCache, sheetName string, src, dest model.CellCoord) error {
	srcCell, _ := excelize.CoordinatesToCellName(src.Col+1, src.Row+1)
	styleID, err := cache.styleFor(sheetName, srcCell)
	if err != nil {
		return &model.PackageIoError{Op: "copyStyleTo.styleFor", Cause: err}
	}
	destCell, _ := excelize.CoordinatesToCellName(dest.Col+1, dest.Row+1)
	if err := f.SetCellStyle(sheetName, destCell, destCell, styleID); err != nil {
		return &model.PackageIoError{Op: "copyStyleTo.SetCellStyle", Cause: err}
	}
	return nil
}

// writeResolvedCell resolves content (optionally against a repeat item)
// and writes it to dest.
func writeResolvedCell(f *excelize.File, ctx *model.ProcessingContext, sheetName string, dest model.CellCoord, content model.CellContent, item interface{}, itemVar string) error {
	cellRef, _ := excelize.CoordinatesToCellName(dest.Col+1, dest.Row+1)

	switch content.Kind {
	case model.ContentItemField:
		v, _ := resolveItemValue(item, itemFieldPath(content.ItemPath, itemVar))
		return f.SetCellValue(sheetName, cellRef, v.CellValue())
	case model.ContentFormula:
		text := substituteFormulaVariables(ctx, content.FormulaText, item, itemVar)
		return f.SetCellFormula(sheetName, cellRef, formulaBody(text))
	case model.ContentImageMarker:
		return writeImage(f, ctx, sheetName, dest, content.Image)
	case model.ContentEmpty:
		return nil
	default:
		v, err := resolveScalar(ctx, content)
		if err != nil {
			return err
		}
		return f.SetCellValue(sheetName, cellRef, v.CellValue())
	}
}

func formulaBody(text string) string {
	if len(text) > 0 && text[0] == '=' {
		return text[1:]
	}
	return text
}

func writeImage(f *excelize.File, ctx *model.ProcessingContext, sheetName string, dest model.CellCoord, marker *model.ImageMarker) error {
	data, ok := ctx.DataProvider.Image(marker.Name)
	if !ok {
		switch ctx.Config.MissingDataBehavior {
		case model.MissingDataThrow:
			return &model.MissingTemplateDataError{Images: []string{marker.Name}}
		case model.MissingDataWarn:
			log.Warn().Str("image", marker.Name).Msg("template image not provided")
		}
		return nil
	}
	cellRef, _ := excelize.CoordinatesToCellName(dest.Col+1, dest.Row+1)
	opts := &excelize.GraphicOptions{AutoFit: marker.Sizing.KeepAspect, LockAspectRatio: marker.Sizing.KeepAspect}
	if marker.Sizing.WidthPx > 0 {
		opts.ScaleX = 1
	}
	ext := sniffImageExt(data)
	return f.AddPictureFromBytes(sheetName, cellRef, &excelize.Picture{Extension: ext, File: data, Format: opts})
}

func sniffImageExt(data []byte) string {
	switch {
	case len(data) >= 8 && data[0] == 0x89 && data[1] == 'P':
		return ".png"
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8:
		return ".jpg"
	case len(data) >= 6 && string(data[:6]) == "GIF87a" || len(data) >= 6 && string(data[:6]) == "GIF89a":
		return ".gif"
	default:
		return ".png"
	}
}
