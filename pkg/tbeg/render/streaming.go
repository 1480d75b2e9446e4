package render

import (
	"github.com/xuri/excelize/v2"

	"github.com/jogakdal/tbeg/pkg/tbeg/model"
	"github.com/jogakdal/tbeg/pkg/tbeg/position"
)

// Streaming renders the workbook using excelize.StreamWriter: output rows
// are written forward-only in increasing order, never revisited, which
// keeps memory bounded regardless of the rendered row count (spec §4.5).
// Chosen automatically over InMemory once a sheet's projected row count
// crosses model.Config.StreamingRowThreshold.
//
// Because StreamWriter cannot insert or revisit rows, a DOWN-direction
// repeat is rendered by writing its template row block once per item, in
// sequence; a RIGHT-direction repeat is resolved eagerly within the
// single row being written (its item count is already known from
// CollectionSizes, so the whole row's column span is computed before
// that row is emitted). Charts and pivot tables on a streamed sheet are
// extracted before render and reattached afterward by the chart/pivot
// processors — StreamWriter itself carries neither.
type Streaming struct{}

func (Streaming) Render(ctx *model.ProcessingContext) ([]byte, error) {
	f, err := excelize.OpenReader(byteReader(ctx.TemplateBytes))
	if err != nil {
		return nil, &model.PackageIoError{Op: "Streaming.Render.Open", Cause: err}
	}
	defer f.Close()

	for _, sheet := range ctx.WorkbookSpec.Sheets {
		if err := renderSheetStreaming(f, ctx, sheet); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, &model.PackageIoError{Op: "Streaming.Render.Write", Cause: err}
	}
	return buf.Bytes(), nil
}

func renderSheetStreaming(f *excelize.File, ctx *model.ProcessingContext, sheet *model.SheetSpec) error {
	calcAny := ctx.Calculators[sheet.Name]
	calc, _ := calcAny.(*position.Calculator)

	sw, err := f.NewStreamWriter(sheet.Name)
	if err != nil {
		return &model.PackageIoError{Op: "NewStreamWriter", Cause: err}
	}

	downRepeats := map[int]model.RepeatRegionSpec{}   // template start row -> spec
	rightRepeats := map[int]model.RepeatRegionSpec{}  // template row -> spec, for rows containing a RIGHT repeat
	skipRows := map[int]bool{}                        // template rows consumed by a down-repeat block other than its first row
	for _, r := range sheet.Repeats {
		if r.Direction == model.DirectionDown {
			downRepeats[r.Area.Start.Row] = r
			for row := r.Area.Start.Row; row <= r.Area.End.Row; row++ {
				skipRows[row] = true
			}
			delete(skipRows, r.Area.Start.Row) // the start row drives the whole block
		} else {
			rightRepeats[r.Area.Start.Row] = r
		}
	}

	lastRow := sheet.LastRowWithData
	outputRow := 1
	for templateRow := 0; templateRow <= lastRow; templateRow++ {
		if skipRows[templateRow] {
			continue
		}
		if spec, ok := downRepeats[templateRow]; ok {
			n := ctx.CollectionSizes.Get(spec.Collection)
			nextRow, err := writeDownRepeatBlock(sw, ctx, sheet, spec, n, outputRow)
			if err != nil {
				return err
			}
			outputRow = nextRow
			continue
		}
		if err := writeStreamingRow(sw, ctx, sheet, templateRow, outputRow, rightRepeats[templateRow]); err != nil {
			return err
		}
		outputRow++
	}

	if err := sw.Flush(); err != nil {
		return &model.PackageIoError{Op: "StreamWriter.Flush", Cause: err}
	}
	_ = calc // retained for formula/layout processors that run after render
	return nil
}

// writeDownRepeatBlock writes spec's rowSpan template rows once per item,
// starting at outputRow, and returns the next free output row.
func writeDownRepeatBlock(sw *excelize.StreamWriter, ctx *model.ProcessingContext, sheet *model.SheetSpec, spec model.RepeatRegionSpec, n int, outputRow int) (int, error) {
	if n <= 0 {
		// Zero items: emit nothing for this block; an EmptyArea (if any)
		// is expected to live elsewhere on the sheet as ordinary static
		// content that the author placed for this case.
		return outputRow, nil
	}

	it, ok := ctx.DataProvider.Items(spec.Collection)
	if !ok {
		return outputRow, &model.MissingTemplateDataError{Collections: []string{spec.Collection}}
	}
	defer it.Close()

	area := spec.Area
	rowSpan := area.RowSpan()
	row := outputRow
	for idx := 0; idx < n; idx++ {
		item, hasItem, err := it.Next()
		if err != nil {
			return outputRow, err
		}
		if !hasItem {
			break
		}
		for r := 0; r < rowSpan; r++ {
			cells, err := rowCells(ctx, sheet, area.Start.Row+r, item, spec.Variable)
			if err != nil {
				return outputRow, err
			}
			cellRef, _ := excelize.CoordinatesToCellName(1, row)
			if err := sw.SetRow(cellRef, cells); err != nil {
				return outputRow, &model.PackageIoError{Op: "StreamWriter.SetRow", Cause: err}
			}
			row++
		}
	}
	return row, nil
}

// writeStreamingRow writes one ordinary (non-down-repeat) template row,
// eagerly expanding a RIGHT-direction repeat inline if one starts on it.
func writeStreamingRow(sw *excelize.StreamWriter, ctx *model.ProcessingContext, sheet *model.SheetSpec, templateRow, outputRow int, rightRepeat model.RepeatRegionSpec) error {
	var cells []interface{}
	if rightRepeat.Collection != "" {
		var err error
		cells, err = rightRepeatRowCells(ctx, sheet, rightRepeat)
		if err != nil {
			return err
		}
	} else {
		var err error
		cells, err = rowCells(ctx, sheet, templateRow, nil, "")
		if err != nil {
			return err
		}
	}
	cellRef, _ := excelize.CoordinatesToCellName(1, outputRow)
	if err := sw.SetRow(cellRef, cells); err != nil {
		return &model.PackageIoError{Op: "StreamWriter.SetRow", Cause: err}
	}
	return nil
}

// rowCells resolves every populated cell on templateRow into a positional
// []interface{} slice suitable for StreamWriter.SetRow, starting at
// column 1. item/itemVar, when non-nil, resolve ItemField cells against a
// repeat's current item.
func rowCells(ctx *model.ProcessingContext, sheet *model.SheetSpec, templateRow int, item interface{}, itemVar string) ([]interface{}, error) {
	maxCol := -1
	for coord := range sheet.Cells {
		if coord.Row == templateRow && coord.Col > maxCol {
			maxCol = coord.Col
		}
	}
	if maxCol < 0 {
		return nil, nil
	}
	cells := make([]interface{}, maxCol+1)
	for col := 0; col <= maxCol; col++ {
		content, ok := sheet.Cells[model.CellCoord{Row: templateRow, Col: col}]
		if !ok {
			continue
		}
		v, err := cellStreamValue(ctx, content, item, itemVar)
		if err != nil {
			return nil, err
		}
		cells[col] = v
	}
	return cells, nil
}

// rightRepeatRowCells resolves a RIGHT-direction repeat's single template
// row into n items' worth of columns, looping the template column block.
func rightRepeatRowCells(ctx *model.ProcessingContext, sheet *model.SheetSpec, spec model.RepeatRegionSpec) ([]interface{}, error) {
	n := ctx.CollectionSizes.Get(spec.Collection)
	area := spec.Area
	colSpan := area.ColSpan()
	if n <= 0 {
		return nil, nil
	}

	it, ok := ctx.DataProvider.Items(spec.Collection)
	if !ok {
		return nil, &model.MissingTemplateDataError{Collections: []string{spec.Collection}}
	}
	defer it.Close()

	cells := make([]interface{}, n*colSpan)
	for idx := 0; idx < n; idx++ {
		item, hasItem, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !hasItem {
			break
		}
		for c := 0; c < colSpan; c++ {
			content, ok := sheet.Cells[model.CellCoord{Row: area.Start.Row, Col: area.Start.Col + c}]
			if !ok {
				continue
			}
			v, err := cellStreamValue(ctx, content, item, spec.Variable)
			if err != nil {
				return nil, err
			}
			cells[idx*colSpan+c] = v
		}
	}
	return cells, nil
}

func cellStreamValue(ctx *model.ProcessingContext, content model.CellContent, item interface{}, itemVar string) (interface{}, error) {
	switch content.Kind {
	case model.ContentItemField:
		v, _ := resolveItemValue(item, itemFieldPath(content.ItemPath, itemVar))
		return v.CellValue(), nil
	case model.ContentFormula:
		text := substituteFormulaVariables(ctx, content.FormulaText, item, itemVar)
		return excelize.Cell{Formula: formulaBody(text)}, nil
	case model.ContentEmpty, model.ContentRepeatMarker, model.ContentImageMarker:
		return nil, nil
	default:
		v, err := resolveScalar(ctx, content)
		if err != nil {
			return nil, err
		}
		return v.CellValue(), nil
	}
}
