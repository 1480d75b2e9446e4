// Package pivot implements the PivotTableProcessor (spec §4.9): pivot
// tables are extracted from the template before render (since their
// source range and cache are tied to the template's static coordinates),
// and rebuilt afterward against the rendered, repeat-expanded source
// range.
//
// excelize's own AddPivotTable writes a pivot definition plus a minimal
// pivot-cache skeleton with refreshOnLoad set, but it never populates
// cache records or computes aggregates — Excel is left to do that on
// open. Per spec §4.9 this processor does not rely on that: it reads the
// rendered source rows itself, computes SUM/AVG/COUNT/COUNT_NUMS/MIN/MAX
// per configured data field, and writes the aggregated body — one row
// per unique row-label value in first-seen order, plus a grand-total row
// — directly into the pivot's location range, so the workbook shows
// correct numbers even before Excel ever refreshes the cache.
package pivot

import (
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/jogakdal/tbeg/pkg/tbeg/model"
	"github.com/jogakdal/tbeg/pkg/tbeg/position"
)

// Processor extracts and rebuilds a workbook's pivot tables around a
// render.
type Processor struct{}

// Extract reads every pivot table anchored on wb's sheets out of f.
func (Processor) Extract(f *excelize.File, wb *model.WorkbookSpec) ([]model.PivotInfo, error) {
	var out []model.PivotInfo
	for _, sheet := range wb.Sheets {
		tables, err := f.GetPivotTables(sheet.Name)
		if err != nil {
			return nil, &model.PackageIoError{Op: "GetPivotTables", Cause: err}
		}
		for _, pt := range tables {
			info, err := fromOptions(f, sheet.Name, pt)
			if err != nil {
				continue // skip a pivot table this processor can't roundtrip rather than fail the whole render
			}
			out = append(out, info)
		}
	}
	return out, nil
}

// Restore rebuilds every extracted pivot table against f: it computes the
// aggregated body from the rendered source range and writes it at the
// (calculator-projected) location, then registers a native pivot
// definition over the same range so Excel's own refresh recomputes it
// identically if the user asks it to.
func (Processor) Restore(f *excelize.File, pivots []model.PivotInfo, calculators map[string]*position.Calculator) error {
	for _, p := range pivots {
		sourceRange := p.SourceRange
		if calc, ok := calculators[p.SourceSheet]; ok {
			sourceRange = calc.GetFinalRange(p.SourceRange)
		}
		location := p.Location
		if calc, ok := calculators[p.LocationSheet]; ok {
			location = calc.GetFinalRange(p.Location)
		}

		groups, grandTotal, err := aggregate(f, p, sourceRange)
		if err != nil {
			return err
		}
		if err := writePivotBody(f, p, location, groups, grandTotal); err != nil {
			return err
		}

		opts := &excelize.PivotTableOptions{
			Name:            p.Name,
			DataRange:       p.SourceSheet + "!" + rangeRef(sourceRange),
			PivotTableRange: p.LocationSheet + "!" + rangeRef(location),
			Rows:            rowFields(p),
			Data:            dataFields(p),
			RowGrandTotals:  true,
			ColGrandTotals:  true,
			ShowRowHeaders:  true,
			ShowColHeaders:  true,
			ShowLastColumn:  true,
		}
		if p.StyleName != "" {
			opts.PivotTableStyleName = p.StyleName
		}
		if err := f.AddPivotTable(opts); err != nil {
			return &model.PackageIoError{Op: "AddPivotTable", Cause: err}
		}
	}
	return nil
}

// fieldAgg accumulates one data field's running statistics across rows.
// sum/nums/rows/min/max are each independently mergeable, so a grand
// total across groups is computed by merging the groups' fieldAggs rather
// than averaging their already-reduced results (which would be wrong for
// Average).
type fieldAgg struct {
	sum          float64
	min, max     float64
	rows, nums   int
	sawNumeric   bool
}

func (a *fieldAgg) addRaw(raw string) {
	a.rows++
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return
	}
	a.nums++
	a.sum += v
	if !a.sawNumeric || v < a.min {
		a.min = v
	}
	if !a.sawNumeric || v > a.max {
		a.max = v
	}
	a.sawNumeric = true
}

func (a *fieldAgg) merge(b fieldAgg) {
	a.sum += b.sum
	a.rows += b.rows
	a.nums += b.nums
	if b.sawNumeric {
		if !a.sawNumeric || b.min < a.min {
			a.min = b.min
		}
		if !a.sawNumeric || b.max > a.max {
			a.max = b.max
		}
		a.sawNumeric = true
	}
}

func (a fieldAgg) result(fn model.PivotAggFunc) float64 {
	switch fn {
	case model.AggAverage:
		if a.nums == 0 {
			return 0
		}
		return a.sum / float64(a.nums)
	case model.AggCount:
		return float64(a.rows)
	case model.AggCountNums:
		return float64(a.nums)
	case model.AggMin:
		return a.min
	case model.AggMax:
		return a.max
	default: // AggSum
		return a.sum
	}
}

// pivotGroup is one row-label group's per-data-field running aggregates.
type pivotGroup struct {
	label string
	aggs  []fieldAgg
}

func newAggs(n int) []fieldAgg { return make([]fieldAgg, n) }

// aggregate scans sourceRange's data rows (the first row is the header,
// per the template convention the Extract-time headerColumnIndex scan
// relies on) grouping by the row-label fields and accumulating each data
// field's fieldAgg, both per group and across every row for the grand
// total.
func aggregate(f *excelize.File, p model.PivotInfo, sourceRange model.CellArea) ([]*pivotGroup, []fieldAgg, error) {
	var order []string
	byLabel := map[string]*pivotGroup{}
	grandTotal := newAggs(len(p.DataFields))

	for row := sourceRange.Start.Row + 1; row <= sourceRange.End.Row; row++ {
		label, err := rowLabel(f, p, sourceRange, row)
		if err != nil {
			return nil, nil, err
		}
		g, ok := byLabel[label]
		if !ok {
			g = &pivotGroup{label: label, aggs: newAggs(len(p.DataFields))}
			byLabel[label] = g
			order = append(order, label)
		}
		for i, df := range p.DataFields {
			col := sourceRange.Start.Col + df.FieldIndex
			cellRef, _ := excelize.CoordinatesToCellName(col+1, row+1)
			v, err := f.GetCellValue(p.SourceSheet, cellRef)
			if err != nil {
				return nil, nil, &model.PackageIoError{Op: "pivot.aggregate.GetCellValue", Cause: err}
			}
			g.aggs[i].addRaw(v)
			grandTotal[i].addRaw(v)
		}
	}

	groups := make([]*pivotGroup, 0, len(order))
	for _, label := range order {
		groups = append(groups, byLabel[label])
	}
	return groups, grandTotal, nil
}

// rowLabel joins a row's row-label field values (in RowFields order) into
// a single grouping key.
func rowLabel(f *excelize.File, p model.PivotInfo, sourceRange model.CellArea, row int) (string, error) {
	parts := make([]string, 0, len(p.RowFields))
	for _, fieldIdx := range p.RowFields {
		col := sourceRange.Start.Col + fieldIdx
		cellRef, _ := excelize.CoordinatesToCellName(col+1, row+1)
		v, err := f.GetCellValue(p.SourceSheet, cellRef)
		if err != nil {
			return "", &model.PackageIoError{Op: "pivot.rowLabel.GetCellValue", Cause: err}
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, " / "), nil
}

// writePivotBody writes the pivot's header row, one row per group, and a
// grand-total row captioned p.GrandTotalCaption (defaulting to "Total"),
// at location on p.LocationSheet.
func writePivotBody(f *excelize.File, p model.PivotInfo, location model.CellArea, groups []*pivotGroup, grandTotal []fieldAgg) error {
	labelCols := len(p.RowFieldNames)
	row := location.Start.Row

	for i, name := range p.RowFieldNames {
		if err := setBodyCell(f, p.LocationSheet, location.Start.Col+i, row, name); err != nil {
			return err
		}
	}
	for i, df := range p.DataFields {
		if err := setBodyCell(f, p.LocationSheet, location.Start.Col+labelCols+i, row, dataFieldCaption(p, df)); err != nil {
			return err
		}
	}
	row++

	for _, g := range groups {
		if err := writeBodyRow(f, p, location.Start.Col, row, labelCols, g.label, g.aggs); err != nil {
			return err
		}
		row++
	}

	caption := p.GrandTotalCaption
	if caption == "" {
		caption = "Total"
	}
	return writeBodyRow(f, p, location.Start.Col, row, labelCols, caption, grandTotal)
}

func writeBodyRow(f *excelize.File, p model.PivotInfo, startCol, row, labelCols int, label string, aggs []fieldAgg) error {
	if err := setBodyCell(f, p.LocationSheet, startCol, row, label); err != nil {
		return err
	}
	for i, df := range p.DataFields {
		if err := setBodyCell(f, p.LocationSheet, startCol+labelCols+i, row, aggs[i].result(df.Function)); err != nil {
			return err
		}
	}
	return nil
}

func setBodyCell(f *excelize.File, sheet string, col, row int, value interface{}) error {
	cellRef, _ := excelize.CoordinatesToCellName(col+1, row+1)
	if err := f.SetCellValue(sheet, cellRef, value); err != nil {
		return &model.PackageIoError{Op: "pivot.writePivotBody.SetCellValue", Cause: err}
	}
	return nil
}

func dataFieldCaption(p model.PivotInfo, df model.PivotDataField) string {
	if cap, ok := p.Captions[df.FieldIndex]; ok && cap != "" {
		return cap
	}
	if df.DisplayName != "" {
		return df.DisplayName
	}
	return df.Function.String() + " of " + df.FieldName
}

func rowFields(p model.PivotInfo) []excelize.PivotTableField {
	fields := make([]excelize.PivotTableField, 0, len(p.RowFieldNames))
	for _, name := range p.RowFieldNames {
		fields = append(fields, excelize.PivotTableField{Data: name})
	}
	return fields
}

func dataFields(p model.PivotInfo) []excelize.PivotTableField {
	fields := make([]excelize.PivotTableField, 0, len(p.DataFields))
	for _, df := range p.DataFields {
		name := df.DisplayName
		if name == "" {
			name = df.Function.String() + " of " + df.FieldName
		}
		field := excelize.PivotTableField{
			Data:     df.FieldName,
			Name:     name,
			Subtotal: df.Function.String(),
		}
		if code := numFmtCode(df.NumberFormatID); code != "" {
			field.NumFmt = code
		}
		fields = append(fields, field)
	}
	return fields
}

// numFmtCode maps a built-in numFmtId (ECMA-376 §18.8.30) to the format
// code excelize.PivotTableField.NumFmt expects. Only the two codes
// PivotIntegerFormatIndex/PivotDecimalFormatIndex can reasonably name are
// supported; any other id is left unformatted rather than guessed at.
func numFmtCode(id int) string {
	switch id {
	case 1:
		return "0"
	case 2:
		return "0.00"
	default:
		return ""
	}
}

// fromOptions rebuilds a model.PivotInfo from the options excelize hands
// back. Row/data field "Data" strings are header text (the column's name
// in the source range's top row, per the PivotTableField convention), so
// their source column index is recovered by scanning that header row in
// f — the header text itself doesn't move when repeats expand the data
// rows beneath it.
func fromOptions(f *excelize.File, locationSheet string, pt excelize.PivotTableOptions) (model.PivotInfo, error) {
	sourceSheet, sourceArea, err := splitSheetRange(pt.DataRange)
	if err != nil {
		return model.PivotInfo{}, err
	}
	_, locationArea, err := splitSheetRange(pt.PivotTableRange)
	if err != nil {
		return model.PivotInfo{}, err
	}

	headerIndex := headerColumnIndex(f, sourceSheet, sourceArea)

	info := model.PivotInfo{
		Name:          pt.Name,
		Location:      locationArea,
		LocationSheet: locationSheet,
		SourceSheet:   sourceSheet,
		SourceRange:   sourceArea,
		StyleName:     pt.PivotTableStyleName,
		Captions:      map[int]string{},
	}

	for _, r := range pt.Rows {
		idx := headerIndex[r.Data]
		info.RowFieldNames = append(info.RowFieldNames, r.Data)
		info.RowFields = append(info.RowFields, idx)
		info.Captions[idx] = r.Data
	}
	for _, d := range pt.Data {
		idx := headerIndex[d.Data]
		name := d.Name
		info.DataFields = append(info.DataFields, model.PivotDataField{
			FieldIndex:  idx,
			FieldName:   d.Data,
			Function:    parseAggFunc(d.Subtotal),
			DisplayName: name,
		})
		if name != "" {
			info.Captions[idx] = name
		}
	}
	return info, nil
}

// headerColumnIndex maps each header cell's text, in area's top row, to
// its zero-based offset from area.Start.Col.
func headerColumnIndex(f *excelize.File, sheet string, area model.CellArea) map[string]int {
	out := make(map[string]int)
	for col := area.Start.Col; col <= area.End.Col; col++ {
		cell, _ := excelize.CoordinatesToCellName(col+1, area.Start.Row+1)
		v, err := f.GetCellValue(sheet, cell)
		if err != nil || v == "" {
			continue
		}
		out[v] = col - area.Start.Col
	}
	return out
}

func parseAggFunc(s string) model.PivotAggFunc {
	switch s {
	case "Average":
		return model.AggAverage
	case "Count":
		return model.AggCount
	case "CountNums":
		return model.AggCountNums
	case "Min":
		return model.AggMin
	case "Max":
		return model.AggMax
	default:
		return model.AggSum
	}
}

func splitSheetRange(ref string) (sheet string, area model.CellArea, err error) {
	for i := len(ref) - 1; i >= 0; i-- {
		if ref[i] == '!' {
			sheet = ref[:i]
			area, err = parseRange(ref[i+1:])
			return
		}
	}
	area, err = parseRange(ref)
	return
}

func parseRange(s string) (model.CellArea, error) {
	parts := splitColon(s)
	c1, r1, err := excelize.CellNameToCoordinates(parts[0])
	if err != nil {
		return model.CellArea{}, err
	}
	if len(parts) == 1 {
		return model.NewCellArea(r1-1, c1-1, r1-1, c1-1), nil
	}
	c2, r2, err := excelize.CellNameToCoordinates(parts[1])
	if err != nil {
		return model.CellArea{}, err
	}
	return model.NewCellArea(r1-1, c1-1, r2-1, c2-1), nil
}

func splitColon(s string) []string {
	for i, ch := range s {
		if ch == ':' {
			return []string{s[:i], s[i+1:]}
		}
	}
	return []string{s}
}

func rangeRef(area model.CellArea) string {
	start, _ := excelize.CoordinatesToCellName(area.Start.Col+1, area.Start.Row+1)
	end, _ := excelize.CoordinatesToCellName(area.End.Col+1, area.End.Row+1)
	return start + ":" + end
}
