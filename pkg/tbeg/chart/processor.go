// Package chart implements the ChartProcessor (spec §4.8). Charts anchor
// to a fixed cell and carry their series/category data sources as literal
// "Sheet!Range" references, neither of which excelize.StreamWriter
// preserves across a streaming render — the stream writer builds a new
// sheet part from scratch and never copies drawings. So ChartProcessor
// only runs for the streaming strategy (wired that way in
// pipeline.Pipeline.Run): every chart is read out of the template before
// render and re-added, re-anchored and re-ranged, once the stream
// finishes. An in-memory render edits the template file in place, so its
// charts and their anchors survive untouched by construction and never
// go through this processor.
package chart

import (
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/jogakdal/tbeg/pkg/tbeg/model"
	"github.com/jogakdal/tbeg/pkg/tbeg/position"
)

// Processor extracts and restores a workbook's charts around a streaming
// render.
type Processor struct{}

// Extract reads every chart on wb's sheets out of f, recording each one's
// anchor cell so Restore can re-anchor it later. Safe to call even when a
// sheet carries no charts.
func (Processor) Extract(f *excelize.File, wb *model.WorkbookSpec) ([]model.ChartInfo, error) {
	var out []model.ChartInfo
	for _, sheet := range wb.Sheets {
		charts, err := f.GetCharts(sheet.Name)
		if err != nil {
			return nil, &model.PackageIoError{Op: "GetCharts", Cause: err}
		}
		for i := range charts {
			c := charts[i]
			out = append(out, model.ChartInfo{
				Sheet:      sheet.Name,
				AnchorCell: c.Cell,
				Definition: &c,
			})
		}
	}
	return out, nil
}

// Restore re-adds every extracted chart to f: its anchor cell is
// projected through that sheet's calculator so it lands below/right of
// whatever expansion happened above/left of it, and every series'
// Categories/Values data-source reference is rewritten the same way so
// the chart keeps plotting the full expanded data range rather than just
// the template's original row/column count.
func (Processor) Restore(f *excelize.File, charts []model.ChartInfo, calculators map[string]*position.Calculator) error {
	for _, ci := range charts {
		def, ok := ci.Definition.(*excelize.Chart)
		if !ok || def == nil {
			continue
		}
		calc := calculators[ci.Sheet]

		cell := ci.AnchorCell
		if calc != nil {
			if coord, err := parseCell(cell); err == nil {
				final := calc.GetFinalPosition(coord)
				cell, _ = excelize.CoordinatesToCellName(final.Col+1, final.Row+1)
			}
		}

		rewritten := *def
		rewritten.Series = make([]excelize.ChartSeries, len(def.Series))
		for i, s := range def.Series {
			s.Categories = rewriteSeriesRef(s.Categories, ci.Sheet, calculators)
			s.Values = rewriteSeriesRef(s.Values, ci.Sheet, calculators)
			rewritten.Series[i] = s
		}

		if err := f.AddChart(ci.Sheet, cell, &rewritten); err != nil {
			return &model.PackageIoError{Op: "AddChart", Cause: err}
		}
	}
	return nil
}

// rewriteSeriesRef projects a chart series data-source reference
// ("Sheet!$A$2:$A$10" or a bare "$A$2:$A$10" on the chart's own sheet)
// through that sheet's calculator so it encloses the rendered, expanded
// range instead of the template's literal one. References this package
// can't parse are left untouched rather than dropped.
func rewriteSeriesRef(ref, chartSheet string, calculators map[string]*position.Calculator) string {
	if ref == "" {
		return ref
	}
	sheetName, rangeText, qualified := splitSheetRef(ref)
	if !qualified {
		sheetName, rangeText = chartSheet, ref
	}
	calc, ok := calculators[sheetName]
	if !ok {
		return ref
	}
	area, ok := parseRangeRef(rangeText)
	if !ok {
		return ref
	}
	final := calc.GetFinalRange(area)
	if !qualified {
		return rangeRef(final)
	}
	return sheetName + "!" + rangeRef(final)
}

func splitSheetRef(ref string) (sheet, rng string, ok bool) {
	i := strings.LastIndex(ref, "!")
	if i < 0 {
		return "", "", false
	}
	return ref[:i], ref[i+1:], true
}

func parseRangeRef(rng string) (model.CellArea, bool) {
	rng = strings.ReplaceAll(rng, "$", "")
	parts := strings.SplitN(rng, ":", 2)
	c1, r1, err := excelize.CellNameToCoordinates(parts[0])
	if err != nil {
		return model.CellArea{}, false
	}
	if len(parts) == 1 {
		return model.NewCellArea(r1-1, c1-1, r1-1, c1-1), true
	}
	c2, r2, err := excelize.CellNameToCoordinates(parts[1])
	if err != nil {
		return model.CellArea{}, false
	}
	return model.NewCellArea(r1-1, c1-1, r2-1, c2-1), true
}

func rangeRef(area model.CellArea) string {
	start, _ := excelize.CoordinatesToCellName(area.Start.Col+1, area.Start.Row+1)
	end, _ := excelize.CoordinatesToCellName(area.End.Col+1, area.End.Row+1)
	return start + ":" + end
}

func parseCell(ref string) (model.CellCoord, error) {
	col, row, err := excelize.CellNameToCoordinates(ref)
	if err != nil {
		return model.CellCoord{}, err
	}
	return model.CellCoord{Row: row - 1, Col: col - 1}, nil
}
