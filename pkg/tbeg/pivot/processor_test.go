package pivot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/jogakdal/tbeg/pkg/tbeg/model"
	"github.com/jogakdal/tbeg/pkg/tbeg/position"
)

func buildPivotFile(t *testing.T) *excelize.File {
	t.Helper()
	f := excelize.NewFile()
	rows := [][]interface{}{
		{"Region", "Amount"},
		{"East", 10},
		{"West", 20},
		{"East", 30},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	require.NoError(t, f.AddPivotTable(&excelize.PivotTableOptions{
		DataRange:       "Sheet1!A1:B4",
		PivotTableRange: "Sheet1!D1:E3",
		Rows:            []excelize.PivotTableField{{Data: "Region"}},
		Data:            []excelize.PivotTableField{{Data: "Amount", Name: "Sum of Amount", Subtotal: "Sum"}},
	}))
	return f
}

func testSheetForSource() *model.SheetSpec {
	sheet := model.NewSheetSpec("Sheet1")
	sheet.Repeats = []model.RepeatRegionSpec{{
		Collection: "rows", Sheet: "Sheet1",
		Area: model.NewCellArea(1, 0, 1, 1), Direction: model.DirectionDown,
	}}
	return sheet
}

func TestExtract_ReadsSourceAndFieldNames(t *testing.T) {
	f := buildPivotFile(t)
	defer f.Close()

	wb := &model.WorkbookSpec{Sheets: []*model.SheetSpec{model.NewSheetSpec("Sheet1")}}
	pivots, err := (Processor{}).Extract(f, wb)
	require.NoError(t, err)
	require.Len(t, pivots, 1)

	p := pivots[0]
	assert.Equal(t, "Sheet1", p.SourceSheet)
	assert.Equal(t, model.NewCellArea(0, 0, 3, 1), p.SourceRange)
	require.Len(t, p.RowFieldNames, 1)
	assert.Equal(t, "Region", p.RowFieldNames[0])
	assert.Equal(t, 0, p.RowFields[0])
	require.Len(t, p.DataFields, 1)
	assert.Equal(t, "Amount", p.DataFields[0].FieldName)
	assert.Equal(t, 1, p.DataFields[0].FieldIndex)
	assert.Equal(t, model.AggSum, p.DataFields[0].Function)
}

func TestRestore_GrowsSourceRangeThroughCalculator(t *testing.T) {
	f := buildPivotFile(t)
	wb := &model.WorkbookSpec{Sheets: []*model.SheetSpec{model.NewSheetSpec("Sheet1")}}
	pivots, err := (Processor{}).Extract(f, wb)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	calc := position.NewCalculator(testSheetForSource(), model.CollectionSizes{"rows": 10})

	dest := excelize.NewFile()
	defer dest.Close()
	require.NoError(t, dest.SetSheetRow("Sheet1", "A1", &[]interface{}{"Region", "Amount"}))
	require.NoError(t, (Processor{}).Restore(dest, pivots, map[string]*position.Calculator{"Sheet1": calc}))

	restored, err := dest.GetPivotTables("Sheet1")
	require.NoError(t, err)
	require.Len(t, restored, 1)
	assert.Contains(t, restored[0].DataRange, "B13")
}

// TestRestore_WritesAggregatedBodyAndGrandTotal exercises aggregate/
// writePivotBody directly (no calculator in play, so source and location
// stay exactly where extract found them), verifying grouped SUM values
// and a grand-total row captioned via GrandTotalCaption.
func TestRestore_WritesAggregatedBodyAndGrandTotal(t *testing.T) {
	f := buildPivotFile(t)
	pivots, err := (Processor{}).Extract(f, wbFor(f))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.Len(t, pivots, 1)
	pivots[0].GrandTotalCaption = "Grand Total"

	dest := excelize.NewFile()
	defer dest.Close()
	rows := [][]interface{}{
		{"Region", "Amount"},
		{"East", 10},
		{"West", 20},
		{"East", 30},
		{"West", 5},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, dest.SetSheetRow("Sheet1", cell, &row))
	}
	pivots[0].SourceRange = model.NewCellArea(0, 0, 4, 1)

	require.NoError(t, (Processor{}).Restore(dest, pivots, nil))

	loc := pivots[0].Location

	header, _ := dest.GetCellValue("Sheet1", cellAt(loc.Start.Col, loc.Start.Row))
	assert.Equal(t, "Region", header)

	eastLabel, _ := dest.GetCellValue("Sheet1", cellAt(loc.Start.Col, loc.Start.Row+1))
	eastSum, _ := dest.GetCellValue("Sheet1", cellAt(loc.Start.Col+1, loc.Start.Row+1))
	assert.Equal(t, "East", eastLabel)
	assert.Equal(t, "40", eastSum)

	westLabel, _ := dest.GetCellValue("Sheet1", cellAt(loc.Start.Col, loc.Start.Row+2))
	westSum, _ := dest.GetCellValue("Sheet1", cellAt(loc.Start.Col+1, loc.Start.Row+2))
	assert.Equal(t, "West", westLabel)
	assert.Equal(t, "25", westSum)

	totalLabel, _ := dest.GetCellValue("Sheet1", cellAt(loc.Start.Col, loc.Start.Row+3))
	totalSum, _ := dest.GetCellValue("Sheet1", cellAt(loc.Start.Col+1, loc.Start.Row+3))
	assert.Equal(t, "Grand Total", totalLabel)
	assert.Equal(t, "65", totalSum)
}

func wbFor(f *excelize.File) *model.WorkbookSpec {
	return &model.WorkbookSpec{Sheets: []*model.SheetSpec{model.NewSheetSpec(f.GetSheetList()[0])}}
}

func cellAt(col, row int) string {
	ref, _ := excelize.CoordinatesToCellName(col+1, row+1)
	return ref
}
