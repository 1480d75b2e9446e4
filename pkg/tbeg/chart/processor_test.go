package chart

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/jogakdal/tbeg/pkg/tbeg/model"
	"github.com/jogakdal/tbeg/pkg/tbeg/position"
)

func buildChartFile(t *testing.T) *excelize.File {
	t.Helper()
	f := excelize.NewFile()
	for i := 1; i <= 4; i++ {
		require.NoError(t, f.SetCellValue("Sheet1", "A"+strconv.Itoa(i), i))
	}
	require.NoError(t, f.AddChart("Sheet1", "D2", &excelize.Chart{
		Type:   excelize.Col,
		Series: []excelize.ChartSeries{{Name: "Sheet1!$B$1", Categories: "Sheet1!$A$1:$A$4", Values: "Sheet1!$A$1:$A$4"}},
	}))
	return f
}

func TestExtractAndRestore_RoundTrip(t *testing.T) {
	f := buildChartFile(t)
	defer f.Close()

	sheet := model.NewSheetSpec("Sheet1")
	wb := &model.WorkbookSpec{Sheets: []*model.SheetSpec{sheet}}

	charts, err := (Processor{}).Extract(f, wb)
	require.NoError(t, err)
	require.Len(t, charts, 1)
	assert.Equal(t, "Sheet1", charts[0].Sheet)
	assert.NotEmpty(t, charts[0].AnchorCell)

	dest := excelize.NewFile()
	defer dest.Close()
	require.NoError(t, (Processor{}).Restore(dest, charts, map[string]*position.Calculator{}))

	restored, err := dest.GetCharts("Sheet1")
	require.NoError(t, err)
	assert.Len(t, restored, 1)
}

func TestRestore_ReanchorsThroughCalculator(t *testing.T) {
	f := buildChartFile(t)
	defer f.Close()

	sheet := model.NewSheetSpec("Sheet1")
	wb := &model.WorkbookSpec{Sheets: []*model.SheetSpec{sheet}}
	charts, err := (Processor{}).Extract(f, wb)
	require.NoError(t, err)

	repeatSheet := model.NewSheetSpec("Sheet1")
	repeatSheet.Repeats = []model.RepeatRegionSpec{{
		Collection: "rows", Sheet: "Sheet1",
		Area: model.NewCellArea(0, 0, 0, 0), Direction: model.DirectionDown,
	}}
	calc := position.NewCalculator(repeatSheet, model.CollectionSizes{"rows": 3})

	dest := excelize.NewFile()
	defer dest.Close()
	require.NoError(t, (Processor{}).Restore(dest, charts, map[string]*position.Calculator{"Sheet1": calc}))

	restored, err := dest.GetCharts("Sheet1")
	require.NoError(t, err)
	require.Len(t, restored, 1)
	assert.NotEqual(t, charts[0].AnchorCell, restored[0].Cell)
}

// TestRestore_RewritesSeriesDataSourceRange verifies a chart's series
// Categories/Values are projected through the source sheet's calculator
// too, not just the chart's own anchor, so the restored chart keeps
// plotting the full expanded range rather than the template's original
// 4-row extent. The repeat area is set to exactly the chart's A1:A4
// source range (rather than just overlapping it) so the result is
// unambiguous: the whole range grows by the repeat's own expansion.
func TestRestore_RewritesSeriesDataSourceRange(t *testing.T) {
	f := buildChartFile(t)
	defer f.Close()

	sheet := model.NewSheetSpec("Sheet1")
	wb := &model.WorkbookSpec{Sheets: []*model.SheetSpec{sheet}}
	charts, err := (Processor{}).Extract(f, wb)
	require.NoError(t, err)

	repeatSheet := model.NewSheetSpec("Sheet1")
	repeatSheet.Repeats = []model.RepeatRegionSpec{{
		Collection: "rows", Sheet: "Sheet1",
		Area: model.NewCellArea(0, 0, 3, 0), Direction: model.DirectionDown,
	}}
	calc := position.NewCalculator(repeatSheet, model.CollectionSizes{"rows": 10})

	dest := excelize.NewFile()
	defer dest.Close()
	require.NoError(t, (Processor{}).Restore(dest, charts, map[string]*position.Calculator{"Sheet1": calc}))

	restored, err := dest.GetCharts("Sheet1")
	require.NoError(t, err)
	require.Len(t, restored, 1)
	require.Len(t, restored[0].Series, 1)
	assert.Equal(t, "Sheet1!A1:A40", restored[0].Series[0].Categories)
	assert.Equal(t, "Sheet1!A1:A40", restored[0].Series[0].Values)
}
