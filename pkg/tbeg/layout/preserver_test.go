package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/jogakdal/tbeg/pkg/tbeg/model"
	"github.com/jogakdal/tbeg/pkg/tbeg/position"
)

func buildTestFile(t *testing.T) *excelize.File {
	t.Helper()
	f := excelize.NewFile()
	require.NoError(t, f.SetColWidth("Sheet1", "A", "A", 20))
	require.NoError(t, f.SetRowHeight("Sheet1", 2, 30))

	dv := excelize.NewDataValidation(true)
	dv.Sqref = "A2:A2"
	require.NoError(t, dv.SetRange(0, 100, excelize.DataValidationTypeWhole, excelize.DataValidationOperatorBetween))
	dv.SetError(excelize.DataValidationErrorStyleStop, "Bad input", "must be 0-100")
	require.NoError(t, f.AddDataValidation("Sheet1", dv))

	require.NoError(t, f.SetConditionalFormat("Sheet1", "A2:A2", []excelize.ConditionalFormatOptions{
		{Type: "cell", Criteria: ">", Format: nil, MinValue: "50"},
	}))
	return f
}

func testSheet(name string) *model.SheetSpec {
	sheet := model.NewSheetSpec(name)
	sheet.Set(model.CellCoord{Row: 0, Col: 0}, model.StaticString("header"))
	sheet.Set(model.CellCoord{Row: 1, Col: 0}, model.ItemField("Value"))
	sheet.Repeats = []model.RepeatRegionSpec{{
		Collection: "rows", Sheet: name,
		Area: model.NewCellArea(1, 0, 1, 0), Direction: model.DirectionDown,
	}}
	return sheet
}

func TestSnapshot_CapturesWidthsHeightsValidationsAndFormats(t *testing.T) {
	f := buildTestFile(t)
	defer f.Close()

	sheet := testSheet("Sheet1")
	wb := &model.WorkbookSpec{Sheets: []*model.SheetSpec{sheet}}

	snap, err := (Preserver{}).Snapshot(f, wb)
	require.NoError(t, err)

	assert.Equal(t, 20.0, snap.ColWidths["Sheet1"][0])
	assert.Equal(t, 30.0, snap.RowHeights["Sheet1"][1])

	require.Len(t, snap.DataValidations, 1)
	dv := snap.DataValidations[0]
	assert.Equal(t, "Sheet1", dv.Sheet)
	assert.Equal(t, model.NewCellArea(1, 0, 1, 0), dv.Range)
	assert.Equal(t, "must be 0-100", dv.ErrorMessage)
	assert.Equal(t, "Bad input", dv.ErrorTitle)

	require.Len(t, snap.ConditionalFormats, 1)
	assert.Equal(t, "Sheet1", snap.ConditionalFormats[0].Sheet)
	assert.Equal(t, model.NewCellArea(1, 0, 1, 0), snap.ConditionalFormats[0].Range)
}

func TestRestore_ProjectsRangesThroughCalculator(t *testing.T) {
	src := buildTestFile(t)
	sheet := testSheet("Sheet1")
	wb := &model.WorkbookSpec{Sheets: []*model.SheetSpec{sheet}}
	snap, err := (Preserver{}).Snapshot(src, wb)
	require.NoError(t, err)
	require.NoError(t, src.Close())

	calc := position.NewCalculator(sheet, model.CollectionSizes{"rows": 4})
	calculators := map[string]*position.Calculator{"Sheet1": calc}

	dest := excelize.NewFile()
	defer dest.Close()
	require.NoError(t, (Preserver{}).Restore(dest, snap, calculators))

	w, err := dest.GetColWidth("Sheet1", "A")
	require.NoError(t, err)
	assert.Equal(t, 20.0, w)

	dvs, err := dest.GetDataValidations("Sheet1")
	require.NoError(t, err)
	require.Len(t, dvs, 1)
	// The single template row (row index 1) expands to 4 rows given 4
	// items, so the restored validation's range must grow to cover them.
	assert.Equal(t, "A2:A5", dvs[0].Sqref)

	cfs, err := dest.GetConditionalFormats("Sheet1")
	require.NoError(t, err)
	_, ok := cfs["A2:A5"]
	assert.True(t, ok)
}

func TestRestore_NoCalculatorLeavesRangeUnprojected(t *testing.T) {
	src := buildTestFile(t)
	sheet := testSheet("Sheet1")
	wb := &model.WorkbookSpec{Sheets: []*model.SheetSpec{sheet}}
	snap, err := (Preserver{}).Snapshot(src, wb)
	require.NoError(t, err)
	require.NoError(t, src.Close())

	dest := excelize.NewFile()
	defer dest.Close()
	require.NoError(t, (Preserver{}).Restore(dest, snap, map[string]*position.Calculator{}))

	dvs, err := dest.GetDataValidations("Sheet1")
	require.NoError(t, err)
	require.Len(t, dvs, 1)
	assert.Equal(t, "A2:A2", dvs[0].Sqref)
}

func TestParseRange(t *testing.T) {
	area, ok := parseRange("B3:D5")
	require.True(t, ok)
	assert.Equal(t, model.NewCellArea(2, 1, 4, 3), area)

	single, ok := parseRange("A1")
	require.True(t, ok)
	assert.Equal(t, model.NewCellArea(0, 0, 0, 0), single)

	_, ok = parseRange("")
	assert.False(t, ok)
}
