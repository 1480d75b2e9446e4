package position

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jogakdal/tbeg/pkg/tbeg/model"
)

func sheetWithRepeats(repeats ...model.RepeatRegionSpec) *model.SheetSpec {
	s := model.NewSheetSpec("Sheet1")
	s.Repeats = repeats
	return s
}

func TestCalculator_SingleRepeat_Down(t *testing.T) {
	repeat := model.RepeatRegionSpec{
		Collection: "employees",
		Sheet:      "Sheet1",
		Area:       model.NewCellArea(1, 0, 1, 2),
		Direction:  model.DirectionDown,
	}
	sheet := sheetWithRepeats(repeat)
	sizes := model.CollectionSizes{"employees": 5}

	c := NewCalculator(sheet, sizes)
	exps := c.FinalExpansions()
	assert.Len(t, exps, 1)
	assert.Equal(t, 4, exps[0].RowExpansion) // (5-1)*1
	assert.Equal(t, 1, exps[0].FinalStartRow)

	// A cell two rows below the repeat's template area (row 3) should
	// shift down by the full row expansion.
	final := c.GetFinalPosition(model.CellCoord{Row: 3, Col: 0})
	assert.Equal(t, 7, final.Row)
}

func TestCalculator_TwoStackedRepeats_Sum(t *testing.T) {
	r1 := model.RepeatRegionSpec{Collection: "a", Sheet: "Sheet1", Area: model.NewCellArea(1, 0, 1, 1), Direction: model.DirectionDown}
	r2 := model.RepeatRegionSpec{Collection: "b", Sheet: "Sheet1", Area: model.NewCellArea(3, 0, 3, 1), Direction: model.DirectionDown}
	sheet := sheetWithRepeats(r1, r2)
	sizes := model.CollectionSizes{"a": 3, "b": 2}

	c := NewCalculator(sheet, sizes)
	exps := c.FinalExpansions()

	var e1, e2 model.RepeatExpansion
	for _, e := range exps {
		if e.Spec.Collection == "a" {
			e1 = e
		} else {
			e2 = e
		}
	}
	assert.Equal(t, 1, e1.FinalStartRow) // unaffected, nothing precedes it
	assert.Equal(t, 3+2, e2.FinalStartRow) // shifted down by r1's expansion (2 extra rows)
}

func TestCalculator_TwoSideBySideRepeats_Independent(t *testing.T) {
	// Two repeats occupying disjoint columns are independent bands: a point
	// that falls inside one repeat's own column zone sees only that
	// repeat's stacked expansion, not the other's.
	r1 := model.RepeatRegionSpec{Collection: "a", Sheet: "Sheet1", Area: model.NewCellArea(1, 0, 1, 0), Direction: model.DirectionDown}
	r2 := model.RepeatRegionSpec{Collection: "b", Sheet: "Sheet1", Area: model.NewCellArea(1, 2, 1, 2), Direction: model.DirectionDown}
	sheet := sheetWithRepeats(r1, r2)
	sizes := model.CollectionSizes{"a": 2, "b": 10}

	c := NewCalculator(sheet, sizes)

	// Column 0 belongs to r1's own band zone: only r1's expansion (1) shifts it.
	final := c.GetFinalPosition(model.CellCoord{Row: 2, Col: 0})
	assert.Equal(t, 2+1, final.Row)

	// Column 2 belongs to r2's own band zone: only r2's expansion (9) shifts it.
	final2 := c.GetFinalPosition(model.CellCoord{Row: 2, Col: 2})
	assert.Equal(t, 2+9, final2.Row)
}

func TestCalculator_PointOutsideAnyBandZone_Max(t *testing.T) {
	// A point whose column falls outside every band's zone (e.g. global
	// content spanning both repeats' columns) is affected by multiple
	// independent bands at once; it must clear the deepest one, so the
	// shift is the max across bands, not the sum.
	r1 := model.RepeatRegionSpec{Collection: "a", Sheet: "Sheet1", Area: model.NewCellArea(1, 0, 1, 0), Direction: model.DirectionDown}
	r2 := model.RepeatRegionSpec{Collection: "b", Sheet: "Sheet1", Area: model.NewCellArea(1, 2, 1, 2), Direction: model.DirectionDown}
	sheet := sheetWithRepeats(r1, r2)
	sizes := model.CollectionSizes{"a": 2, "b": 10}

	c := NewCalculator(sheet, sizes)
	final := c.GetFinalPosition(model.CellCoord{Row: 2, Col: 5})
	assert.Equal(t, 2+9, final.Row) // max(1, 9) == 9
}

func TestCalculator_EmptyCollectionCollapses(t *testing.T) {
	r1 := model.RepeatRegionSpec{Collection: "a", Sheet: "Sheet1", Area: model.NewCellArea(1, 0, 1, 1), Direction: model.DirectionDown}
	sheet := sheetWithRepeats(r1)
	sizes := model.CollectionSizes{"a": 0}

	c := NewCalculator(sheet, sizes)
	exps := c.FinalExpansions()
	assert.Equal(t, -1, exps[0].RowExpansion)
}

func TestCalculator_EmptyCollectionWithEmptyArea(t *testing.T) {
	emptyArea := model.NewCellArea(1, 0, 2, 1)
	r1 := model.RepeatRegionSpec{
		Collection: "a", Sheet: "Sheet1",
		Area: model.NewCellArea(1, 0, 1, 1), Direction: model.DirectionDown,
		EmptyArea: &emptyArea,
	}
	sheet := sheetWithRepeats(r1)
	sizes := model.CollectionSizes{"a": 0}

	c := NewCalculator(sheet, sizes)
	exps := c.FinalExpansions()
	assert.Equal(t, 1, exps[0].RowExpansion) // empty area is 2 rows vs 1 template row
}

func TestGetFinalRange_GrowsToEncloseRepeat(t *testing.T) {
	r1 := model.RepeatRegionSpec{Collection: "a", Sheet: "Sheet1", Area: model.NewCellArea(1, 0, 1, 2), Direction: model.DirectionDown}
	sheet := sheetWithRepeats(r1)
	sizes := model.CollectionSizes{"a": 4}
	c := NewCalculator(sheet, sizes)

	enclosing := model.NewCellArea(0, 0, 1, 2)
	final := c.GetFinalRange(enclosing)
	assert.Equal(t, 0, final.Start.Row)
	assert.Equal(t, 1+3, final.End.Row) // original end row 1 + RowExpansion 3
}
