// Package position implements the position calculator (spec §4.4): given
// a sheet's declared repeat regions and the resolved size of each bound
// collection, it computes where every repeat's expanded output area ends
// up, and projects arbitrary template points/ranges (formula references,
// data validations, conditional formats, chart and pivot ranges) to their
// rendered coordinates.
package position

import (
	"sort"

	"github.com/jogakdal/tbeg/pkg/tbeg/model"
)

// band groups repeats that share the orthogonal axis — e.g. for a row
// band, repeats occupying overlapping columns, so they stack one below
// another in the same column swath and their row expansions sum; a
// repeat in a disjoint column swath belongs to a different band and does
// not affect this one. zoneStart/zoneEnd is that column swath (the union
// of every member's own span on the orthogonal axis), used to tell which
// band, if any, a queried point's column falls into.
type band struct {
	repeatIdx          []int // indices into Calculator.expansions, per-band
	zoneStart, zoneEnd int   // orthogonal-axis extent covered by this band
}

// axis parameterizes buildBands/bandShift over rows vs columns, so the
// same grouping/stacking logic serves both RowExpansion (bands grouped by
// column overlap) and ColExpansion (bands grouped by row overlap) without
// duplicating it.
type axis struct {
	primaryStart func(model.CellArea) int
	zoneStart    func(model.CellArea) int
	zoneEnd      func(model.CellArea) int
	expansion    func(model.RepeatExpansion) int
	groupOverlap func(a, b model.CellArea) bool
	zoneOf       func(model.CellCoord) int
	primaryOf    func(model.CellCoord) int
	// precedes reports whether area lies strictly before primaryCoord on
	// this axis — i.e. whether area's own expansion applies to a point
	// downstream of it. Built on model.CellArea.Precedes.
	precedes func(area model.CellArea, primaryCoord int) bool
}

// transpose swaps an area's row and column axes. CellArea.Precedes is a
// row-major "strictly after" test; viewed through transpose it becomes a
// column-major test, letting colAxis reuse it instead of restating the
// comparison.
func transpose(a model.CellArea) model.CellArea {
	return model.CellArea{
		Start: model.CellCoord{Row: a.Start.Col, Col: a.Start.Row},
		End:   model.CellCoord{Row: a.End.Col, Col: a.End.Row},
	}
}

// rowAxis drives RowExpansion propagation: repeats are grouped into bands
// by overlapping COLUMN ranges (spec §4.4 step 1 — "group repeats by
// overlapping column ranges"), and within a band the expansions stack by
// row (summed), not maxed.
var rowAxis = axis{
	primaryStart: func(a model.CellArea) int { return a.Start.Row },
	zoneStart:    func(a model.CellArea) int { return a.Start.Col },
	zoneEnd:      func(a model.CellArea) int { return a.End.Col },
	expansion:    func(e model.RepeatExpansion) int { return e.RowExpansion },
	groupOverlap: func(a, b model.CellArea) bool { return a.OverlapsColumns(b) },
	zoneOf:       func(c model.CellCoord) int { return c.Col },
	primaryOf:    func(c model.CellCoord) int { return c.Row },
	precedes: func(area model.CellArea, primaryCoord int) bool {
		return area.Precedes(model.CellCoord{Row: primaryCoord, Col: area.End.Col})
	},
}

// colAxis is rowAxis's mirror for ColExpansion (right-growing repeats):
// bands group by overlapping ROW ranges, and within a band expansions
// stack by column.
var colAxis = axis{
	primaryStart: func(a model.CellArea) int { return a.Start.Col },
	zoneStart:    func(a model.CellArea) int { return a.Start.Row },
	zoneEnd:      func(a model.CellArea) int { return a.End.Row },
	expansion:    func(e model.RepeatExpansion) int { return e.ColExpansion },
	groupOverlap: func(a, b model.CellArea) bool { return a.OverlapsRows(b) },
	zoneOf:       func(c model.CellCoord) int { return c.Row },
	primaryOf:    func(c model.CellCoord) int { return c.Col },
	precedes: func(area model.CellArea, primaryCoord int) bool {
		t := transpose(area)
		return t.Precedes(model.CellCoord{Row: primaryCoord, Col: t.End.Col})
	},
}

// Calculator computes final positions for one sheet.
type Calculator struct {
	sheet      *model.SheetSpec
	expansions []model.RepeatExpansion // parallel to sheet.Repeats, own (unshifted) expansion per repeat
	rowBands   []band
	colBands   []band
}

// NewCalculator builds a Calculator for sheet using sizes resolved for
// every collection the sheet's repeats reference. Collections the sheet
// does not use are ignored.
func NewCalculator(sheet *model.SheetSpec, sizes model.CollectionSizes) *Calculator {
	c := &Calculator{sheet: sheet}
	c.expansions = make([]model.RepeatExpansion, len(sheet.Repeats))
	for i, spec := range sheet.Repeats {
		n := sizes.Get(spec.Collection)
		c.expansions[i] = model.RepeatExpansion{Spec: spec, ItemCount: n}
		rowSpan := spec.Area.RowSpan()
		colSpan := spec.Area.ColSpan()

		switch {
		case n <= 0 && spec.EmptyArea != nil:
			if spec.Direction == model.DirectionDown {
				c.expansions[i].RowExpansion = spec.EmptyArea.RowSpan() - rowSpan
			} else {
				c.expansions[i].ColExpansion = spec.EmptyArea.ColSpan() - colSpan
			}
		case n <= 0:
			// No empty-area override: the repeat collapses to nothing
			// along its own axis; the orthogonal axis is untouched.
			if spec.Direction == model.DirectionDown {
				c.expansions[i].RowExpansion = -rowSpan
			} else {
				c.expansions[i].ColExpansion = -colSpan
			}
		case spec.Direction == model.DirectionDown:
			c.expansions[i].RowExpansion = (n - 1) * rowSpan
		default:
			c.expansions[i].ColExpansion = (n - 1) * colSpan
		}
	}

	c.rowBands = buildBands(c.expansions, rowAxis)
	c.colBands = buildBands(c.expansions, colAxis)
	return c
}

// buildBands unions repeats whose original areas overlap along ax's
// orthogonal axis (ax.groupOverlap) into bands, transitively — three
// repeats A, B, C where A overlaps B and B overlaps C band together even
// if A and C don't directly overlap. Each band records the union of its
// members' spans on the orthogonal axis (its "zone"), used later to tell
// whether a queried point falls inside this band's swath at all.
func buildBands(expansions []model.RepeatExpansion, ax axis) []band {
	n := len(expansions)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			ai, aj := expansions[i].Spec.Area, expansions[j].Spec.Area
			if ax.groupOverlap(ai, aj) {
				union(i, j)
			}
		}
	}

	groups := make(map[int][]int)
	for i := 0; i < n; i++ {
		root := find(i)
		groups[root] = append(groups[root], i)
	}

	bands := make([]band, 0, len(groups))
	for _, members := range groups {
		b := band{repeatIdx: members}
		first := true
		for _, idx := range members {
			area := expansions[idx].Spec.Area
			zs, ze := ax.zoneStart(area), ax.zoneEnd(area)
			if first || zs < b.zoneStart {
				b.zoneStart = zs
			}
			if first || ze > b.zoneEnd {
				b.zoneEnd = ze
			}
			first = false
		}
		sort.Slice(b.repeatIdx, func(i, j int) bool {
			return ax.primaryStart(expansions[b.repeatIdx[i]].Spec.Area) < ax.primaryStart(expansions[b.repeatIdx[j]].Spec.Area)
		})
		bands = append(bands, b)
	}
	sort.Slice(bands, func(i, j int) bool { return bands[i].zoneStart < bands[j].zoneStart })
	return bands
}

// bandStackedShift sums the expansions of every member of b whose area
// ends strictly before primaryCoord — members of the same band stack
// sequentially along the primary axis (spec §4.4 step 3: "Σ(prior
// repeats' rowExpansion in same band that end before this one)").
func bandStackedShift(b band, expansions []model.RepeatExpansion, ax axis, primaryCoord int) int {
	shift := 0
	for _, idx := range b.repeatIdx {
		area := expansions[idx].Spec.Area
		if ax.precedes(area, primaryCoord) {
			shift += ax.expansion(expansions[idx])
		}
	}
	return shift
}

// bandShift projects point p through bands built for ax. If p's
// orthogonal coordinate falls inside exactly one band's zone, that band
// alone applies (spec's "single influence" rule) and its members stack.
// Otherwise p is independent of any one repeat's column/row swath — e.g.
// it is global content below two side-by-side repeats of different
// lengths — so every band that precedes it contributes, and the largest
// one wins rather than all of them summing (spec's "multiple influences:
// element-wise maximum, not the sum").
func bandShift(bands []band, expansions []model.RepeatExpansion, ax axis, p model.CellCoord) int {
	zc := ax.zoneOf(p)
	pc := ax.primaryOf(p)
	for _, b := range bands {
		if zc >= b.zoneStart && zc <= b.zoneEnd {
			return bandStackedShift(b, expansions, ax, pc)
		}
	}
	max := 0
	for _, b := range bands {
		if s := bandStackedShift(b, expansions, ax, pc); s > max {
			max = s
		}
	}
	return max
}

// FinalExpansions returns the computed RepeatExpansion for every repeat on
// the sheet, with FinalStartRow/FinalStartCol set to the repeat's shifted
// origin.
func (c *Calculator) FinalExpansions() []model.RepeatExpansion {
	out := make([]model.RepeatExpansion, len(c.expansions))
	for i, exp := range c.expansions {
		start := exp.Spec.Area.Start
		exp.FinalStartRow = start.Row + bandShift(c.rowBands, c.expansions, rowAxis, start)
		exp.FinalStartCol = start.Col + bandShift(c.colBands, c.expansions, colAxis, start)
		out[i] = exp
	}
	return out
}

// GetFinalPosition projects one template coordinate to its rendered
// coordinate, accounting for every repeat expansion that precedes it.
// Coordinates inside a repeat's own area are projected to that repeat's
// first rendered row/col (i.e. as if item index 0); callers that need a
// specific item's row (e.g. FormulaAdjuster resolving a same-row sibling
// reference) add the item's offset themselves via RepeatExpansion.
func (c *Calculator) GetFinalPosition(p model.CellCoord) model.CellCoord {
	return model.CellCoord{
		Row: p.Row + bandShift(c.rowBands, c.expansions, rowAxis, p),
		Col: p.Col + bandShift(c.colBands, c.expansions, colAxis, p),
	}
}

// GetFinalRange projects a template area to its rendered area. The start
// corner projects like a point. The end corner additionally absorbs the
// expansion of any repeat whose area is fully contained within the range
// and ends on the range's last row (or last column, for column growth),
// since the end corner's own projection already includes every repeat
// that ends before it (e.g. a data-validation range drawn around a repeat
// region keeps enclosing it after expansion).
func (c *Calculator) GetFinalRange(a model.CellArea) model.CellArea {
	start := c.GetFinalPosition(a.Start)
	end := c.GetFinalPosition(a.End)

	rowGrow, colGrow := 0, 0
	for _, exp := range c.expansions {
		area := exp.Spec.Area
		if a.Contains(area.Start) && a.Contains(area.End) {
			if !rowAxis.precedes(area, a.End.Row) {
				rowGrow += exp.RowExpansion
			}
			if !colAxis.precedes(area, a.End.Col) {
				colGrow += exp.ColExpansion
			}
		}
	}

	return model.CellArea{
		Start: start,
		End:   model.CellCoord{Row: end.Row + rowGrow, Col: end.Col + colGrow},
	}
}
