// Package formula implements the FormulaAdjuster (spec §4.6): after a
// sheet's repeats have expanded, every formula's cell/range references
// need rewriting to point at the rendered coordinates instead of the
// template ones the author wrote them against.
package formula

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/jogakdal/tbeg/pkg/tbeg/model"
	"github.com/jogakdal/tbeg/pkg/tbeg/position"
)

// refPattern matches an (optionally sheet-qualified) A1 reference or
// range inside a formula: "Sheet1!A1:B2", "'My Sheet'!$A$1", "C10".
// Function names (SUM, IF, ...) never match since they aren't followed
// by digits directly, and this pattern requires a trailing digit run.
var refPattern = regexp.MustCompile(`(?:'[^']+'|[A-Za-z_][A-Za-z0-9_.]*)?!?\$?[A-Za-z]{1,3}\$?[0-9]+(?::\$?[A-Za-z]{1,3}\$?[0-9]+)?`)

// Adjuster rewrites formula text to account for a workbook's repeat
// expansions.
type Adjuster struct {
	// Calculators maps sheet name to that sheet's position.Calculator.
	Calculators map[string]*position.Calculator
	// DefaultSheet is used to resolve an unqualified reference's sheet
	// when Adjust is called with an empty sheetName.
	DefaultSheet string
}

// Adjust rewrites every reference found in formula, which is assumed to
// be formula text as stored by excelize (no leading "="). cellRef is the
// formula cell's own A1 address, used only for error reporting.
func (a *Adjuster) Adjust(sheetName, cellRef, formula string) (string, error) {
	var outerErr error
	result := refPattern.ReplaceAllStringFunc(formula, func(ref string) string {
		if outerErr != nil {
			return ref
		}
		rewritten, err := a.adjustRef(sheetName, ref)
		if err != nil {
			outerErr = &model.FormulaExpansionError{Sheet: sheetName, Cell: cellRef, Formula: formula, Reason: err.Error()}
			return ref
		}
		return rewritten
	})
	if outerErr != nil {
		return "", outerErr
	}
	return result, nil
}

func (a *Adjuster) adjustRef(currentSheet, ref string) (string, error) {
	sheetPart, cellPart := splitSheetRef(ref)
	targetSheet := currentSheet
	if targetSheet == "" {
		targetSheet = a.DefaultSheet
	}
	if sheetPart != "" {
		targetSheet = sheetPart
	}

	calc, ok := a.Calculators[targetSheet]
	if !ok {
		// Nothing to adjust on a sheet the analyzer never registered a
		// calculator for (e.g. it has no repeats at all).
		return ref, nil
	}

	parts := strings.SplitN(cellPart, ":", 2)
	absoluteRow1, absoluteCol1 := hasAbsoluteMarkers(parts[0])
	c1, r1, err := parseA1(parts[0])
	if err != nil {
		return ref, nil // not actually a cell ref (e.g. a bare number); leave untouched
	}

	if len(parts) == 1 {
		final := calc.GetFinalPosition(model.CellCoord{Row: r1, Col: c1})
		return formatRef(sheetPart, final, absoluteRow1, absoluteCol1), nil
	}

	absoluteRow2, absoluteCol2 := hasAbsoluteMarkers(parts[1])
	c2, r2, err := parseA1(parts[1])
	if err != nil {
		return ref, nil
	}
	area := model.NewCellArea(r1, c1, r2, c2)
	finalArea := calc.GetFinalRange(area)
	return formatRef(sheetPart, finalArea.Start, absoluteRow1, absoluteCol1) + ":" +
		formatRefCoord(finalArea.End, absoluteRow2, absoluteCol2), nil
}

func splitSheetRef(ref string) (sheet, cell string) {
	idx := strings.LastIndex(ref, "!")
	if idx < 0 {
		return "", ref
	}
	sheet = strings.TrimSpace(ref[:idx])
	sheet = strings.Trim(sheet, "'")
	return sheet, ref[idx+1:]
}

func hasAbsoluteMarkers(s string) (row, col bool) {
	// "$A$1" -> col abs, row abs; "$A1" -> col abs only; "A$1" -> row abs only.
	i := 0
	if i < len(s) && s[i] == '$' {
		col = true
		i++
	}
	for i < len(s) && isAlpha(s[i]) {
		i++
	}
	if i < len(s) && s[i] == '$' {
		row = true
	}
	return
}

func isAlpha(b byte) bool { return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') }

func parseA1(ref string) (col, row int, err error) {
	ref = strings.ReplaceAll(ref, "$", "")
	i := 0
	for i < len(ref) && isAlpha(ref[i]) {
		i++
	}
	if i == 0 || i == len(ref) {
		return 0, 0, fmt.Errorf("not a cell reference: %q", ref)
	}
	col = 0
	for _, ch := range strings.ToUpper(ref[:i]) {
		col = col*26 + int(ch-'A'+1)
	}
	col--
	row, err = strconv.Atoi(ref[i:])
	if err != nil {
		return 0, 0, err
	}
	return col, row - 1, nil
}

func formatRef(sheetPart string, c model.CellCoord, absRow, absCol bool) string {
	cell := formatRefCoord(c, absRow, absCol)
	if sheetPart == "" {
		return cell
	}
	name := sheetPart
	if strings.ContainsAny(name, " '") {
		name = "'" + strings.ReplaceAll(name, "'", "''") + "'"
	}
	return name + "!" + cell
}

func formatRefCoord(c model.CellCoord, absRow, absCol bool) string {
	name, _ := excelize.ColumnNumberToName(c.Col + 1)
	cell := ""
	if absCol {
		cell += "$"
	}
	cell += name
	if absRow {
		cell += "$"
	}
	cell += strconv.Itoa(c.Row + 1)
	return cell
}
