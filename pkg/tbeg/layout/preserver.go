// Package layout implements the LayoutPreserver (spec §4.7): column
// widths, row heights, data validations and conditional formats are
// captured from the template before render (when repeats haven't
// expanded yet) and restored — expanded to cover the rendered area —
// afterward.
package layout

import (
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/jogakdal/tbeg/pkg/tbeg/model"
	"github.com/jogakdal/tbeg/pkg/tbeg/position"
)

// Preserver snapshots and restores sheet layout around a render.
type Preserver struct{}

// Snapshot captures every sheet's column widths, row heights, data
// validations and conditional formats from the as-yet-unrendered
// template file.
func (Preserver) Snapshot(f *excelize.File, wb *model.WorkbookSpec) (*model.LayoutSnapshot, error) {
	snap := model.NewLayoutSnapshot()

	for _, sheet := range wb.Sheets {
		cols, err := f.GetCols(sheet.Name)
		if err != nil {
			return nil, &model.PackageIoError{Op: "GetCols", Cause: err}
		}
		widths := make(map[int]float64)
		for i := range cols {
			colName, _ := excelize.ColumnNumberToName(i + 1)
			w, err := f.GetColWidth(sheet.Name, colName)
			if err == nil {
				widths[i] = w
			}
		}
		snap.ColWidths[sheet.Name] = widths

		heights := make(map[int]float64)
		for r := 0; r <= sheet.LastRowWithData; r++ {
			h, err := f.GetRowHeight(sheet.Name, r+1)
			if err == nil {
				heights[r] = h
			}
		}
		snap.RowHeights[sheet.Name] = heights

		dvs, err := f.GetDataValidations(sheet.Name)
		if err != nil {
			return nil, &model.PackageIoError{Op: "GetDataValidations", Cause: err}
		}
		for _, dv := range dvs {
			area, ok := parseRange(dv.Sqref)
			if !ok {
				continue
			}
			snap.DataValidations = append(snap.DataValidations, model.DataValidationSnapshot{
				Sheet:         sheet.Name,
				Range:         area,
				Type:          dv.Type,
				Operator:      dv.Operator,
				Formula1:      dv.Formula1,
				Formula2:      dv.Formula2,
				AllowBlank:    dv.AllowBlank,
				ShowErrorBox:  dv.ShowErrorMessage,
				ErrorTitle:    safeStr(dv.ErrorTitle),
				ErrorMessage:  safeStr(dv.Error),
				PromptTitle:   safeStr(dv.PromptTitle),
				PromptMessage: safeStr(dv.Prompt),
			})
		}

		cfs, err := f.GetConditionalFormats(sheet.Name)
		if err != nil {
			return nil, &model.PackageIoError{Op: "GetConditionalFormats", Cause: err}
		}
		for rangeRef, rules := range cfs {
			area, ok := parseRange(rangeRef)
			if !ok {
				continue
			}
			snap.ConditionalFormats = append(snap.ConditionalFormats, model.ConditionalFormatSnapshot{
				Sheet: sheet.Name,
				Range: area,
				Rules: rules,
			})
		}
	}

	return snap, nil
}

// Restore reapplies snap to f after render, projecting every captured
// range through calculators so validations/conditional formats keep
// covering their repeat regions at the expanded size.
func (Preserver) Restore(f *excelize.File, snap *model.LayoutSnapshot, calculators map[string]*position.Calculator) error {
	for sheetName, widths := range snap.ColWidths {
		for idx, w := range widths {
			colName, _ := excelize.ColumnNumberToName(idx + 1)
			if err := f.SetColWidth(sheetName, colName, colName, w); err != nil {
				return &model.PackageIoError{Op: "SetColWidth", Cause: err}
			}
		}
	}

	for sheetName, heights := range snap.RowHeights {
		calc := calculators[sheetName]
		for idx, h := range heights {
			row := idx
			if calc != nil {
				row = calc.GetFinalPosition(model.CellCoord{Row: idx, Col: 0}).Row
			}
			if err := f.SetRowHeight(sheetName, row+1, h); err != nil {
				return &model.PackageIoError{Op: "SetRowHeight", Cause: err}
			}
		}
	}

	for _, dv := range snap.DataValidations {
		area := projectArea(calculators[dv.Sheet], dv.Range)
		nv := excelize.NewDataValidation(true)
		nv.Sqref = rangeRef(area)
		nv.Type = dv.Type
		nv.Operator = dv.Operator
		nv.Formula1 = dv.Formula1
		nv.Formula2 = dv.Formula2
		if dv.ErrorMessage != "" {
			nv.SetError(excelize.DataValidationErrorStyleStop, dv.ErrorTitle, dv.ErrorMessage)
		}
		if dv.PromptMessage != "" {
			nv.SetPrompt(dv.PromptTitle, dv.PromptMessage)
		}
		nv.AllowBlank = dv.AllowBlank
		if err := f.AddDataValidation(dv.Sheet, nv); err != nil {
			return &model.PackageIoError{Op: "AddDataValidation", Cause: err}
		}
	}

	for _, cf := range snap.ConditionalFormats {
		area := projectArea(calculators[cf.Sheet], cf.Range)
		rules, ok := cf.Rules.([]excelize.ConditionalFormatOptions)
		if !ok {
			continue
		}
		if err := f.SetConditionalFormat(cf.Sheet, rangeRef(area), rules); err != nil {
			return &model.PackageIoError{Op: "SetConditionalFormat", Cause: err}
		}
	}

	return nil
}

func projectArea(calc *position.Calculator, area model.CellArea) model.CellArea {
	if calc == nil {
		return area
	}
	return calc.GetFinalRange(area)
}

func cellName(c model.CellCoord) string {
	name, _ := excelize.CoordinatesToCellName(c.Col+1, c.Row+1)
	return name
}

// rangeRef formats area as an A1 range string ("A1:B2"), the form excelize
// expects for a Sqref or conditional-format range — CellArea.String's
// (row,col) form is for logging only.
func rangeRef(area model.CellArea) string {
	return cellName(area.Start) + ":" + cellName(area.End)
}

func safeStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// parseRange parses an excelize Sqref string ("A1:B2" or "A1:B2 C3:D4",
// the latter unsupported here — only the first range is kept) into a
// CellArea.
func parseRange(sqref string) (model.CellArea, bool) {
	if sqref == "" {
		return model.CellArea{}, false
	}
	first := sqref
	for i, ch := range sqref {
		if ch == ' ' {
			first = sqref[:i]
			break
		}
	}

	parts := strings.SplitN(first, ":", 2)
	col1, row1, err := excelize.CellNameToCoordinates(parts[0])
	if err != nil {
		return model.CellArea{}, false
	}
	if len(parts) == 1 {
		return model.NewCellArea(row1-1, col1-1, row1-1, col1-1), true
	}
	col2, row2, err := excelize.CellNameToCoordinates(parts[1])
	if err != nil {
		return model.CellArea{}, false
	}
	return model.NewCellArea(row1-1, col1-1, row2-1, col2-1), true
}
