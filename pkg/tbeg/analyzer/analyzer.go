// Package analyzer implements the four-phase template traversal (spec
// §4.2) that turns a raw .xlsx template into a model.WorkbookSpec plus the
// set of variable/collection/image names the template requires.
package analyzer

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"github.com/jogakdal/tbeg/pkg/tbeg/marker"
	"github.com/jogakdal/tbeg/pkg/tbeg/model"
)

// Analyzer walks every sheet of an opened workbook and builds the
// declarative blueprint the rest of the pipeline renders against.
type Analyzer struct {
	MissingDataBehavior model.MissingDataBehavior
}

// New returns an Analyzer configured from cfg.
func New(cfg model.Config) *Analyzer {
	return &Analyzer{MissingDataBehavior: cfg.MissingDataBehavior}
}

// Analyze runs all four phases against f and returns the resulting
// WorkbookSpec and the names it requires from the DataProvider.
//
// Phase 1: per-sheet cell scan, classifying every non-empty cell via
// marker.Parser and recording repeat markers as they're found.
// Phase 2: normalize repeat markers into model.RepeatRegionSpec, resolving
// TargetSheet references and de-duplicating identical regions.
// Phase 3: collect every Variable/ItemField/RepeatMarker/ImageMarker name
// into RequiredNames for upfront provider validation.
// Phase 4: validate structural invariants (no two repeats on the same
// sheet may overlap in 2D, per spec's repeat-region invariant).
func (a *Analyzer) Analyze(f *excelize.File) (*model.WorkbookSpec, *model.RequiredNames, error) {
	wb := &model.WorkbookSpec{}
	required := model.NewRequiredNames()

	sheetNames := f.GetSheetList()
	knownSheets := make(map[string]bool, len(sheetNames))
	for _, name := range sheetNames {
		knownSheets[name] = true
	}

	for _, sheetName := range sheetNames {
		sheetSpec, err := a.analyzeSheet(f, sheetName, required, knownSheets)
		if err != nil {
			return nil, nil, err
		}
		wb.Sheets = append(wb.Sheets, sheetSpec)
	}

	if err := a.validateNoOverlaps(wb); err != nil {
		return nil, nil, err
	}

	return wb, required, nil
}

// analyzeSheet runs phase 1-3 for one sheet. knownSheets holds every
// sheet name in the workbook, so a repeat marker's TargetSheet parameter
// can be validated against it.
func (a *Analyzer) analyzeSheet(f *excelize.File, sheetName string, required *model.RequiredNames, knownSheets map[string]bool) (*model.SheetSpec, error) {
	sheet := model.NewSheetSpec(sheetName)
	p := marker.New(sheetName)

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, &model.PackageIoError{Op: fmt.Sprintf("GetRows(%s)", sheetName), Cause: err}
	}

	for rowIdx, row := range rows {
		for colIdx, raw := range row {
			if strings.TrimSpace(raw) == "" {
				continue
			}
			cellRef, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+1)
			isFormula, formulaText := cellFormula(f, sheetName, cellRef)

			var content model.CellContent
			var perr error
			if isFormula {
				content, perr = p.ParseCell(formulaText, true, cellRef)
			} else {
				content, perr = p.ParseCell(raw, false, cellRef)
			}
			if perr != nil {
				return nil, perr
			}
			if content.Kind == model.ContentEmpty {
				continue
			}

			coord := model.CellCoord{Row: rowIdx, Col: colIdx}
			sheet.Set(coord, content)
			a.collectNames(content, required)

			if content.Kind == model.ContentRepeatMarker {
				spec, err := a.normalizeRepeat(sheetName, cellRef, coord, content.Repeat, knownSheets)
				if err != nil {
					return nil, err
				}
				sheet.Repeats = appendUniqueRepeat(sheet.Repeats, spec)
			}
		}
	}

	return sheet, nil
}

// cellFormula reports whether the given cell holds a formula and, if so,
// its formula text with a leading "=" (excelize's GetCellFormula returns
// the text without one, so it is prepended here).
func cellFormula(f *excelize.File, sheet, cellRef string) (bool, string) {
	formula, err := f.GetCellFormula(sheet, cellRef)
	if err != nil || formula == "" {
		return false, ""
	}
	return true, "=" + formula
}

// normalizeRepeat turns a parsed RepeatMarker into a RepeatRegionSpec,
// defaulting TargetSheet to the sheet the marker cell itself lives on. The
// declared area is used as written; it is not offset relative to the
// marker cell. Rejects a TargetSheet naming a sheet the workbook doesn't
// actually have.
func (a *Analyzer) normalizeRepeat(sheetName, cellRef string, cell model.CellCoord, m *model.RepeatMarker, knownSheets map[string]bool) (model.RepeatRegionSpec, error) {
	target := m.TargetSheet
	if target == "" {
		target = sheetName
	} else if !knownSheets[target] {
		return model.RepeatRegionSpec{}, &model.TemplateError{
			Kind:  model.SheetNotFound,
			Sheet: sheetName,
			Cell:  cellRef,
			Text:  fmt.Sprintf("repeat targets unknown sheet %q", target),
		}
	}
	return model.RepeatRegionSpec{
		Collection: m.Collection,
		Sheet:      target,
		Area:       m.Area,
		Variable:   m.Variable,
		Direction:  m.Direction,
		EmptyArea:  m.EmptyArea,
	}, nil
}

// appendUniqueRepeat dedupes identical repeat declarations (the same
// sheet/collection/area triple declared by more than one marker cell,
// e.g. a repeat area whose every cell carries the same function marker).
// On a key collision the LAST-seen declaration wins and replaces the one
// already recorded: later marker cells are scanned after earlier ones in
// reading order, so when two markers disagree on anything the Key()
// doesn't cover (Variable, Direction, EmptyArea) the later one reflects
// what the template author edited it to most recently.
func appendUniqueRepeat(repeats []model.RepeatRegionSpec, spec model.RepeatRegionSpec) []model.RepeatRegionSpec {
	key := spec.Key()
	for i, existing := range repeats {
		if existing.Key() == key {
			if existing != spec {
				log.Warn().
					Str("sheet", spec.Sheet).
					Str("collection", spec.Collection).
					Msg("duplicate repeat marker for the same region; keeping the last one seen")
			}
			repeats[i] = spec
			return repeats
		}
	}
	return append(repeats, spec)
}

// collectNames records every name a cell's content references.
func (a *Analyzer) collectNames(c model.CellContent, required *model.RequiredNames) {
	switch c.Kind {
	case model.ContentVariable:
		required.AddVariable(c.VariableName)
	case model.ContentItemField:
		required.AddVariable(rootName(c.ItemPath))
	case model.ContentRepeatMarker:
		required.AddCollection(c.Repeat.Collection)
	case model.ContentImageMarker:
		required.AddImage(c.Image.Name)
	case model.ContentSizeMarker:
		required.AddCollection(c.Size.Collection)
	case model.ContentFormula:
		for _, name := range embeddedVariableNames(c.FormulaText) {
			required.AddVariable(name)
		}
	}
}

// rootName returns the first segment of a dotted item path, which is the
// repeat's bound variable name, not a provider-level variable — analyzer
// still records it so diagnostics can show what the template references,
// but RequiredNames consumers must cross-check it against active repeat
// variables before treating it as missing provider data.
func rootName(path string) string {
	if i := strings.IndexByte(path, '.'); i >= 0 {
		return path[:i]
	}
	return path
}

// embeddedVariableNames extracts every ${name} token from formula text.
func embeddedVariableNames(text string) []string {
	var names []string
	for {
		start := strings.Index(text, "${")
		if start < 0 {
			break
		}
		end := strings.Index(text[start:], "}")
		if end < 0 {
			break
		}
		name := text[start+2 : start+end]
		if name != "" && !strings.ContainsAny(name, "(),") {
			names = append(names, name)
		}
		text = text[start+end+1:]
	}
	return names
}

// validateNoOverlaps enforces that no two repeat regions on the same
// sheet occupy overlapping cells before expansion, which would make the
// position calculator's banding ambiguous.
func (a *Analyzer) validateNoOverlaps(wb *model.WorkbookSpec) error {
	for _, sheet := range wb.Sheets {
		for i := 0; i < len(sheet.Repeats); i++ {
			for j := i + 1; j < len(sheet.Repeats); j++ {
				ri, rj := sheet.Repeats[i], sheet.Repeats[j]
				if ri.Sheet != rj.Sheet {
					continue
				}
				if ri.Area.Overlaps2D(rj.Area) {
					return &model.TemplateError{
						Kind:  model.InvalidRepeatSyntax,
						Sheet: sheet.Name,
						Cell:  ri.Area.Start.String(),
						Text:  fmt.Sprintf("repeat regions for %q and %q overlap", ri.Collection, rj.Collection),
					}
				}
			}
		}
	}
	return nil
}
