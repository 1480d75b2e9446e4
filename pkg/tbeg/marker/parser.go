// Package marker parses the placeholder DSL documented in spec §4.1:
// ${name}, ${obj.path}, ${repeat(...)}, ${image(...)}, ${size(...)}, and
// the alternate spreadsheet-function spellings =TBEG_REPEAT(...),
// =TBEG_IMAGE(...), =TBEG_SIZE(...). The grammar is a handful of fixed
// productions (one marker name, a flat parameter list, an A1 range) — a
// hand-written recursive-descent scan, not a parser-combinator library or
// a regexp-heavy rewrite, is the idiomatic fit (see DESIGN.md).
package marker

import (
	"strconv"
	"strings"

	"github.com/jogakdal/tbeg/pkg/tbeg/model"
)

const (
	notationBegin = "${"
	notationEnd   = "}"
)

// Parser recognizes placeholder strings and formula text and reduces them
// to a model.CellContent variant.
type Parser struct {
	// CurrentSheet is the sheet the cell being parsed lives on; repeat/
	// image markers whose range omits a sheet prefix target this sheet.
	CurrentSheet string
}

// New returns a Parser scoped to the given sheet.
func New(currentSheet string) *Parser {
	return &Parser{CurrentSheet: currentSheet}
}

// ParseCell classifies one cell's raw string value (or formula text, if
// isFormula) into a CellContent.
func (p *Parser) ParseCell(raw string, isFormula bool, cellRef string) (model.CellContent, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return model.Empty(), nil
	}

	if call, ok := matchTbegFunction(trimmed); ok {
		return p.parseMarkerCall(call.name, call.args, cellRef, trimmed)
	}

	if isFormula {
		return p.parseFormulaCell(trimmed, cellRef)
	}

	if name, ok := singlePlaceholder(trimmed); ok {
		return p.parsePlaceholder(name, cellRef, trimmed)
	}

	if containsPlaceholder(trimmed) {
		// A static string with one or more embedded ${...} tokens that
		// are not the entire cell content is still resolved at
		// variable-substitution time, same as a Formula cell's ${var}
		// tokens, but it renders as a string, not a formula.
		return model.CellContent{Kind: model.ContentFormula, FormulaText: trimmed}, nil
	}

	return model.StaticString(trimmed), nil
}

// parsePlaceholder handles a cell whose entire content is one ${...}
// expression.
func (p *Parser) parsePlaceholder(inner string, cellRef, raw string) (model.CellContent, error) {
	name, args, hasCall := splitCall(inner)
	if hasCall {
		return p.parseMarkerCall(name, args, cellRef, raw)
	}
	return p.parseNameExpr(inner), nil
}

// parseNameExpr handles ${name} and ${obj.path.to.field}.
func (p *Parser) parseNameExpr(expr string) model.CellContent {
	if strings.Contains(expr, ".") {
		return model.ItemField(expr)
	}
	return model.Variable(expr)
}

// parseMarkerCall dispatches a recognized marker/function call.
func (p *Parser) parseMarkerCall(name string, args callArgs, cellRef, raw string) (model.CellContent, error) {
	if args.hasMixedForms() {
		return model.CellContent{}, &model.TemplateError{Kind: model.InvalidRepeatSyntax, Sheet: p.CurrentSheet, Cell: cellRef, Text: raw}
	}
	switch strings.ToLower(name) {
	case "repeat":
		return p.parseRepeat(args, cellRef, raw)
	case "image":
		return p.parseImage(args, cellRef, raw)
	case "size":
		return p.parseSize(args, cellRef, raw)
	default:
		return model.CellContent{}, &model.TemplateError{
			Kind: model.InvalidRepeatSyntax, Sheet: p.CurrentSheet, Cell: cellRef, Text: raw,
		}
	}
}

// parseRepeat parses repeat(collection, range [, var] [, direction]
// [, empty=<range>]).
func (p *Parser) parseRepeat(args callArgs, cellRef, raw string) (model.CellContent, error) {
	collection, ok := args.positionalOrNamed(0, "collection")
	if !ok || collection == "" {
		return model.CellContent{}, &model.TemplateError{Kind: model.MissingRequiredParameter, Sheet: p.CurrentSheet, Cell: cellRef, Text: raw}
	}

	rangeStr, ok := args.positionalOrNamed(1, "range")
	if !ok || rangeStr == "" {
		return model.CellContent{}, &model.TemplateError{Kind: model.MissingRequiredParameter, Sheet: p.CurrentSheet, Cell: cellRef, Text: raw}
	}
	targetSheet, area, err := p.parseRange(rangeStr, cellRef, raw)
	if err != nil {
		return model.CellContent{}, err
	}

	variable, _ := args.positionalOrNamed(2, "var")
	if variable == "" {
		variable = "item"
	}

	dirStr, _ := args.positionalOrNamed(3, "direction")
	direction := model.DirectionDown
	switch strings.ToUpper(strings.TrimSpace(dirStr)) {
	case "", "DOWN":
		direction = model.DirectionDown
	case "RIGHT":
		direction = model.DirectionRight
	default:
		return model.CellContent{}, &model.TemplateError{Kind: model.InvalidParameterValue, Sheet: p.CurrentSheet, Cell: cellRef, Text: raw}
	}

	var emptyArea *model.CellArea
	if emptyStr, ok := args.named("empty"); ok && emptyStr != "" {
		_, ea, err := p.parseRange(emptyStr, cellRef, raw)
		if err != nil {
			return model.CellContent{}, err
		}
		emptyArea = &ea
	}

	return model.RepeatContent(model.RepeatMarker{
		Collection:  collection,
		Area:        area,
		TargetSheet: targetSheet,
		Variable:    variable,
		Direction:   direction,
		EmptyArea:   emptyArea,
	}), nil
}

// parseImage parses image(name [, position] [, size]).
func (p *Parser) parseImage(args callArgs, cellRef, raw string) (model.CellContent, error) {
	name, ok := args.positionalOrNamed(0, "name")
	if !ok || name == "" {
		return model.CellContent{}, &model.TemplateError{Kind: model.MissingRequiredParameter, Sheet: p.CurrentSheet, Cell: cellRef, Text: raw}
	}

	pos := model.CellCoord{} // zero when no position argument is given; nothing fills it in later, and the renderer places images at the marker's own cell without reading it
	if posStr, ok := args.positionalOrNamed(1, "position"); ok && posStr != "" {
		col, row, err := parseA1(posStr)
		if err != nil {
			return model.CellContent{}, &model.TemplateError{Kind: model.InvalidRangeFormat, Sheet: p.CurrentSheet, Cell: cellRef, Text: raw}
		}
		pos = model.CellCoord{Row: row, Col: col}
	}

	sizing := model.ImageSizing{KeepAspect: true}
	if sizeStr, ok := args.positionalOrNamed(2, "size"); ok && sizeStr != "" {
		w, h, err := parseSize(sizeStr)
		if err != nil {
			return model.CellContent{}, &model.TemplateError{Kind: model.InvalidParameterValue, Sheet: p.CurrentSheet, Cell: cellRef, Text: raw}
		}
		sizing.WidthPx, sizing.HeightPx = w, h
		sizing.KeepAspect = w == 0 || h == 0
	}

	return model.ImageContent(model.ImageMarker{Name: name, Position: pos, Sizing: sizing}), nil
}

// parseSize parses size(collection).
func (p *Parser) parseSize(args callArgs, cellRef, raw string) (model.CellContent, error) {
	collection, ok := args.positionalOrNamed(0, "collection")
	if !ok || collection == "" {
		return model.CellContent{}, &model.TemplateError{Kind: model.MissingRequiredParameter, Sheet: p.CurrentSheet, Cell: cellRef, Text: raw}
	}
	return model.SizeContent(model.SizeMarker{Collection: collection}), nil
}

// parseFormulaCell classifies a formula string: if it contains one or
// more ${var} substrings it is a Formula content, otherwise it passes
// through unexamined (plain formulas with no substitution need no
// special handling by the renderer beyond FormulaAdjuster's coordinate
// rewriting, which inspects FormulaText regardless of Kind).
func (p *Parser) parseFormulaCell(text, cellRef string) (model.CellContent, error) {
	return model.Formula(text), nil
}

// parseRange accepts "A1:C3" or "'Sheet Name'!A1:C3" and returns the
// (possibly empty) sheet prefix plus the parsed area. A bare cell like
// "A1" is treated as a 1x1 area.
func (p *Parser) parseRange(s, cellRef, raw string) (string, model.CellArea, error) {
	s = strings.TrimSpace(s)
	sheet := ""
	rangePart := s
	if idx := strings.LastIndex(s, "!"); idx >= 0 {
		sheet = unquoteSheet(s[:idx])
		rangePart = s[idx+1:]
	}

	parts := strings.SplitN(rangePart, ":", 2)
	c1, r1, err := parseA1(parts[0])
	if err != nil {
		return "", model.CellArea{}, &model.TemplateError{Kind: model.InvalidRangeFormat, Sheet: p.CurrentSheet, Cell: cellRef, Text: raw}
	}
	c2, r2 := c1, r1
	if len(parts) == 2 {
		c2, r2, err = parseA1(parts[1])
		if err != nil {
			return "", model.CellArea{}, &model.TemplateError{Kind: model.InvalidRangeFormat, Sheet: p.CurrentSheet, Cell: cellRef, Text: raw}
		}
	}
	return sheet, model.NewCellArea(r1, c1, r2, c2), nil
}

func unquoteSheet(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'") && len(s) >= 2 {
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}
	return s
}

// parseA1 parses a single A1-style reference into zero-based (col, row).
func parseA1(ref string) (col, row int, err error) {
	ref = strings.TrimSpace(strings.ReplaceAll(ref, "$", ""))
	i := 0
	for i < len(ref) && isAlpha(ref[i]) {
		i++
	}
	if i == 0 || i == len(ref) {
		return 0, 0, &strconv.NumError{Func: "parseA1", Num: ref}
	}
	colLetters := strings.ToUpper(ref[:i])
	rowDigits := ref[i:]

	col = 0
	for _, ch := range colLetters {
		col = col*26 + int(ch-'A'+1)
	}
	col-- // zero-base

	rowNum, err := strconv.Atoi(rowDigits)
	if err != nil {
		return 0, 0, err
	}
	return col, rowNum - 1, nil
}

func isAlpha(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

// parseSize parses a "WxH" pixel size spec, either side optional (e.g.
// "120x" keeps height auto-scaled).
func parseSize(s string) (w, h int, err error) {
	parts := strings.SplitN(strings.ToLower(s), "x", 2)
	if len(parts) != 2 {
		return 0, 0, &strconv.NumError{Func: "parseSize", Num: s}
	}
	if parts[0] != "" {
		w, err = strconv.Atoi(parts[0])
		if err != nil {
			return 0, 0, err
		}
	}
	if parts[1] != "" {
		h, err = strconv.Atoi(parts[1])
		if err != nil {
			return 0, 0, err
		}
	}
	return w, h, nil
}
