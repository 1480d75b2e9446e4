package model

// ContentKind tags the variant carried by a CellContent.
type ContentKind int

const (
	ContentEmpty ContentKind = iota
	ContentStaticString
	ContentStaticNumber
	ContentStaticBoolean
	ContentVariable
	ContentItemField
	ContentFormula
	ContentRepeatMarker
	ContentImageMarker
	ContentSizeMarker
)

// Direction is the axis a repeat region grows along.
type Direction int

const (
	DirectionDown Direction = iota
	DirectionRight
)

func (d Direction) String() string {
	if d == DirectionRight {
		return "RIGHT"
	}
	return "DOWN"
}

// ImageSizing controls how an inserted image is scaled.
type ImageSizing struct {
	WidthPx  int
	HeightPx int
	// KeepAspect, when true and only one of WidthPx/HeightPx is set,
	// scales the other dimension to preserve the source image ratio.
	KeepAspect bool
}

// CellContent is the tagged variant every analyzed template cell reduces
// to. Only the fields relevant to Kind are populated.
type CellContent struct {
	Kind ContentKind

	StaticString string
	StaticNumber float64
	StaticBool   bool

	VariableName string // ContentVariable
	ItemPath     string // ContentItemField, dotted path on the current item

	FormulaText string // ContentFormula, may embed ${...} variables

	Repeat *RepeatMarker // ContentRepeatMarker
	Image  *ImageMarker  // ContentImageMarker
	Size   *SizeMarker   // ContentSizeMarker
}

// RepeatMarker is the declarative description of one repeat region as
// parsed out of a template cell, prior to normalization into a
// RepeatRegionSpec (TemplateAnalyzer does that normalization once the
// marker's target sheet is resolved).
type RepeatMarker struct {
	Collection string
	Area       CellArea
	TargetSheet string // resolved sheet name the area lives on; "" = current
	Variable   string
	Direction  Direction
	EmptyArea  *CellArea
}

// ImageMarker describes an `${image(...)}` / `=TBEG_IMAGE(...)` placeholder.
type ImageMarker struct {
	Name     string
	Position CellCoord
	Sizing   ImageSizing
}

// SizeMarker describes an `${size(collection)}` / `=TBEG_SIZE(...)`
// placeholder: at render time it resolves to the item count of the named
// collection.
type SizeMarker struct {
	Collection string
}

func Empty() CellContent                { return CellContent{Kind: ContentEmpty} }
func StaticString(s string) CellContent { return CellContent{Kind: ContentStaticString, StaticString: s} }
func StaticNumber(n float64) CellContent {
	return CellContent{Kind: ContentStaticNumber, StaticNumber: n}
}
func StaticBoolean(b bool) CellContent { return CellContent{Kind: ContentStaticBoolean, StaticBool: b} }
func Variable(name string) CellContent { return CellContent{Kind: ContentVariable, VariableName: name} }
func ItemField(path string) CellContent { return CellContent{Kind: ContentItemField, ItemPath: path} }
func Formula(text string) CellContent   { return CellContent{Kind: ContentFormula, FormulaText: text} }
func RepeatContent(r RepeatMarker) CellContent {
	return CellContent{Kind: ContentRepeatMarker, Repeat: &r}
}
func ImageContent(i ImageMarker) CellContent {
	return CellContent{Kind: ContentImageMarker, Image: &i}
}
func SizeContent(s SizeMarker) CellContent {
	return CellContent{Kind: ContentSizeMarker, Size: &s}
}
