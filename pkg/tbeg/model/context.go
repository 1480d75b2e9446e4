package model

// ChartInfo is one chart extracted by ChartProcessor before a streaming
// render, held until the render completes so it can be restored.
type ChartInfo struct {
	Sheet      string
	AnchorCell string
	Definition interface{} // *excelize.Chart; kept opaque here to avoid a model->excelize dependency
}

// PivotAggFunc enumerates the aggregate functions a pivot data field may
// use, per spec §4.9.
type PivotAggFunc int

const (
	AggSum PivotAggFunc = iota
	AggAverage
	AggCount
	AggCountNums
	AggMin
	AggMax
)

func (f PivotAggFunc) String() string {
	switch f {
	case AggSum:
		return "Sum"
	case AggAverage:
		return "Average"
	case AggCount:
		return "Count"
	case AggCountNums:
		return "CountNums"
	case AggMin:
		return "Min"
	case AggMax:
		return "Max"
	default:
		return "Sum"
	}
}

// PivotDataField is one aggregated value column of a pivot table.
type PivotDataField struct {
	FieldIndex      int
	FieldName       string
	Function        PivotAggFunc
	DisplayName     string
	NumberFormatID  int // built-in numFmtId applied to this field's data column after restore; 0 means "leave as-is"
}

// PivotInfo is one pivot table extracted before render, held until
// PivotTableProcessor rebuilds it against the rendered source range.
type PivotInfo struct {
	Name             string
	Location         CellArea
	LocationSheet    string
	SourceSheet      string
	SourceRange      CellArea
	RowFields        []int    // source column indices used as row/axis fields
	RowFieldNames    []string // header text for each entry in RowFields, same order
	DataFields       []PivotDataField
	Captions         map[int]string
	StyleName        string
	GrandTotalCaption string
}

// DataValidationSnapshot preserves one data-validation rule and the
// template range it was anchored to, for LayoutPreserver to expand and
// reattach after render.
type DataValidationSnapshot struct {
	Sheet          string
	Range          CellArea
	Type           string
	Operator       string
	Formula1       string
	Formula2       string
	AllowBlank     bool
	ShowErrorBox   bool
	ShowPromptBox  bool
	ErrorTitle     string
	ErrorMessage   string
	PromptTitle    string
	PromptMessage  string
}

// ConditionalFormatSnapshot preserves one conditional format rule and its
// anchoring range.
type ConditionalFormatSnapshot struct {
	Sheet string
	Range CellArea
	Rules interface{} // []excelize.ConditionalFormatOptions, kept opaque
}

// LayoutSnapshot is everything LayoutPreserver captures before render and
// restores/expands after.
type LayoutSnapshot struct {
	ColWidths           map[string]map[int]float64 // sheet -> colIndex -> width
	RowHeights          map[string]map[int]float64 // sheet -> rowIndex -> height
	DataValidations     []DataValidationSnapshot
	ConditionalFormats  []ConditionalFormatSnapshot
}

// NewLayoutSnapshot returns an empty snapshot ready to be populated.
func NewLayoutSnapshot() *LayoutSnapshot {
	return &LayoutSnapshot{
		ColWidths:  make(map[string]map[int]float64),
		RowHeights: make(map[string]map[int]float64),
	}
}

// ProcessingContext is the single mutable object a Pipeline run threads
// through its processors. Each processor may rewrite ResultBytes, attach
// extracted state, or set derived fields; nothing else is shared between
// processors.
type ProcessingContext struct {
	TemplateBytes []byte
	ResultBytes   []byte

	DataProvider DataProvider
	Config       Config

	Metadata DocumentMetadata

	ChartInfo      []ChartInfo
	PivotInfos     []PivotInfo
	LayoutSnapshot *LayoutSnapshot

	// VariableResolver exposes the provider's Value lookups plus any
	// computed values (e.g. SizeMarker results) needed to substitute
	// ${var} tokens inside Formula cells at render time.
	VariableResolver func(name string) (Value, bool)

	RequiredNames *RequiredNames

	// WorkbookSpec and CollectionSizes are populated by TemplateAnalyzer
	// and PositionCalculator respectively, and read by every downstream
	// processor.
	WorkbookSpec    *WorkbookSpec
	CollectionSizes CollectionSizes

	// Calculators holds one PositionCalculator per sheet, keyed by sheet
	// name, built once after CollectionSizes is known. Kept as
	// interface{} here to avoid a model->position import cycle; callers
	// type-assert to *position.Calculator.
	Calculators map[string]interface{}

	ProcessedRowCount int

	// Cancelled is checked by the Pipeline between processors.
	Cancelled func() bool
}

// NewProcessingContext builds a context ready for TemplateAnalyzer.
func NewProcessingContext(templateBytes []byte, provider DataProvider, cfg Config) *ProcessingContext {
	return &ProcessingContext{
		TemplateBytes: templateBytes,
		DataProvider:  provider,
		Config:        cfg,
		Calculators:   make(map[string]interface{}),
	}
}
