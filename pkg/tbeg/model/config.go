package model

// StreamingMode selects whether the renderer uses the in-memory or the
// streaming strategy.
type StreamingMode int

const (
	StreamingDisabled StreamingMode = iota
	StreamingEnabled
	StreamingAuto
)

// MissingDataBehavior controls what happens when the template references
// a name the DataProvider cannot resolve.
type MissingDataBehavior int

const (
	MissingDataIgnore MissingDataBehavior = iota
	MissingDataWarn
	MissingDataThrow
)

// FileNamingMode controls how the facade's file-writing variants name
// their output.
type FileNamingMode int

const (
	FileNamingNone FileNamingMode = iota
	FileNamingTimestamp
)

// FileConflictPolicy controls what the facade does when its target output
// path already exists.
type FileConflictPolicy int

const (
	FileConflictError FileConflictPolicy = iota
	FileConflictSequence
)

// Config mirrors spec §6's TbegConfig.
type Config struct {
	StreamingMode          StreamingMode
	StreamingRowThreshold  int
	FormulaProcessingEnabled bool
	PreserveTemplateLayout bool
	MissingDataBehavior    MissingDataBehavior
	ProgressReportInterval int
	FileNamingMode         FileNamingMode
	TimestampFormat        string
	FileConflictPolicy     FileConflictPolicy
	PivotIntegerFormatIndex int
	PivotDecimalFormatIndex int
}

// DefaultConfig returns the conservative defaults used when the caller
// does not override a field.
func DefaultConfig() Config {
	return Config{
		StreamingMode:            StreamingAuto,
		StreamingRowThreshold:    50000,
		FormulaProcessingEnabled: true,
		PreserveTemplateLayout:   true,
		MissingDataBehavior:      MissingDataWarn,
		ProgressReportInterval:   1000,
		FileNamingMode:           FileNamingNone,
		TimestampFormat:          "20060102_150405",
		FileConflictPolicy:       FileConflictError,
		PivotIntegerFormatIndex:  1,
		PivotDecimalFormatIndex:  2,
	}
}
