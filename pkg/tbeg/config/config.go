// Package config loads a model.Config from a YAML/JSON/env-backed source
// via viper, the way bisibesi-spec-recon's internal/config package loads
// its own Config: sensible defaults first, then an optional file overrides
// them, and the file's absence is not an error.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/jogakdal/tbeg/pkg/tbeg/model"
)

// Load reads tbeg's generator configuration from configPath (defaults to
// "tbeg.yaml" in the working directory when empty). A missing file falls
// back to model.DefaultConfig(); any other read error is returned.
func Load(configPath string) (model.Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("TBEG")
	v.AutomaticEnv()

	if configPath == "" {
		configPath = "tbeg.yaml"
	}
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) && !strings.Contains(err.Error(), "Not Found") {
			return model.Config{}, fmt.Errorf("tbeg config: %w", err)
		}
	}

	cfg := model.DefaultConfig()
	cfg.StreamingMode = parseStreamingMode(v.GetString("streaming_mode"), cfg.StreamingMode)
	cfg.StreamingRowThreshold = v.GetInt("streaming_row_threshold")
	cfg.FormulaProcessingEnabled = v.GetBool("formula_processing_enabled")
	cfg.PreserveTemplateLayout = v.GetBool("preserve_template_layout")
	cfg.MissingDataBehavior = parseMissingDataBehavior(v.GetString("missing_data_behavior"), cfg.MissingDataBehavior)
	cfg.ProgressReportInterval = v.GetInt("progress_report_interval")
	cfg.FileNamingMode = parseFileNamingMode(v.GetString("file_naming_mode"), cfg.FileNamingMode)
	cfg.TimestampFormat = v.GetString("timestamp_format")
	cfg.FileConflictPolicy = parseFileConflictPolicy(v.GetString("file_conflict_policy"), cfg.FileConflictPolicy)
	cfg.PivotIntegerFormatIndex = v.GetInt("pivot_integer_format_index")
	cfg.PivotDecimalFormatIndex = v.GetInt("pivot_decimal_format_index")

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := model.DefaultConfig()
	v.SetDefault("streaming_mode", "auto")
	v.SetDefault("streaming_row_threshold", def.StreamingRowThreshold)
	v.SetDefault("formula_processing_enabled", def.FormulaProcessingEnabled)
	v.SetDefault("preserve_template_layout", def.PreserveTemplateLayout)
	v.SetDefault("missing_data_behavior", "warn")
	v.SetDefault("progress_report_interval", def.ProgressReportInterval)
	v.SetDefault("file_naming_mode", "none")
	v.SetDefault("timestamp_format", def.TimestampFormat)
	v.SetDefault("file_conflict_policy", "error")
	v.SetDefault("pivot_integer_format_index", def.PivotIntegerFormatIndex)
	v.SetDefault("pivot_decimal_format_index", def.PivotDecimalFormatIndex)
}

func parseStreamingMode(s string, fallback model.StreamingMode) model.StreamingMode {
	switch strings.ToLower(s) {
	case "disabled", "off":
		return model.StreamingDisabled
	case "enabled", "on":
		return model.StreamingEnabled
	case "auto", "":
		return model.StreamingAuto
	default:
		return fallback
	}
}

func parseMissingDataBehavior(s string, fallback model.MissingDataBehavior) model.MissingDataBehavior {
	switch strings.ToLower(s) {
	case "ignore":
		return model.MissingDataIgnore
	case "warn", "":
		return model.MissingDataWarn
	case "throw", "error":
		return model.MissingDataThrow
	default:
		return fallback
	}
}

func parseFileNamingMode(s string, fallback model.FileNamingMode) model.FileNamingMode {
	switch strings.ToLower(s) {
	case "none", "":
		return model.FileNamingNone
	case "timestamp":
		return model.FileNamingTimestamp
	default:
		return fallback
	}
}

func parseFileConflictPolicy(s string, fallback model.FileConflictPolicy) model.FileConflictPolicy {
	switch strings.ToLower(s) {
	case "error", "":
		return model.FileConflictError
	case "sequence":
		return model.FileConflictSequence
	default:
		return fallback
	}
}
