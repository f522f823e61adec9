package logparse

import (
	"strings"

	"github.com/tinytelemetry/bundlelens/internal/model"
)

// SubTypeFromName infers the severity sub-type from a file name.
// Order: INFO, WARN, ERROR, FATAL, then postgres and application logs
// default to INFO. Anything else is unknown.
func SubTypeFromName(name string) model.SubType {
	switch {
	case strings.Contains(name, "INFO"):
		return model.SubInfo
	case strings.Contains(name, "WARN"):
		return model.SubWarn
	case strings.Contains(name, "ERROR"):
		return model.SubError
	case strings.Contains(name, "FATAL"):
		return model.SubFatal
	case strings.Contains(name, "postgres"), strings.Contains(name, "application"):
		return model.SubInfo
	default:
		return model.SubUnknown
	}
}

// NormalizeSubType converts severity spellings to a SubType.
func NormalizeSubType(severity string) model.SubType {
	normalized := strings.ToUpper(strings.TrimSpace(severity))

	switch normalized {
	case "INFO", "INFORMATION", "INF", "I":
		return model.SubInfo
	case "WARN", "WARNING", "WRN", "W":
		return model.SubWarn
	case "ERROR", "ERR", "ERRO", "E":
		return model.SubError
	case "FATAL", "FATL", "FTL", "CRITICAL", "PANIC", "F":
		return model.SubFatal
	default:
		return model.SubUnknown
	}
}
