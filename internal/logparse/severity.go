package logparse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tinytelemetry/loglink/internal/model"
)

// SeverityRegex matches common severity levels in log text.
var SeverityRegex = regexp.MustCompile(`(?i)\b(TRACE|DEBUG|INFO|WARN|WARNING|ERROR|FATAL|CRITICAL)\b`)

// NormalizeVerbosity converts the many spellings of a level found in the wild
// into a verbosity. DEBUG sits between INFO and TRACE; FATAL-like levels map
// to ERROR. Unknown input maps to INFO.
func NormalizeVerbosity(level string) model.Verbosity {
	normalized := strings.ToUpper(strings.TrimSpace(level))

	switch normalized {
	case "OFF", "NONE":
		return model.VerbosityOff
	case "TRACE", "TRAC", "TRC", "MAX":
		return model.VerbosityTrace
	case "DEBUG", "DEBU", "DBG", "DEB":
		return 1
	case "INFO", "INFORMATION", "INF":
		return model.VerbosityInfo
	case "WARN", "WARNING", "WRNG", "WRN":
		return model.VerbosityWarning
	case "ERROR", "ERR", "ERRO":
		return model.VerbosityError
	case "FATAL", "FATL", "FTL", "CRITICAL", "CRIT", "CRT", "PANIC", "PNC":
		return model.VerbosityError
	}

	if n, err := strconv.Atoi(normalized); err == nil {
		if v := model.Verbosity(n); v.Valid() {
			return v
		}
	}

	if len(normalized) >= 4 {
		switch normalized[:4] {
		case "INFO":
			return model.VerbosityInfo
		case "WARN":
			return model.VerbosityWarning
		case "ERRO", "FATA", "CRIT":
			return model.VerbosityError
		case "DEBU":
			return 1
		case "TRAC":
			return model.VerbosityTrace
		}
	}
	return model.VerbosityInfo
}

// ExtractVerbosityFromText extracts a level from free-form message text.
func ExtractVerbosityFromText(message string) model.Verbosity {
	matches := SeverityRegex.FindStringSubmatch(message)
	if len(matches) > 1 {
		return NormalizeVerbosity(matches[1])
	}
	return model.VerbosityInfo
}
