package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Verbosity is a logging threshold. A message at level v is recorded when
// v <= threshold, so larger values are more permissive.
type Verbosity int

const (
	VerbosityOff     Verbosity = -9
	VerbosityError   Verbosity = -2
	VerbosityWarning Verbosity = -1
	VerbosityInfo    Verbosity = 0
	VerbosityTrace   Verbosity = 9

	// VerbosityMax is the most permissive level.
	VerbosityMax = VerbosityTrace
)

// verbosityByIndex is the selector order shown to operators: the named
// levels followed by the numeric levels 0-9. Index 5 ("0") aliases INFO and
// index 14 ("9") aliases TRACE.
var verbosityByIndex = [...]Verbosity{
	VerbosityOff,
	VerbosityError,
	VerbosityWarning,
	VerbosityInfo,
	VerbosityTrace,
	0, 1, 2, 3, 4, 5, 6, 7, 8, 9,
}

// VerbosityIndexCount is the number of selector entries.
const VerbosityIndexCount = len(verbosityByIndex)

// VerbosityFromIndex maps a selector index to its level. Indices outside the
// table map to DefaultVerbosity.
func VerbosityFromIndex(index int) Verbosity {
	if index < 0 || index >= len(verbosityByIndex) {
		return DefaultVerbosity
	}
	return verbosityByIndex[index]
}

// Index returns the selector index of v, preferring the named entries over
// their numeric aliases. It returns -1 for invalid levels.
func (v Verbosity) Index() int {
	switch v {
	case VerbosityOff:
		return 0
	case VerbosityError:
		return 1
	case VerbosityWarning:
		return 2
	case VerbosityInfo:
		return 3
	case VerbosityTrace:
		return 4
	}
	if v >= 1 && v <= 8 {
		return int(v) + 5
	}
	return -1
}

// VerbosityLevels returns the distinct levels from least to most permissive.
func VerbosityLevels() []Verbosity {
	return []Verbosity{
		VerbosityOff, VerbosityError, VerbosityWarning, VerbosityInfo,
		1, 2, 3, 4, 5, 6, 7, 8,
		VerbosityTrace,
	}
}

func (v Verbosity) Valid() bool {
	return v.Index() >= 0
}

// Allows reports whether a message at level is recorded under threshold v.
func (v Verbosity) Allows(level Verbosity) bool {
	return level <= v
}

func (v Verbosity) String() string {
	switch v {
	case VerbosityOff:
		return "OFF"
	case VerbosityError:
		return "ERROR"
	case VerbosityWarning:
		return "WARNING"
	case VerbosityInfo:
		return "INFO"
	case VerbosityTrace:
		return "TRACE"
	}
	if v >= 1 && v <= 8 {
		return strconv.Itoa(int(v))
	}
	return fmt.Sprintf("verbosity(%d)", int(v))
}

// ParseVerbosity parses a level name (OFF, ERROR, WARNING, INFO, TRACE) or a
// numeric level in 0-9.
func ParseVerbosity(s string) (Verbosity, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	switch norm {
	case "OFF":
		return VerbosityOff, nil
	case "ERROR":
		return VerbosityError, nil
	case "WARNING", "WARN":
		return VerbosityWarning, nil
	case "INFO":
		return VerbosityInfo, nil
	case "TRACE", "MAX":
		return VerbosityTrace, nil
	}
	n, err := strconv.Atoi(norm)
	if err == nil {
		if v := Verbosity(n); v.Valid() {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownVerbosity, s)
}

func (v Verbosity) MarshalText() ([]byte, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVerbosity, int(v))
	}
	return []byte(v.String()), nil
}

func (v *Verbosity) UnmarshalText(text []byte) error {
	parsed, err := ParseVerbosity(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
