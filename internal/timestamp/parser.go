// Package timestamp parses the leading uptime field of recorder log lines.
//
// A recorder line looks like
//
//	(   12.300s) [rank 0          ]        rendering    INFO| message
//
// The leading field is <digits>.<digits>s. The stream format writes the
// unit letter where the fraction's terminal zero would be, so the parser
// substitutes every 's' in the field with '0' before converting: "12.300s"
// reads as 12.3000. Other unit letters are rejected.
package timestamp

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tinytelemetry/loglink/internal/model"
)

// Parts holds the fields of one structured log line.
type Parts struct {
	Time      string // leading field without parentheses, e.g. "12.300s"
	Thread    string
	Origin    string // category or file:line
	Verbosity string
	Message   string
}

// Result is the outcome of ParseFromText.
type Result struct {
	Found     bool
	Seconds   float64
	Parts     Parts
	Remaining string // message when found, the original text otherwise
}

// Parser extracts log parts and uptime seconds from recorder lines.
type Parser struct {
	line  *regexp.Regexp
	field *regexp.Regexp
}

// NewParser creates a Parser.
func NewParser() *Parser {
	return &Parser{
		line:  regexp.MustCompile(`^\(\s*([^)]*?)\s*\)\s*\[\s*([^\]]*?)\s*\]\s*(\S*?)\s+(\S+?)\s*\|\s?(.*)$`),
		field: regexp.MustCompile(`^[0-9]+\.[0-9]+s$`),
	}
}

// ExtractLogParts splits a structured line into its fields. It returns
// false for raw lines (continuations, banners) that do not follow the format.
func (p *Parser) ExtractLogParts(line string) (Parts, bool) {
	m := p.line.FindStringSubmatch(strings.TrimRight(line, "\r"))
	if m == nil {
		return Parts{Message: line}, false
	}
	return Parts{
		Time:      m[1],
		Thread:    m[2],
		Origin:    m[3],
		Verbosity: m[4],
		Message:   m[5],
	}, true
}

// ParseTimeField converts a leading time field into seconds.
func (p *Parser) ParseTimeField(field string) (float64, error) {
	field = strings.TrimSpace(field)
	if !p.field.MatchString(field) {
		return 0, fmt.Errorf("%w: malformed time field %q", model.ErrNoTimestampFound, field)
	}
	// 's' stands in for the fraction's terminal zero.
	v, err := strconv.ParseFloat(strings.ReplaceAll(field, "s", "0"), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", model.ErrNoTimestampFound, field, err)
	}
	return v, nil
}

// ParseFromText parses a single line.
func (p *Parser) ParseFromText(line string) Result {
	parts, ok := p.ExtractLogParts(line)
	if !ok {
		return Result{Remaining: line, Parts: parts}
	}
	secs, err := p.ParseTimeField(parts.Time)
	if err != nil {
		return Result{Remaining: line, Parts: parts}
	}
	return Result{Found: true, Seconds: secs, Parts: parts, Remaining: parts.Message}
}

// ReferenceTime parses the first non-empty line of a stream's opening text.
func (p *Parser) ReferenceTime(startingLog string) (float64, error) {
	for _, line := range strings.Split(startingLog, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts, ok := p.ExtractLogParts(line)
		if !ok {
			return 0, fmt.Errorf("%w: opening record is not structured", model.ErrNoTimestampFound)
		}
		return p.ParseTimeField(parts.Time)
	}
	return 0, fmt.Errorf("%w: empty stream", model.ErrNoTimestampFound)
}

var defaultParser = NewParser()

// ParseReferenceTime is ReferenceTime on a shared Parser.
func ParseReferenceTime(startingLog string) (float64, error) {
	return defaultParser.ReferenceTime(startingLog)
}

// ExtractLogParts is ExtractLogParts on a shared Parser.
func ExtractLogParts(line string) (Parts, bool) {
	return defaultParser.ExtractLogParts(line)
}

// ParseFromText is ParseFromText on a shared Parser.
func ParseFromText(line string) Result {
	return defaultParser.ParseFromText(line)
}
