package ingest

import (
	"strings"

	"github.com/tinytelemetry/loglink/internal/model"
)

// Processor decodes JSON entries, accumulating objects that span several
// lines, and falls back to plain text.
type Processor struct {
	sink        EntrySink
	defaultRank int
	source      string
	rank        int

	jsonBuffer   strings.Builder
	jsonDepth    int
	inJsonObject bool

	// Result from processCompleteJSON, consumed by ProcessLine
	lastResult *ProcessResult
}

// NewProcessor creates a new entry processor.
func NewProcessor(sink EntrySink, defaultRank int) *Processor {
	return &Processor{
		sink:        sink,
		defaultRank: defaultRank,
		rank:        defaultRank,
	}
}

func (p *Processor) Name() string { return ProcessorModeParse }

// ProcessEnvelope processes one source-tagged line. A rank announced by the
// source replaces the default rank; a "rank" field in JSON still wins.
func (p *Processor) ProcessEnvelope(env model.IngestEnvelope) *ProcessResult {
	p.source = env.Source
	p.rank = env.RankOr(p.defaultRank)
	return p.ProcessLine(env.Line)
}

// ProcessLine processes a single log line, returning the parsed entry.
// Returns nil if the line is being accumulated as part of a multi-line JSON
// object or is blank.
func (p *Processor) ProcessLine(line string) *ProcessResult {
	if p.tryAccumulateJSON(line) {
		if p.lastResult != nil {
			result := p.lastResult
			p.lastResult = nil
			return result
		}
		return nil
	}
	if strings.TrimSpace(line) == "" {
		return nil
	}
	return p.processEntry(line)
}

func (p *Processor) processEntry(line string) *ProcessResult {
	entry := ParseJSONEntry(line, p.rank)
	if entry == nil {
		entry = CreateFallbackEntry(line, p.rank)
		entry.Thread = p.source
	}
	return record(p.sink, entry)
}

// tryAccumulateJSON attempts to accumulate multi-line JSON and process when complete.
// Returns true if the line was consumed (either accumulated or completed).
func (p *Processor) tryAccumulateJSON(line string) bool {
	trimmed := strings.TrimSpace(line)

	if !p.inJsonObject {
		if !strings.HasPrefix(trimmed, "{") {
			return false
		}
		p.inJsonObject = true
		p.jsonBuffer.Reset()
		p.jsonDepth = 0
	}

	p.jsonBuffer.WriteString(line)
	p.jsonBuffer.WriteString("\n")
	p.jsonDepth += CountJSONDepth(line)

	if p.jsonDepth <= 0 {
		completeJSON := strings.TrimSpace(p.jsonBuffer.String())
		p.resetJSONAccumulation()
		p.lastResult = p.processEntry(completeJSON)
	}
	return true
}

// CountJSONDepth counts the net change in JSON nesting depth for a line.
func CountJSONDepth(line string) int {
	depth := 0
	inString := false
	escaped := false

	for _, char := range line {
		if escaped {
			escaped = false
			continue
		}

		switch char {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{', '[':
			if !inString {
				depth++
			}
		case '}', ']':
			if !inString {
				depth--
			}
		}
	}

	return depth
}

func (p *Processor) resetJSONAccumulation() {
	p.inJsonObject = false
	p.jsonDepth = 0
	p.jsonBuffer.Reset()
}
