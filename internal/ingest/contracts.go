package ingest

import (
	"fmt"
	"strings"

	"github.com/tinytelemetry/loglink/internal/model"
)

const (
	// ProcessorModeParse decodes JSON entries and falls back to plain text.
	ProcessorModeParse = "parse"
	// ProcessorModePassthrough records every line as plain text.
	ProcessorModePassthrough = "passthrough"
)

// EntrySink receives decoded entries. recorder.Recorder satisfies it.
type EntrySink interface {
	Record(model.Entry) (bool, error)
}

// EnvelopeProcessor consumes source-tagged ingest lines and records entries.
type EnvelopeProcessor interface {
	Name() string
	ProcessEnvelope(model.IngestEnvelope) *ProcessResult
}

// ProcessResult holds the result of processing a log line.
type ProcessResult struct {
	Entry *model.Entry
	// Recorded reports whether the entry passed the sink's threshold.
	Recorded bool
	Err      error
}

// NewEnvelopeProcessor creates the processor for mode. Plain text lines go
// to defaultRank.
func NewEnvelopeProcessor(mode string, sink EntrySink, defaultRank int) (EnvelopeProcessor, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ProcessorModeParse:
		return NewProcessor(sink, defaultRank), nil
	case ProcessorModePassthrough:
		return NewPassthroughProcessor(sink, defaultRank), nil
	default:
		return nil, fmt.Errorf("ingest: unknown processor mode %q", mode)
	}
}

func record(sink EntrySink, entry *model.Entry) *ProcessResult {
	result := &ProcessResult{Entry: entry}
	if sink != nil {
		result.Recorded, result.Err = sink.Record(*entry)
	}
	return result
}
