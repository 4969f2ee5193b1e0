package ingest

import (
	"github.com/tinytelemetry/loglink/internal/model"
)

// PassthroughProcessor is a lightweight processor that avoids JSON parsing.
// It records every line as a plain text Application entry.
type PassthroughProcessor struct {
	sink        EntrySink
	defaultRank int
}

// NewPassthroughProcessor creates a new passthrough processor.
func NewPassthroughProcessor(sink EntrySink, defaultRank int) *PassthroughProcessor {
	return &PassthroughProcessor{
		sink:        sink,
		defaultRank: defaultRank,
	}
}

func (p *PassthroughProcessor) Name() string { return ProcessorModePassthrough }

// ProcessEnvelope processes one source-tagged line.
func (p *PassthroughProcessor) ProcessEnvelope(env model.IngestEnvelope) *ProcessResult {
	if env.Line == "" {
		return nil
	}
	entry := CreateFallbackEntry(env.Line, env.RankOr(p.defaultRank))
	entry.Thread = env.Source
	return record(p.sink, entry)
}
