package model

// IngestEnvelope carries one raw log line with source metadata.
// It is the transport contract between ingest sources and the processor.
type IngestEnvelope struct {
	Source string
	Line   string
	// Rank is the rank the source announced for its lines; valid only when
	// Ranked is set.
	Rank   int
	Ranked bool
}

// RankOr returns the envelope's announced rank, or fallback when the source
// announced none.
func (e IngestEnvelope) RankOr(fallback int) int {
	if e.Ranked {
		return e.Rank
	}
	return fallback
}
