// Package logsource feeds rank entry lines into a recorder daemon.
package logsource

import (
	"fmt"

	"github.com/tinytelemetry/loglink/internal/model"
)

// LogSource delivers rank entry lines. Envelopes carry a rank when the
// source knows which rank produced the line: a whole stream bound to one
// rank, or a connection that opened with a rank hello. Lines without one
// fall back to the processor's default rank.
type LogSource interface {
	Lines() <-chan model.IngestEnvelope
	Stop()
	Name() string

	// BoundRank reports the rank every line of the source is tagged with
	// before any hello. ok is false when the rank is decided per
	// connection.
	BoundRank() (rank int, ok bool)
}

// Describe renders a source for startup output: its name and where its
// plain-text lines go.
func Describe(src LogSource) string {
	if rank, ok := src.BoundRank(); ok {
		return fmt.Sprintf("%s -> rank %d", src.Name(), rank)
	}
	return src.Name() + " -> @rank hello or rank 0"
}
