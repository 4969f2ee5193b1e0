package viewer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/loglink/internal/model"
	"github.com/tinytelemetry/loglink/internal/recorder"
)

func newRec(t *testing.T, loc model.Location, ranks int) *recorder.Recorder {
	t.Helper()
	rec, err := recorder.New(recorder.Config{Location: loc, Ranks: ranks, Verbosity: model.VerbosityInfo})
	require.NoError(t, err)
	return rec
}

// emit records one INFO application entry at the given rank uptime.
func emit(t *testing.T, rec *recorder.Recorder, rank int, uptime float64, msg string) {
	t.Helper()
	u := uptime
	_, err := rec.Record(model.Entry{
		Rank:      rank,
		Category:  model.CategoryApplication,
		Verbosity: model.VerbosityInfo,
		Message:   msg,
		Uptime:    &u,
	})
	require.NoError(t, err)
}

func openPane(t *testing.T, s *Session, loc model.Location, rank int) *Pane {
	t.Helper()
	p, err := s.OpenPane(context.Background(), model.StreamKey{Location: loc, Rank: rank})
	require.NoError(t, err)
	return p
}

func displayed(t *testing.T, p *Pane) float64 {
	t.Helper()
	v, ok := p.DisplayedTime()
	require.True(t, ok, "pane %s has no displayed time", p.Key)
	return v
}

func override(t *testing.T, rec model.Recorder, c model.Category) model.Verbosity {
	t.Helper()
	v, ok, err := rec.CategoryVerbosity(context.Background(), c)
	require.NoError(t, err)
	require.True(t, ok, "%s has no %s override", rec.Location(), c)
	return v
}
