package viewer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/loglink/internal/model"
	"github.com/tinytelemetry/loglink/internal/recorder"
)

func splitTopology(t *testing.T) (*recorder.Recorder, *recorder.Recorder, *recorder.Recorder) {
	t.Helper()
	return newRec(t, model.LocationClient, 1),
		newRec(t, model.LocationDataServer, 2),
		newRec(t, model.LocationRenderServer, 2)
}

func TestPromotionReachesEveryRecorder(t *testing.T) {
	ctx := context.Background()
	client, ds, rs := splitTopology(t)
	recs := []model.Recorder{client, ds, rs}
	for _, r := range recs {
		require.NoError(t, r.SetVerbosity(ctx, model.VerbosityWarning))
	}
	p := NewPolicy(recs)

	require.NoError(t, p.SetPromotion(ctx, model.CategoryRendering, true))
	for _, r := range recs {
		require.Equal(t, model.VerbosityWarning, override(t, r, model.CategoryRendering), r.Location().String())
		_, ok, err := r.CategoryVerbosity(ctx, model.CategoryPipeline)
		require.NoError(t, err)
		require.False(t, ok, "other categories stay untouched")
	}
	require.True(t, p.Promoted(model.CategoryRendering))
}

func TestPromotionPushesEachRecordersOwnVerbosity(t *testing.T) {
	ctx := context.Background()
	client, ds, rs := splitTopology(t)
	require.NoError(t, client.SetVerbosity(ctx, model.VerbosityWarning))
	require.NoError(t, ds.SetVerbosity(ctx, model.VerbosityError))
	require.NoError(t, rs.SetVerbosity(ctx, model.Verbosity(3)))
	p := NewPolicy([]model.Recorder{client, ds, rs})

	require.NoError(t, p.SetPromotion(ctx, model.CategoryDataMovement, true))
	require.Equal(t, model.VerbosityWarning, override(t, client, model.CategoryDataMovement))
	require.Equal(t, model.VerbosityError, override(t, ds, model.CategoryDataMovement))
	require.Equal(t, model.Verbosity(3), override(t, rs, model.CategoryDataMovement))
}

func TestPromotionRoundTripLeavesTrace(t *testing.T) {
	ctx := context.Background()
	client, ds, rs := splitTopology(t)
	recs := []model.Recorder{client, ds, rs}
	p := NewPolicy(recs)

	for _, c := range model.Categories() {
		require.NoError(t, p.SetPromotion(ctx, c, true))
		require.NoError(t, p.SetPromotion(ctx, c, false))
		for _, r := range recs {
			require.Equal(t, model.VerbosityTrace, override(t, r, c))
		}
	}
	require.Empty(t, p.PromotedCategories())
}

func TestVerbosityChangeRepushesPromotedCategories(t *testing.T) {
	ctx := context.Background()
	client, ds, rs := splitTopology(t)
	s, err := NewSession(ctx, []model.Recorder{client, ds, rs})
	require.NoError(t, err)

	require.NoError(t, s.SetPromotion(ctx, model.CategoryRendering, true))
	require.NoError(t, s.SetPromotion(ctx, model.CategoryPlugins, false))
	require.Equal(t, model.VerbosityInfo, override(t, client, model.CategoryRendering))

	require.NoError(t, s.SetProcessVerbosity(ctx, model.LocationClient, model.VerbosityError))
	require.Equal(t, model.VerbosityError, override(t, client, model.CategoryRendering))
	require.Equal(t, model.VerbosityInfo, override(t, ds, model.CategoryRendering))
	require.Equal(t, model.VerbosityTrace, override(t, client, model.CategoryPlugins))

	v, err := s.ProcessVerbosity(ctx, model.LocationClient)
	require.NoError(t, err)
	require.Equal(t, model.VerbosityError, v)

	// Records follow the pushed threshold.
	ok, err := client.Record(model.Entry{Category: model.CategoryRendering, Verbosity: model.VerbosityWarning, Message: "late frame"})
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = client.Record(model.Entry{Category: model.CategoryPlugins, Verbosity: model.VerbosityTrace, Message: "plugin detail"})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPromotionSkipsStaleRecorder(t *testing.T) {
	ctx := context.Background()
	client, ds, rs := splitTopology(t)
	p := NewPolicy([]model.Recorder{client, ds, rs})
	require.NoError(t, ds.Close())

	err := p.SetPromotion(ctx, model.CategoryRendering, true)
	require.Error(t, err)
	require.True(t, errors.Is(err, model.ErrStaleRecorder))

	var perr *PushError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, model.LocationDataServer, perr.Location)
	require.Equal(t, model.CategoryRendering, perr.Category)

	require.Equal(t, model.VerbosityInfo, override(t, client, model.CategoryRendering))
	require.Equal(t, model.VerbosityInfo, override(t, rs, model.CategoryRendering))
	require.True(t, p.Promoted(model.CategoryRendering))

	require.Error(t, p.ReapplyAll(ctx))
}

func TestPromotionRejectsUnknownCategory(t *testing.T) {
	p := NewPolicy(nil)
	require.ErrorIs(t, p.SetPromotion(context.Background(), model.Category(9), true), model.ErrUnknownCategory)
}
