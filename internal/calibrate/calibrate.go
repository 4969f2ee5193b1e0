// Package calibrate maps every log stream onto a common relative timeline by
// memoizing the uptime of each stream's opening record.
package calibrate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/rs/zerolog"

	"github.com/tinytelemetry/loglink/internal/logging"
	"github.com/tinytelemetry/loglink/internal/model"
	"github.com/tinytelemetry/loglink/internal/timestamp"
)

// Calibrator caches reference times per stream. A cached value is never
// recomputed; failures are not cached.
type Calibrator struct {
	mu    sync.RWMutex
	cache map[model.StreamKey]float64
	group singleflight.Group
	log   zerolog.Logger
}

// New creates an empty Calibrator.
func New() *Calibrator {
	return &Calibrator{
		cache: make(map[model.StreamKey]float64),
		log:   logging.Component("calibrate"),
	}
}

// Cached returns the reference time for key without any round trip.
func (c *Calibrator) Cached(key model.StreamKey) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.cache[key]
	return v, ok
}

// Len returns the number of calibrated streams.
func (c *Calibrator) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// ReferenceTime returns the cached reference time of (rec, rank), fetching
// and parsing the rank's starting log on first use.
func (c *Calibrator) ReferenceTime(ctx context.Context, rec model.Recorder, rank int) (float64, error) {
	key := model.StreamKey{Location: rec.Location(), Rank: rank}
	if v, ok := c.Cached(key); ok {
		return v, nil
	}
	if err := model.CheckRank(rank, rec.RankCount()); err != nil {
		return 0, fmt.Errorf("calibrate: %s: %w", key, err)
	}

	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		if v, ok := c.Cached(key); ok {
			return v, nil
		}
		text, err := rec.StartingLog(ctx, rank)
		if err != nil {
			return 0.0, err
		}
		ref, err := timestamp.ParseReferenceTime(text)
		if err != nil {
			return 0.0, err
		}
		c.mu.Lock()
		c.cache[key] = ref
		c.mu.Unlock()
		c.log.Debug().Str("stream", key.String()).Float64("ref", ref).Msg("calibrated")
		return ref, nil
	})
	if err != nil {
		return 0, fmt.Errorf("calibrate: %s: %w", key, err)
	}
	return v.(float64), nil
}

// Prime calibrates every rank of every recorder. Streams without an opening
// record yet are skipped; other failures are joined and returned.
func (c *Calibrator) Prime(ctx context.Context, recs []model.Recorder) error {
	var errs []error
	for _, rec := range recs {
		for rank := 0; rank < rec.RankCount(); rank++ {
			if _, err := c.ReferenceTime(ctx, rec, rank); err != nil {
				if errors.Is(err, model.ErrNoTimestampFound) {
					c.log.Debug().Err(err).Msg("stream not calibrated yet")
					continue
				}
				c.log.Warn().Err(err).Msg("calibration failed")
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
