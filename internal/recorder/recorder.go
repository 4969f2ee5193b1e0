// Package recorder implements the process-side log recorder: it keeps the
// buffered log text of every rank hosted by one process together with the
// process's global verbosity and per-category overrides.
package recorder

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tinytelemetry/loglink/internal/model"
)

// Config holds the recorder's fixed identity and tunables.
type Config struct {
	Location    model.Location
	Ranks       int
	Verbosity   model.Verbosity
	BufferLines int
	// Now is the clock used to stamp entries that carry no uptime.
	Now func() time.Time
}

type rankLog struct {
	starting string
	lines    []string
}

// Recorder is the in-process implementation of model.Recorder.
type Recorder struct {
	mu          sync.RWMutex
	loc         model.Location
	now         func() time.Time
	start       time.Time
	bufferLines int
	verbosity   model.Verbosity
	overrides   map[model.Category]model.Verbosity
	ranks       []*rankLog
	closed      bool
}

var _ model.Recorder = (*Recorder)(nil)

// New creates a recorder. Ranks defaults to 1 and BufferLines to
// model.DefaultBufferLines.
func New(cfg Config) (*Recorder, error) {
	if !cfg.Location.Valid() {
		return nil, fmt.Errorf("recorder: %w: %d", model.ErrUnknownLocation, int(cfg.Location))
	}
	if cfg.Ranks <= 0 {
		cfg.Ranks = model.DefaultRanks
	}
	if cfg.BufferLines <= 0 {
		cfg.BufferLines = model.DefaultBufferLines
	}
	if !cfg.Verbosity.Valid() {
		return nil, fmt.Errorf("recorder: %w: %d", model.ErrUnknownVerbosity, int(cfg.Verbosity))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	ranks := make([]*rankLog, cfg.Ranks)
	for i := range ranks {
		ranks[i] = &rankLog{}
	}
	return &Recorder{
		loc:         cfg.Location,
		now:         cfg.Now,
		start:       cfg.Now(),
		bufferLines: cfg.BufferLines,
		verbosity:   cfg.Verbosity,
		overrides:   make(map[model.Category]model.Verbosity),
		ranks:       ranks,
	}, nil
}

func (r *Recorder) Location() model.Location { return r.loc }
func (r *Recorder) RankCount() int           { return len(r.ranks) }

// FormatLine renders one record in the stream format parsed by
// internal/timestamp.
func FormatLine(uptime float64, thread, origin string, level model.Verbosity, message string) string {
	return fmt.Sprintf("(%8.3fs) [%-16s] %16s %7s| %s", uptime, thread, origin, level, message)
}

// Record formats and buffers an entry when its level passes the effective
// threshold of its category. The first entry of every rank is kept as the
// rank's starting log regardless of the threshold.
func (r *Recorder) Record(e model.Entry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false, model.ErrStaleRecorder
	}
	if err := model.CheckRank(e.Rank, len(r.ranks)); err != nil {
		return false, err
	}

	uptime := r.now().Sub(r.start).Seconds()
	if e.Uptime != nil {
		uptime = *e.Uptime
	}
	thread := e.Thread
	if thread == "" {
		thread = fmt.Sprintf("rank %d", e.Rank)
	}

	msgLines := strings.Split(strings.TrimRight(e.Message, "\n"), "\n")
	lines := make([]string, 0, len(msgLines))
	lines = append(lines, FormatLine(uptime, thread, e.Category.String(), e.Verbosity, msgLines[0]))
	for _, cont := range msgLines[1:] {
		lines = append(lines, "    "+cont)
	}

	rl := r.ranks[e.Rank]
	if rl.starting == "" {
		rl.starting = lines[0]
	}

	if !r.thresholdLocked(e.Category).Allows(e.Verbosity) {
		return false, nil
	}

	rl.lines = append(rl.lines, lines...)
	if over := len(rl.lines) - r.bufferLines; over > 0 {
		rl.lines = append(rl.lines[:0:0], rl.lines[over:]...)
	}
	return true, nil
}

// Threshold returns the effective threshold for a category.
func (r *Recorder) Threshold(c model.Category) model.Verbosity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.thresholdLocked(c)
}

func (r *Recorder) thresholdLocked(c model.Category) model.Verbosity {
	if v, ok := r.overrides[c]; ok {
		return v
	}
	return r.verbosity
}

func (r *Recorder) SetVerbosity(_ context.Context, level model.Verbosity) error {
	if !level.Valid() {
		return fmt.Errorf("recorder: %w: %d", model.ErrUnknownVerbosity, int(level))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return model.ErrStaleRecorder
	}
	r.verbosity = level
	return nil
}

func (r *Recorder) Verbosity(_ context.Context) (model.Verbosity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return 0, model.ErrStaleRecorder
	}
	return r.verbosity, nil
}

func (r *Recorder) SetCategoryVerbosity(_ context.Context, c model.Category, level model.Verbosity) error {
	if !c.Valid() {
		return fmt.Errorf("recorder: %w: %d", model.ErrUnknownCategory, int(c))
	}
	if !level.Valid() {
		return fmt.Errorf("recorder: %w: %d", model.ErrUnknownVerbosity, int(level))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return model.ErrStaleRecorder
	}
	r.overrides[c] = level
	return nil
}

func (r *Recorder) ClearCategoryVerbosity(_ context.Context, c model.Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return model.ErrStaleRecorder
	}
	delete(r.overrides, c)
	return nil
}

func (r *Recorder) CategoryVerbosity(_ context.Context, c model.Category) (model.Verbosity, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return 0, false, model.ErrStaleRecorder
	}
	v, ok := r.overrides[c]
	return v, ok, nil
}

func (r *Recorder) ClearLogs(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return model.ErrStaleRecorder
	}
	for _, rl := range r.ranks {
		rl.lines = nil
	}
	return nil
}

func (r *Recorder) FetchLog(_ context.Context, rank int) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return "", model.ErrStaleRecorder
	}
	if err := model.CheckRank(rank, len(r.ranks)); err != nil {
		return "", err
	}
	return strings.Join(r.ranks[rank].lines, "\n"), nil
}

func (r *Recorder) StartingLog(_ context.Context, rank int) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return "", model.ErrStaleRecorder
	}
	if err := model.CheckRank(rank, len(r.ranks)); err != nil {
		return "", err
	}
	return r.ranks[rank].starting, nil
}

// Status returns the recorder's thresholds.
func (r *Recorder) Status() model.RecorderStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	overrides := make(map[model.Category]model.Verbosity, len(r.overrides))
	for c, v := range r.overrides {
		overrides[c] = v
	}
	return model.RecorderStatus{
		Location:  r.loc,
		RankCount: len(r.ranks),
		Verbosity: r.verbosity,
		Overrides: overrides,
	}
}

// LineCount returns the number of buffered lines for a rank.
func (r *Recorder) LineCount(rank int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rank < 0 || rank >= len(r.ranks) {
		return 0
	}
	return len(r.ranks[rank].lines)
}

// Close marks the recorder stale. Every later call fails with
// model.ErrStaleRecorder.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
