// Package viewer is the synchronous core of the log viewer: panes bound to
// (location, rank) streams, linked scrolling across panes, and the category
// promotion policy applied to every process recorder.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tinytelemetry/loglink/internal/calibrate"
	"github.com/tinytelemetry/loglink/internal/logging"
	"github.com/tinytelemetry/loglink/internal/model"
)

// Status is a point-in-time summary of the session's recorders.
type Status struct {
	Recorders []model.RecorderStatus `json:"recorders" yaml:"recorders"`
	Promoted  []model.Category       `json:"promoted" yaml:"promoted"`
	Panes     []PaneStatus           `json:"panes,omitempty" yaml:"panes,omitempty"`
}

// PaneStatus describes one open pane.
type PaneStatus struct {
	ID         string  `json:"id" yaml:"id"`
	Stream     string  `json:"stream" yaml:"stream"`
	Visible    bool    `json:"visible" yaml:"visible"`
	Calibrated bool    `json:"calibrated" yaml:"calibrated"`
	Reference  float64 `json:"reference,omitempty" yaml:"reference,omitempty"`
	Lines      int     `json:"lines" yaml:"lines"`
}

// Option configures a Session.
type Option func(*Session)

// WithFilter sets the initial global filter.
func WithFilter(pattern string) Option {
	return func(s *Session) { s.filter = pattern }
}

// WithCalibrator shares a calibrator between sessions.
func WithCalibrator(c *calibrate.Calibrator) Option {
	return func(s *Session) { s.cal = c }
}

// Session owns the recorders of one viewer window and every open pane.
// Verbosity and promotion changes reach every recorder before they return.
//
// Operations that make round trips are serialized by ops and never hold mu
// while waiting on a recorder, so scrolling and pane reads stay local. The
// recorder set is fixed at construction.
type Session struct {
	ops       sync.Mutex
	mu        sync.Mutex
	recorders map[model.Location]model.Recorder
	order     []model.Location
	cal       *calibrate.Calibrator
	policy    *Policy
	syncer    *SyncController
	panes     []*Pane
	filter    string
	log       zerolog.Logger
}

// ValidateTopology checks that recorders form a valid session: exactly one
// client plus either nothing, one server, or a data-server/render-server
// pair.
func ValidateTopology(recorders []model.Recorder) error {
	seen := make(map[model.Location]bool, len(recorders))
	for _, rec := range recorders {
		if rec == nil {
			return fmt.Errorf("%w: nil recorder", model.ErrInvalidTopology)
		}
		loc := rec.Location()
		if !loc.Valid() {
			return fmt.Errorf("%w: %w", model.ErrInvalidTopology, model.ErrUnknownLocation)
		}
		if seen[loc] {
			return fmt.Errorf("%w: duplicate %s", model.ErrInvalidTopology, loc)
		}
		if rec.RankCount() < 1 {
			return fmt.Errorf("%w: %s has no ranks", model.ErrInvalidTopology, loc)
		}
		seen[loc] = true
	}
	if !seen[model.LocationClient] {
		return fmt.Errorf("%w: missing client", model.ErrInvalidTopology)
	}
	ds, rs := seen[model.LocationDataServer], seen[model.LocationRenderServer]
	if seen[model.LocationServer] && (ds || rs) {
		return fmt.Errorf("%w: server mixed with data/render server", model.ErrInvalidTopology)
	}
	if ds != rs {
		return fmt.Errorf("%w: data server and render server must come as a pair", model.ErrInvalidTopology)
	}
	return nil
}

// NewSession validates the topology, restores the promotions the recorders
// already carry and calibrates every stream that has an opening record.
func NewSession(ctx context.Context, recorders []model.Recorder, opts ...Option) (*Session, error) {
	if err := ValidateTopology(recorders); err != nil {
		return nil, fmt.Errorf("viewer: new session: %w", err)
	}

	s := &Session{
		recorders: make(map[model.Location]model.Recorder, len(recorders)),
		log:       logging.Component("viewer"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cal == nil {
		s.cal = calibrate.New()
	}

	ordered := make([]model.Recorder, 0, len(recorders))
	for _, loc := range model.Locations() {
		for _, rec := range recorders {
			if rec.Location() == loc {
				s.recorders[loc] = rec
				s.order = append(s.order, loc)
				ordered = append(ordered, rec)
			}
		}
	}
	s.policy = NewPolicy(ordered)
	s.syncer = NewSyncController(s.cal)

	if err := s.policy.Restore(ctx); err != nil {
		s.log.Warn().Err(err).Msg("promotions not restored")
	}

	if err := s.cal.Prime(ctx, ordered); err != nil {
		s.log.Warn().Err(err).Msg("some streams could not be calibrated")
	}
	return s, nil
}

// Locations returns the session's process locations in canonical order.
func (s *Session) Locations() []model.Location {
	return append([]model.Location(nil), s.order...)
}

// RankCount returns the rank count of a location.
func (s *Session) RankCount(loc model.Location) (int, error) {
	rec, err := s.recorder(loc)
	if err != nil {
		return 0, err
	}
	return rec.RankCount(), nil
}

// Streams lists every (location, rank) pair of the session.
func (s *Session) Streams() []model.StreamKey {
	var keys []model.StreamKey
	for _, loc := range s.order {
		for rank := 0; rank < s.recorders[loc].RankCount(); rank++ {
			keys = append(keys, model.StreamKey{Location: loc, Rank: rank})
		}
	}
	return keys
}

// Calibrator exposes the session's reference-time cache.
func (s *Session) Calibrator() *calibrate.Calibrator { return s.cal }

func (s *Session) recorder(loc model.Location) (model.Recorder, error) {
	rec, ok := s.recorders[loc]
	if !ok {
		return nil, fmt.Errorf("viewer: %w: %s", model.ErrUnknownLocation, loc)
	}
	return rec, nil
}

func (s *Session) paneLocked(id string) (*Pane, error) {
	for _, p := range s.panes {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, fmt.Errorf("viewer: %w: %s", model.ErrUnknownPane, id)
}

// OpenPane fetches a stream and opens a pane on it. A stream that cannot be
// calibrated yet still opens; it just does not take part in linked
// scrolling.
func (s *Session) OpenPane(ctx context.Context, key model.StreamKey) (*Pane, error) {
	rec, err := s.recorder(key.Location)
	if err != nil {
		return nil, err
	}
	if err := model.CheckRank(key.Rank, rec.RankCount()); err != nil {
		return nil, fmt.Errorf("viewer: open %s: %w", key, err)
	}

	s.ops.Lock()
	defer s.ops.Unlock()
	text, err := rec.FetchLog(ctx, key.Rank)
	if err != nil {
		return nil, fmt.Errorf("viewer: open %s: %w", key, err)
	}
	s.calibrate(ctx, rec, key)

	p := NewPane(key)
	p.SetLog(text)
	s.mu.Lock()
	p.SetFilter(s.filter)
	s.panes = append(s.panes, p)
	s.mu.Unlock()
	s.log.Debug().Str("pane", p.ID).Str("stream", key.String()).Msg("pane opened")
	return p, nil
}

func (s *Session) calibrate(ctx context.Context, rec model.Recorder, key model.StreamKey) {
	if _, ok := s.cal.Cached(key); ok {
		return
	}
	if _, err := s.cal.ReferenceTime(ctx, rec, key.Rank); err != nil {
		if errors.Is(err, model.ErrNoTimestampFound) {
			s.log.Debug().Str("stream", key.String()).Msg("stream not calibrated, excluded from linked scroll")
			return
		}
		s.log.Warn().Err(err).Str("stream", key.String()).Msg("calibration failed")
	}
}

// ClosePane removes a pane.
func (s *Session) ClosePane(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.panes {
		if p.ID == id {
			s.panes = append(s.panes[:i], s.panes[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("viewer: %w: %s", model.ErrUnknownPane, id)
}

// Panes returns the open panes in opening order.
func (s *Session) Panes() []*Pane {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Pane(nil), s.panes...)
}

// Pane looks up an open pane by ID.
func (s *Session) Pane(id string) (*Pane, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paneLocked(id)
}

// Filter returns the global filter.
func (s *Session) Filter() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// SetFilter applies a wildcard filter to every pane.
func (s *Session) SetFilter(pattern string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = pattern
	for _, p := range s.panes {
		p.SetFilter(pattern)
	}
}

// SetPaneFilter applies a wildcard filter to one pane.
func (s *Session) SetPaneFilter(id, pattern string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.paneLocked(id)
	if err != nil {
		return err
	}
	p.SetFilter(pattern)
	return nil
}

// SetPaneVisible shows or hides a pane. Hidden panes ignore linked scroll.
func (s *Session) SetPaneVisible(id string, visible bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.paneLocked(id)
	if err != nil {
		return err
	}
	p.SetVisible(visible)
	return nil
}

// Refresh refetches every pane and retries missing calibrations. Failures
// are per pane; the returned error joins them.
func (s *Session) Refresh(ctx context.Context) error {
	s.ops.Lock()
	defer s.ops.Unlock()
	var errs []error
	for _, p := range s.Panes() {
		rec := s.recorders[p.Key.Location]
		text, err := rec.FetchLog(ctx, p.Key.Rank)
		if err != nil {
			s.log.Warn().Err(err).Str("stream", p.Key.String()).Msg("refresh failed")
			errs = append(errs, fmt.Errorf("viewer: refresh %s: %w", p.Key, err))
			continue
		}
		s.calibrate(ctx, rec, p.Key)
		p.SetLog(text)
	}
	return errors.Join(errs...)
}

// Clear discards the buffered logs of every recorder and empties every pane.
func (s *Session) Clear(ctx context.Context) error {
	s.ops.Lock()
	defer s.ops.Unlock()
	var errs []error
	for _, loc := range s.order {
		if err := s.recorders[loc].ClearLogs(ctx); err != nil {
			s.log.Warn().Err(err).Str("location", loc.String()).Msg("clear failed")
			errs = append(errs, fmt.Errorf("viewer: clear %s: %w", loc, err))
		}
	}
	for _, p := range s.Panes() {
		p.SetLog("")
	}
	return errors.Join(errs...)
}

// Scroll moves a pane to absolute time t and propagates the move. It returns
// the IDs of the other panes that moved.
func (s *Session) Scroll(id string, t float64) ([]string, error) {
	p, panes, err := s.scrollTarget(id)
	if err != nil {
		return nil, err
	}
	return s.syncer.OnScroll(p, t, panes), nil
}

// ScrollRow moves a pane to a filtered row, as the operator scrolling the
// pane itself, and propagates the row's time.
func (s *Session) ScrollRow(id string, row int) ([]string, error) {
	p, panes, err := s.scrollTarget(id)
	if err != nil {
		return nil, err
	}
	before, had := p.DisplayedTime()
	t, ok := p.ScrollToRow(row)
	if !ok || (had && before == t) {
		return nil, nil
	}
	return s.syncer.Propagate(p, t, panes), nil
}

// scrollTarget snapshots the pane list under mu only. Propagation then
// touches pane locks and the calibrator cache, never a recorder.
func (s *Session) scrollTarget(id string) (*Pane, []*Pane, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.paneLocked(id)
	if err != nil {
		return nil, nil, err
	}
	return p, append([]*Pane(nil), s.panes...), nil
}

// SetProcessVerbosity sets a process's global verbosity and re-pushes every
// category override so promoted categories track the new level.
func (s *Session) SetProcessVerbosity(ctx context.Context, loc model.Location, level model.Verbosity) error {
	rec, err := s.recorder(loc)
	if err != nil {
		return err
	}
	s.ops.Lock()
	defer s.ops.Unlock()
	if err := rec.SetVerbosity(ctx, level); err != nil {
		return fmt.Errorf("viewer: set %s verbosity: %w", loc, err)
	}
	return s.policy.ReapplyAll(ctx)
}

// ProcessVerbosity asks a process for its global verbosity.
func (s *Session) ProcessVerbosity(ctx context.Context, loc model.Location) (model.Verbosity, error) {
	rec, err := s.recorder(loc)
	if err != nil {
		return 0, err
	}
	return rec.Verbosity(ctx)
}

// SetPromotion promotes or demotes a category on every recorder.
func (s *Session) SetPromotion(ctx context.Context, c model.Category, promoted bool) error {
	s.ops.Lock()
	defer s.ops.Unlock()
	return s.policy.SetPromotion(ctx, c, promoted)
}

// Promoted reports whether c is promoted. It makes no round trip.
func (s *Session) Promoted(c model.Category) bool {
	return s.policy.Promoted(c)
}

// Status queries every recorder. Unreachable recorders are left out and
// their errors joined.
func (s *Session) Status(ctx context.Context) (Status, error) {
	st := Status{Promoted: s.policy.PromotedCategories()}
	var errs []error
	for _, loc := range s.order {
		rs, err := recorderStatus(ctx, s.recorders[loc])
		if err != nil {
			errs = append(errs, fmt.Errorf("viewer: status %s: %w", loc, err))
			continue
		}
		st.Recorders = append(st.Recorders, rs)
	}
	for _, p := range s.Panes() {
		ref, ok := s.cal.Cached(p.Key)
		st.Panes = append(st.Panes, PaneStatus{
			ID:         p.ID,
			Stream:     p.Key.String(),
			Visible:    p.Visible(),
			Calibrated: ok,
			Reference:  ref,
			Lines:      p.Len(),
		})
	}
	return st, errors.Join(errs...)
}

func recorderStatus(ctx context.Context, rec model.Recorder) (model.RecorderStatus, error) {
	v, err := rec.Verbosity(ctx)
	if err != nil {
		return model.RecorderStatus{}, err
	}
	rs := model.RecorderStatus{
		Location:  rec.Location(),
		RankCount: rec.RankCount(),
		Verbosity: v,
		Overrides: make(map[model.Category]model.Verbosity),
	}
	for _, c := range model.Categories() {
		level, ok, err := rec.CategoryVerbosity(ctx, c)
		if err != nil {
			return model.RecorderStatus{}, err
		}
		if ok {
			rs.Overrides[c] = level
		}
	}
	return rs, nil
}

// Close drops every pane and closes recorders that hold connections.
func (s *Session) Close() error {
	s.ops.Lock()
	defer s.ops.Unlock()
	s.mu.Lock()
	s.panes = nil
	s.mu.Unlock()
	var errs []error
	for _, loc := range s.order {
		if c, ok := s.recorders[loc].(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
