package viewer

import "github.com/tinytelemetry/loglink/internal/model"

// RefLookup answers cached reference times without any round trip.
type RefLookup interface {
	Cached(key model.StreamKey) (float64, bool)
}

// SyncController propagates a time cursor from one pane to the others.
type SyncController struct {
	refs RefLookup
}

// NewSyncController creates a controller reading reference times from refs.
func NewSyncController(refs RefLookup) *SyncController {
	return &SyncController{refs: refs}
}

// OnScroll moves source to absolute time t and repositions every other
// visible pane at the same relative offset from its own reference time.
// Scrolling a pane to the time it already shows moves nothing. It returns
// the IDs of the panes repositioned by propagation.
func (s *SyncController) OnScroll(source *Pane, t float64, panes []*Pane) []string {
	if !source.ScrollToTime(t) {
		return nil
	}
	return s.Propagate(source, t, panes)
}

// Propagate repositions every pane except source from source's time t.
// Panes without a reference time, hidden panes and everything when the
// source itself is uncalibrated are left alone.
func (s *SyncController) Propagate(source *Pane, t float64, panes []*Pane) []string {
	srcRef, ok := s.refs.Cached(source.Key)
	if !ok {
		return nil
	}
	delta := t - srcRef

	var moved []string
	for _, p := range panes {
		if p == source || p.ID == source.ID || !p.Visible() {
			continue
		}
		ref, ok := s.refs.Cached(p.Key)
		if !ok {
			continue
		}
		if p.ScrollToTime(ref + delta) {
			moved = append(moved, p.ID)
		}
	}
	return moved
}
