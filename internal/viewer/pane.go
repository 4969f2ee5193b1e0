package viewer

import (
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tinytelemetry/loglink/internal/logparse"
	"github.com/tinytelemetry/loglink/internal/model"
	"github.com/tinytelemetry/loglink/internal/timestamp"
)

// Line is one parsed line of a pane's log text.
type Line struct {
	Text      string
	Time      float64 // absolute uptime seconds, inherited by raw lines
	Timed     bool    // false until the first structured line
	Verbosity model.Verbosity
	Origin    string
	Record    bool // structured line opening a record
}

// Pane displays one (location, rank) stream.
type Pane struct {
	ID  string
	Key model.StreamKey

	mu        sync.RWMutex
	visible   bool
	filter    string
	filterRe  *regexp.Regexp
	all       []Line
	lines     []Line
	top       int
	displayed float64
	hasTime   bool
}

// NewPane creates a visible, empty pane bound to key.
func NewPane(key model.StreamKey) *Pane {
	return &Pane{
		ID:      uuid.NewString(),
		Key:     key,
		visible: true,
	}
}

// Title is the tab label of the bound stream.
func (p *Pane) Title() string { return p.Key.Title() }

// Visible reports whether the pane takes part in linked scrolling.
func (p *Pane) Visible() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.visible
}

// SetVisible shows or hides the pane.
func (p *Pane) SetVisible(visible bool) {
	p.mu.Lock()
	p.visible = visible
	p.mu.Unlock()
}

// Filter returns the wildcard pattern in effect.
func (p *Pane) Filter() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.filter
}

// CompileWildcard turns a wildcard pattern into a case-insensitive,
// unanchored regexp: '*' matches any run of characters and '?' any single
// character. An empty pattern yields nil (match everything).
func CompileWildcard(pattern string) *regexp.Regexp {
	if pattern == "" {
		return nil
	}
	var b strings.Builder
	b.WriteString("(?i)")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return regexp.MustCompile(b.String())
}

// SetFilter applies a wildcard filter and keeps the displayed time.
func (p *Pane) SetFilter(pattern string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filter = pattern
	p.filterRe = CompileWildcard(pattern)
	p.applyFilterLocked()
}

// SetLog replaces the pane's content with freshly fetched text and keeps the
// displayed time.
func (p *Pane) SetLog(text string) {
	parsed := parseLines(text)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.all = parsed
	p.applyFilterLocked()
}

func parseLines(text string) []Line {
	if text == "" {
		return nil
	}
	raw := strings.Split(strings.TrimRight(text, "\n"), "\n")
	out := make([]Line, 0, len(raw))
	prev := Line{Verbosity: model.VerbosityInfo}
	for _, s := range raw {
		res := timestamp.ParseFromText(s)
		line := Line{Text: s, Time: prev.Time, Timed: prev.Timed, Verbosity: prev.Verbosity, Origin: prev.Origin}
		if res.Found {
			line.Time = res.Seconds
			line.Timed = true
			line.Verbosity = logparse.NormalizeVerbosity(res.Parts.Verbosity)
			line.Origin = res.Parts.Origin
			line.Record = true
		}
		out = append(out, line)
		prev = line
	}
	return out
}

func (p *Pane) applyFilterLocked() {
	if p.filterRe == nil {
		p.lines = p.all
	} else {
		p.lines = make([]Line, 0, len(p.all))
		for _, l := range p.all {
			if p.filterRe.MatchString(l.Text) {
				p.lines = append(p.lines, l)
			}
		}
	}
	if p.hasTime {
		p.top = p.rowForTimeLocked(p.displayed)
	} else if p.top >= len(p.lines) {
		p.top = max(len(p.lines)-1, 0)
	}
}

// rowForTimeLocked returns the first timed row at or after t, clamped to
// the last row.
func (p *Pane) rowForTimeLocked(t float64) int {
	for i, l := range p.lines {
		if l.Timed && l.Time >= t {
			return i
		}
	}
	return max(len(p.lines)-1, 0)
}

// ScrollToTime moves the pane so that it displays absolute time t. It
// reports whether the displayed time changed.
func (p *Pane) ScrollToTime(t float64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	changed := !p.hasTime || p.displayed != t
	p.displayed = t
	p.hasTime = true
	p.top = p.rowForTimeLocked(t)
	return changed
}

// ScrollToRow moves the top of the pane to a filtered row, clamped to the
// content, and returns the row's time. ok is false when the row carries no
// time (empty pane or raw preamble).
func (p *Pane) ScrollToRow(row int) (t float64, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.lines) == 0 {
		p.top = 0
		return 0, false
	}
	row = min(max(row, 0), len(p.lines)-1)
	p.top = row
	l := p.lines[row]
	if !l.Timed {
		return 0, false
	}
	p.displayed = l.Time
	p.hasTime = true
	return l.Time, true
}

// DisplayedTime returns the absolute time the pane shows.
func (p *Pane) DisplayedTime() (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.displayed, p.hasTime
}

// TopRow returns the filtered row shown at the top of the pane.
func (p *Pane) TopRow() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.top
}

// Len returns the number of filtered lines.
func (p *Pane) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.lines)
}

// Window returns up to n filtered lines starting at the top row.
func (p *Pane) Window(n int) []Line {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if n <= 0 || p.top >= len(p.lines) {
		return nil
	}
	end := min(p.top+n, len(p.lines))
	out := make([]Line, end-p.top)
	copy(out, p.lines[p.top:end])
	return out
}

// LevelCounts counts filtered records per verbosity.
func (p *Pane) LevelCounts() map[model.Verbosity]int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	counts := make(map[model.Verbosity]int)
	for _, l := range p.lines {
		if l.Record {
			counts[l.Verbosity]++
		}
	}
	return counts
}
