// Package tui is the bubbletea front end of the log viewer: a tab strip of
// panes, the visible panes tiled side by side, a verbosity histogram of the
// focused pane and the process/category controls.
package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/tinytelemetry/loglink/internal/logging"
	"github.com/tinytelemetry/loglink/internal/model"
	"github.com/tinytelemetry/loglink/internal/viewer"
)

const (
	ViewerPageID = "viewer"
	PickerPageID = "picker"
)

// Controller is the session surface the viewer drives.
type Controller interface {
	Locations() []model.Location
	Streams() []model.StreamKey
	OpenPane(ctx context.Context, key model.StreamKey) (*viewer.Pane, error)
	ClosePane(id string) error
	Panes() []*viewer.Pane
	Filter() string
	SetFilter(pattern string)
	SetPaneVisible(id string, visible bool) error
	Refresh(ctx context.Context) error
	Clear(ctx context.Context) error
	ScrollRow(id string, row int) ([]string, error)
	SetProcessVerbosity(ctx context.Context, loc model.Location, level model.Verbosity) error
	SetPromotion(ctx context.Context, c model.Category, promoted bool) error
	Promoted(c model.Category) bool
	Status(ctx context.Context) (viewer.Status, error)
}

var _ Controller = (*viewer.Session)(nil)

// Options tunes the viewer page.
type Options struct {
	// UpdateInterval is the auto-refresh period; zero disables it.
	UpdateInterval time.Duration
	// Timeout bounds every recorder round trip.
	Timeout time.Duration
}

type (
	panesOpenedMsg struct {
		ids []string
		err error
	}
	opDoneMsg struct {
		op  string
		err error
	}
	statusMsg struct {
		status viewer.Status
		err    error
	}
	tickMsg time.Time
)

// ViewerPage shows the open panes of a session.
type ViewerPage struct {
	ctl  Controller
	opts Options
	keys KeyMap
	help help.Model
	log  zerolog.Logger

	filterInput textinput.Model
	filtering   bool

	focusID string
	status  viewer.Status
	notice  string
	lastErr error
	started bool

	width  int
	height int
}

var _ Navigable = (*ViewerPage)(nil)

// NewViewerPage creates the viewer page for a session.
func NewViewerPage(ctl Controller, opts Options) *ViewerPage {
	if opts.Timeout <= 0 {
		opts.Timeout = model.DefaultRPCTimeout
	}
	filterInput := textinput.New()
	filterInput.Prompt = "Filter: "
	filterInput.Placeholder = "wildcard, e.g. *render*"
	filterInput.CharLimit = 200

	return &ViewerPage{
		ctl:         ctl,
		opts:        opts,
		keys:        DefaultKeyMap(),
		help:        help.New(),
		log:         logging.Component("tui"),
		filterInput: filterInput,
	}
}

func (m *ViewerPage) ID() string { return ViewerPageID }

// Init opens rank 0 of every process the first time the page starts.
func (m *ViewerPage) Init() tea.Cmd {
	if m.started {
		return nil
	}
	m.started = true
	var cmds []tea.Cmd
	if len(m.ctl.Panes()) == 0 {
		var keys []model.StreamKey
		for _, loc := range m.ctl.Locations() {
			keys = append(keys, model.StreamKey{Location: loc, Rank: 0})
		}
		cmds = append(cmds, m.openCmd(keys...))
	}
	cmds = append(cmds, m.statusCmd(), m.tickCmd())
	return tea.Batch(cmds...)
}

// OnNavigate opens the stream chosen on the picker page, if any.
func (m *ViewerPage) OnNavigate(params any) tea.Cmd {
	if key, ok := params.(model.StreamKey); ok {
		return m.openCmd(key)
	}
	return nil
}

func (m *ViewerPage) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.filterInput.Width = max(10, msg.Width-len(m.filterInput.Prompt)-2)
		return nil, nil

	case tea.KeyMsg:
		if m.filtering {
			return m.handleFilterKey(msg), nil
		}
		return m.handleKey(msg)

	case panesOpenedMsg:
		if len(msg.ids) > 0 {
			m.focusID = msg.ids[0]
		}
		m.setResult("", msg.err)
		return m.statusCmd(), nil

	case opDoneMsg:
		m.setResult(msg.op, msg.err)
		return m.statusCmd(), nil

	case statusMsg:
		m.status = msg.status
		if msg.err != nil {
			m.lastErr = msg.err
		}
		return nil, nil

	case tickMsg:
		return tea.Batch(m.opCmd("", m.ctl.Refresh), m.tickCmd()), nil
	}

	if m.filtering {
		var cmd tea.Cmd
		m.filterInput, cmd = m.filterInput.Update(msg)
		return cmd, nil
	}
	return nil, nil
}

func (m *ViewerPage) handleKey(msg tea.KeyMsg) (tea.Cmd, *PageNav) {
	switch {
	case key.Matches(msg, m.keys.ForceQuit), key.Matches(msg, m.keys.Quit):
		return tea.Quit, nil
	case key.Matches(msg, m.keys.NextPane):
		m.cycleFocus(1)
	case key.Matches(msg, m.keys.PrevPane):
		m.cycleFocus(-1)
	case key.Matches(msg, m.keys.Up):
		m.scrollBy(-1)
	case key.Matches(msg, m.keys.Down):
		m.scrollBy(1)
	case key.Matches(msg, m.keys.PageUp):
		m.scrollBy(-m.pageRows())
	case key.Matches(msg, m.keys.PageDown):
		m.scrollBy(m.pageRows())
	case key.Matches(msg, m.keys.Home):
		m.scrollTo(0)
	case key.Matches(msg, m.keys.End):
		if p := m.focused(); p != nil {
			m.scrollTo(p.Len() - 1)
		}
	case key.Matches(msg, m.keys.Open):
		return nil, &PageNav{PageID: PickerPageID, Params: m.openStreams()}
	case key.Matches(msg, m.keys.Close):
		if p := m.focused(); p != nil {
			m.cycleFocus(1)
			if m.focusID == p.ID {
				m.focusID = ""
			}
			m.setResult("", m.ctl.ClosePane(p.ID))
		}
	case key.Matches(msg, m.keys.Hide):
		if p := m.focused(); p != nil {
			m.setResult("", m.ctl.SetPaneVisible(p.ID, !p.Visible()))
		}
	case key.Matches(msg, m.keys.Filter):
		m.filtering = true
		m.filterInput.SetValue(m.ctl.Filter())
		m.filterInput.CursorEnd()
		return m.filterInput.Focus(), nil
	case key.Matches(msg, m.keys.Refresh):
		return m.opCmd("refresh", m.ctl.Refresh), nil
	case key.Matches(msg, m.keys.Clear):
		return m.opCmd("clear", m.ctl.Clear), nil
	case key.Matches(msg, m.keys.VerbosityUp):
		return m.stepVerbosity(1), nil
	case key.Matches(msg, m.keys.VerbosityDown):
		return m.stepVerbosity(-1), nil
	case key.Matches(msg, m.keys.Promote):
		return m.togglePromotion(msg.String()), nil
	}
	return nil, nil
}

func (m *ViewerPage) handleFilterKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.ForceQuit):
		return tea.Quit
	case key.Matches(msg, m.keys.Escape):
		m.filtering = false
		m.filterInput.Blur()
		return nil
	case key.Matches(msg, m.keys.Enter):
		m.filtering = false
		m.filterInput.Blur()
		m.ctl.SetFilter(m.filterInput.Value())
		m.notice = "filter applied"
		return nil
	}
	var cmd tea.Cmd
	m.filterInput, cmd = m.filterInput.Update(msg)
	return cmd
}

func (m *ViewerPage) setResult(op string, err error) {
	if err != nil {
		m.lastErr = err
		m.log.Warn().Err(err).Str("op", op).Msg("viewer operation failed")
		return
	}
	if op != "" {
		m.lastErr = nil
		m.notice = op
	}
}

// focused returns the focused pane, moving focus to the first pane when the
// focused one is gone.
func (m *ViewerPage) focused() *viewer.Pane {
	panes := m.ctl.Panes()
	for _, p := range panes {
		if p.ID == m.focusID {
			return p
		}
	}
	if len(panes) == 0 {
		m.focusID = ""
		return nil
	}
	m.focusID = panes[0].ID
	return panes[0]
}

func (m *ViewerPage) cycleFocus(dir int) {
	panes := m.ctl.Panes()
	if len(panes) == 0 {
		return
	}
	idx := 0
	for i, p := range panes {
		if p.ID == m.focusID {
			idx = i
			break
		}
	}
	idx = (idx + dir + len(panes)) % len(panes)
	m.focusID = panes[idx].ID
}

func (m *ViewerPage) scrollBy(delta int) {
	if p := m.focused(); p != nil {
		m.scrollTo(p.TopRow() + delta)
	}
}

// scrollTo moves the focused pane; the session carries the move to every
// other calibrated pane without any round trip.
func (m *ViewerPage) scrollTo(row int) {
	p := m.focused()
	if p == nil {
		return
	}
	moved, err := m.ctl.ScrollRow(p.ID, row)
	if err != nil {
		m.setResult("", err)
		return
	}
	if len(moved) > 0 {
		m.log.Trace().Str("pane", p.ID).Int("linked", len(moved)).Msg("linked scroll")
	}
}

func (m *ViewerPage) openStreams() []model.StreamKey {
	var keys []model.StreamKey
	for _, p := range m.ctl.Panes() {
		keys = append(keys, p.Key)
	}
	return keys
}

// processVerbosity returns the last known global verbosity of a process.
func (m *ViewerPage) processVerbosity(loc model.Location) model.Verbosity {
	for _, rs := range m.status.Recorders {
		if rs.Location == loc {
			return rs.Verbosity
		}
	}
	return model.DefaultVerbosity
}

func (m *ViewerPage) setCachedVerbosity(loc model.Location, level model.Verbosity) {
	for i := range m.status.Recorders {
		if m.status.Recorders[i].Location == loc {
			m.status.Recorders[i].Verbosity = level
		}
	}
}

// stepVerbosity moves the focused pane's process one level more (dir > 0)
// or less verbose.
func (m *ViewerPage) stepVerbosity(dir int) tea.Cmd {
	p := m.focused()
	if p == nil {
		return nil
	}
	loc := p.Key.Location
	levels := model.VerbosityLevels()
	cur := -1
	for i, v := range levels {
		if v == m.processVerbosity(loc) {
			cur = i
		}
	}
	if cur < 0 {
		return nil
	}
	next := min(max(cur+dir, 0), len(levels)-1)
	if next == cur {
		return nil
	}
	level := levels[next]
	m.setCachedVerbosity(loc, level)
	ctl := m.ctl
	return m.opCmd(fmt.Sprintf("%s verbosity %s", loc.DisplayName(), level), func(ctx context.Context) error {
		return ctl.SetProcessVerbosity(ctx, loc, level)
	})
}

// togglePromotion flips the category bound to a digit key.
func (m *ViewerPage) togglePromotion(k string) tea.Cmd {
	cats := model.Categories()
	if len(k) != 1 || k[0] < '1' || int(k[0]-'1') >= len(cats) {
		return nil
	}
	c := cats[k[0]-'1']
	promote := !m.ctl.Promoted(c)
	op := c.DisplayName() + " demoted"
	if promote {
		op = c.DisplayName() + " promoted"
	}
	ctl := m.ctl
	return m.opCmd(op, func(ctx context.Context) error {
		return ctl.SetPromotion(ctx, c, promote)
	})
}

func (m *ViewerPage) openCmd(keys ...model.StreamKey) tea.Cmd {
	ctl, timeout := m.ctl, m.opts.Timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		var ids []string
		var errs []error
		for _, k := range keys {
			p, err := ctl.OpenPane(ctx, k)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			ids = append(ids, p.ID)
		}
		return panesOpenedMsg{ids: ids, err: errors.Join(errs...)}
	}
}

// opCmd runs a recorder round trip off the update loop. An empty op name
// keeps the notice line unchanged.
func (m *ViewerPage) opCmd(op string, fn func(context.Context) error) tea.Cmd {
	timeout := m.opts.Timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

func (m *ViewerPage) statusCmd() tea.Cmd {
	ctl, timeout := m.ctl, m.opts.Timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		st, err := ctl.Status(ctx)
		return statusMsg{status: st, err: err}
	}
}

func (m *ViewerPage) tickCmd() tea.Cmd {
	if m.opts.UpdateInterval <= 0 {
		return nil
	}
	return tea.Tick(m.opts.UpdateInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
