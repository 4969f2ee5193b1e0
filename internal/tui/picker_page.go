package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/loglink/internal/model"
)

// StreamLister lists the streams a session can open.
type StreamLister interface {
	Streams() []model.StreamKey
}

// PickerPage lists every (process, rank) stream; enter opens one in the
// viewer.
type PickerPage struct {
	lister  StreamLister
	keys    KeyMap
	streams []model.StreamKey
	open    map[model.StreamKey]bool
	cursor  int
}

var _ Navigable = (*PickerPage)(nil)

func NewPickerPage(lister StreamLister) *PickerPage {
	return &PickerPage{
		lister: lister,
		keys:   DefaultKeyMap(),
		open:   make(map[model.StreamKey]bool),
	}
}

func (p *PickerPage) ID() string { return PickerPageID }

func (p *PickerPage) Init() tea.Cmd {
	p.streams = p.lister.Streams()
	return nil
}

// OnNavigate reloads the stream list; params are the streams already open.
func (p *PickerPage) OnNavigate(params any) tea.Cmd {
	p.streams = p.lister.Streams()
	p.open = make(map[model.StreamKey]bool)
	if keys, ok := params.([]model.StreamKey); ok {
		for _, k := range keys {
			p.open[k] = true
		}
	}
	p.cursor = min(p.cursor, max(len(p.streams)-1, 0))
	return nil
}

func (p *PickerPage) Update(msg tea.Msg) (tea.Cmd, *PageNav) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil, nil
	}
	switch {
	case key.Matches(km, p.keys.ForceQuit):
		return tea.Quit, nil
	case key.Matches(km, p.keys.Escape), key.Matches(km, p.keys.Quit), key.Matches(km, p.keys.Open):
		return nil, &PageNav{PageID: ViewerPageID}
	case key.Matches(km, p.keys.Up):
		p.cursor = max(p.cursor-1, 0)
	case key.Matches(km, p.keys.Down):
		p.cursor = min(p.cursor+1, max(len(p.streams)-1, 0))
	case key.Matches(km, p.keys.Home):
		p.cursor = 0
	case key.Matches(km, p.keys.End):
		p.cursor = max(len(p.streams)-1, 0)
	case key.Matches(km, p.keys.Enter):
		if p.cursor < len(p.streams) {
			return nil, &PageNav{PageID: ViewerPageID, Params: p.streams[p.cursor]}
		}
	}
	return nil, nil
}

func (p *PickerPage) View(width, height int) string {
	lines := []string{paneTitleStyle.Render("Open stream"), ""}
	if len(p.streams) == 0 {
		lines = append(lines, helpStyle.Render("No streams available"))
	}
	// Keep the cursor on screen.
	rows := max(height-4, 1)
	start := 0
	if p.cursor >= rows {
		start = p.cursor - rows + 1
	}
	for i := start; i < len(p.streams) && i < start+rows; i++ {
		k := p.streams[i]
		label := k.Title()
		if p.open[k] {
			label += helpStyle.Render("  (open)")
		}
		if i == p.cursor {
			lines = append(lines, cursorStyle.Render("> ")+label)
		} else {
			lines = append(lines, "  "+label)
		}
	}
	lines = append(lines, "", helpStyle.Render("enter: open • esc: back"))
	return lipgloss.NewStyle().MaxWidth(width).Render(strings.Join(lines, "\n"))
}
