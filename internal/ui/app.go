package ui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jscyril/supersonic/api"
	"github.com/jscyril/supersonic/internal/config"
	"github.com/jscyril/supersonic/internal/ui/views"
	"github.com/jscyril/supersonic/pkg/events"
)

// ViewType represents the current active view
type ViewType int

const (
	ViewPlayer ViewType = iota
	ViewQueue
	ViewHistory
)

const (
	volumeStep = 5
	seekStep   = 10 * time.Second
)

// Model is the main bubbletea model
type Model struct {
	width  int
	height int

	activeView ViewType

	playerView  views.PlayerView
	queueView   views.QueueView
	historyView views.HistoryView

	player api.Player
	sub    *events.Subscription
	keys   config.KeyMap

	err error

	tabStyle       lipgloss.Style
	activeTabStyle lipgloss.Style
	errorStyle     lipgloss.Style
}

// EventMsg wraps an engine event
type EventMsg api.Event

// TickMsg refreshes relative timestamps
type TickMsg time.Time

type busClosedMsg struct{}

// NewModel builds the UI over player. sub delivers the engine's events and
// is released when the program quits.
func NewModel(player api.Player, sub *events.Subscription, keys config.KeyMap) Model {
	m := Model{
		width:      80,
		height:     24,
		activeView: ViewQueue,
		player:     player,
		sub:        sub,
		keys:       keys,
		tabStyle: lipgloss.NewStyle().
			Padding(0, 2).
			Foreground(lipgloss.Color("240")),
		activeTabStyle: lipgloss.NewStyle().
			Padding(0, 2).
			Bold(true).
			Foreground(lipgloss.Color("212")).
			Background(lipgloss.Color("236")),
		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),
	}

	m.playerView = views.NewPlayerView(m.width, 10)
	m.playerView.Help = helpLine(keys)
	m.queueView = views.NewQueueView(m.width, m.height-12)
	m.queueView.Hint = fmt.Sprintf("[Enter] Play  [%s] Remove  [%s] Play next", keys.Remove, keys.PlayNext)
	m.historyView = views.NewHistoryView(m.width, m.height-12)
	m.historyView.Hint = fmt.Sprintf("[Enter] Play  [%s] Play next  [c] Clear", keys.PlayNext)

	m.playerView.SetSession(player.Snapshot())
	m.refreshLists()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.listen())
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// listen waits for the next engine event
func (m Model) listen() tea.Cmd {
	sub := m.sub
	return func() tea.Msg {
		ev, ok := <-sub.C
		if !ok {
			return busClosedMsg{}
		}
		return EventMsg(ev)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateViewSizes()
		return m, nil

	case TickMsg:
		return m, tickCmd()

	case EventMsg:
		m.onEvent(api.Event(msg))
		return m, m.listen()

	case busClosedMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		return m.onKey(msg)
	}
	return m, nil
}

func (m *Model) onEvent(ev api.Event) {
	m.playerView.SetSession(ev.Session)
	switch ev.Type {
	case api.EventTrackChanged:
		m.err = nil
		m.refreshLists()
	case api.EventQueueChanged:
		m.refreshLists()
	case api.EventError:
		if ev.Err != nil {
			m.err = ev.Err
		}
	}
}

func (m *Model) refreshLists() {
	current := ""
	if t := m.playerView.Session.Track; t != nil {
		current = t.ID
	}
	m.queueView.SetQueue(m.player.Queue(), current)
	m.historyView.SetHistory(m.player.History(), current)
}

func (m Model) filtering() bool {
	switch m.activeView {
	case ViewQueue:
		return m.queueView.Filtering
	case ViewHistory:
		return m.historyView.Filtering
	}
	return false
}

func (m Model) onKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := msg.String()
	if k == "ctrl+c" {
		return m.quit()
	}

	// an open filter swallows everything else
	if m.filtering() {
		m.forward(msg)
		return m, nil
	}

	switch k {
	case m.keys.Quit:
		return m.quit()
	case "1":
		m.activeView = ViewPlayer
	case "2":
		m.activeView = ViewQueue
	case "3":
		m.activeView = ViewHistory
	case "tab":
		m.activeView = (m.activeView + 1) % 3

	case m.keys.PlayPause:
		m.do(m.player.TogglePlay())
	case m.keys.Stop:
		m.do(m.player.Stop())
	case m.keys.Next:
		m.do(m.player.Next())
	case m.keys.Previous:
		m.do(m.player.Previous())
	case m.keys.VolumeUp, "=":
		m.do(m.player.SetVolume(m.player.Snapshot().Volume + volumeStep))
	case m.keys.VolumeDown:
		m.do(m.player.SetVolume(m.player.Snapshot().Volume - volumeStep))
	case m.keys.SeekForward:
		m.do(m.player.SeekBy(seekStep))
	case m.keys.SeekBack:
		m.do(m.player.SeekBy(-seekStep))
	case m.keys.Shuffle:
		m.do(m.player.ToggleShuffle())
	case m.keys.Repeat:
		m.do(m.player.CycleRepeat())
	case m.keys.Retry:
		m.do(m.player.Retry())

	case "enter":
		if t := m.selected(); t != nil {
			m.do(m.player.Play(*t))
		}
	case m.keys.PlayNext:
		if t := m.selected(); t != nil {
			m.do(m.player.InsertNext(*t))
		}
	case m.keys.Remove:
		if t := m.selected(); t != nil && m.activeView == ViewQueue {
			m.do(m.player.Remove(t.ID))
		}
	case "c":
		if m.activeView == ViewHistory {
			m.do(m.player.ClearHistory())
		}

	default:
		m.forward(msg)
	}
	return m, nil
}

func (m *Model) forward(msg tea.KeyMsg) {
	switch m.activeView {
	case ViewQueue:
		m.queueView.TrackPane, _ = m.queueView.TrackPane.Update(msg)
	case ViewHistory:
		m.historyView.TrackPane, _ = m.historyView.TrackPane.Update(msg)
	}
}

func (m *Model) selected() *api.Track {
	switch m.activeView {
	case ViewQueue:
		return m.queueView.Selected()
	case ViewHistory:
		return m.historyView.Selected()
	}
	return nil
}

// do records a command error for display
func (m *Model) do(err error) {
	if err != nil {
		m.err = err
	}
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.sub.Unsubscribe()
	return m, tea.Quit
}

func (m *Model) updateViewSizes() {
	m.playerView.SetWidth(m.width)
	m.queueView.SetSize(m.width, m.height-12)
	m.historyView.SetSize(m.width, m.height-12)
}

func (m Model) View() string {
	var sb string

	sb += m.renderTabs()
	sb += "\n"
	sb += m.playerView.View()

	switch m.activeView {
	case ViewQueue:
		sb += "\n" + m.queueView.View()
	case ViewHistory:
		sb += "\n" + m.historyView.View()
	}

	if m.err != nil {
		sb += "\n" + m.errorStyle.Render(fmt.Sprintf("Error: %v", m.err))
	}
	return sb
}

func (m Model) renderTabs() string {
	tabs := []string{"[1] Player", "[2] Queue", "[3] History"}

	var rendered []string
	for i, tab := range tabs {
		if ViewType(i) == m.activeView {
			rendered = append(rendered, m.activeTabStyle.Render(tab))
		} else {
			rendered = append(rendered, m.tabStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func helpLine(k config.KeyMap) string {
	space := func(s string) string {
		if s == " " {
			return "Space"
		}
		return s
	}
	return fmt.Sprintf("[%s] Play/Pause  [%s] Stop  [%s] Next  [%s] Prev  [%s/%s] Volume  [%s/%s] Seek  [%s] Shuffle  [%s] Repeat  [%s] Retry  [%s] Quit",
		space(k.PlayPause), k.Stop, k.Next, k.Previous, k.VolumeUp, k.VolumeDown,
		k.SeekBack, k.SeekForward, k.Shuffle, k.Repeat, k.Retry, k.Quit)
}

// Run starts the bubbletea program and blocks until it exits or ctx ends
func Run(ctx context.Context, player api.Player, bus *events.EventBus, keys config.KeyMap) error {
	model := NewModel(player, bus.Subscribe(), keys)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
