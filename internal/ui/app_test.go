package ui

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jscyril/supersonic/api"
	"github.com/jscyril/supersonic/internal/config"
	"github.com/jscyril/supersonic/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlayer struct {
	calls   []string
	volume  []int
	seekBy  []time.Duration
	played  []string
	session api.Session
	queue   []api.Track
	history []api.HistoryEntry
	err     error
}

func (p *fakePlayer) rec(name string) error {
	p.calls = append(p.calls, name)
	return p.err
}

func (p *fakePlayer) Play(t api.Track) error {
	p.played = append(p.played, t.ID)
	return p.rec("play")
}
func (p *fakePlayer) PlayFromList([]api.Track, int) error { return p.rec("playFromList") }
func (p *fakePlayer) TogglePlay() error                    { return p.rec("toggle") }
func (p *fakePlayer) Resume() error                        { return p.rec("resume") }
func (p *fakePlayer) Pause() error                         { return p.rec("pause") }
func (p *fakePlayer) Stop() error                          { return p.rec("stop") }
func (p *fakePlayer) Next() error                          { return p.rec("next") }
func (p *fakePlayer) Previous() error                      { return p.rec("previous") }
func (p *fakePlayer) Seek(time.Duration) error             { return p.rec("seek") }
func (p *fakePlayer) SeekBy(d time.Duration) error {
	p.seekBy = append(p.seekBy, d)
	return p.rec("seekBy")
}
func (p *fakePlayer) SetVolume(v int) error {
	p.volume = append(p.volume, v)
	return p.rec("volume")
}
func (p *fakePlayer) ToggleShuffle() error { return p.rec("shuffle") }
func (p *fakePlayer) CycleRepeat() error   { return p.rec("repeat") }
func (p *fakePlayer) SetQueue([]api.Track) error {
	return p.rec("setQueue")
}
func (p *fakePlayer) InsertNext(t api.Track) error { return p.rec("insertNext:" + t.ID) }
func (p *fakePlayer) Append(t api.Track) error     { return p.rec("append:" + t.ID) }
func (p *fakePlayer) Remove(id string) error       { return p.rec("remove:" + id) }
func (p *fakePlayer) ClearQueue() error            { return p.rec("clearQueue") }
func (p *fakePlayer) ClearHistory() error          { return p.rec("clearHistory") }
func (p *fakePlayer) Retry() error                 { return p.rec("retry") }
func (p *fakePlayer) Snapshot() api.Session        { return p.session }
func (p *fakePlayer) Queue() []api.Track           { return p.queue }
func (p *fakePlayer) History() []api.HistoryEntry  { return p.history }

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newModel(t *testing.T, p *fakePlayer) (Model, *events.EventBus) {
	t.Helper()
	bus := events.NewEventBus()
	t.Cleanup(bus.Close)
	return NewModel(p, bus.Subscribe(), config.GetDefaultConfig().KeyBindings), bus
}

func press(m Model, keys ...string) Model {
	for _, k := range keys {
		next, _ := m.Update(key(k))
		m = next.(Model)
	}
	return m
}

func TestKeysDriveThePlayer(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{" ", "toggle"},
		{"s", "stop"},
		{"n", "next"},
		{"p", "previous"},
		{"S", "shuffle"},
		{"r", "repeat"},
		{"R", "retry"},
		{"+", "volume"},
		{"-", "volume"},
		{"right", "seekBy"},
		{"left", "seekBy"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			p := &fakePlayer{}
			m, _ := newModel(t, p)
			press(m, tt.key)
			assert.Equal(t, []string{tt.want}, p.calls)
		})
	}
}

func TestVolumeAndSeekSteps(t *testing.T) {
	p := &fakePlayer{session: api.Session{Volume: 50}}
	m, _ := newModel(t, p)

	press(m, "+", "-", "right", "left")

	assert.Equal(t, []int{55, 45}, p.volume)
	assert.Equal(t, []time.Duration{10 * time.Second, -10 * time.Second}, p.seekBy)
}

func TestQueueActions(t *testing.T) {
	p := &fakePlayer{queue: []api.Track{
		{ID: "a", Title: "Alpha"},
		{ID: "b", Title: "Bravo"},
	}}
	m, _ := newModel(t, p)

	press(m, "down", "enter", "a", "d")

	assert.Equal(t, []string{"b"}, p.played)
	assert.Equal(t, []string{"play", "insertNext:b", "remove:b"}, p.calls)
}

func TestRemoveOnlyAppliesToQueue(t *testing.T) {
	p := &fakePlayer{history: []api.HistoryEntry{{Track: api.Track{ID: "h"}, PlayedAt: time.Now()}}}
	m, _ := newModel(t, p)

	press(m, "3", "d", "c", "enter")

	assert.Equal(t, []string{"clearHistory", "play"}, p.calls)
	assert.Equal(t, []string{"h"}, p.played)
}

func TestFilterSwallowsKeys(t *testing.T) {
	p := &fakePlayer{queue: []api.Track{
		{ID: "a", Title: "Alpha"},
		{ID: "b", Title: "Bravo"},
		{ID: "c", Title: "Charlie"},
	}}
	m, _ := newModel(t, p)

	m = press(m, "/", "b", "r", "a")
	assert.Empty(t, p.calls, "typing in the filter must not reach the player")
	require.Len(t, m.queueView.TrackList.Items, 1)
	assert.Equal(t, "b", m.queueView.TrackList.Items[0].ID)

	m = press(m, "enter", "enter")
	assert.Equal(t, []string{"b"}, p.played)

	m = press(m, "/", "esc")
	assert.Len(t, m.queueView.TrackList.Items, 3)
}

func TestEventsRefreshViews(t *testing.T) {
	p := &fakePlayer{}
	m, _ := newModel(t, p)

	p.queue = []api.Track{{ID: "x", Title: "X"}}
	track := p.queue[0]
	next, cmd := m.Update(EventMsg{
		Type:    api.EventTrackChanged,
		Session: api.Session{Track: &track, State: api.StateLoading, Volume: 80},
	})
	m = next.(Model)

	require.NotNil(t, cmd)
	assert.Equal(t, "x", m.queueView.TrackList.CurrentID)
	assert.Len(t, m.queueView.TrackList.Items, 1)
	assert.Equal(t, api.StateLoading, m.playerView.Session.State)

	next, _ = m.Update(EventMsg{Type: api.EventError, Session: m.playerView.Session, Err: errors.New("boom")})
	m = next.(Model)
	assert.Contains(t, m.View(), "boom")
}

func TestCommandErrorIsShown(t *testing.T) {
	p := &fakePlayer{err: errors.New("engine closed")}
	m, _ := newModel(t, p)

	m = press(m, "n")
	assert.Contains(t, m.View(), "engine closed")
}

func TestListenQuitsWhenBusCloses(t *testing.T) {
	p := &fakePlayer{}
	m, bus := newModel(t, p)
	bus.Close()

	msg := m.listen()()
	assert.IsType(t, busClosedMsg{}, msg)

	_, cmd := m.Update(msg)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestTabsCycle(t *testing.T) {
	m, _ := newModel(t, &fakePlayer{})
	assert.Equal(t, ViewQueue, m.activeView)

	m = press(m, "tab")
	assert.Equal(t, ViewHistory, m.activeView)
	m = press(m, "tab")
	assert.Equal(t, ViewPlayer, m.activeView)
	m = press(m, "2")
	assert.Equal(t, ViewQueue, m.activeView)
}
