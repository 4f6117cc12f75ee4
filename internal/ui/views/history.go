package views

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/jscyril/supersonic/api"
)

// HistoryView lists recently played tracks, newest first
type HistoryView struct {
	TrackPane
	Entries []api.HistoryEntry
	Now     func() time.Time
}

func NewHistoryView(width, height int) HistoryView {
	pane := NewTrackPane("Recently played", width, height)
	pane.TrackList.Empty = "Nothing played yet"
	return HistoryView{TrackPane: pane, Now: time.Now}
}

func (v *HistoryView) SetHistory(entries []api.HistoryEntry, currentID string) {
	v.Entries = entries
	tracks := make([]api.Track, len(entries))
	for i, e := range entries {
		tracks[i] = e.Track
	}
	v.SetTracks(tracks, currentID)
}

// playedAt finds when the selected track was last played
func (v HistoryView) playedAt() (time.Time, bool) {
	sel := v.Selected()
	if sel == nil {
		return time.Time{}, false
	}
	for _, e := range v.Entries {
		if e.ID == sel.ID {
			return e.PlayedAt, true
		}
	}
	return time.Time{}, false
}

func (v HistoryView) View() string {
	footer := ""
	if at, ok := v.playedAt(); ok {
		footer = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")).
			Render("played " + Ago(v.Now().Sub(at)))
	}
	return v.TrackPane.View(footer)
}

// Ago renders an elapsed duration the coarse way
func Ago(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	default:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	}
}
