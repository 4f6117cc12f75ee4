package components

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jscyril/supersonic/api"
)

// TrackList is a scrollable list of tracks with an optional now-playing marker
type TrackList struct {
	Items         []api.Track
	Selected      int
	Height        int
	Width         int
	Offset        int
	Title         string
	ShowNumbers   bool
	CurrentID     string
	Empty         string
	SelectedStyle lipgloss.Style
	NormalStyle   lipgloss.Style
	CurrentStyle  lipgloss.Style
	TitleStyle    lipgloss.Style
}

// NewTrackList creates a new track list
func NewTrackList(height, width int) TrackList {
	return TrackList{
		Height: height,
		Width:  width,
		Empty:  "No tracks",
		SelectedStyle: lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("230")).
			Bold(true).
			Padding(0, 1),
		NormalStyle: lipgloss.NewStyle().
			Padding(0, 1),
		CurrentStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")).
			Padding(0, 1),
		TitleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			MarginBottom(1),
		ShowNumbers: true,
	}
}

// SetItems replaces the items, keeping the selection on the same track id
// when it is still present.
func (l *TrackList) SetItems(items []api.Track) {
	var keep string
	if t := l.SelectedItem(); t != nil {
		keep = t.ID
	}
	l.Items = items
	l.Selected = 0
	for i, t := range items {
		if t.ID == keep {
			l.Selected = i
			break
		}
	}
	l.ensureVisible()
}

// Update handles navigation keys
func (l TrackList) Update(msg tea.Msg) (TrackList, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			l.MoveUp()
		case "down", "j":
			l.MoveDown()
		case "home", "g":
			l.Selected = 0
			l.Offset = 0
		case "end", "G":
			if len(l.Items) > 0 {
				l.Selected = len(l.Items) - 1
				l.ensureVisible()
			}
		case "pgup":
			l.PageUp()
		case "pgdown":
			l.PageDown()
		}
	}
	return l, nil
}

func (l *TrackList) MoveUp() {
	if l.Selected > 0 {
		l.Selected--
		l.ensureVisible()
	}
}

func (l *TrackList) MoveDown() {
	if l.Selected < len(l.Items)-1 {
		l.Selected++
		l.ensureVisible()
	}
}

func (l *TrackList) PageUp() {
	l.Selected = max(l.Selected-l.visible(), 0)
	l.ensureVisible()
}

func (l *TrackList) PageDown() {
	l.Selected = max(min(l.Selected+l.visible(), len(l.Items)-1), 0)
	l.ensureVisible()
}

// visible is the number of rows left after the title and the counter
func (l *TrackList) visible() int {
	return max(l.Height-2, 1)
}

func (l *TrackList) ensureVisible() {
	h := l.visible()
	if l.Selected < l.Offset {
		l.Offset = l.Selected
	} else if l.Selected >= l.Offset+h {
		l.Offset = l.Selected - h + 1
	}
	if l.Offset > max(len(l.Items)-h, 0) {
		l.Offset = max(len(l.Items)-h, 0)
	}
}

// SelectedItem returns the highlighted track or nil
func (l *TrackList) SelectedItem() *api.Track {
	if l.Selected >= 0 && l.Selected < len(l.Items) {
		t := l.Items[l.Selected]
		return &t
	}
	return nil
}

func (l TrackList) View() string {
	var sb strings.Builder

	if l.Title != "" {
		sb.WriteString(l.TitleStyle.Render(l.Title))
		sb.WriteString("\n")
	}

	if len(l.Items) == 0 {
		sb.WriteString(l.NormalStyle.Render(l.Empty))
		return sb.String()
	}

	end := min(l.Offset+l.visible(), len(l.Items))
	for i := l.Offset; i < end; i++ {
		line := l.line(i)
		switch {
		case i == l.Selected:
			sb.WriteString(l.SelectedStyle.Render(line))
		case l.Items[i].ID == l.CurrentID:
			sb.WriteString(l.CurrentStyle.Render(line))
		default:
			sb.WriteString(l.NormalStyle.Render(line))
		}
		if i < end-1 {
			sb.WriteString("\n")
		}
	}

	if len(l.Items) > l.visible() {
		sb.WriteString("\n")
		sb.WriteString(l.NormalStyle.Render(fmt.Sprintf("  [%d/%d]", l.Selected+1, len(l.Items))))
	}

	return sb.String()
}

func (l TrackList) line(i int) string {
	t := l.Items[i]
	marker := "  "
	if t.ID == l.CurrentID {
		marker = "♪ "
	}
	body := fmt.Sprintf("%s - %s", truncate(t.Artist, 20), truncate(t.Title, 32))
	if t.DurationSeconds > 0 {
		body += "  " + FormatDuration(t.Length())
	}
	line := marker + body
	if l.ShowNumbers {
		line = fmt.Sprintf("%3d. %s", i+1, line)
	}
	return truncate(line, l.Width-2)
}

// truncate shortens s to at most maxLen runes
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if maxLen <= 0 || len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
