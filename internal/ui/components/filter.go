package components

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jscyril/supersonic/api"
)

// FilterInput is a one-line text input that narrows a track list
type FilterInput struct {
	Value       []rune
	Placeholder string
	Focused     bool
	Width       int
	CursorPos   int
	Prompt      string
	Style       lipgloss.Style
	FocusStyle  lipgloss.Style
}

func NewFilterInput(width int) FilterInput {
	return FilterInput{
		Placeholder: "Filter...",
		Width:       width,
		Prompt:      "/ ",
		Style: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
		FocusStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("212")).
			Padding(0, 1),
	}
}

func (f *FilterInput) Focus() { f.Focused = true }

func (f *FilterInput) Blur() { f.Focused = false }

func (f *FilterInput) Clear() {
	f.Value = nil
	f.CursorPos = 0
}

func (f FilterInput) Query() string {
	return string(f.Value)
}

// Matches reports whether title, artist or album contain the query,
// ignoring case. An empty query matches everything.
func (f FilterInput) Matches(t api.Track) bool {
	q := strings.ToLower(strings.TrimSpace(f.Query()))
	if q == "" {
		return true
	}
	for _, field := range []string{t.Title, t.Artist, t.Album} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// Apply returns the tracks that match
func (f FilterInput) Apply(tracks []api.Track) []api.Track {
	if f.Query() == "" {
		return tracks
	}
	out := make([]api.Track, 0, len(tracks))
	for _, t := range tracks {
		if f.Matches(t) {
			out = append(out, t)
		}
	}
	return out
}

// Update edits the value while focused
func (f FilterInput) Update(msg tea.Msg) (FilterInput, tea.Cmd) {
	if !f.Focused {
		return f, nil
	}

	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return f, nil
	}
	switch key.Type {
	case tea.KeyBackspace:
		if f.CursorPos > 0 {
			f.Value = append(f.Value[:f.CursorPos-1:f.CursorPos-1], f.Value[f.CursorPos:]...)
			f.CursorPos--
		}
	case tea.KeyDelete:
		if f.CursorPos < len(f.Value) {
			f.Value = append(f.Value[:f.CursorPos:f.CursorPos], f.Value[f.CursorPos+1:]...)
		}
	case tea.KeyLeft:
		f.CursorPos = max(f.CursorPos-1, 0)
	case tea.KeyRight:
		f.CursorPos = min(f.CursorPos+1, len(f.Value))
	case tea.KeyHome:
		f.CursorPos = 0
	case tea.KeyEnd:
		f.CursorPos = len(f.Value)
	case tea.KeyRunes, tea.KeySpace:
		in := key.Runes
		if key.Type == tea.KeySpace {
			in = []rune{' '}
		}
		v := make([]rune, 0, len(f.Value)+len(in))
		v = append(v, f.Value[:f.CursorPos]...)
		v = append(v, in...)
		f.Value = append(v, f.Value[f.CursorPos:]...)
		f.CursorPos += len(in)
	}
	return f, nil
}

func (f FilterInput) View() string {
	var content string
	switch {
	case len(f.Value) == 0 && !f.Focused:
		content = f.Prompt + lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Render(f.Placeholder)
	case f.Focused:
		cursor := lipgloss.NewStyle().Background(lipgloss.Color("212")).Render(" ")
		content = f.Prompt + string(f.Value[:f.CursorPos]) + cursor + string(f.Value[f.CursorPos:])
	default:
		content = f.Prompt + f.Query()
	}

	if f.Focused {
		return f.FocusStyle.Width(f.Width).Render(content)
	}
	return f.Style.Width(f.Width).Render(content)
}
