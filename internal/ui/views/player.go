package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jscyril/supersonic/api"
	"github.com/jscyril/supersonic/internal/ui/components"
)

// PlayerView displays the current session
type PlayerView struct {
	Width       int
	Height      int
	Session     api.Session
	ProgressBar components.ProgressBar
	Help        string

	TitleStyle    lipgloss.Style
	ArtistStyle   lipgloss.Style
	AlbumStyle    lipgloss.Style
	StatusStyle   lipgloss.Style
	ErrorStyle    lipgloss.Style
	ControlsStyle lipgloss.Style
	BorderStyle   lipgloss.Style
}

func NewPlayerView(width, height int) PlayerView {
	return PlayerView{
		Width:       width,
		Height:      height,
		ProgressBar: components.NewProgressBar(width - 8),
		TitleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")),
		ArtistStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")),
		AlbumStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")).
			Italic(true),
		StatusStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true),
		ErrorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),
		ControlsStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginTop(1),
		BorderStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2),
	}
}

func (v *PlayerView) SetSession(s api.Session) {
	v.Session = s
	v.ProgressBar.SetSession(s)
}

func (v *PlayerView) SetWidth(w int) {
	v.Width = w
	v.ProgressBar.Width = w - 8
}

func (v PlayerView) View() string {
	var sb strings.Builder
	s := v.Session

	if s.Track == nil {
		sb.WriteString(v.TitleStyle.Render("♪ Nothing playing"))
		sb.WriteString("\n\n")
		sb.WriteString(v.ControlsStyle.Render("Pick a track in the queue or history and press Enter"))
	} else {
		t := s.Track
		sb.WriteString(v.StatusStyle.Render(statusIcon(s) + " "))
		sb.WriteString(v.TitleStyle.Render(t.Title))
		sb.WriteString("\n")
		sb.WriteString(v.ArtistStyle.Render(t.Artist))
		if t.Album != "" {
			sb.WriteString("  ")
			sb.WriteString(v.AlbumStyle.Render(t.Album))
		}
		sb.WriteString("\n\n")

		sb.WriteString(v.ProgressBar.View())
		sb.WriteString("\n\n")

		sb.WriteString(fmt.Sprintf("Volume: %s %3d%%", renderVolumeBar(s.Volume), s.Volume))
		if s.Quality != nil {
			sb.WriteString("   ")
			sb.WriteString(v.AlbumStyle.Render(s.Quality.String()))
		}
		sb.WriteString("\n")

		if modes := modeLine(s); modes != "" {
			sb.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Render(modes))
		}
		if s.Error != nil {
			sb.WriteString("\n")
			sb.WriteString(v.ErrorStyle.Render(fmt.Sprintf("%s: %s", s.Error.Kind, s.Error.Message)))
		}
	}

	if v.Help != "" {
		sb.WriteString("\n\n")
		sb.WriteString(v.ControlsStyle.Render(v.Help))
	}

	return v.BorderStyle.Width(max(v.Width-4, 20)).Render(sb.String())
}

func statusIcon(s api.Session) string {
	if s.Buffering {
		return "… buffering"
	}
	switch s.State {
	case api.StateLoading:
		return "… loading"
	case api.StatePlaying:
		return "▶"
	case api.StatePaused:
		return "⏸"
	case api.StateError:
		return "✖"
	default:
		return "⏹"
	}
}

func modeLine(s api.Session) string {
	var modes []string
	switch s.Repeat {
	case api.RepeatOne:
		modes = append(modes, "🔂 Repeat One")
	case api.RepeatAll:
		modes = append(modes, "🔁 Repeat All")
	}
	if s.Shuffle {
		modes = append(modes, "🔀 Shuffle")
	}
	return strings.Join(modes, " | ")
}

// renderVolumeBar draws level (0..100) as ten dots
func renderVolumeBar(level int) string {
	filled := min(max(level, 0), 100) / 10
	filledStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	emptyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	return filledStyle.Render(strings.Repeat("●", filled)) + emptyStyle.Render(strings.Repeat("○", 10-filled))
}
