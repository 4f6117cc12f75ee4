package views

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jscyril/supersonic/api"
	"github.com/jscyril/supersonic/internal/ui/components"
)

// TrackPane is a bordered track list with a live filter
type TrackPane struct {
	Width       int
	Height      int
	All         []api.Track
	TrackList   components.TrackList
	Filter      components.FilterInput
	Filtering   bool
	Hint        string
	BorderStyle lipgloss.Style
	HelpStyle   lipgloss.Style
}

func NewTrackPane(title string, width, height int) TrackPane {
	list := components.NewTrackList(height-8, width-6)
	list.Title = title
	return TrackPane{
		Width:     width,
		Height:    height,
		TrackList: list,
		Filter:    components.NewFilterInput(width - 10),
		BorderStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2),
		HelpStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// SetTracks replaces the content and marks currentID
func (p *TrackPane) SetTracks(tracks []api.Track, currentID string) {
	p.All = tracks
	p.TrackList.CurrentID = currentID
	p.TrackList.SetItems(p.Filter.Apply(tracks))
}

func (p *TrackPane) SetSize(width, height int) {
	p.Width = width
	p.Height = height
	p.TrackList.Width = width - 6
	p.TrackList.Height = height - 8
	p.Filter.Width = width - 10
}

// Selected returns the highlighted track or nil
func (p *TrackPane) Selected() *api.Track {
	return p.TrackList.SelectedItem()
}

// Update handles filtering and list navigation. While filtering every key
// goes to the input.
func (p TrackPane) Update(msg tea.Msg) (TrackPane, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return p, nil
	}

	if p.Filtering {
		switch key.String() {
		case "enter":
			p.Filtering = false
			p.Filter.Blur()
		case "esc":
			p.Filtering = false
			p.Filter.Blur()
			p.Filter.Clear()
			p.TrackList.SetItems(p.All)
		default:
			p.Filter, _ = p.Filter.Update(msg)
			p.TrackList.SetItems(p.Filter.Apply(p.All))
		}
		return p, nil
	}

	if key.String() == "/" {
		p.Filtering = true
		p.Filter.Focus()
		return p, nil
	}
	p.TrackList, _ = p.TrackList.Update(msg)
	return p, nil
}

func (p TrackPane) View(footer string) string {
	var sb strings.Builder

	sb.WriteString(p.Filter.View())
	sb.WriteString("\n\n")
	sb.WriteString(p.TrackList.View())

	if footer != "" {
		sb.WriteString("\n\n")
		sb.WriteString(footer)
	}

	sb.WriteString("\n\n")
	if p.Filtering {
		sb.WriteString(p.HelpStyle.Render("[Enter] Keep filter  [Esc] Clear"))
	} else {
		sb.WriteString(p.HelpStyle.Render("[/] Filter  [↑↓] Navigate  " + p.Hint))
	}

	return p.BorderStyle.Width(max(p.Width-4, 20)).Render(sb.String())
}
