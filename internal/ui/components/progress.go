package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/jscyril/supersonic/api"
)

// ProgressBar renders position against duration
type ProgressBar struct {
	Width       int
	Current     time.Duration
	Total       time.Duration
	Buffering   bool
	BarChar     string
	EmptyChar   string
	ShowTime    bool
	Style       lipgloss.Style
	FilledStyle lipgloss.Style
	EmptyStyle  lipgloss.Style
	WaitStyle   lipgloss.Style
}

func NewProgressBar(width int) ProgressBar {
	return ProgressBar{
		Width:       width,
		BarChar:     "█",
		EmptyChar:   "░",
		ShowTime:    true,
		Style:       lipgloss.NewStyle(),
		FilledStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("212")),
		EmptyStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		WaitStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	}
}

// SetSession copies position, duration and the buffering overlay from s
func (p *ProgressBar) SetSession(s api.Session) {
	p.Current = s.Position
	p.Total = s.Duration
	p.Buffering = s.Buffering
}

// Fraction is the filled share of the bar, clamped to [0, 1]
func (p ProgressBar) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	return min(max(float64(p.Current)/float64(p.Total), 0), 1)
}

func (p ProgressBar) View() string {
	var sb strings.Builder

	// leave room for the time display
	barWidth := max(p.Width-16, 10)
	filled := int(float64(barWidth) * p.Fraction())

	fill := p.FilledStyle
	if p.Buffering {
		fill = p.WaitStyle
	}
	sb.WriteString(fill.Render(strings.Repeat(p.BarChar, filled)))
	sb.WriteString(p.EmptyStyle.Render(strings.Repeat(p.EmptyChar, barWidth-filled)))

	if p.ShowTime {
		sb.WriteString(" ")
		sb.WriteString(FormatDuration(p.Current))
		sb.WriteString("/")
		sb.WriteString(FormatDuration(p.Total))
	}

	return p.Style.Render(sb.String())
}

// FormatDuration renders d as M:SS, or H:MM:SS past an hour
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
