package views

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

func ParseTheme(s string) Theme {
	if strings.EqualFold(strings.TrimSpace(s), string(ThemeLight)) {
		return ThemeLight
	}
	return ThemeDark
}

func (t Theme) Toggle() Theme {
	if t == ThemeLight {
		return ThemeDark
	}
	return ThemeLight
}

type palette struct {
	header  lipgloss.Color
	status  lipgloss.Color
	err     lipgloss.Color
	muted   lipgloss.Color
	border  lipgloss.Color
	accent  lipgloss.Color
	section map[string]lipgloss.Color
}

var palettes = map[Theme]palette{
	ThemeDark: {
		header: lipgloss.Color("12"),
		status: lipgloss.Color("10"),
		err:    lipgloss.Color("9"),
		muted:  lipgloss.Color("8"),
		border: lipgloss.Color("240"),
		accent: lipgloss.Color("14"),
		section: map[string]lipgloss.Color{
			"boucherie":   lipgloss.Color("203"),
			"volaille":    lipgloss.Color("221"),
			"fromage":     lipgloss.Color("229"),
			"boulangerie": lipgloss.Color("180"),
		},
	},
	ThemeLight: {
		header: lipgloss.Color("26"),
		status: lipgloss.Color("28"),
		err:    lipgloss.Color("160"),
		muted:  lipgloss.Color("244"),
		border: lipgloss.Color("250"),
		accent: lipgloss.Color("31"),
		section: map[string]lipgloss.Color{
			"boucherie":   lipgloss.Color("124"),
			"volaille":    lipgloss.Color("130"),
			"fromage":     lipgloss.Color("136"),
			"boulangerie": lipgloss.Color("94"),
		},
	},
}

func (t Theme) palette() palette {
	if p, ok := palettes[t]; ok {
		return p
	}
	return palettes[ThemeDark]
}

// SectionStyle colours a section label. Unknown sections use the muted tone.
func (t Theme) SectionStyle(iconHint string) lipgloss.Style {
	p := t.palette()
	if c, ok := p.section[iconHint]; ok {
		return lipgloss.NewStyle().Foreground(c).Bold(true)
	}
	return lipgloss.NewStyle().Foreground(p.muted)
}

type AppData struct {
	Theme        Theme
	Header       string
	LeftPane     string
	RightPane    string
	StatusLine   string
	StatusError  bool
	Footer       string
	Notification string
}

func RenderApp(data AppData) string {
	p := data.Theme.palette()
	panel := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(p.border).Padding(0, 1)

	left := panel.Width(58).Render(data.LeftPane)
	right := panel.Width(46).Render(data.RightPane)
	row := lipgloss.JoinHorizontal(lipgloss.Top, left, right)

	status := lipgloss.NewStyle().Foreground(p.status).Render(data.StatusLine)
	if data.StatusError {
		status = lipgloss.NewStyle().Foreground(p.err).Render(data.StatusLine)
	}

	lines := []string{
		lipgloss.NewStyle().Bold(true).Foreground(p.header).Render(data.Header),
		row,
		status,
	}
	if data.Notification != "" {
		lines = append(lines, panel.BorderForeground(p.accent).Render(data.Notification))
	}
	if data.Footer != "" {
		lines = append(lines, lipgloss.NewStyle().Foreground(p.muted).Render(data.Footer))
	}
	return strings.Join(lines, "\n")
}

func RenderMarkdown(md string, theme Theme) string {
	if strings.TrimSpace(md) == "" {
		return ""
	}
	out, err := glamour.Render(md, string(theme))
	if err != nil {
		return md
	}
	return strings.TrimSpace(out)
}
