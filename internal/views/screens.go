package views

import (
	"fmt"
	"strings"
)

type ReminderRow struct {
	ID          string
	OrderNumber string
	Section     string
	IconHint    string
	Age         string
	NextDue     string
}

type ReminderPanelData struct {
	Theme     Theme
	TableView string
	FormView  string
	FormOpen  bool
	Selected  *ReminderRow
	Empty     bool
}

type CompletedRow struct {
	OrderNumber string
	Section     string
	IconHint    string
	At          string
}

type CompletedPanelData struct {
	Theme  Theme
	Rows   []CompletedRow
	Limit  int
	Active bool
}

type HelpPanelData struct {
	Bindings []string
	HelpView string
	Theme    Theme
}

func RenderReminderPanel(data ReminderPanelData) string {
	var b strings.Builder
	b.WriteString("pending pickups:\n")
	if data.FormOpen {
		b.WriteString(data.FormView + "\n")
	} else {
		b.WriteString("actions: [a]add [enter/c]complete [x]remove [r]recheck\n")
	}
	if data.Empty {
		b.WriteString("(no pending orders)")
		return b.String()
	}
	b.WriteString(data.TableView)
	if data.Selected != nil {
		s := data.Selected
		b.WriteString("\n\nselected: order #" + s.OrderNumber + " in ")
		b.WriteString(data.Theme.SectionStyle(s.IconHint).Render(s.Section))
		b.WriteString(fmt.Sprintf("\nwaiting: %s | next alert: %s\nid: %s", s.Age, s.NextDue, s.ID))
	}
	return strings.TrimSpace(b.String())
}

func RenderCompletedPanel(data CompletedPanelData) string {
	var b strings.Builder
	marker := ""
	if data.Active {
		marker = " *"
	}
	b.WriteString(fmt.Sprintf("completed (last %d)%s:\n", data.Limit, marker))
	if len(data.Rows) == 0 {
		b.WriteString("(nothing picked up yet)")
		return b.String()
	}
	for _, row := range data.Rows {
		b.WriteString(fmt.Sprintf("%s #%s %s\n", row.At, row.OrderNumber,
			data.Theme.SectionStyle(row.IconHint).Render(row.Section)))
	}
	return strings.TrimSpace(b.String())
}

func RenderHelpPanel(data HelpPanelData) string {
	var md strings.Builder
	md.WriteString("## Keys\n\n")
	for _, line := range data.Bindings {
		md.WriteString(line + "\n")
	}
	md.WriteString("\nReminders alert once the grace period has passed and repeat until the order is completed or removed.\n")
	out := RenderMarkdown(md.String(), data.Theme)
	if data.HelpView != "" {
		out += "\n" + data.HelpView
	}
	return out
}

func RenderCommandPalette(active bool, input string) string {
	if !active {
		return ""
	}
	return fmt.Sprintf("command: /%s", input)
}

func RenderNotification(title, body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}
	return fmt.Sprintf("%s: %s", title, body)
}
