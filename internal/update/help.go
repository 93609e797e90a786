package update

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"

	"github.com/sandeepkv93/pickupd/internal/views"
)

type KeyMap struct {
	Add      key.Binding
	Complete key.Binding
	Remove   key.Binding
	Recheck  key.Binding
	Pane     key.Binding
	Theme    key.Binding
	Palette  key.Binding
	Help     key.Binding
	Quit     key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Add:      key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add reminder")),
		Complete: key.NewBinding(key.WithKeys("enter", "c"), key.WithHelp("enter/c", "complete selected")),
		Remove:   key.NewBinding(key.WithKeys("x", "delete"), key.WithHelp("x", "remove selected")),
		Recheck:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "check now")),
		Pane:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "switch pane")),
		Theme:    key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "toggle theme")),
		Palette:  key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "command palette")),
		Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Add, k.Complete, k.Remove, k.Help, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Add, k.Complete, k.Remove, k.Recheck},
		{k.Pane, k.Theme, k.Palette, k.Help, k.Quit},
	}
}

func (m Model) renderHelpIfVisible() string {
	if !m.HelpVisible {
		return ""
	}
	var plain []string
	for _, group := range m.Keys.FullHelp() {
		for _, b := range group {
			h := b.Help()
			plain = append(plain, fmt.Sprintf("- `%s` %s", h.Key, h.Desc))
		}
	}
	plain = append(plain,
		"- `add <order> <section>` palette: add",
		"- `complete|remove <id|order>` palette: finish or drop",
	)
	hm := m.helpModel
	hm.ShowAll = true
	return views.RenderHelpPanel(views.HelpPanelData{
		Bindings: plain,
		HelpView: hm.View(m.Keys),
		Theme:    m.Theme,
	})
}
