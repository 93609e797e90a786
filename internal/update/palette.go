package update

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/pickupd/internal/commands"
	"github.com/sandeepkv93/pickupd/internal/model"
	"github.com/sandeepkv93/pickupd/internal/scheduler"
)

func (m Model) handlePaletteKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.closePalette()
		m.Status = StatusBar{Text: "command palette closed"}
		return m, nil
	case "enter":
		m.Palette.Input = m.commandInput.Value()
		return m.executePaletteCommand()
	default:
		var cmd tea.Cmd
		m.commandInput, cmd = m.commandInput.Update(msg)
		m.Palette.Input = m.commandInput.Value()
		return m, cmd
	}
}

func (m *Model) closePalette() {
	m.Palette.Active = false
	m.Palette.Input = ""
	m.commandInput.SetValue("")
	m.commandInput.Blur()
}

// executePaletteCommand resolves the command against the current view and
// returns the store operation as a tea.Cmd.
func (m Model) executePaletteCommand() (Model, tea.Cmd) {
	raw := strings.TrimSpace(m.Palette.Input)
	m.closePalette()

	cmd, err := commands.Parse(raw)
	if err != nil {
		m.Status = StatusBar{Text: err.Error(), IsError: true}
		return m, nil
	}
	if m.store == nil && cmd.Type != commands.TypeRecheck {
		m.Status = StatusBar{Text: "no reminder store attached", IsError: true}
		return m, nil
	}

	var next tea.Cmd
	res, err := commands.Execute(cmd, commands.Handlers{
		Add: func(a commands.AddArgs) (commands.Result, error) {
			next = m.addCmd(a.OrderNumber, a.Section)
			return commands.Result{Message: fmt.Sprintf("adding order #%s", a.OrderNumber)}, nil
		},
		Complete: func(a commands.TargetArgs) (commands.Result, error) {
			r, err := m.store.Resolve(a.Ref)
			if err != nil {
				return commands.Result{}, err
			}
			next = m.completeCmd(r)
			return commands.Result{Message: fmt.Sprintf("completing order #%s", r.OrderNumber)}, nil
		},
		Remove: func(a commands.TargetArgs) (commands.Result, error) {
			r, err := m.store.Resolve(a.Ref)
			if err != nil {
				return commands.Result{}, err
			}
			next = m.removeCmd(r)
			return commands.Result{Message: fmt.Sprintf("removing order #%s", r.OrderNumber)}, nil
		},
		List: func() (commands.Result, error) {
			m.Pane = PaneReminders
			return commands.Result{Message: fmt.Sprintf("%d pending", len(m.Reminders))}, nil
		},
		Completed: func() (commands.Result, error) {
			m.Pane = PaneCompleted
			return commands.Result{Message: fmt.Sprintf("%d completed", len(m.Completed))}, nil
		},
		Recheck: func() (commands.Result, error) {
			next = m.recheckCmd(scheduler.ReasonMessage)
			return commands.Result{Message: "checking reminders"}, nil
		},
	})
	if err != nil {
		m.Status = StatusBar{Text: err.Error(), IsError: true}
		return m, nil
	}
	m.Status = StatusBar{Text: res.Message}
	return m, next
}

func (m Model) handleFormKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.closeForm()
		m.Status = StatusBar{Text: "add cancelled"}
		return m, nil
	case "tab", "shift+tab":
		m.Form.Field = 1 - m.Form.Field
		m.focusFormField()
		return m, nil
	case "enter":
		if m.Form.Field == 0 {
			m.Form.Field = 1
			m.focusFormField()
			return m, nil
		}
		order := strings.TrimSpace(m.orderInput.Value())
		section := strings.TrimSpace(m.sectionInput.Value())
		if order == "" || section == "" {
			m.Status = StatusBar{Text: "order number and section are both required", IsError: true}
			return m, nil
		}
		m.closeForm()
		return m, m.addCmd(order, string(model.Section(section).Canonical()))
	}

	var cmd tea.Cmd
	if m.Form.Field == 0 {
		m.orderInput, cmd = m.orderInput.Update(msg)
	} else {
		m.sectionInput, cmd = m.sectionInput.Update(msg)
	}
	return m, cmd
}

func (m *Model) openForm() {
	m.Form = FormState{Active: true}
	m.orderInput.SetValue("")
	m.sectionInput.SetValue("")
	m.focusFormField()
}

func (m *Model) closeForm() {
	m.Form = FormState{}
	m.orderInput.Blur()
	m.sectionInput.Blur()
}

func (m *Model) focusFormField() {
	if m.Form.Field == 0 {
		m.sectionInput.Blur()
		m.orderInput.Focus()
		return
	}
	m.orderInput.Blur()
	m.sectionInput.Focus()
}
