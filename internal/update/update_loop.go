package update

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/pickupd/internal/bridge"
	"github.com/sandeepkv93/pickupd/internal/model"
	"github.com/sandeepkv93/pickupd/internal/reminders"
	"github.com/sandeepkv93/pickupd/internal/scheduler"
	"github.com/sandeepkv93/pickupd/internal/trigger"
	"github.com/sandeepkv93/pickupd/internal/views"
)

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.loadCmd(),
		m.recheckCmd(scheduler.ReasonStartup),
		pollCmd(m.pollInterval),
		listenClicksCmd(m.clicks),
	}
	if m.bridge != nil {
		cmds = append(cmds, listenBridgeCmd(m.bridge))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(typed)

	case tea.FocusMsg:
		// Terminal regained focus: the user is looking again.
		return m, m.recheckCmd(scheduler.ReasonMessage)

	case RemindersLoadedMsg:
		m.Reminders = typed.Reminders
		m.Completed = typed.Completed
		m.syncTable()
		return m, nil

	case MutationMsg:
		m.refreshFromStore()
		switch {
		case typed.Err != nil:
			m.LastError = typed.Err
			m.Status = StatusBar{Text: describeStoreError(typed.Err), IsError: true}
			return m, nil
		case typed.Warning != nil:
			m.Status = StatusBar{Text: fmt.Sprintf("%s %s, but saving failed; will retry", typed.Verb, typed.Subject), IsError: true}
		default:
			m.Status = StatusBar{Text: fmt.Sprintf("%s %s", typed.Verb, typed.Subject)}
		}
		if typed.Verb == "added" {
			return m, m.recheckCmd(scheduler.ReasonMessage)
		}
		return m, nil

	case BridgeMsg:
		if m.staleEndpoint(typed.Endpoint) {
			return m, nil
		}
		var next tea.Cmd
		if m.bridge != nil {
			next = listenBridgeCmd(m.bridge)
		}
		if typed.Message.Type == bridge.TypeFocus {
			m.focusReminder(typed.Message.ReminderID)
		}
		return m, next

	case BridgeConnectedMsg:
		m.redialing = false
		if typed.Err != nil || typed.Endpoint == nil {
			m.logger.Debugw("daemon still unreachable", "error", typed.Err)
			return m, nil
		}
		m.bridge = typed.Endpoint
		m.Connected = true
		if m.store != nil {
			m.store.SetCleanupSignaler(bridge.Signaler{Endpoint: m.bridge})
		}
		m.Status = StatusBar{Text: "daemon connected; reminders are checked in the background"}
		return m, tea.Batch(
			listenBridgeCmd(m.bridge),
			m.recheckCmd(scheduler.ReasonMessage),
			m.retryCleanupsCmd(),
		)

	case BridgeClosedMsg:
		if m.staleEndpoint(typed.Endpoint) {
			return m, nil
		}
		m.Connected = false
		if m.fallback != nil {
			if m.store != nil {
				m.store.SetCleanupSignaler(m.fallback)
			}
			m.Status = StatusBar{Text: "daemon disconnected; checking reminders in this window", IsError: true}
			return m, m.localCheckCmd(scheduler.ReasonStartup)
		}
		m.Status = StatusBar{Text: "daemon disconnected", IsError: true}
		return m, nil

	case ClickMsg:
		m.focusReminder(typed.ReminderID)
		return m, listenClicksCmd(m.clicks)

	case PollTickMsg:
		cmds := []tea.Cmd{pollCmd(m.pollInterval), m.loadCmd(), m.retryCleanupsCmd()}
		if m.usingFallback() {
			cmds = append(cmds, m.localCheckCmd(scheduler.ReasonPoll))
		}
		if !m.Connected && m.redial != nil && !m.redialing {
			m.redialing = true
			cmds = append(cmds, m.redialCmd())
		}
		return m, tea.Batch(cmds...)

	case CheckDoneMsg:
		if n := len(typed.Result.Intents); n > 0 {
			m.LastAlert = describeIntents(typed.Result.Intents)
		}
		if typed.Result.Err != nil {
			m.Status = StatusBar{Text: "check failed: " + typed.Result.Err.Error(), IsError: true}
		}
		return m, nil

	case RecheckSentMsg:
		if typed.Err != nil && !errors.Is(typed.Err, bridge.ErrDropped) {
			m.logger.Warnw("recheck not delivered", "error", typed.Err)
			if errors.Is(typed.Err, bridge.ErrClosed) {
				return m.Update(BridgeClosedMsg{Endpoint: typed.Endpoint})
			}
		}
		return m, nil

	case CleanupRetryMsg:
		if typed.Pending > 0 {
			m.logger.Infow("cleanup signals still pending", "count", typed.Pending)
		}
		return m, nil

	case SetStatusMsg:
		m.Status = StatusBar{Text: typed.Text, IsError: typed.IsError}
		return m, nil

	case ClearStatusMsg:
		m.Status = StatusBar{}
		return m, nil

	case AppErrorMsg:
		m.LastError = typed.Err
		if typed.Err != nil {
			m.Status = StatusBar{Text: typed.Err.Error(), IsError: true}
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.Quitting = true
		return m, tea.Quit
	}
	if m.Palette.Active {
		return m.handlePaletteKey(msg)
	}
	if m.Form.Active {
		return m.handleFormKey(msg)
	}

	switch {
	case key.Matches(msg, m.Keys.Quit):
		m.Quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.Keys.Help):
		m.HelpVisible = !m.HelpVisible
		return m, nil
	case key.Matches(msg, m.Keys.Theme):
		m.Theme = m.Theme.Toggle()
		m.Status = StatusBar{Text: fmt.Sprintf("theme: %s", m.Theme)}
		return m, nil
	case key.Matches(msg, m.Keys.Pane):
		if m.Pane == PaneReminders {
			m.Pane = PaneCompleted
		} else {
			m.Pane = PaneReminders
		}
		return m, nil
	case key.Matches(msg, m.Keys.Palette):
		m.Palette.Active = true
		m.commandInput.SetValue("")
		m.commandInput.Focus()
		m.Status = StatusBar{Text: "command palette active"}
		return m, nil
	case key.Matches(msg, m.Keys.Recheck):
		m.Status = StatusBar{Text: "checking reminders"}
		return m, m.recheckCmd(scheduler.ReasonMessage)
	case key.Matches(msg, m.Keys.Add):
		if m.store == nil {
			return m, nil
		}
		m.openForm()
		return m, nil
	}

	if m.Pane != PaneReminders || m.store == nil {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.Keys.Complete):
		if r, ok := m.selected(); ok {
			return m, m.completeCmd(r)
		}
		return m, nil
	case key.Matches(msg, m.Keys.Remove):
		if r, ok := m.selected(); ok {
			return m, m.removeCmd(r)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.reminderTable, cmd = m.reminderTable.Update(msg)
	m.syncSelectionFromCursor()
	return m, cmd
}

func (m Model) View() string {
	status := m.Status.Text
	if status != "" {
		status = "status: " + status
	}

	rows := make([]views.CompletedRow, 0, len(m.Completed))
	for _, c := range m.Completed {
		rows = append(rows, views.CompletedRow{
			OrderNumber: c.OrderNumber,
			Section:     string(c.Section),
			IconHint:    trigger.IconHint(c.Section),
			At:          c.CompletedClock(time.Local),
		})
	}
	limit := reminders.DefaultCompletedLimit
	if m.store != nil {
		limit = m.store.CompletedLimit()
	}
	right := views.RenderCompletedPanel(views.CompletedPanelData{
		Theme:  m.Theme,
		Rows:   rows,
		Limit:  limit,
		Active: m.Pane == PaneCompleted,
	})
	if m.Palette.Active {
		right = views.RenderCommandPalette(true, m.commandInput.Value()) + "\n\n" + right
	}
	if help := m.renderHelpIfVisible(); help != "" {
		right += "\n\n" + help
	}

	mode := "daemon"
	if !m.Connected {
		mode = "local"
	}
	return views.RenderApp(views.AppData{
		Theme:        m.Theme,
		Header:       fmt.Sprintf("pickupd | %d pending | checks: %s", len(m.Reminders), mode),
		LeftPane:     m.renderReminderPanel(),
		RightPane:    right,
		StatusLine:   status,
		StatusError:  m.Status.IsError,
		Notification: views.RenderNotification("last alert", m.LastAlert),
		Footer:       m.helpModel.ShortHelpView(m.Keys.ShortHelp()),
	})
}

func (m Model) renderReminderPanel() string {
	data := views.ReminderPanelData{
		Theme:     m.Theme,
		TableView: m.reminderTable.View(),
		FormOpen:  m.Form.Active,
		FormView:  m.orderInput.View() + "\n" + m.sectionInput.View(),
		Empty:     len(m.Reminders) == 0,
	}
	if r, ok := m.selected(); ok {
		data.Selected = &views.ReminderRow{
			ID:          r.ID,
			OrderNumber: r.OrderNumber,
			Section:     string(r.Section),
			IconHint:    trigger.IconHint(r.Section),
			Age:         formatAge(r.Age(m.clock())),
			NextDue:     m.alertsFrom(r, m.clock()),
		}
	}
	return views.RenderReminderPanel(data)
}

func describeStoreError(err error) string {
	switch {
	case errors.Is(err, reminders.ErrNotFound):
		return "that order is no longer pending"
	case errors.Is(err, reminders.ErrAmbiguous):
		return "more than one order matches; use the id"
	case errors.Is(err, model.ErrInvalidReminder):
		return "order number and section are required"
	default:
		return err.Error()
	}
}

func describeIntents(in []trigger.Intent) string {
	parts := make([]string, 0, len(in))
	for _, i := range in {
		parts = append(parts, i.Body)
	}
	return strings.Join(parts, "; ")
}
