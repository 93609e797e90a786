package update

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/pickupd/internal/bridge"
	"github.com/sandeepkv93/pickupd/internal/model"
	"github.com/sandeepkv93/pickupd/internal/reminders"
	"github.com/sandeepkv93/pickupd/internal/scheduler"
)

func (m *Model) syncTable() {
	now := m.clock()
	rows := make([]table.Row, 0, len(m.Reminders))
	selected := -1
	for i, r := range m.Reminders {
		rows = append(rows, table.Row{
			"#" + r.OrderNumber,
			string(r.Section),
			formatAge(r.Age(now)),
			m.alertsFrom(r, now),
		})
		if r.ID == m.SelectedID {
			selected = i
		}
	}
	m.reminderTable.SetRows(rows)

	switch {
	case len(rows) == 0:
		m.SelectedID = ""
	case selected >= 0:
		m.reminderTable.SetCursor(selected)
	default:
		cursor := m.reminderTable.Cursor()
		if cursor < 0 || cursor >= len(rows) {
			cursor = len(rows) - 1
			m.reminderTable.SetCursor(cursor)
		}
		m.SelectedID = m.Reminders[cursor].ID
	}
}

func (m *Model) syncSelectionFromCursor() {
	cursor := m.reminderTable.Cursor()
	if cursor >= 0 && cursor < len(m.Reminders) {
		m.SelectedID = m.Reminders[cursor].ID
	}
}

func (m Model) selected() (model.Reminder, bool) {
	for _, r := range m.Reminders {
		if r.ID == m.SelectedID {
			return r, true
		}
	}
	return model.Reminder{}, false
}

// alertsFrom shows when the first alert can fire; once past, "due".
func (m Model) alertsFrom(r model.Reminder, now time.Time) string {
	at := r.CreatedAt.Add(m.policy.Grace)
	if !now.Before(at) {
		return "due"
	}
	return at.In(time.Local).Format("15:04")
}

func (m *Model) refreshFromStore() {
	if m.store == nil {
		return
	}
	m.Reminders = m.store.List(m.ctx)
	m.Completed = m.store.Completed(m.ctx)
	m.syncTable()
}

func (m Model) loadCmd() tea.Cmd {
	store, ctx := m.store, m.ctx
	if store == nil {
		return nil
	}
	return func() tea.Msg {
		if err := store.Reload(ctx); err != nil {
			return AppErrorMsg{Err: fmt.Errorf("reload reminders: %w", err)}
		}
		return RemindersLoadedMsg{Reminders: store.List(ctx), Completed: store.Completed(ctx)}
	}
}

func (m Model) addCmd(order, section string) tea.Cmd {
	store, ctx := m.store, m.ctx
	return func() tea.Msg {
		r, err := store.Add(ctx, order, model.Section(section))
		return mutationResult("added", fmt.Sprintf("order #%s in %s", r.OrderNumber, r.Section), err)
	}
}

func (m Model) completeCmd(r model.Reminder) tea.Cmd {
	store, ctx := m.store, m.ctx
	return func() tea.Msg {
		_, err := store.Complete(ctx, r.ID)
		return mutationResult("completed", "order #"+r.OrderNumber, err)
	}
}

func (m Model) removeCmd(r model.Reminder) tea.Cmd {
	store, ctx := m.store, m.ctx
	return func() tea.Msg {
		err := store.Remove(ctx, r.ID)
		return mutationResult("removed", "order #"+r.OrderNumber, err)
	}
}

// mutationResult separates the non-fatal persistence warning from real
// failures: with ErrPersistence the change is applied in memory.
func mutationResult(verb, subject string, err error) MutationMsg {
	msg := MutationMsg{Verb: verb, Subject: subject}
	switch {
	case err == nil:
	case errors.Is(err, reminders.ErrPersistence):
		msg.Warning = err
	default:
		msg.Err = err
	}
	return msg
}

func (m Model) usingFallback() bool {
	return !m.Connected && m.fallback != nil
}

// recheckCmd asks the daemon for a pass, or runs one locally when the
// daemon is unreachable.
func (m Model) recheckCmd(reason scheduler.Reason) tea.Cmd {
	if m.Connected && m.bridge != nil {
		ep, ctx := m.bridge, m.ctx
		return func() tea.Msg {
			return RecheckSentMsg{Endpoint: ep, Err: ep.Send(ctx, bridge.Recheck())}
		}
	}
	if m.fallback != nil {
		return m.localCheckCmd(reason)
	}
	return nil
}

func (m Model) localCheckCmd(reason scheduler.Reason) tea.Cmd {
	checker, ctx := m.fallback, m.ctx
	return func() tea.Msg {
		return CheckDoneMsg{Result: checker.Check(ctx, reason)}
	}
}

func (m Model) retryCleanupsCmd() tea.Cmd {
	store, ctx := m.store, m.ctx
	if store == nil || len(store.PendingCleanups()) == 0 {
		return nil
	}
	return func() tea.Msg {
		return CleanupRetryMsg{Pending: store.RetryCleanups(ctx)}
	}
}

func pollCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return PollTickMsg{At: t} })
}

func listenBridgeCmd(ep bridge.Endpoint) tea.Cmd {
	if ep == nil || ep.Messages() == nil {
		return nil
	}
	ch := ep.Messages()
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return BridgeClosedMsg{Endpoint: ep}
		}
		return BridgeMsg{Endpoint: ep, Message: msg}
	}
}

func (m Model) redialCmd() tea.Cmd {
	redial, ctx := m.redial, m.ctx
	return func() tea.Msg {
		ep, err := redial(ctx)
		return BridgeConnectedMsg{Endpoint: ep, Err: err}
	}
}

// staleEndpoint reports whether ep belongs to a connection that has since
// been replaced.
func (m Model) staleEndpoint(ep bridge.Endpoint) bool {
	return ep != nil && ep != m.bridge
}

func listenClicksCmd(ch <-chan string) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		id, ok := <-ch
		if !ok {
			return nil
		}
		return ClickMsg{ReminderID: id}
	}
}

// focusReminder selects the reminder a notification was clicked for. It
// never completes the order.
func (m *Model) focusReminder(id string) {
	m.refreshFromStore()
	for _, r := range m.Reminders {
		if r.ID != id {
			continue
		}
		m.Pane = PaneReminders
		m.SelectedID = id
		m.syncTable()
		m.Status = StatusBar{Text: fmt.Sprintf("order #%s in %s is waiting for pickup", r.OrderNumber, r.Section)}
		return
	}
	m.Status = StatusBar{Text: "that order is no longer pending"}
}

func formatAge(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}
