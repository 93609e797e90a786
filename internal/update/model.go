package update

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"go.uber.org/zap"

	"github.com/sandeepkv93/pickupd/internal/bridge"
	"github.com/sandeepkv93/pickupd/internal/ledger"
	"github.com/sandeepkv93/pickupd/internal/model"
	"github.com/sandeepkv93/pickupd/internal/reminders"
	"github.com/sandeepkv93/pickupd/internal/scheduler"
	"github.com/sandeepkv93/pickupd/internal/views"
)

type Pane string

const (
	PaneReminders Pane = "Reminders"
	PaneCompleted Pane = "Completed"
)

type StatusBar struct {
	Text    string
	IsError bool
}

type FormState struct {
	Active bool
	Field  int
}

type PaletteState struct {
	Active bool
	Input  string
}

// Options wires the model to the rest of the process. Bridge may be nil when
// the daemon is unreachable; Fallback then runs checks in-process on every
// poll tick, and Redial, when set, is tried on the same tick until the daemon
// answers.
type Options struct {
	Context      context.Context
	Store        *reminders.Store
	Bridge       bridge.Endpoint
	Redial       func(ctx context.Context) (bridge.Endpoint, error)
	Fallback     *scheduler.Checker
	Policy       ledger.Policy
	Clicks       <-chan string
	PollInterval time.Duration
	Theme        views.Theme
	Clock        func() time.Time
	Logger       *zap.SugaredLogger
}

type Model struct {
	Pane        Pane
	SelectedID  string
	Reminders   []model.Reminder
	Completed   []model.CompletedOrder
	Form        FormState
	Palette     PaletteState
	HelpVisible bool
	Theme       views.Theme
	Status      StatusBar
	Connected   bool
	LastAlert   string
	Keys        KeyMap
	Quitting    bool
	LastError   error

	ctx          context.Context
	store        *reminders.Store
	bridge       bridge.Endpoint
	redial       func(ctx context.Context) (bridge.Endpoint, error)
	redialing    bool
	fallback     *scheduler.Checker
	policy       ledger.Policy
	clicks       <-chan string
	pollInterval time.Duration
	clock        func() time.Time
	logger       *zap.SugaredLogger

	reminderTable table.Model
	orderInput    textinput.Model
	sectionInput  textinput.Model
	commandInput  textinput.Model
	helpModel     help.Model
}

type RemindersLoadedMsg struct {
	Reminders []model.Reminder
	Completed []model.CompletedOrder
}

type MutationMsg struct {
	Verb    string
	Subject string
	Warning error
	Err     error
}

// BridgeMsg and BridgeClosedMsg carry the endpoint they came from so that
// events from a replaced connection can be told apart. A nil Endpoint means
// the current one.
type BridgeMsg struct {
	Endpoint bridge.Endpoint
	Message  bridge.Message
}

type BridgeClosedMsg struct {
	Endpoint bridge.Endpoint
}

type BridgeConnectedMsg struct {
	Endpoint bridge.Endpoint
	Err      error
}

type ClickMsg struct {
	ReminderID string
}

type PollTickMsg struct {
	At time.Time
}

type CleanupRetryMsg struct {
	Pending int
}

type CheckDoneMsg struct {
	Result scheduler.Result
}

type RecheckSentMsg struct {
	Endpoint bridge.Endpoint
	Err      error
}

type SetStatusMsg struct {
	Text    string
	IsError bool
}

type ClearStatusMsg struct{}

type AppErrorMsg struct {
	Err error
}

func NewModel(opts Options) Model {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Policy == (ledger.Policy{}) {
		opts.Policy = ledger.DefaultPolicy()
	}
	if opts.Theme == "" {
		opts.Theme = views.ThemeDark
	}

	order := textinput.New()
	order.Placeholder = "order number"
	order.CharLimit = 32
	order.Prompt = "order> "

	section := textinput.New()
	section.Placeholder = "Boucherie | Volaille | Fromage | Boulangerie"
	section.CharLimit = 48
	section.Prompt = "section> "

	command := textinput.New()
	command.Placeholder = "complete 42"
	command.Prompt = "/"

	tbl := table.New(
		table.WithColumns([]table.Column{
			{Title: "Order", Width: 10},
			{Title: "Section", Width: 14},
			{Title: "Waiting", Width: 9},
			{Title: "Next alert", Width: 12},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	m := Model{
		Pane:          PaneReminders,
		Theme:         opts.Theme,
		Connected:     opts.Bridge != nil,
		Keys:          DefaultKeyMap(),
		ctx:           opts.Context,
		store:         opts.Store,
		bridge:        opts.Bridge,
		redial:        opts.Redial,
		fallback:      opts.Fallback,
		policy:        opts.Policy,
		clicks:        opts.Clicks,
		pollInterval:  opts.PollInterval,
		clock:         opts.Clock,
		logger:        opts.Logger,
		reminderTable: tbl,
		orderInput:    order,
		sectionInput:  section,
		commandInput:  command,
		helpModel:     help.New(),
	}
	if opts.Store != nil {
		m.Reminders = opts.Store.List(opts.Context)
		m.Completed = opts.Store.Completed(opts.Context)
	}
	m.syncTable()
	return m
}
