package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sandeepkv93/pickupd/internal/trigger"
)

const (
	appName     = "pickupd"
	clickAction = "default"
)

// Runner executes a command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

type DesktopOptions struct {
	GOOS     string
	Run      Runner
	LookPath func(string) (string, error)
	// ClickTimeout bounds how long an actionable notification waits for a
	// click before the helper process is killed.
	ClickTimeout time.Duration
	Logger       *zap.SugaredLogger
}

// Desktop shows notifications with notify-send on Linux and osascript on
// macOS. On Linux notifications carry a click action; clicks are reported
// through Clicks.
type Desktop struct {
	goos         string
	run          Runner
	lookPath     func(string) (string, error)
	clickTimeout time.Duration
	logger       *zap.SugaredLogger
	clicks       chan string
}

func NewDesktop(opts DesktopOptions) *Desktop {
	d := &Desktop{
		goos:         opts.GOOS,
		run:          opts.Run,
		lookPath:     opts.LookPath,
		clickTimeout: opts.ClickTimeout,
		logger:       opts.Logger,
		clicks:       make(chan string, 16),
	}
	if d.goos == "" {
		d.goos = runtime.GOOS
	}
	if d.run == nil {
		d.run = execRunner
	}
	if d.lookPath == nil {
		d.lookPath = exec.LookPath
	}
	if d.clickTimeout <= 0 {
		d.clickTimeout = 10 * time.Minute
	}
	if d.logger == nil {
		d.logger = zap.NewNop().Sugar()
	}
	return d
}

func (d *Desktop) Permission(context.Context) error {
	var bin string
	switch d.goos {
	case "linux":
		bin = "notify-send"
	case "darwin":
		bin = "osascript"
	default:
		return fmt.Errorf("%w: no desktop notifier for %s", ErrPermissionDenied, d.goos)
	}
	if _, err := d.lookPath(bin); err != nil {
		return fmt.Errorf("%w: %s not available: %v", ErrPermissionDenied, bin, err)
	}
	return nil
}

func (d *Desktop) Show(ctx context.Context, in trigger.Intent) error {
	switch d.goos {
	case "linux":
		args := notifySendArgs(in)
		// notify-send --wait blocks until the notification is closed, so the
		// click listener runs detached from the check pass.
		go d.awaitClick(in.ReminderID, args)
		return nil
	case "darwin":
		script := fmt.Sprintf(`display notification "%s" with title "%s"`,
			escapeAppleScript(in.Body), escapeAppleScript(in.Title))
		_, err := d.run(ctx, "osascript", "-e", script)
		return err
	default:
		return nil
	}
}

func (d *Desktop) awaitClick(reminderID string, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), d.clickTimeout)
	defer cancel()
	out, err := d.run(ctx, "notify-send", args...)
	if err != nil {
		if ctx.Err() == nil {
			d.logger.Warnw("notify-send failed", "reminder_id", reminderID, "error", err)
		}
		return
	}
	if strings.TrimSpace(string(out)) != clickAction {
		return
	}
	select {
	case d.clicks <- reminderID:
	default:
		d.logger.Warnw("click dropped", "reminder_id", reminderID)
	}
}

func (d *Desktop) Clicks() <-chan string {
	return d.clicks
}

// notifySendArgs replaces any earlier notification with the same dedup tag
// via the stack-tag hints understood by dunst and GNOME.
func notifySendArgs(in trigger.Intent) []string {
	return []string{
		"--app-name=" + appName,
		"--urgency=normal",
		"--icon=" + in.IconHint,
		"--hint=string:x-dunst-stack-tag:" + in.DedupTag,
		"--hint=string:x-canonical-private-synchronous:" + in.DedupTag,
		"--action=" + clickAction + "=Open",
		"--wait",
		in.Title,
		in.Body,
	}
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
