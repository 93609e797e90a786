package mcptools

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sandeepkv93/pickupd/internal/reminders"
	"github.com/sandeepkv93/pickupd/internal/storage"
)

type cleanupRecorder struct {
	ids []string
}

func (c *cleanupRecorder) Cleanup(_ context.Context, id string) error {
	c.ids = append(c.ids, id)
	return nil
}

func newTestServer(t *testing.T) (*Server, *reminders.Store, *cleanupRecorder) {
	t.Helper()
	repo, err := storage.OpenSQLite(storage.DriverPure, filepath.Join(t.TempDir(), "mcp.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	rec := &cleanupRecorder{}
	store, err := reminders.Open(context.Background(), repo, reminders.Options{
		Cleanup: rec,
		Clock:   func() time.Time { return time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return NewServer(store, nil), store, rec
}

func call(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (string, bool) {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	res, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content type %T", res.Content[0])
	}
	return text.Text, res.IsError
}

func TestAddAndListReminders(t *testing.T) {
	srv, store, _ := newTestServer(t)

	out, isErr := call(t, srv.handleAddReminder, map[string]any{"order_number": "42", "section": "volaille"})
	if isErr {
		t.Fatalf("add failed: %s", out)
	}
	if !strings.Contains(out, `"orderNumber": "42"`) || !strings.Contains(out, `"section": "Volaille"`) {
		t.Fatalf("unexpected add output:\n%s", out)
	}
	if len(store.List(context.Background())) != 1 {
		t.Fatal("expected reminder in store")
	}

	out, _ = call(t, srv.handleListReminders, nil)
	if !strings.Contains(out, `"orderNumber": "42"`) {
		t.Fatalf("unexpected list output:\n%s", out)
	}
}

func TestAddRequiresFields(t *testing.T) {
	srv, _, _ := newTestServer(t)
	out, isErr := call(t, srv.handleAddReminder, map[string]any{"order_number": "42"})
	if !isErr || !strings.Contains(out, "required") {
		t.Fatalf("expected validation error, got %q", out)
	}
}

func TestCompleteByOrderNumberSignalsCleanup(t *testing.T) {
	srv, store, rec := newTestServer(t)
	r, err := store.Add(context.Background(), "7", "Fromage")
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	out, isErr := call(t, srv.handleCompleteReminder, map[string]any{"ref": "7"})
	if isErr {
		t.Fatalf("complete failed: %s", out)
	}
	if !strings.Contains(out, "Order #7 in Fromage marked as picked up") {
		t.Fatalf("unexpected output %q", out)
	}
	if len(rec.ids) != 1 || rec.ids[0] != r.ID {
		t.Fatalf("expected cleanup for %s, got %v", r.ID, rec.ids)
	}

	out, _ = call(t, srv.handleListCompleted, nil)
	if !strings.Contains(out, `"orderNumber": "7"`) {
		t.Fatalf("unexpected completed output:\n%s", out)
	}
	out, _ = call(t, srv.handleListReminders, nil)
	if out != "No pending pickups." {
		t.Fatalf("expected empty list, got %q", out)
	}
}

func TestRemoveUnknownReturnsToolError(t *testing.T) {
	srv, _, rec := newTestServer(t)
	out, isErr := call(t, srv.handleRemoveReminder, map[string]any{"ref": "nope"})
	if !isErr || !strings.Contains(out, "not found") {
		t.Fatalf("expected not found error, got %q", out)
	}
	if len(rec.ids) != 0 {
		t.Fatal("unknown remove must not signal cleanup")
	}
}

func TestRemoveDoesNotRecordCompletion(t *testing.T) {
	srv, store, _ := newTestServer(t)
	if _, err := store.Add(context.Background(), "9", "Boucherie"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, isErr := call(t, srv.handleRemoveReminder, map[string]any{"ref": "9"}); isErr {
		t.Fatal("remove failed")
	}
	out, _ := call(t, srv.handleListCompleted, nil)
	if out != "Nothing picked up yet." {
		t.Fatalf("remove must not add a completion, got %q", out)
	}
}
