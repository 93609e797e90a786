package mcptools

import (
	"context"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/sandeepkv93/pickupd/internal/model"
	"github.com/sandeepkv93/pickupd/internal/reminders"
)

const (
	serverName    = "pickupd"
	serverVersion = "1.0.0"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server exposes the reminder store as MCP tools.
type Server struct {
	mcpServer *server.MCPServer
	store     *reminders.Store
	logger    *zap.SugaredLogger
}

func NewServer(store *reminders.Store, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{store: store, logger: logger}
	s.mcpServer = server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(false),
	)
	s.registerTools()
	return s
}

func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio blocks serving MCP over stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool("add_reminder",
			mcp.WithDescription("Create a pickup reminder for an order waiting at a counter"),
			mcp.WithString("order_number", mcp.Required(), mcp.Description("Order number, e.g. 42")),
			mcp.WithString("section", mcp.Required(), mcp.Description("Counter: Boucherie, Volaille, Fromage, Boulangerie or free text")),
		),
		s.handleAddReminder,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("list_reminders",
			mcp.WithDescription("List orders still waiting for pickup, oldest first"),
		),
		s.handleListReminders,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("complete_reminder",
			mcp.WithDescription("Mark an order as picked up; it moves to the completed list"),
			mcp.WithString("ref", mcp.Required(), mcp.Description("Reminder id, id prefix or order number")),
		),
		s.handleCompleteReminder,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("remove_reminder",
			mcp.WithDescription("Delete a reminder without recording a completion"),
			mcp.WithString("ref", mcp.Required(), mcp.Description("Reminder id, id prefix or order number")),
		),
		s.handleRemoveReminder,
	)

	s.mcpServer.AddTool(
		mcp.NewTool("list_completed",
			mcp.WithDescription("List the most recently picked up orders, newest first"),
		),
		s.handleListCompleted,
	)
}

func (s *Server) handleAddReminder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	order := req.GetString("order_number", "")
	section := req.GetString("section", "")
	if order == "" || section == "" {
		return mcp.NewToolResultError("order_number and section are required"), nil
	}

	r, err := s.store.Add(ctx, order, model.Section(section))
	switch {
	case errors.Is(err, reminders.ErrPersistence):
		s.logger.Warnw("reminder added but not saved", "reminder_id", r.ID, "error", err)
	case err != nil:
		return mcp.NewToolResultError(fmt.Sprintf("failed to add reminder: %v", err)), nil
	}
	return jsonResult(r)
}

func (s *Server) handleListReminders(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.store.Reload(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load reminders: %v", err)), nil
	}
	list := s.store.List(ctx)
	if len(list) == 0 {
		return mcp.NewToolResultText("No pending pickups."), nil
	}
	return jsonResult(list)
}

func (s *Server) handleCompleteReminder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, res := s.resolve(ctx, req)
	if res != nil {
		return res, nil
	}
	done, err := s.store.Complete(ctx, r.ID)
	if err != nil && !errors.Is(err, reminders.ErrPersistence) {
		return mcp.NewToolResultError(fmt.Sprintf("failed to complete reminder: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Order #%s in %s marked as picked up at %s.",
		done.OrderNumber, done.Section, done.CompletedAt.Format("15:04"))), nil
}

func (s *Server) handleRemoveReminder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, res := s.resolve(ctx, req)
	if res != nil {
		return res, nil
	}
	if err := s.store.Remove(ctx, r.ID); err != nil && !errors.Is(err, reminders.ErrPersistence) {
		return mcp.NewToolResultError(fmt.Sprintf("failed to remove reminder: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Reminder for order #%s removed.", r.OrderNumber)), nil
}

func (s *Server) handleListCompleted(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.store.Reload(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load completed orders: %v", err)), nil
	}
	list := s.store.Completed(ctx)
	if len(list) == 0 {
		return mcp.NewToolResultText("Nothing picked up yet."), nil
	}
	return jsonResult(list)
}

// resolve reloads the store so references typed elsewhere are visible, then
// maps ref to a live reminder.
func (s *Server) resolve(ctx context.Context, req mcp.CallToolRequest) (model.Reminder, *mcp.CallToolResult) {
	ref := req.GetString("ref", "")
	if ref == "" {
		return model.Reminder{}, mcp.NewToolResultError("ref is required")
	}
	if err := s.store.Reload(ctx); err != nil {
		return model.Reminder{}, mcp.NewToolResultError(fmt.Sprintf("failed to load reminders: %v", err))
	}
	r, err := s.store.Resolve(ref)
	if err != nil {
		return model.Reminder{}, mcp.NewToolResultError(err.Error())
	}
	return r, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(out)), nil
}
