// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes task notes tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/tasknotes/internal/apperr"
	"github.com/starford/tasknotes/internal/models"
	"github.com/starford/tasknotes/internal/noteservice"
)

const contractURI = "tasknotes://note-format"

// Server wraps the MCP server with task notes tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all task notes tools registered.
func New(svc *noteservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"TaskNotes",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	taskID := mcp.WithString("taskId", mcp.Required(), mcp.Description("Task identifier"))
	itemID := mcp.WithString("itemId", mcp.Required(), mcp.Description("Checklist item identifier"))

	s.mcp.AddTool(mcp.NewTool("read_task_notes",
		mcp.WithDescription("Read a task's notes: format, text content, checklist items and checksum."),
		taskID,
	), s.readTaskNotes)

	s.mcp.AddTool(mcp.NewTool("write_task_notes",
		mcp.WithDescription("Replace a task's notes. The note SHOULD follow the persisted note format "+
			"(read it via get_note_contract or the "+contractURI+" resource); any other string is "+
			"stored as a plain text note."),
		taskID,
		mcp.WithString("note", mcp.Required(), mcp.Description("Serialized note or plain text")),
		mcp.WithString("ifMatch", mcp.Description("Checksum from a previous read; the write fails if the notes changed since")),
	), s.writeTaskNotes)

	s.mcp.AddTool(mcp.NewTool("convert_task_notes",
		mcp.WithDescription("Switch a task's notes between text, list and both. Whether existing "+
			"content is carried over follows the server's preserve-content setting."),
		taskID,
		mcp.WithString("format", mcp.Required(),
			mcp.Enum(string(models.FormatText), string(models.FormatList), string(models.FormatBoth)),
			mcp.Description("Target format")),
	), s.convertTaskNotes)

	s.mcp.AddTool(mcp.NewTool("add_checklist_item",
		mcp.WithDescription("Append an item to a task's checklist. Fails for text-only notes."),
		taskID,
		mcp.WithString("text", mcp.Required(), mcp.Description("Item text (must not be blank)")),
	), s.addChecklistItem)

	s.mcp.AddTool(mcp.NewTool("toggle_checklist_item",
		mcp.WithDescription("Flip the completion state of a checklist item."),
		taskID,
		itemID,
	), s.toggleChecklistItem)

	s.mcp.AddTool(mcp.NewTool("move_checklist_item",
		mcp.WithDescription("Move a checklist item to a zero-based position. Out-of-range positions are clamped."),
		taskID,
		itemID,
		mcp.WithNumber("index", mcp.Required(), mcp.Description("Target position")),
	), s.moveChecklistItem)

	s.mcp.AddTool(mcp.NewTool("remove_checklist_item",
		mcp.WithDescription("Remove an item from a task's checklist."),
		taskID,
		itemID,
	), s.removeChecklistItem)

	s.mcp.AddTool(mcp.NewTool("search_task_notes",
		mcp.WithDescription("Search note text and checklist items across all tasks."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchTaskNotes)

	s.mcp.AddTool(mcp.NewTool("list_task_notes",
		mcp.WithDescription("List tasks that have notes, most recently updated first."),
		mcp.WithNumber("limit", mcp.Description("Page size (default 50)")),
		mcp.WithNumber("offset", mcp.Description("Page offset")),
	), s.listTaskNotes)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the persisted task note format contract. "+
			"Call this before writing notes to ensure correct structure."),
	), s.getNoteContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Note Format Contract",
			mcp.WithResourceDescription("Persisted JSON format of task notes."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) readTaskNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := req.RequireString("taskId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.Get(ctx, taskID)
	if err != nil {
		return toolError(taskID, err), nil
	}
	return jsonResult(d), nil
}

func (s *Server) writeTaskNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := req.RequireString("taskId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := req.RequireString("note")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.SaveRaw(ctx, taskID, note, req.GetString("ifMatch", ""))
	if err != nil {
		return toolError(taskID, err), nil
	}
	return jsonResult(d), nil
}

func (s *Server) convertTaskNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := req.RequireString("taskId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !models.Format(format).Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("unknown format: %s", format)), nil
	}
	d, lossy, err := s.svc.Convert(ctx, taskID, models.Format(format))
	if err != nil {
		return toolError(taskID, err), nil
	}
	return jsonResult(map[string]any{"note": d, "lossy": lossy}), nil
}

func (s *Server) addChecklistItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := req.RequireString("taskId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, item, err := s.svc.AddItem(ctx, taskID, text)
	if err != nil {
		return toolError(taskID, err), nil
	}
	if item == nil {
		return mcp.NewToolResultError("text must not be blank"), nil
	}
	return jsonResult(map[string]any{"note": d, "item": item}), nil
}

func (s *Server) toggleChecklistItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.itemTool(ctx, req, func(taskID, itemID string) (*noteservice.NoteDetail, error) {
		return s.svc.ToggleItem(ctx, taskID, itemID)
	})
}

func (s *Server) moveChecklistItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	index, err := req.RequireFloat("index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.itemTool(ctx, req, func(taskID, itemID string) (*noteservice.NoteDetail, error) {
		return s.svc.MoveItem(ctx, taskID, itemID, int(index))
	})
}

func (s *Server) removeChecklistItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.itemTool(ctx, req, func(taskID, itemID string) (*noteservice.NoteDetail, error) {
		return s.svc.RemoveItem(ctx, taskID, itemID)
	})
}

// itemTool resolves taskId and itemId, rejects unknown items, and runs fn.
func (s *Server) itemTool(ctx context.Context, req mcp.CallToolRequest, fn func(taskID, itemID string) (*noteservice.NoteDetail, error)) (*mcp.CallToolResult, error) {
	taskID, err := req.RequireString("taskId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	itemID, err := req.RequireString("itemId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	current, err := s.svc.Get(ctx, taskID)
	if err != nil {
		return toolError(taskID, err), nil
	}
	if current.Note.Format() != models.FormatText && !hasItem(current.Note, itemID) {
		return mcp.NewToolResultError(fmt.Sprintf("item not found: %s", itemID)), nil
	}
	d, err := fn(taskID, itemID)
	if err != nil {
		return toolError(taskID, err), nil
	}
	return jsonResult(d), nil
}

func (s *Server) searchTaskNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no matches found"), nil
	}
	return jsonResult(results), nil
}

func (s *Server) listTaskNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := int(req.GetFloat("limit", 50))
	offset := int(req.GetFloat("offset", 0))
	items, total, err := s.svc.List(ctx, limit, offset)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if items == nil {
		items = []noteservice.NoteListItem{}
	}
	return jsonResult(map[string]any{"notes": items, "total": total}), nil
}

func (s *Server) getNoteContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}

func hasItem(n models.Note, itemID string) bool {
	for _, it := range models.ItemsOf(n) {
		if it.ID == itemID {
			return true
		}
	}
	return false
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func toolError(taskID string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("no notes for task: %s", taskID))
	case errors.Is(err, apperr.ErrConflict):
		return mcp.NewToolResultError("notes changed since they were read; read them again and retry")
	case errors.Is(err, apperr.ErrUnsupportedFormat):
		return mcp.NewToolResultError("task notes are text only; convert them to list or both first")
	default:
		return mcp.NewToolResultError(err.Error())
	}
}
