// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes project and sync tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/plansync/internal/ledger"
	"github.com/starford/plansync/internal/reconcile"
)

// Server wraps the MCP server with plansync tools.
type Server struct {
	mcp    *server.MCPServer
	eng    *reconcile.Engine
	ledger *ledger.Ledger
}

// New creates a new MCP server with all tools registered.
func New(eng *reconcile.Engine) *Server {
	s := &Server{eng: eng, ledger: eng.Ledger()}

	s.mcp = server.NewMCPServer(
		"plansync",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_project",
		mcp.WithDescription("Return the whole project document as JSON. "+
			"Read the plansync://document-format resource for the field meanings."),
	), s.getProject)

	s.mcp.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List project tasks, optionally filtered by status."),
		mcp.WithString("status", mcp.Description("Optional status filter"), mcp.Enum("pending", "in-progress", "completed")),
	), s.listTasks)

	s.mcp.AddTool(mcp.NewTool("list_files",
		mcp.WithDescription("List project files with their sync state."),
		mcp.WithString("folder_id", mcp.Description("Optional folder id; \"root\" for files outside any folder")),
	), s.listFiles)

	s.mcp.AddTool(mcp.NewTool("store_file",
		mcp.WithDescription("Add a file to the project. The bytes go to the granted directory, "+
			"or stay pending until the next deep discovery pass."),
		mcp.WithString("content", mcp.Required(), mcp.Description("base64 content or a data: URI")),
		mcp.WithString("filename", mcp.Description("File name; derived from the data URI type when empty")),
		mcp.WithString("folder_id", mcp.Description("Optional target folder id")),
	), s.storeFile)

	s.mcp.AddTool(mcp.NewTool("sync_status",
		mcp.WithDescription("Report the sync engine status: phase, last save outcome, reconnect flag and rate-limit cursor."),
	), s.syncStatus)

	s.mcp.AddTool(mcp.NewTool("sync_now",
		mcp.WithDescription("Save now: persist locally and push to the remote store when possible."),
	), s.syncNow)

	s.mcp.AddTool(mcp.NewTool("discover_files",
		mcp.WithDescription("Reconcile the project with the granted directory."),
		mcp.WithString("mode", mcp.Description("light (files) or deep (also folders and pending bytes)"), mcp.Enum("light", "deep")),
	), s.discoverFiles)

	s.mcp.AddTool(mcp.NewTool("export_project",
		mcp.WithDescription("Export the project with progress counters, as the export download does."),
	), s.exportProject)

	// Resource: document format.
	s.mcp.AddResource(
		mcp.NewResource("plansync://document-format", "Project Document Format",
			mcp.WithResourceDescription("Fields of the project document and their meaning."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readDocumentFormatResource,
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

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func optionalString(req mcp.CallToolRequest, key string) string {
	if v, err := req.RequireString(key); err == nil {
		return v
	}
	return ""
}

func (s *Server) getProject(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.ledger.Snapshot())
}

func (s *Server) listTasks(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := optionalString(req, "status")
	tasks := s.ledger.Tasks()
	if status != "" {
		out := tasks[:0]
		for _, t := range tasks {
			if t.Status == status {
				out = append(out, t)
			}
		}
		tasks = out
	}
	return jsonResult(tasks)
}

func (s *Server) listFiles(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder := optionalString(req, "folder_id")
	files := s.ledger.Files()
	if folder != "" {
		out := files[:0]
		for _, f := range files {
			if (folder == "root" && f.FolderID == nil) || (f.FolderID != nil && string(*f.FolderID) == folder) {
				out = append(out, f)
			}
		}
		files = out
	}
	return jsonResult(files)
}

func (s *Server) syncStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.eng.Status())
}

func (s *Server) syncNow(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := s.eng.Save(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("save failed: %v", err)), nil
	}
	return jsonResult(out)
}

func (s *Server) discoverFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mode, err := reconcile.ParseMode(optionalString(req, "mode"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rep, err := s.eng.Discover(ctx, mode)
	if err != nil {
		if rep.ReconnectRequired {
			return mcp.NewToolResultError("directory permission lost, reconnect required"), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rep)
}

func (s *Server) exportProject(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.eng.Export())
}

func (s *Server) readDocumentFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "plansync://document-format",
			MIMEType: "text/markdown",
			Text:     DocumentFormat,
		},
	}, nil
}
