package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/plansync/internal/ledger"
	"github.com/starford/plansync/internal/models"
	"github.com/starford/plansync/internal/ratelimit"
	"github.com/starford/plansync/internal/reconcile"
	"github.com/starford/plansync/internal/testutil"
)

func testServer(t *testing.T) (*Server, string) {
	t.Helper()

	dir, fs := testutil.TestDirectory(t)
	clock := testutil.NewClock(2 * time.Second)
	eng, err := reconcile.New(reconcile.SyncContext{
		Ledger:  ledger.New(nil),
		Local:   fs,
		Browser: testutil.TestBrowser(t, 0),
		Limiter: ratelimit.New(ratelimit.Config{Now: clock.Now}),
		Logger:  slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
		Clock:   clock.Now,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.PullMerge(context.Background()); err != nil {
		t.Fatal(err)
	}
	return New(eng), dir
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so the handlers are
	// invoked directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "get_project":
		result, err = srv.getProject(ctx, req)
	case "list_tasks":
		result, err = srv.listTasks(ctx, req)
	case "list_files":
		result, err = srv.listFiles(ctx, req)
	case "store_file":
		result, err = srv.storeFile(ctx, req)
	case "sync_status":
		result, err = srv.syncStatus(ctx, req)
	case "sync_now":
		result, err = srv.syncNow(ctx, req)
	case "discover_files":
		result, err = srv.discoverFiles(ctx, req)
	case "export_project":
		result, err = srv.exportProject(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestGetProject(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_project", nil)
	var doc models.ProjectDocument
	if err := json.Unmarshal([]byte(resultText(r)), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.ProjectName != "我的研究课题" {
		t.Errorf("projectName = %q", doc.ProjectName)
	}
}

func TestListTasksFilter(t *testing.T) {
	srv, _ := testServer(t)
	_, _ = srv.ledger.AddTask(models.Task{Title: "a", Status: "completed"})
	_, _ = srv.ledger.AddTask(models.Task{Title: "b", Status: "pending"})

	r := callTool(t, srv, "list_tasks", map[string]any{"status": "completed"})
	var tasks []models.Task
	_ = json.Unmarshal([]byte(resultText(r)), &tasks)
	if len(tasks) != 1 || tasks[0].Title != "a" {
		t.Errorf("tasks = %+v", tasks)
	}
}

func TestStoreFileAndDiscover(t *testing.T) {
	srv, dir := testServer(t)

	r := callTool(t, srv, "store_file", map[string]any{
		"content":  base64.StdEncoding.EncodeToString([]byte("notes")),
		"filename": "../../读书笔记.txt",
	})
	if r.IsError {
		t.Fatalf("store_file: %s", resultText(r))
	}
	if _, err := os.Stat(filepath.Join(dir, "读书笔记.txt")); err != nil {
		t.Errorf("file not written: %v", err)
	}

	_ = os.WriteFile(filepath.Join(dir, "found.pdf"), []byte("%PDF"), 0o644)
	r = callTool(t, srv, "discover_files", map[string]any{"mode": "light"})
	if r.IsError {
		t.Fatalf("discover_files: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), `"adopted": 1`) {
		t.Errorf("discover result = %s", resultText(r))
	}

	r = callTool(t, srv, "list_files", map[string]any{"folder_id": "root"})
	var files []models.FileRecord
	_ = json.Unmarshal([]byte(resultText(r)), &files)
	if len(files) != 2 {
		t.Errorf("files = %d, want 2", len(files))
	}
}

func TestStoreFileDataURI(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "store_file", map[string]any{
		"content": "data:text/csv;base64," + base64.StdEncoding.EncodeToString([]byte("a,b")),
	})
	if r.IsError {
		t.Fatalf("store_file: %s", resultText(r))
	}
	var rec models.FileRecord
	_ = json.Unmarshal([]byte(resultText(r)), &rec)
	if !strings.HasSuffix(rec.Name, ".csv") || rec.Category != "data" {
		t.Errorf("record = %+v", rec)
	}
}

func TestStoreFileBadContent(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "store_file", map[string]any{"content": "%%%"})
	if !r.IsError {
		t.Error("expected error for invalid base64")
	}
}

func TestDiscoverBadMode(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "discover_files", map[string]any{"mode": "full"})
	if !r.IsError {
		t.Error("expected error for unknown mode")
	}
}

func TestSyncNowAndStatus(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "sync_now", nil)
	if r.IsError {
		t.Fatalf("sync_now: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), `"level": "saved-local"`) {
		t.Errorf("sync_now = %s", resultText(r))
	}

	r = callTool(t, srv, "sync_status", nil)
	if !strings.Contains(resultText(r), `"phase": "idle"`) {
		t.Errorf("sync_status = %s", resultText(r))
	}
}

func TestExportProject(t *testing.T) {
	srv, _ := testServer(t)
	_, _ = srv.ledger.AddTask(models.Task{Title: "a", Status: "completed"})
	r := callTool(t, srv, "export_project", nil)
	if !strings.Contains(resultText(r), `"taskCount": 1`) {
		t.Errorf("export = %s", resultText(r))
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"a.txt":         "a.txt",
		"../etc/passwd": "passwd",
		`C:\x\报告.docx`:  "报告.docx",
		".hidden":       "hidden",
		"what?.txt":     "what_.txt",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
