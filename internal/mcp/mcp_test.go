package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/tabula/internal/config"
	"github.com/hpungsan/tabula/internal/db"
	"github.com/hpungsan/tabula/internal/errors"
	"github.com/hpungsan/tabula/internal/indexer"
	"github.com/hpungsan/tabula/internal/medialib"
	"github.com/hpungsan/tabula/internal/ops"
	"github.com/hpungsan/tabula/internal/prefs"
	"github.com/hpungsan/tabula/internal/review"
)

type testEnv struct {
	db      *sql.DB
	cfg     *config.Config
	machine *review.Machine
	gateway *medialib.FSGateway
	root    string
	h       *Handlers
}

// testSetup indexes a temporary library of n photos and starts a review session over it.
func testSetup(t *testing.T, n int, mode medialib.ConsentMode) *testEnv {
	t.Helper()

	tmpDir := t.TempDir()
	database, err := db.Init(filepath.Join(tmpDir, "home"))
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	root := filepath.Join(tmpDir, "Pictures")
	if err := os.MkdirAll(root, 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	for i := range n {
		name := filepath.Join(root, fmt.Sprintf("img_%02d.jpg", i))
		if err := os.WriteFile(name, []byte("not really an image"), 0644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	p, err := prefs.Open(context.Background(), database)
	if err != nil {
		t.Fatalf("prefs.Open failed: %v", err)
	}
	t.Cleanup(p.Close)

	cfg := config.DefaultConfig()
	lib := medialib.NewFSLibrary([]string{root}, cfg.Extensions)
	gw := medialib.NewFSGateway([]string{root}, nil, mode)
	repo := ops.NewRepository(database, indexer.New(database, lib), gw)
	m := review.New(repo, p, review.Options{Access: lib})
	t.Cleanup(m.Close)

	env := &testEnv{db: database, cfg: cfg, machine: m, gateway: gw, root: root}
	env.h = NewHandlers(m, gw, database, cfg)

	ctx := context.Background()
	if _, err := m.Await(ctx, func(s review.State) bool { return !s.IsLoading }); err != nil {
		t.Fatalf("session did not load: %v", err)
	}
	return env
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

type stateOutput struct {
	Phase          string                   `json:"phase"`
	CurrentIndex   int                      `json:"current_index"`
	TotalCount     int                      `json:"total_count"`
	Marked         int                      `json:"session_marked_count"`
	PhotoStack     []map[string]any         `json:"photo_stack"`
	TrashBin       []map[string]any         `json:"trash_bin"`
	Current        map[string]any           `json:"current"`
	SessionSize    int                      `json:"session_size"`
	CurationMode   string                   `json:"curation_mode"`
	Theme          string                   `json:"theme_mode"`
	PendingConsent *medialib.ConsentRequest `json:"pending_consent"`
}

func callState(t *testing.T, handler ToolHandlerFunc, args map[string]any) stateOutput {
	t.Helper()
	result, err := handler(context.Background(), makeRequest(args))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var out stateOutput
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &out); err != nil {
		t.Fatalf("failed to unmarshal state: %v", err)
	}
	return out
}

func idOf(t *testing.T, p map[string]any) int64 {
	t.Helper()
	id, ok := p["id"].(float64)
	if !ok {
		t.Fatalf("photo has no numeric id: %v", p)
	}
	return int64(id)
}

func TestHandleSessionState(t *testing.T) {
	env := testSetup(t, 3, medialib.ConsentDirect)

	out := callState(t, env.h.HandleSessionState, nil)
	if out.Phase != "active" {
		t.Errorf("phase = %q, want active", out.Phase)
	}
	if out.TotalCount != 3 || out.CurrentIndex != 1 || out.Current == nil {
		t.Errorf("state = total %d, index %d, current %v", out.TotalCount, out.CurrentIndex, out.Current)
	}
}

func TestHandleSessionNavigation(t *testing.T) {
	env := testSetup(t, 2, medialib.ConsentDirect)

	out := callState(t, env.h.HandleSessionPrevious, nil)
	if out.CurrentIndex != 1 {
		t.Errorf("previous at first photo: index = %d", out.CurrentIndex)
	}
	out = callState(t, env.h.HandleSessionNext, nil)
	if out.CurrentIndex != 2 {
		t.Errorf("next: index = %d, want 2", out.CurrentIndex)
	}
	out = callState(t, env.h.HandleSessionNext, nil)
	if out.Phase != "complete" || out.Current != nil {
		t.Errorf("past the end: phase = %q, current = %v", out.Phase, out.Current)
	}
}

func TestHandleSessionMark(t *testing.T) {
	env := testSetup(t, 3, medialib.ConsentDirect)
	ctx := context.Background()

	tests := []struct {
		name      string
		args      map[string]any
		wantError bool
		errorCode string
	}{
		{
			name:      "mark current",
			args:      nil,
			wantError: false,
		},
		{
			name:      "mark unknown id",
			args:      map[string]any{"id": 424242},
			wantError: true,
			errorCode: "NOT_FOUND",
		},
		{
			name:      "mark with bad id type",
			args:      map[string]any{"id": "seven"},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := env.h.HandleSessionMark(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if tt.wantError {
				if !result.IsError {
					t.Errorf("expected error result, got success")
				}
				if tt.errorCode != "" {
					assertErrorCode(t, result, tt.errorCode)
				}
			} else if result.IsError {
				t.Errorf("expected success, got error: %v", extractErrorMessage(result))
			}
		})
	}

	out := callState(t, env.h.HandleSessionState, nil)
	if len(out.TrashBin) != 1 || len(out.PhotoStack) != 2 || out.Marked != 1 {
		t.Fatalf("after mark: trash %d, stack %d, marked %d", len(out.TrashBin), len(out.PhotoStack), out.Marked)
	}

	// by explicit id
	id := idOf(t, out.PhotoStack[1])
	out = callState(t, env.h.HandleSessionMark, map[string]any{"id": id})
	if len(out.TrashBin) != 2 || len(out.PhotoStack) != 1 {
		t.Errorf("after mark by id: trash %d, stack %d", len(out.TrashBin), len(out.PhotoStack))
	}
}

func TestHandleTrashRestoreAndList(t *testing.T) {
	env := testSetup(t, 3, medialib.ConsentDirect)
	ctx := context.Background()

	out := callState(t, env.h.HandleSessionMark, nil)
	id := idOf(t, out.TrashBin[0])

	result, err := env.h.HandleTrashList(ctx, makeRequest(nil))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	listed := parseOutput(t, result)
	if listed["count"].(float64) != 1 {
		t.Fatalf("trash_list count = %v, want 1", listed["count"])
	}

	result, _ = env.h.HandleTrashRestore(ctx, makeRequest(map[string]any{"ids": []any{}}))
	assertErrorCode(t, result, "INVALID_REQUEST")
	result, _ = env.h.HandleTrashRestore(ctx, makeRequest(map[string]any{"ids": []any{999}}))
	assertErrorCode(t, result, "NOT_FOUND")

	out = callState(t, env.h.HandleTrashRestore, map[string]any{"ids": []any{id}})
	if len(out.TrashBin) != 0 || out.Phase != "complete" {
		t.Errorf("after restore: trash %d, phase %q", len(out.TrashBin), out.Phase)
	}

	result, _ = env.h.HandleTrashList(ctx, makeRequest(nil))
	if listed := parseOutput(t, result); listed["count"].(float64) != 0 {
		t.Errorf("trash_list count after restore = %v, want 0", listed["count"])
	}
}

func TestHandleTrashDelete_Direct(t *testing.T) {
	env := testSetup(t, 3, medialib.ConsentDirect)

	out := callState(t, env.h.HandleSessionMark, nil)
	target := out.TrashBin[0]

	out = callState(t, env.h.HandleTrashDelete, map[string]any{"ids": []any{idOf(t, target)}})
	if len(out.TrashBin) != 0 || out.PendingConsent != nil {
		t.Errorf("after delete: trash %d, consent %v", len(out.TrashBin), out.PendingConsent)
	}

	path, err := medialib.PathFromURI(target["uri"].(string))
	if err != nil {
		t.Fatalf("PathFromURI failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file still exists after delete: %v", err)
	}
}

func TestHandleTrashBurn_BatchConsent(t *testing.T) {
	env := testSetup(t, 3, medialib.ConsentBatch)
	ctx := context.Background()

	callState(t, env.h.HandleSessionMark, nil)
	out := callState(t, env.h.HandleSessionMark, nil)
	if len(out.TrashBin) != 2 {
		t.Fatalf("trash = %d, want 2", len(out.TrashBin))
	}

	out = callState(t, env.h.HandleTrashBurn, nil)
	if out.Phase != "awaiting_consent" || out.PendingConsent == nil {
		t.Fatalf("burn: phase %q, consent %v", out.Phase, out.PendingConsent)
	}
	if out.PendingConsent.Scope != medialib.ScopeBatch || len(out.PendingConsent.URIs) != 2 {
		t.Errorf("consent = %+v", out.PendingConsent)
	}

	result, _ := env.h.HandleConsentResolve(ctx, makeRequest(map[string]any{"handle": "nope", "granted": true}))
	assertErrorCode(t, result, "NOT_FOUND")
	result, _ = env.h.HandleConsentResolve(ctx, makeRequest(map[string]any{"handle": out.PendingConsent.Handle}))
	assertErrorCode(t, result, "INVALID_REQUEST")

	out = callState(t, env.h.HandleConsentResolve, map[string]any{"handle": out.PendingConsent.Handle, "granted": true})
	if len(out.TrashBin) != 0 || out.PendingConsent != nil {
		t.Errorf("after grant: trash %d, consent %v", len(out.TrashBin), out.PendingConsent)
	}
	if out.TotalCount != 1 {
		t.Errorf("new session after burn has %d photos, want 1", out.TotalCount)
	}

	entries, err := os.ReadDir(env.root)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("library has %d files after burn, want 1", len(entries))
	}
}

func TestHandleTrashDelete_ConsentDenied(t *testing.T) {
	env := testSetup(t, 2, medialib.ConsentBatch)

	out := callState(t, env.h.HandleSessionMark, nil)
	out = callState(t, env.h.HandleTrashDelete, map[string]any{"ids": []any{idOf(t, out.TrashBin[0])}})
	if out.PendingConsent == nil {
		t.Fatal("expected a pending consent")
	}

	out = callState(t, env.h.HandleConsentResolve, map[string]any{"handle": out.PendingConsent.Handle, "granted": false})
	if len(out.TrashBin) != 1 || out.PendingConsent != nil {
		t.Errorf("after denial: trash %d, consent %v", len(out.TrashBin), out.PendingConsent)
	}
	entries, _ := os.ReadDir(env.root)
	if len(entries) != 2 {
		t.Errorf("denial deleted files: %d left", len(entries))
	}
}

func TestHandleSessionConfigure(t *testing.T) {
	env := testSetup(t, 8, medialib.ConsentDirect)
	ctx := context.Background()

	out := callState(t, env.h.HandleSessionConfigure, map[string]any{
		"session_size":  1,
		"curation_mode": "random",
		"theme_mode":    "LIGHT",
	})
	if out.SessionSize != prefs.MinSessionSize || out.TotalCount != prefs.MinSessionSize {
		t.Errorf("session size = %d, total = %d; want %d", out.SessionSize, out.TotalCount, prefs.MinSessionSize)
	}
	if out.CurationMode != "RANDOM" || out.Theme != "LIGHT" {
		t.Errorf("mode = %q, theme = %q", out.CurationMode, out.Theme)
	}

	result, _ := env.h.HandleSessionConfigure(ctx, makeRequest(map[string]any{"curation_mode": "SHUFFLE"}))
	assertErrorCode(t, result, "INVALID_REQUEST")
	result, _ = env.h.HandleSessionConfigure(ctx, makeRequest(map[string]any{"language": "FR", "session_size": 20}))
	assertErrorCode(t, result, "INVALID_REQUEST")
	if st := env.machine.Snapshot(); st.SessionSize != prefs.MinSessionSize {
		t.Errorf("rejected configure applied session size %d", st.SessionSize)
	}
}

func TestHandleLibraryRescan(t *testing.T) {
	env := testSetup(t, 2, medialib.ConsentDirect)

	if err := os.WriteFile(filepath.Join(env.root, "new.jpg"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	out := callState(t, env.h.HandleLibraryRescan, map[string]any{"wait": true})
	if out.TotalCount != 3 {
		t.Errorf("total after rescan = %d, want 3", out.TotalCount)
	}

	out = callState(t, env.h.HandleSessionRefresh, nil)
	if out.Phase != "active" || out.TotalCount != 3 {
		t.Errorf("refresh: phase %q, total %d", out.Phase, out.TotalCount)
	}
}

func TestServerRegistration(t *testing.T) {
	env := testSetup(t, 1, medialib.ConsentDirect)

	s := NewServer(env.machine, env.gateway, env.db, env.cfg, "test")
	tools := s.ListTools()
	if tools == nil {
		t.Fatal("expected tools to be registered, got nil")
	}

	expectedTools := []string{
		"session_state",
		"session_next",
		"session_previous",
		"session_mark",
		"session_refresh",
		"session_configure",
		"library_rescan",
		"trash_list",
		"trash_restore",
		"trash_delete",
		"trash_burn",
		"consent_resolve",
	}

	if len(tools) != len(expectedTools) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expectedTools))
	}

	for _, name := range expectedTools {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	env := testSetup(t, 1, medialib.ConsentDirect)

	env.cfg.DisabledTools = []string{"trash_burn", "trash_delete", "trash_delete"}
	s := NewServer(env.machine, env.gateway, env.db, env.cfg, "test")
	tools := s.ListTools()

	if len(tools) != 10 {
		t.Errorf("registered tool count = %d, want 10", len(tools))
	}
	for _, name := range []string{"trash_burn", "trash_delete"} {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %q should not be registered", name)
		}
	}
}

func TestServerRegistration_WithDisabledTypes(t *testing.T) {
	env := testSetup(t, 1, medialib.ConsentDirect)

	env.cfg.DisabledTypes = []string{"trash", "consent"}
	env.cfg.DisabledTools = []string{"library_rescan"}
	s := NewServer(env.machine, env.gateway, env.db, env.cfg, "test")
	tools := s.ListTools()

	if len(tools) != 6 {
		t.Errorf("registered tool count = %d, want 6 (session tools only)", len(tools))
	}
	for name := range tools {
		if GetTypeForTool(name) != "session" {
			t.Errorf("unexpected tool registered: %s", name)
		}
	}
}

func TestServerRegistration_AllToolsDisabled(t *testing.T) {
	env := testSetup(t, 1, medialib.ConsentDirect)

	env.cfg.DisabledTools = AllToolNames()
	s := NewServer(env.machine, env.gateway, env.db, env.cfg, "test")
	if tools := s.ListTools(); len(tools) != 0 {
		t.Errorf("registered tool count = %d, want 0 (all disabled)", len(tools))
	}
}

func TestValidateDisabledTools(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantLen int
	}{
		{name: "all valid", input: []string{"trash_burn", "session_mark"}, wantLen: 0},
		{name: "one unknown", input: []string{"trash_burn", "album_create"}, wantLen: 1},
		{name: "all unknown", input: []string{"foo", "bar", "baz"}, wantLen: 3},
		{name: "empty list", input: []string{}, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unknown := ValidateDisabledTools(tt.input)
			if len(unknown) != tt.wantLen {
				t.Errorf("ValidateDisabledTools() returned %d unknown, want %d", len(unknown), tt.wantLen)
			}
		})
	}
}

func TestValidateDisabledTypes(t *testing.T) {
	if unknown := ValidateDisabledTypes([]string{"trash", "album"}); len(unknown) != 1 || unknown[0] != "album" {
		t.Errorf("ValidateDisabledTypes() = %v, want [album]", unknown)
	}
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()
	if len(names) != 12 {
		t.Errorf("AllToolNames() returned %d names, want 12", len(names))
	}
	if unknown := ValidateDisabledTools(names); len(unknown) != 0 {
		t.Errorf("AllToolNames() returned invalid names: %v", unknown)
	}
	for _, name := range names {
		typ := GetTypeForTool(name)
		if len(ValidateDisabledTypes([]string{typ})) != 0 {
			t.Errorf("tool %s has unknown type %q", name, typ)
		}
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(errors.NewInternal(fmt.Errorf("sql error: open /tmp/secret.db: permission denied")))
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(r.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj := payload["error"].(map[string]any)

	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
}

func TestErrorResult_WrappedErrorPreservesContext(t *testing.T) {
	wrappedErr := fmt.Errorf("ids[2]: %w", errors.NewNotFound("trash entry", "9"))

	r := errorResult(wrappedErr)
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(r.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj := payload["error"].(map[string]any)

	if errObj["code"] != string(errors.ErrNotFound) {
		t.Errorf("code=%v, want %v", errObj["code"], errors.ErrNotFound)
	}
	if msg := errObj["message"].(string); !strings.Contains(msg, "ids[2]") {
		t.Errorf("message should contain wrapper context 'ids[2]', got: %s", msg)
	}
	if _, ok := errObj["details"]; !ok {
		t.Error("expected non-INTERNAL errors to include details when present")
	}
}

func TestErrorResult_PlainErrorIsInternal(t *testing.T) {
	r := errorResult(fmt.Errorf("boom"))
	assertErrorCode(t, r, "INTERNAL")
	if strings.Contains(extractErrorMessage(r), "boom") {
		t.Error("plain error text should not leak")
	}
}

// Helper functions

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()

	if result == nil || len(result.Content) == 0 {
		t.Errorf("no content in error result")
		return
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Errorf("content is not TextContent")
		return
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		t.Errorf("failed to unmarshal error payload: %v", err)
		return
	}

	errorObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Errorf("no error object in payload")
		return
	}

	code, ok := errorObj["code"].(string)
	if !ok {
		t.Errorf("no code in error object")
		return
	}

	if code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}

	return text.Text
}
