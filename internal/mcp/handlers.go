package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/tabula/internal/config"
	"github.com/hpungsan/tabula/internal/errors"
	"github.com/hpungsan/tabula/internal/ops"
	"github.com/hpungsan/tabula/internal/photo"
	"github.com/hpungsan/tabula/internal/prefs"
	"github.com/hpungsan/tabula/internal/review"
)

// maxRequestIDs bounds the ids accepted by one trash_restore or trash_delete call.
const maxRequestIDs = 1000

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	machine  *review.Machine
	resolver review.ConsentResolver
	db       *sql.DB
	cfg      *config.Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(m *review.Machine, resolver review.ConsentResolver, db *sql.DB, cfg *config.Config) *Handlers {
	return &Handlers{machine: m, resolver: resolver, db: db, cfg: cfg}
}

// Request types for each tool

// MarkRequest represents the arguments for session_mark.
type MarkRequest struct {
	ID *int64 `json:"id,omitempty"`
}

// WaitRequest represents the arguments for session_refresh and library_rescan.
type WaitRequest struct {
	Wait *bool `json:"wait,omitempty"`
}

// ConfigureRequest represents the arguments for session_configure.
type ConfigureRequest struct {
	SessionSize  *int    `json:"session_size,omitempty"`
	CurationMode *string `json:"curation_mode,omitempty"`
	ThemeMode    *string `json:"theme_mode,omitempty"`
	Language     *string `json:"language,omitempty"`
}

// IDsRequest represents the arguments for trash_restore and trash_delete.
type IDsRequest struct {
	IDs []int64 `json:"ids"`
}

// ConsentRequest represents the arguments for consent_resolve.
type ConsentRequest struct {
	Handle  string `json:"handle"`
	Granted *bool  `json:"granted"`
}

// Handler implementations

// HandleSessionState handles the session_state tool call.
func (h *Handlers) HandleSessionState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.settled(ctx, nil)
}

// HandleSessionNext handles the session_next tool call.
func (h *Handlers) HandleSessionNext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.machine.ShowNext()
	return h.settled(ctx, nil)
}

// HandleSessionPrevious handles the session_previous tool call.
func (h *Handlers) HandleSessionPrevious(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.machine.ShowPrevious()
	return h.settled(ctx, nil)
}

// HandleSessionMark handles the session_mark tool call.
func (h *Handlers) HandleSessionMark(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[MarkRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	st := h.machine.Snapshot()
	var target *photo.Photo
	if input.ID == nil {
		if st.Current == nil {
			return errorResult(errors.NewInvalidRequest("no current photo to mark")), nil
		}
		target = st.Current
	} else {
		for i := range st.PhotoStack {
			if st.PhotoStack[i].ID == *input.ID {
				target = &st.PhotoStack[i]
				break
			}
		}
		if target == nil {
			return errorResult(errors.NewNotFound("photo", fmt.Sprint(*input.ID))), nil
		}
	}

	h.machine.MarkForDeletion(*target)
	return h.settled(ctx, nil)
}

// HandleSessionRefresh handles the session_refresh tool call.
func (h *Handlers) HandleSessionRefresh(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[WaitRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	h.machine.RefreshSession()
	return h.settled(ctx, loadedIf(input.Wait))
}

// HandleSessionConfigure handles the session_configure tool call.
func (h *Handlers) HandleSessionConfigure(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ConfigureRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	// Validate everything before applying anything
	var (
		mode  photo.CurationMode
		theme prefs.ThemeMode
		lang  prefs.Language
	)
	if input.CurationMode != nil {
		if mode, err = photo.ParseCurationMode(*input.CurationMode); err != nil {
			return errorResult(errors.NewInvalidRequest(err.Error())), nil
		}
	}
	if input.ThemeMode != nil {
		if theme, err = prefs.ParseTheme(*input.ThemeMode); err != nil {
			return errorResult(errors.NewInvalidRequest(err.Error())), nil
		}
	}
	if input.Language != nil {
		if lang, err = prefs.ParseLanguage(*input.Language); err != nil {
			return errorResult(errors.NewInvalidRequest(err.Error())), nil
		}
	}

	if input.SessionSize != nil {
		h.machine.UpdateSessionSize(*input.SessionSize)
	}
	if input.CurationMode != nil {
		h.machine.UpdateCurationMode(mode)
	}
	if input.ThemeMode != nil {
		h.machine.UpdateTheme(theme)
	}
	if input.Language != nil {
		h.machine.UpdateLanguage(lang)
	}

	rebuilt := input.SessionSize != nil || input.CurationMode != nil
	return h.settled(ctx, func(s review.State) bool {
		if rebuilt && s.IsLoading {
			return false
		}
		return (input.ThemeMode == nil || s.Theme == theme) &&
			(input.Language == nil || s.Language == lang)
	})
}

// HandleLibraryRescan handles the library_rescan tool call.
func (h *Handlers) HandleLibraryRescan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[WaitRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	h.machine.RescanLibrary()
	return h.settled(ctx, loadedIf(input.Wait))
}

// HandleTrashList handles the trash_list tool call.
func (h *Handlers) HandleTrashList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.machine.Flush(ctx); err != nil {
		return errorResult(errors.NewInternal(err)), nil
	}

	result, err := ops.ListTrash(ctx, h.db)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleTrashRestore handles the trash_restore tool call.
func (h *Handlers) HandleTrashRestore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	photos, errResult := h.trashPhotos(req)
	if errResult != nil {
		return errResult, nil
	}

	h.machine.RestoreSelected(photos)
	return h.settled(ctx, nil)
}

// HandleTrashDelete handles the trash_delete tool call.
func (h *Handlers) HandleTrashDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	photos, errResult := h.trashPhotos(req)
	if errResult != nil {
		return errResult, nil
	}

	h.machine.DeleteSelected(photos)
	return h.settled(ctx, deletionSettled)
}

// HandleTrashBurn handles the trash_burn tool call.
func (h *Handlers) HandleTrashBurn(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.machine.ConfirmBurn()
	return h.settled(ctx, deletionSettled)
}

// HandleConsentResolve handles the consent_resolve tool call.
func (h *Handlers) HandleConsentResolve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ConsentRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Handle == "" {
		return errorResult(errors.NewInvalidRequest("handle is required")), nil
	}
	if input.Granted == nil {
		return errorResult(errors.NewInvalidRequest("granted is required")), nil
	}

	if err := review.AnswerConsent(ctx, h.machine, h.resolver, input.Handle, *input.Granted); err != nil {
		return errorResult(err), nil
	}
	return h.settled(ctx, deletionSettled)
}

// trashPhotos resolves the requested IDs against the trash bin.
func (h *Handlers) trashPhotos(req mcp.CallToolRequest) ([]photo.Photo, *mcp.CallToolResult) {
	input, err := decode[IDsRequest](req)
	if err != nil {
		return nil, errorResult(errors.NewInvalidRequest(err.Error()))
	}
	if len(input.IDs) == 0 {
		return nil, errorResult(errors.NewInvalidRequest("ids must not be empty"))
	}
	if len(input.IDs) > maxRequestIDs {
		return nil, errorResult(errors.NewInvalidRequest(fmt.Sprintf("too many ids (max %d)", maxRequestIDs)))
	}

	bin := h.machine.Snapshot().TrashBin
	photos := make([]photo.Photo, 0, len(input.IDs))
	for _, id := range input.IDs {
		found := false
		for _, p := range bin {
			if p.ID == id {
				photos = append(photos, p)
				found = true
				break
			}
		}
		if !found {
			return nil, errorResult(errors.NewNotFound("trash entry", fmt.Sprint(id)))
		}
	}
	return photos, nil
}

// settled waits for queued operations to apply, then for pred (if any), and returns
// the resulting state.
func (h *Handlers) settled(ctx context.Context, pred func(review.State) bool) (*mcp.CallToolResult, error) {
	if err := h.machine.Sync(ctx); err != nil {
		return errorResult(err), nil
	}
	st := h.machine.Snapshot()
	if pred != nil {
		var err error
		if st, err = h.machine.Await(ctx, pred); err != nil {
			return errorResult(err), nil
		}
	}
	return successResult(st.Report())
}

func deletionSettled(s review.State) bool {
	return !s.IsDeleting && !s.IsLoading
}

// loadedIf waits for the session to load unless wait is explicitly false.
func loadedIf(wait *bool) func(review.State) bool {
	if wait != nil && !*wait {
		return nil
	}
	return func(s review.State) bool { return !s.IsLoading && !s.IsIndexing }
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var tErr *errors.TabulaError
	switch {
	case stderrors.As(err, &tErr):
		// Keep wrapper context (e.g. "ids[2]: ...") in the message
		msg := tErr.Message
		if err != error(tErr) {
			msg = err.Error()
		}
		errorObj := map[string]any{
			"code":    tErr.Code,
			"message": msg,
			"status":  tErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or SQL errors
		if tErr.Code != errors.ErrInternal && tErr.Details != nil {
			errorObj["details"] = tErr.Details
		}
		payload = map[string]any{"error": errorObj}
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		payload = map[string]any{
			"error": map[string]any{
				"code":    "CANCELLED",
				"message": err.Error(),
				"status":  499,
			},
		}
	default:
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
