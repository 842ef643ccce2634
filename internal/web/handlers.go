package web

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hpungsan/tabula/internal/config"
	"github.com/hpungsan/tabula/internal/db"
	"github.com/hpungsan/tabula/internal/errors"
	"github.com/hpungsan/tabula/internal/medialib"
	"github.com/hpungsan/tabula/internal/photo"
	"github.com/hpungsan/tabula/internal/prefs"
	"github.com/hpungsan/tabula/internal/review"
)

// settleTimeout bounds how long a mutation waits for the session to settle
// before answering with whatever state it has reached.
const settleTimeout = 30 * time.Second

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	machine  *review.Machine
	resolver review.ConsentResolver
	db       *sql.DB
	cfg      *config.Config
	roots    []string
	renderer *Renderer
}

// HandleReview handles GET /review — the card stack.
func (h *Handlers) HandleReview(w http.ResponseWriter, r *http.Request) {
	st := h.machine.Snapshot()
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, st.Report())
		return
	}

	h.renderer.renderPage(w, r, "review", ReviewPageData{
		PageData: h.page("Review", "review"),
		State:    st,
		Phase:    st.Phase().String(),
	})
}

// HandleTrash handles GET /trash — the staged trash grouped by month.
func (h *Handlers) HandleTrash(w http.ResponseWriter, r *http.Request) {
	st := h.machine.Snapshot()
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{
			"items":           st.TrashBin,
			"count":           len(st.TrashBin),
			"pending_consent": st.PendingConsent,
		})
		return
	}

	h.renderer.renderPage(w, r, "trash", TrashPageData{
		PageData: h.page("Trash", "trash"),
		State:    st,
		Groups:   groupByMonth(st.TrashBin),
	})
}

// HandleSettings handles GET /settings.
func (h *Handlers) HandleSettings(w http.ResponseWriter, r *http.Request) {
	st := h.machine.Snapshot()
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, settingsJSON(st))
		return
	}
	h.renderSettings(w, r, st, parseBoolParam(r, "saved"))
}

// HandleAbout handles GET /about.
func (h *Handlers) HandleAbout(w http.ResponseWriter, r *http.Request) {
	h.renderer.renderPage(w, r, "about", AboutPageData{
		PageData:     h.page("About", "about"),
		RenderedHTML: h.renderer.about,
	})
}

// HandlePhoto handles GET /photos/{id} — serves the image file of an indexed photo.
func (h *Handlers) HandlePhoto(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("photo ID must be an integer"))
		return
	}

	p, err := db.GetPhoto(r.Context(), h.db, id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	path, err := medialib.PathFromURI(p.URI)
	if err != nil {
		h.renderer.renderError(w, r, errors.NewNotFound("photo", p.URI))
		return
	}
	if err := medialib.ValidateTarget(path, h.roots); err != nil {
		h.renderer.renderError(w, r, errors.NewNotFound("photo", p.URI))
		return
	}

	f, err := os.Open(path)
	if err != nil {
		h.renderer.renderError(w, r, errors.NewNotFound("photo", p.URI))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInternal(err))
		return
	}
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// HandleNext handles POST /review/next.
func (h *Handlers) HandleNext(w http.ResponseWriter, r *http.Request) {
	h.machine.ShowNext()
	h.respond(w, r, "/review", nil)
}

// HandlePrevious handles POST /review/previous.
func (h *Handlers) HandlePrevious(w http.ResponseWriter, r *http.Request) {
	h.machine.ShowPrevious()
	h.respond(w, r, "/review", nil)
}

// HandleMark handles POST /review/mark — stage the current photo, or the one named by id.
func (h *Handlers) HandleMark(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	st := h.machine.Snapshot()
	var target *photo.Photo
	if raw := r.FormValue("id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.renderer.renderError(w, r, errors.NewInvalidRequest("id must be an integer"))
			return
		}
		for i := range st.PhotoStack {
			if st.PhotoStack[i].ID == id {
				target = &st.PhotoStack[i]
				break
			}
		}
		if target == nil {
			h.renderer.renderError(w, r, errors.NewNotFound("photo", raw))
			return
		}
	} else {
		if st.Current == nil {
			h.renderer.renderError(w, r, errors.NewInvalidRequest("no current photo to mark"))
			return
		}
		target = st.Current
	}

	h.machine.MarkForDeletion(*target)
	h.respond(w, r, "/review", nil)
}

// HandleRefresh handles POST /review/refresh.
func (h *Handlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	h.machine.RefreshSession()
	h.respond(w, r, "/review", loaded)
}

// HandleRescan handles POST /review/rescan.
func (h *Handlers) HandleRescan(w http.ResponseWriter, r *http.Request) {
	h.machine.RescanLibrary()
	h.respond(w, r, "/review", loaded)
}

// HandleRestore handles POST /trash/restore.
func (h *Handlers) HandleRestore(w http.ResponseWriter, r *http.Request) {
	photos, err := h.trashSelection(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.machine.RestoreSelected(photos)
	h.respond(w, r, "/trash", nil)
}

// HandleDelete handles POST /trash/delete.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	photos, err := h.trashSelection(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.machine.DeleteSelected(photos)
	h.respond(w, r, "/trash", deletionSettled)
}

// HandleBurn handles POST /trash/burn — delete the whole trash bin.
func (h *Handlers) HandleBurn(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}
	if r.FormValue("confirm") != "true" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("confirm parameter must be \"true\""))
		return
	}

	h.machine.ConfirmBurn()
	h.respond(w, r, "/trash", deletionSettled)
}

// HandleConsent handles POST /consent/{handle} — answer the pending deletion consent.
func (h *Handlers) HandleConsent(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	granted, err := strconv.ParseBool(r.FormValue("granted"))
	if err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("granted must be true or false"))
		return
	}

	if err := review.AnswerConsent(r.Context(), h.machine, h.resolver, chi.URLParam(r, "handle"), granted); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.respond(w, r, "/trash", deletionSettled)
}

// HandleSaveSettings handles POST /settings.
func (h *Handlers) HandleSaveSettings(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	st := h.machine.Snapshot()

	// Validate everything before applying anything
	var (
		size  = st.SessionSize
		mode  = st.CurationMode
		theme = st.Theme
		lang  = st.Language
		err   error
	)
	if v := r.FormValue("session_size"); v != "" {
		if size, err = strconv.Atoi(v); err != nil {
			h.renderer.renderError(w, r, errors.NewInvalidRequest("session_size must be an integer"))
			return
		}
		size = prefs.ClampSessionSize(size)
	}
	if v := r.FormValue("curation_mode"); v != "" {
		if mode, err = photo.ParseCurationMode(v); err != nil {
			h.renderer.renderError(w, r, errors.NewInvalidRequest(err.Error()))
			return
		}
	}
	if v := r.FormValue("theme_mode"); v != "" {
		if theme, err = prefs.ParseTheme(v); err != nil {
			h.renderer.renderError(w, r, errors.NewInvalidRequest(err.Error()))
			return
		}
	}
	if v := r.FormValue("language"); v != "" {
		if lang, err = prefs.ParseLanguage(v); err != nil {
			h.renderer.renderError(w, r, errors.NewInvalidRequest(err.Error()))
			return
		}
	}

	if size != st.SessionSize {
		h.machine.UpdateSessionSize(size)
	}
	if mode != st.CurationMode {
		h.machine.UpdateCurationMode(mode)
	}
	if theme != st.Theme {
		h.machine.UpdateTheme(theme)
	}
	if lang != st.Language {
		h.machine.UpdateLanguage(lang)
	}
	if parseBoolParam(r, "onboarding_completed") && !st.OnboardingCompleted {
		h.machine.CompleteOnboarding()
	}

	h.respond(w, r, "/settings?saved=true", func(s review.State) bool {
		return !s.IsLoading && s.Theme == theme && s.Language == lang
	})
}

// respond waits for the session to settle, then answers with the state as JSON or
// redirects back to the page the form came from.
func (h *Handlers) respond(w http.ResponseWriter, r *http.Request, redirect string, pred func(review.State) bool) {
	ctx, cancel := context.WithTimeout(r.Context(), settleTimeout)
	defer cancel()

	if err := h.machine.Sync(ctx); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	st := h.machine.Snapshot()
	if pred != nil {
		if settled, err := h.machine.Await(ctx, pred); err == nil {
			st = settled
		}
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, st.Report())
		return
	}

	// HTMX request: redirect via HX-Redirect header
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", redirect)
		w.WriteHeader(http.StatusOK)
		return
	}

	http.Redirect(w, r, redirect, http.StatusSeeOther)
}

// trashSelection resolves the submitted id values against the trash bin.
func (h *Handlers) trashSelection(r *http.Request) ([]photo.Photo, error) {
	if err := r.ParseForm(); err != nil {
		return nil, errors.NewInvalidRequest("invalid form data")
	}

	raw := r.Form["id"]
	if len(raw) == 0 {
		return nil, errors.NewInvalidRequest("select at least one photo")
	}

	bin := h.machine.Snapshot().TrashBin
	photos := make([]photo.Photo, 0, len(raw))
	for i, v := range raw {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("id[%d] must be an integer", i))
		}
		found := false
		for _, p := range bin {
			if p.ID == id {
				photos = append(photos, p)
				found = true
				break
			}
		}
		if !found {
			return nil, errors.NewNotFound("trash entry", v)
		}
	}
	return photos, nil
}

func (h *Handlers) renderSettings(w http.ResponseWriter, r *http.Request, st review.State, saved bool) {
	h.renderer.renderPage(w, r, "settings", SettingsPageData{
		PageData:  h.page("Settings", "settings"),
		State:     st,
		Themes:    []string{string(prefs.ThemeLight), string(prefs.ThemeDark), string(prefs.ThemeSystem)},
		Languages: []string{string(prefs.LanguageEN), string(prefs.LanguageCN)},
		Modes:     []string{string(photo.CurationRandom), string(photo.CurationBurst)},
		MinSize:   prefs.MinSessionSize,
		MaxSize:   prefs.MaxSessionSize,
		Saved:     saved,
	})
}

func (h *Handlers) page(title, nav string) PageData {
	return PageData{Title: title, Version: h.renderer.version, Nav: nav}
}

func settingsJSON(st review.State) map[string]any {
	return map[string]any{
		prefs.KeyTheme:               st.Theme,
		prefs.KeyLanguage:            st.Language,
		prefs.KeySessionSize:         st.SessionSize,
		prefs.KeyCurationMode:        st.CurationMode,
		prefs.KeyOnboardingCompleted: st.OnboardingCompleted,
	}
}

func loaded(s review.State) bool {
	return !s.IsLoading && !s.IsIndexing
}

func deletionSettled(s review.State) bool {
	return !s.IsDeleting && !s.IsLoading
}

// parseBoolParam parses a boolean query or form parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := r.FormValue(name)
	return s == "true" || s == "1"
}
