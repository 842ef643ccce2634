package medialib

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/hpungsan/tabula/internal/errors"
)

// ResultKind tags a DeleteResult.
type ResultKind int

const (
	ResultSuccess ResultKind = iota
	ResultConsentRequired
	ResultFailure
)

func (k ResultKind) String() string {
	switch k {
	case ResultSuccess:
		return "success"
	case ResultConsentRequired:
		return "consent_required"
	default:
		return "failure"
	}
}

// ConsentScope is how much a consent prompt covers.
type ConsentScope string

const (
	// ScopeSingle covers one item; once granted the caller retries the request.
	ScopeSingle ConsentScope = "single"

	// ScopeBatch covers the whole request; granting it performs the deletion.
	ScopeBatch ConsentScope = "batch"
)

// ConsentRequest is an outstanding consent prompt.
type ConsentRequest struct {
	Handle string       `json:"handle"`
	Scope  ConsentScope `json:"scope"`
	URIs   []string     `json:"uris"`
}

// DeleteResult is the outcome of a delete request. Exactly one of the variants applies,
// selected by Kind. Success lists every requested URI. A failure may list the URIs
// removed before the request stopped.
type DeleteResult struct {
	Kind    ResultKind
	Deleted []string
	Consent *ConsentRequest
	Reason  string
}

// Success reports that the listed URIs were removed.
func Success(deleted []string) DeleteResult {
	return DeleteResult{Kind: ResultSuccess, Deleted: deleted}
}

// ConsentRequired reports that the user must answer req before anything is removed.
func ConsentRequired(req ConsentRequest) DeleteResult {
	return DeleteResult{Kind: ResultConsentRequired, Consent: &req}
}

// Failure reports that the request could not be carried out.
func Failure(reason string) DeleteResult {
	return DeleteResult{Kind: ResultFailure, Reason: reason}
}

// PartialFailure reports a request that stopped after removing deleted.
func PartialFailure(reason string, deleted []string) DeleteResult {
	return DeleteResult{Kind: ResultFailure, Reason: reason, Deleted: deleted}
}

// Gateway deletes library items. Consent and failure are results, never errors.
type Gateway interface {
	Delete(ctx context.Context, uris []string) DeleteResult
}

// ConsentMode selects how FSGateway asks for consent.
type ConsentMode string

const (
	ConsentDirect ConsentMode = "direct"
	ConsentBatch  ConsentMode = "batch"
)

// FSGateway deletes files under the library roots.
//
// In batch mode every request yields one batch consent prompt and deletion happens
// when it is granted. In direct mode files are removed immediately, except files under
// a protected path, which need a single-item consent first.
type FSGateway struct {
	mu        sync.Mutex
	roots     []string
	protected []string
	mode      ConsentMode
	pending   map[string]ConsentRequest
	allowed   map[string]bool

	remove func(path string) error
}

// NewFSGateway returns a gateway deleting files under roots.
func NewFSGateway(roots, protected []string, mode ConsentMode) *FSGateway {
	if mode != ConsentBatch {
		mode = ConsentDirect
	}
	return &FSGateway{
		roots:     append([]string(nil), roots...),
		protected: resolveRoots(protected),
		mode:      mode,
		pending:   make(map[string]ConsentRequest),
		allowed:   make(map[string]bool),
		remove:    os.Remove,
	}
}

// Delete implements Gateway.
func (g *FSGateway) Delete(ctx context.Context, uris []string) DeleteResult {
	if len(uris) == 0 {
		return Success(nil)
	}
	if err := ctx.Err(); err != nil {
		return Failure(err.Error())
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.mode == ConsentBatch {
		req := g.newRequestLocked(ScopeBatch, uris)
		log.Info().Str("handle", req.Handle).Int("count", len(uris)).Msg("batch delete needs consent")
		return ConsentRequired(req)
	}

	for _, uri := range uris {
		path, err := PathFromURI(uri)
		if err != nil {
			continue
		}
		if g.isProtected(path) && !g.allowed[filepath.Clean(path)] {
			req := g.newRequestLocked(ScopeSingle, []string{uri})
			log.Info().Str("handle", req.Handle).Str("uri", uri).Msg("protected item needs consent")
			return ConsentRequired(req)
		}
	}

	deleted, err := g.deleteLocked(uris)
	if err != nil {
		return PartialFailure(err.Error(), deleted)
	}
	return Success(deleted)
}

// Resolve answers an outstanding consent prompt. Granting a batch prompt removes its
// files; granting a single prompt allows that item so a retried request succeeds.
// Denying drops the prompt.
func (g *FSGateway) Resolve(ctx context.Context, handle string, granted bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	req, ok := g.pending[handle]
	if !ok {
		return errors.NewNotFound("consent", handle)
	}
	delete(g.pending, handle)

	if !granted {
		log.Info().Str("handle", handle).Msg("consent denied")
		return nil
	}

	switch req.Scope {
	case ScopeBatch:
		deleted, err := g.deleteLocked(req.URIs)
		if err != nil {
			log.Warn().Err(err).Str("handle", handle).Int("deleted", len(deleted)).Int("requested", len(req.URIs)).Msg("batch deletion stopped")
			break
		}
		log.Info().Str("handle", handle).Int("deleted", len(deleted)).Msg("batch consent granted")
	case ScopeSingle:
		for _, uri := range req.URIs {
			if path, err := PathFromURI(uri); err == nil {
				g.allowed[filepath.Clean(path)] = true
			}
		}
		log.Info().Str("handle", handle).Msg("item consent granted")
	}
	return nil
}

// Pending returns the outstanding consent prompts.
func (g *FSGateway) Pending() []ConsentRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]ConsentRequest, 0, len(g.pending))
	for _, req := range g.pending {
		out = append(out, req)
	}
	return out
}

func (g *FSGateway) newRequestLocked(scope ConsentScope, uris []string) ConsentRequest {
	entropy := ulid.Monotonic(rand.Reader, 0)
	req := ConsentRequest{
		Handle: ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String(),
		Scope:  scope,
		URIs:   append([]string(nil), uris...),
	}
	g.pending[req.Handle] = req
	return req
}

// deleteLocked removes uris in order and stops at the first one it cannot remove.
// A file that is already gone counts as removed.
func (g *FSGateway) deleteLocked(uris []string) ([]string, error) {
	deleted := make([]string, 0, len(uris))
	for _, uri := range uris {
		path, err := PathFromURI(uri)
		if err != nil {
			return deleted, err
		}
		if err := ValidateTarget(path, g.roots); err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				deleted = append(deleted, uri)
				continue
			}
			return deleted, err
		}
		if err := g.remove(path); err != nil && !os.IsNotExist(err) {
			return deleted, errors.NewDeleteFailed(fmt.Sprintf("failed to delete %s: %v", path, err), []string{uri})
		}
		delete(g.allowed, filepath.Clean(path))
		deleted = append(deleted, uri)
	}
	return deleted, nil
}

func (g *FSGateway) isProtected(path string) bool {
	if len(g.protected) == 0 {
		return false
	}
	dir, err := resolveDir(filepath.Dir(filepath.Clean(path)))
	if err != nil {
		dir = filepath.Dir(filepath.Clean(path))
	}
	return isUnderAny(dir, g.protected)
}
