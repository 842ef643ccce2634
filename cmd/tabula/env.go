package main

import (
	"context"
	"database/sql"
	"sync"

	"github.com/hpungsan/tabula/internal/config"
	"github.com/hpungsan/tabula/internal/indexer"
	"github.com/hpungsan/tabula/internal/medialib"
	"github.com/hpungsan/tabula/internal/ops"
	"github.com/hpungsan/tabula/internal/prefs"
	"github.com/hpungsan/tabula/internal/review"
)

// env holds what every command needs once the database is open.
type env struct {
	db      *sql.DB
	cfg     *config.Config
	homeDir string
}

func (e *env) roots() []string {
	return e.cfg.EffectiveLibraryRoots(e.homeDir)
}

func (e *env) library() *medialib.FSLibrary {
	return medialib.NewFSLibrary(e.roots(), e.cfg.Extensions)
}

func (e *env) gateway() *medialib.FSGateway {
	return medialib.NewFSGateway(e.roots(), e.cfg.ProtectedPaths, medialib.ConsentMode(e.cfg.ConsentMode))
}

// session is a running review machine and the collaborators it was built from.
type session struct {
	machine *review.Machine
	gateway *medialib.FSGateway
	prefs   *prefs.Store
	once    sync.Once
}

// startSession builds the review machine. It starts loading immediately.
func (e *env) startSession(skipRescan bool) (*session, error) {
	p, err := prefs.Open(context.Background(), e.db)
	if err != nil {
		return nil, err
	}

	lib := e.library()
	gw := e.gateway()
	repo := ops.NewRepository(e.db, indexer.New(e.db, lib), gw)
	m := review.New(repo, p, review.Options{Access: lib, SkipInitialRescan: skipRescan})

	return &session{machine: m, gateway: gw, prefs: p}, nil
}

// close stops the machine, flushing queued writes, then the preference watchers.
func (s *session) close() {
	s.once.Do(func() {
		s.machine.Close()
		s.prefs.Close()
	})
}
