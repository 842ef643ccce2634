package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/tabula/internal/errors"
	"github.com/hpungsan/tabula/internal/indexer"
	"github.com/hpungsan/tabula/internal/ops"
	"github.com/hpungsan/tabula/internal/prefs"
	"github.com/hpungsan/tabula/internal/review"
	"github.com/hpungsan/tabula/internal/tui"
	"github.com/hpungsan/tabula/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(e *env) *cli.App {
	app := &cli.App{
		Name:    "tabula",
		Usage:   "Photo library decluttering",
		Version: Version,
		Commands: []*cli.Command{
			indexCmd(e),
			sessionCmd(e),
			trashCmd(e),
			statusCmd(e),
			prefsCmd(e),
			reviewCmd(e),
			serveCmd(e),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// indexCmd creates the index command.
func indexCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "index",
		Usage: "Rebuild the photo index from the library roots",
		Action: func(c *cli.Context) error {
			output, err := indexer.New(e.db, e.library()).Refresh(c.Context)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// sessionCmd creates the session command.
func sessionCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "Draw a review session and print its state",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "no-rescan", Usage: "Use the existing index instead of re-indexing first"},
			&cli.DurationFlag{Name: "timeout", Value: 2 * time.Minute, Usage: "How long to wait for the session to load"},
		},
		Action: func(c *cli.Context) error {
			sess, err := e.startSession(c.Bool("no-rescan"))
			if err != nil {
				return outputError(err)
			}
			defer sess.close()

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			st, err := sess.machine.Await(ctx, func(s review.State) bool { return !s.IsLoading })
			if err != nil {
				return outputError(errors.NewConflict("session did not finish loading: " + err.Error()))
			}
			return outputJSON(st.Report())
		},
	}
}

// trashCmd creates the trash command and its subcommands.
func trashCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "trash",
		Usage: "Inspect and manage staged photos",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List staged photos, most recently staged first",
				Action: func(c *cli.Context) error {
					output, err := ops.ListTrash(c.Context, e.db)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "restore",
				Usage:     "Unstage photos by id",
				ArgsUsage: "<id> [id...]",
				Action: func(c *cli.Context) error {
					ids, err := parseIDs(c.Args().Slice())
					if err != nil {
						return outputError(err)
					}
					output, err := ops.RemoveFromTrash(c.Context, e.db, ops.RemoveFromTrashInput{IDs: ids})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "clear",
				Usage: "Unstage every photo (files are not touched)",
				Action: func(c *cli.Context) error {
					output, err := ops.ClearTrash(c.Context, e.db)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "export",
				Usage: "Export staged photos to a JSONL manifest",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: ~/.tabula/exports/trash-<timestamp>.jsonl)"},
					&cli.BoolFlag{Name: "zstd", Aliases: []string{"z"}, Usage: "Compress the manifest with zstd (.jsonl.zst)"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.ExportTrash(c.Context, e.db, e.cfg, ops.ExportTrashInput{
						Path:     c.String("path"),
						Compress: c.Bool("zstd"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// statusCmd creates the status command.
func statusCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show index and trash counts",
		Action: func(c *cli.Context) error {
			output, err := ops.Status(c.Context, e.db)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// prefsCmd creates the prefs command and its subcommands.
func prefsCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "prefs",
		Usage: "Read and write preferences",
		Subcommands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Print one preference, or all of them",
				ArgsUsage: "[key]",
				Action: func(c *cli.Context) error {
					p, err := prefs.Open(c.Context, e.db)
					if err != nil {
						return outputError(err)
					}
					defer p.Close()

					if c.NArg() == 0 {
						return outputJSON(p.Snapshot())
					}
					key := c.Args().First()
					value, err := p.Get(key)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]string{key: value})
				},
			},
			{
				Name:      "set",
				Usage:     "Store a preference",
				ArgsUsage: "<key> <value>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 2 {
						return outputError(errors.NewInvalidRequest("usage: tabula prefs set <key> <value>"))
					}
					p, err := prefs.Open(c.Context, e.db)
					if err != nil {
						return outputError(err)
					}
					defer p.Close()

					key := c.Args().Get(0)
					if err := p.Set(c.Context, key, c.Args().Get(1)); err != nil {
						return outputError(err)
					}
					value, err := p.Get(key)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]string{key: value})
				},
			},
		},
	}
}

// reviewCmd creates the review command (terminal UI).
func reviewCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "review",
		Usage: "Review photos in the terminal",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "no-rescan", Usage: "Use the existing index instead of re-indexing first"},
		},
		Action: func(c *cli.Context) error {
			if !isTerminal() {
				return outputError(errors.NewInvalidRequest("review needs an interactive terminal"))
			}

			sess, err := e.startSession(c.Bool("no-rescan"))
			if err != nil {
				return outputError(err)
			}
			defer sess.close()

			answer := func(handle string, granted bool) error {
				return review.AnswerConsent(c.Context, sess.machine, sess.gateway, handle, granted)
			}
			if err := tui.Run(sess.machine, answer); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// serveCmd creates the serve command (web UI).
func serveCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the review UI over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Aliases: []string{"b"}, Usage: "Address to bind (default from config: 127.0.0.1)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Port to listen on (default from config: 7420)"},
			&cli.BoolFlag{Name: "no-rescan", Usage: "Use the existing index instead of re-indexing first"},
		},
		Action: func(c *cli.Context) error {
			bind := e.cfg.WebBind
			if c.IsSet("bind") {
				bind = c.String("bind")
			}
			port := e.cfg.WebPort
			if c.IsSet("port") {
				port = c.Int("port")
			}
			if port <= 0 || port > 65535 {
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("port must be between 1 and 65535, got %d", port)))
			}

			sess, err := e.startSession(c.Bool("no-rescan"))
			if err != nil {
				return outputError(err)
			}
			defer sess.close()

			srv := web.NewServer(web.Deps{
				Machine:  sess.machine,
				Resolver: sess.gateway,
				DB:       e.db,
				Roots:    e.roots(),
			}, e.cfg, Version, bind, port)
			return web.Run(srv)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var tErr *errors.TabulaError
	if stderrors.As(err, &tErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", tErr.Code, tErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// parseIDs parses photo ids given as arguments.
func parseIDs(args []string) ([]int64, error) {
	if len(args) == 0 {
		return nil, errors.NewInvalidRequest("at least one id is required")
	}
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid id %q", a))
		}
		ids = append(ids, id)
	}
	return ids, nil
}
