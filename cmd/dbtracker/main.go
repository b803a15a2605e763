package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"f0oster/dbtracker/config"
	"f0oster/dbtracker/database"
	"f0oster/dbtracker/session"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"
)

var log = logging.Logger("dbtracker")

func main() {
	app := &cli.App{
		Name:     "dbtracker",
		Metadata: map[string]interface{}{},
		Usage:    "Track SQL Server databases and mirror their transaction logs into a catalog",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env",
				Usage:   "env file merged into the environment before reading DBTRACK_* variables",
				EnvVars: []string{"DBTRACK_ENV_FILE"},
			},
		},
		Before: func(cctx *cli.Context) error {
			cfg, err := config.Load(cctx.String("env"))
			if err != nil {
				return err
			}
			if err := logging.SetLogLevel("*", cfg.LogLevel); err != nil {
				return fmt.Errorf("log level: %w", err)
			}
			cctx.App.Metadata["config"] = cfg
			return nil
		},
		Commands: []*cli.Command{
			initCmd,
			listCmd,
			addCmd,
			removeCmd,
			saveCmd,
			syncCmd,
			settingsCmd,
			logCmd,
			serveCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Errorw("command failed", "error", err)
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
}

func configFrom(cctx *cli.Context) config.Configuration {
	return cctx.App.Metadata["config"].(config.Configuration)
}

// openCatalog connects to the configured catalog and makes sure its
// tracking table exists.
func openCatalog(ctx context.Context, cfg config.Configuration) (*database.Catalog, error) {
	store, err := cfg.CatalogStore()
	if err != nil {
		return nil, err
	}
	cat, err := database.OpenCatalog(ctx, store, cfg.CatalogProperties())
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	if err := cat.EnsureSchema(ctx); err != nil {
		cat.Close()
		return nil, err
	}
	return cat, nil
}

// openSession returns a session loaded with every tracked database. The
// caller closes it.
func openSession(cctx *cli.Context) (*session.Session, error) {
	return newSession(cctx.Context, configFrom(cctx))
}

// newSession opens the catalog and loads it. An empty catalog leaves the
// session without entries.
func newSession(ctx context.Context, cfg config.Configuration) (*session.Session, error) {
	sources, err := cfg.SourceStore()
	if err != nil {
		return nil, err
	}
	cat, err := openCatalog(ctx, cfg)
	if err != nil {
		return nil, err
	}
	sess := session.New(cat, sources, session.WithDefaultPassword(cfg.SourcePassword))
	if err := sess.LoadCatalog(ctx); err != nil && !errors.Is(err, session.ErrEmptyCatalog) {
		sess.Close()
		return nil, err
	}
	return sess, nil
}
