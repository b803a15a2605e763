package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"f0oster/dbtracker/database"
	"f0oster/dbtracker/session"
	"f0oster/dbtracker/web"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
)

var propertyFlags = []cli.Flag{
	&cli.StringFlag{Name: "server", Usage: "server name, host or HOST\\INSTANCE"},
	&cli.StringFlag{Name: "port", Usage: "server port"},
	&cli.StringFlag{Name: "database", Usage: "database name"},
	&cli.StringFlag{Name: "user", Usage: "login name"},
	&cli.StringFlag{Name: "password", Usage: "login password, never stored in the catalog"},
}

var initCmd = &cli.Command{
	Name:  "init",
	Usage: "Create the tracking table in the catalog",
	Action: func(cctx *cli.Context) error {
		cat, err := openCatalog(cctx.Context, configFrom(cctx))
		if err != nil {
			return err
		}
		defer cat.Close()
		fmt.Println("catalog ready")
		return nil
	},
}

var listCmd = &cli.Command{
	Name:  "list",
	Usage: "List tracked databases",
	Action: func(cctx *cli.Context) error {
		sess, err := openSession(cctx)
		if err != nil {
			return err
		}
		defer sess.Close()

		tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tDB ID\tSERVER\tDATABASE\tUSER")
		for _, snap := range sess.Entries() {
			p := snap.Properties
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", snap.ID, snap.Label, p.Address(), p.Database, p.User)
		}
		return tw.Flush()
	},
}

var addCmd = &cli.Command{
	Name:  "add",
	Usage: "Start tracking a database",
	Flags: append([]cli.Flag{}, propertyFlags...),
	Action: func(cctx *cli.Context) error {
		sess, err := openSession(cctx)
		if err != nil {
			return err
		}
		defer sess.Close()

		id := sess.AddNew()
		if err := applyPropertyFlags(cctx, sess); err != nil {
			return err
		}
		outcome, err := sess.Register(cctx.Context)
		if err != nil {
			return err
		}
		if outcome == session.AlreadyTracked {
			return fmt.Errorf("%s is already tracked", cctx.String("database"))
		}
		snap, err := sess.Entry(id)
		if err != nil {
			return err
		}
		fmt.Printf("tracking %s as %s (log table %s)\n", snap.Properties.Database, snap.ID, snap.LogTable)
		return nil
	},
}

var removeCmd = &cli.Command{
	Name:      "remove",
	Usage:     "Stop tracking a database and drop its log table",
	ArgsUsage: "<id>",
	Action: func(cctx *cli.Context) error {
		return withEntry(cctx, func(sess *session.Session) error {
			return sess.Remove(cctx.Context)
		})
	},
}

var saveCmd = &cli.Command{
	Name:      "save",
	Usage:     "Change the stored connection settings of a tracked database",
	ArgsUsage: "<id>",
	Flags:     append([]cli.Flag{}, propertyFlags...),
	Action: func(cctx *cli.Context) error {
		return withEntry(cctx, func(sess *session.Session) error {
			if err := applyPropertyFlags(cctx, sess); err != nil {
				return err
			}
			return sess.SaveConfiguration(cctx.Context)
		})
	},
}

var syncCmd = &cli.Command{
	Name:      "sync",
	Usage:     "Copy new transaction log entries into the log table",
	ArgsUsage: "[id]",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "all", Usage: "sync every tracked database"},
	},
	Action: func(cctx *cli.Context) error {
		if !cctx.Bool("all") {
			return withEntry(cctx, func(sess *session.Session) error {
				return syncCurrent(cctx, sess)
			})
		}

		sess, err := openSession(cctx)
		if err != nil {
			return err
		}
		defer sess.Close()
		for _, id := range sess.IDs() {
			if err := sess.Select(id); err != nil {
				return err
			}
			if err := syncCurrent(cctx, sess); err != nil {
				return fmt.Errorf("%s: %w", id, err)
			}
		}
		return nil
	},
}

func syncCurrent(cctx *cli.Context, sess *session.Session) error {
	res, err := sess.Sync(cctx.Context)
	if errors.Is(err, database.ErrNoChanges) {
		fmt.Printf("%s: no new log entries\n", sess.Current())
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d transactions, %d records, %d rows inserted\n",
		sess.Current(), res.Transactions, res.Records, res.Inserted)
	return nil
}

var settingsCmd = &cli.Command{
	Name:      "settings",
	Usage:     "Show backup and recovery settings of a tracked database",
	ArgsUsage: "<id>",
	Action: func(cctx *cli.Context) error {
		return withEntry(cctx, func(sess *session.Session) error {
			settings, err := sess.OperationalSettings(cctx.Context)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
			for _, key := range database.Settings {
				fmt.Fprintf(tw, "%s\t%s\n", key, settings[key])
			}
			return tw.Flush()
		})
	},
}

var logCmd = &cli.Command{
	Name:      "log",
	Usage:     "Show the mirrored transactions of a tracked database",
	ArgsUsage: "<id>",
	Action: func(cctx *cli.Context) error {
		return withEntry(cctx, func(sess *session.Session) error {
			entries, err := sess.LogEntries(cctx.Context)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TRANSACTION\tNAME\tUSER\tBEGIN\tEND\tBEGIN LSN\tEND LSN")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					e.TransactionID, e.TransactionName, e.UserName, e.BeginTime, e.EndTime, e.BeginLSN, e.EndLSN)
			}
			return tw.Flush()
		})
	},
}

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "Serve the JSON API and metrics",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "addr", Usage: "listen address, overrides DBTRACK_LISTEN_ADDR"},
	},
	Action: func(cctx *cli.Context) error {
		sess, err := openSession(cctx)
		if err != nil {
			return err
		}
		defer sess.Close()

		addr := configFrom(cctx).ListenAddr
		if cctx.IsSet("addr") {
			addr = cctx.String("addr")
		}
		return web.NewServer(sess, addr).Start()
	},
}

// withEntry opens a session, makes the entry named by the first argument
// current and runs fn.
func withEntry(cctx *cli.Context, fn func(*session.Session) error) error {
	if cctx.NArg() != 1 {
		return fmt.Errorf("expected one database id, got %d arguments", cctx.NArg())
	}
	id, err := uuid.Parse(cctx.Args().First())
	if err != nil {
		return fmt.Errorf("invalid database id %q: %w", cctx.Args().First(), err)
	}

	sess, err := openSession(cctx)
	if err != nil {
		return err
	}
	defer sess.Close()
	if err := sess.Select(id); err != nil {
		return err
	}
	return fn(sess)
}

// applyPropertyFlags copies the property flags given on the command line onto
// the current entry.
func applyPropertyFlags(cctx *cli.Context, sess *session.Session) error {
	fields := []string{
		database.FieldServer,
		database.FieldPort,
		database.FieldDatabase,
		database.FieldUser,
		database.FieldPassword,
	}
	for _, field := range fields {
		if !cctx.IsSet(field) {
			continue
		}
		if err := sess.SetProperty(field, strings.TrimSpace(cctx.String(field))); err != nil {
			return err
		}
	}
	return nil
}
