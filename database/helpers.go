package database

import (
	"context"
	"database/sql"
	"fmt"

	"f0oster/dbtracker/query"

	logging "github.com/ipfs/go-log/v2"
	"go.uber.org/multierr"
)

var log = logging.Logger("database")

// EnsureSchema creates the tracking table when it does not exist yet.
func (c *Catalog) EnsureSchema(ctx context.Context) error {
	tmpl, err := query.Load(c.store, CreateTrackingTable)
	if err != nil {
		return err
	}
	if _, err := tmpl.Modify(ctx, c); err != nil {
		return fmt.Errorf("create tracking table failed: %w", err)
	}
	return nil
}

// open connects with the driver of d and verifies the connection.
func open(ctx context.Context, d query.Dialect, props ConnectionProperties) (*sql.DB, error) {
	dsn, err := props.Descriptor(d)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(d.DriverName, dsn)
	if err != nil {
		return nil, err
	}
	if d.SingleConn {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to %s: %w", props.Address(), query.NewDriverError("connect", err))
	}
	return db, nil
}

func rollbackOrCommit(tx *Tx, err *error) {
	if *err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Errorw("transaction rollback failed", "error", rbErr, "cause", *err)
			*err = multierr.Append(*err, fmt.Errorf("rollback failed: %w", rbErr))
		} else {
			log.Warnw("transaction rolled back", "cause", *err)
		}
		return
	}
	if cmErr := tx.Commit(); cmErr != nil {
		*err = cmErr
		log.Errorw("transaction commit failed", "error", cmErr)
	}
}
