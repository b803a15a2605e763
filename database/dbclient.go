package database

import (
	"context"
	"database/sql"
	"fmt"

	"f0oster/dbtracker/query"

	"github.com/google/uuid"
)

// CatalogConn is anything catalog statements can be prepared on: the
// catalog itself or one of its transactions.
type CatalogConn interface {
	query.Preparer
	Templates() *query.Store
}

// Catalog is the connection to the central catalog database holding the
// tracking table and one log table per tracked database.
type Catalog struct {
	db    *sql.DB
	store *query.Store
	props ConnectionProperties
}

// OpenCatalog connects to the catalog described by props using the dialect
// of store.
func OpenCatalog(ctx context.Context, store *query.Store, props ConnectionProperties) (*Catalog, error) {
	db, err := open(ctx, store.Dialect(), props)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	log.Infow("connected to catalog", "dialect", store.Dialect().Name, "address", props.Address())
	return &Catalog{db: db, store: store, props: props}, nil
}

func (c *Catalog) PrepareContext(ctx context.Context, text string) (*sql.Stmt, error) {
	return c.db.PrepareContext(ctx, text)
}

func (c *Catalog) Templates() *query.Store {
	return c.store
}

func (c *Catalog) Dialect() query.Dialect {
	return c.store.Dialect()
}

// ListTrackedDatabases returns every tracking record in catalog order.
func (c *Catalog) ListTrackedDatabases(ctx context.Context) ([]TrackingRecord, error) {
	tmpl, err := query.Load(c.store, ListOfTrackedDatabases)
	if err != nil {
		return nil, err
	}
	rs, err := tmpl.Select(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("list tracked databases query failed: %w", err)
	}

	records := make([]TrackingRecord, 0, rs.Len())
	for _, row := range rs.Rows {
		id, err := uuid.Parse(row.String("ID"))
		if err != nil {
			return nil, fmt.Errorf("tracking record has invalid id %q: %w", row.String("ID"), err)
		}
		dbID, ok := row.Int64("DatabaseID")
		if !ok {
			return nil, fmt.Errorf("tracking record %s has no database id", id)
		}
		records = append(records, TrackingRecord{
			ID:           id,
			ServerName:   row.String("ServerName"),
			Port:         row.String("Port"),
			DatabaseID:   int(dbID),
			DatabaseName: row.String("DatabaseName"),
			UserName:     row.String("UserName"),
		})
	}
	return records, nil
}

// BeginTx starts a catalog transaction.
func (c *Catalog) BeginTx(ctx context.Context) (*Tx, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction failed: %w", err)
	}
	return &Tx{tx: tx, store: c.store}, nil
}

// WithTx runs fn inside one catalog transaction. It commits when fn returns
// nil and rolls back otherwise.
func (c *Catalog) WithTx(ctx context.Context, fn func(tx *Tx) error) (err error) {
	tx, err := c.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer rollbackOrCommit(tx, &err)

	return fn(tx)
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// Tx is an open catalog transaction.
type Tx struct {
	tx    *sql.Tx
	store *query.Store
}

func (t *Tx) PrepareContext(ctx context.Context, text string) (*sql.Stmt, error) {
	return t.tx.PrepareContext(ctx, text)
}

func (t *Tx) Templates() *query.Store {
	return t.store
}

func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction failed: %w", err)
	}
	return nil
}

// Rollback returns sql.ErrTxDone if the transaction already finished.
func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}
