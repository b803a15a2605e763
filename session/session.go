// Package session orchestrates the tracked databases of one catalog: the
// ordered entries, the current entry and the multi-step workflows that must
// run inside a single catalog transaction.
package session

import (
	"context"
	"errors"
	"fmt"

	"f0oster/dbtracker/database"
	"f0oster/dbtracker/diff"
	"f0oster/dbtracker/metrics"
	"f0oster/dbtracker/query"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"go.uber.org/multierr"
)

var log = logging.Logger("session")

// Session owns the catalog connection and the tracked databases. It is not
// safe for concurrent use; callers serialize access.
type Session struct {
	catalog         *database.Catalog
	sources         *query.Store
	defaultPassword string

	entries []*database.TrackedDatabase
	current uuid.UUID
}

type Option func(*Session)

// WithDefaultPassword sets the password used to connect to tracked databases
// whose properties carry none. Passwords are not stored in the catalog, so
// entries loaded from it start without one.
func WithDefaultPassword(password string) Option {
	return func(s *Session) {
		s.defaultPassword = password
	}
}

// New returns an empty session over catalog. sources resolves the statements
// run against tracked databases.
func New(catalog *database.Catalog, sources *query.Store, opts ...Option) *Session {
	s := &Session{catalog: catalog, sources: sources}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadCatalog replaces the entries with one per tracking record, in catalog
// order. The first becomes current.
func (s *Session) LoadCatalog(ctx context.Context) error {
	records, err := s.catalog.ListTrackedDatabases(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	if err := s.closeEntries(); err != nil {
		log.Warnw("closing previous entries failed", "error", err)
	}
	s.entries = nil
	s.current = uuid.Nil

	for _, rec := range records {
		s.entries = append(s.entries, database.RestoreTrackedDatabase(s.sources, rec))
	}
	metrics.Measures.TrackedDatabases.Set(float64(len(s.entries)))

	if len(s.entries) == 0 {
		return ErrEmptyCatalog
	}
	s.current = s.entries[0].ID()
	log.Infow("loaded catalog", "entries", len(s.entries))
	return nil
}

// AddNew appends an unregistered entry with default properties and makes it
// current.
func (s *Session) AddNew() uuid.UUID {
	tdb := database.NewTrackedDatabase(s.sources, database.NewConnectionProperties())
	s.entries = append(s.entries, tdb)
	s.current = tdb.ID()
	metrics.Measures.TrackedDatabases.Set(float64(len(s.entries)))
	return tdb.ID()
}

// Remove discards the current entry. A tracked entry first loses its log
// table and tracking record inside one catalog transaction; if that fails the
// entry stays. Afterwards the first remaining entry, if any, is current.
func (s *Session) Remove(ctx context.Context) error {
	idx, tdb, err := s.currentEntry()
	if err != nil {
		return err
	}

	if tdb.Registered() {
		err := s.catalog.WithTx(ctx, func(tx *database.Tx) error {
			// the log table references the tracking record
			if err := tdb.DropLogTable(ctx, tx); err != nil {
				return err
			}
			return tdb.UnregisterTracking(ctx, tx)
		})
		if err != nil {
			return fmt.Errorf("remove %s: %w", tdb.ID(), err)
		}
	}

	if err := tdb.Close(); err != nil {
		log.Warnw("closing removed connection failed", "connection", tdb.ConnectionName(), "error", err)
	}
	s.entries = append(s.entries[:idx], s.entries[idx+1:]...)

	s.current = uuid.Nil
	if len(s.entries) > 0 {
		s.current = s.entries[0].ID()
	}
	metrics.Measures.TrackedDatabases.Set(float64(len(s.entries)))
	log.Infow("removed entry", "id", tdb.ID(), "registered", tdb.Registered())
	return nil
}

// Navigate moves the current entry. Moving past either end leaves current
// unchanged and returns a LogicError wrapping ErrBoundary.
func (s *Session) Navigate(dir Direction) (uuid.UUID, error) {
	idx, _, err := s.currentEntry()
	if err != nil {
		return uuid.Nil, err
	}

	target := idx
	switch dir {
	case First:
		target = 0
	case Previous:
		target = idx - 1
	case Next:
		target = idx + 1
	case Last:
		target = len(s.entries) - 1
	default:
		return s.current, fmt.Errorf("navigate: unknown direction %v", dir)
	}

	if target < 0 || target >= len(s.entries) {
		return s.current, &database.LogicError{Op: "navigate " + dir.String(), Err: ErrBoundary}
	}
	s.current = s.entries[target].ID()
	return s.current, nil
}

// Select makes the entry with the given id current.
func (s *Session) Select(id uuid.UUID) error {
	if _, _, err := s.entry(id); err != nil {
		return err
	}
	s.current = id
	return nil
}

// ConnectCurrent (re)opens the current entry's connection.
func (s *Session) ConnectCurrent(ctx context.Context) error {
	_, tdb, err := s.currentEntry()
	if err != nil {
		return err
	}
	return s.connect(ctx, tdb)
}

func (s *Session) connect(ctx context.Context, tdb *database.TrackedDatabase) error {
	props := tdb.Properties()
	if props.Database == "" {
		return &database.LogicError{Op: "connect", Err: ErrMissingDatabase}
	}
	if props.Password == "" {
		props.Password = s.defaultPassword
	}
	return tdb.Connect(ctx, props)
}

func (s *Session) ensureConnected(ctx context.Context, tdb *database.TrackedDatabase) error {
	if tdb.Connected() {
		return nil
	}
	return s.connect(ctx, tdb)
}

// Register commits the current unregistered entry to the catalog. A database
// the catalog already tracks is reported as AlreadyTracked and the entry
// stays unregistered.
func (s *Session) Register(ctx context.Context) (RegisterOutcome, error) {
	_, tdb, err := s.currentEntry()
	if err != nil {
		return Registered, err
	}
	if tdb.Registered() {
		return Registered, &database.LogicError{Op: "register", Err: database.ErrAlreadyRegistered}
	}
	if err := s.ensureConnected(ctx, tdb); err != nil {
		return Registered, err
	}

	if err := tdb.ResolveNumericID(ctx); err != nil {
		return Registered, fmt.Errorf("register: %w", err)
	}

	tracked, err := tdb.IsAlreadyTracked(ctx, s.catalog)
	if err != nil {
		tdb.ResetDatabaseID()
		return Registered, fmt.Errorf("register: %w", err)
	}
	if tracked {
		tdb.ResetDatabaseID()
		log.Infow("database already tracked", "database", tdb.Properties().Database)
		return AlreadyTracked, nil
	}

	err = s.catalog.WithTx(ctx, func(tx *database.Tx) error {
		if err := tdb.RegisterTracking(ctx, tx); err != nil {
			return err
		}
		return tdb.CreateLogTable(ctx, tx)
	})
	if err != nil {
		tdb.ResetDatabaseID()
		return Registered, fmt.Errorf("register: %w", err)
	}

	log.Infow("registered database", "id", tdb.ID(), "databaseID", tdb.DatabaseID(), "logTable", tdb.LogTableName())
	return Registered, nil
}

// SaveConfiguration stores the current entry's connection properties.
func (s *Session) SaveConfiguration(ctx context.Context) error {
	tdb, err := s.trackedCurrent(ctx, "save configuration")
	if err != nil {
		return err
	}
	return tdb.SaveConfiguration(ctx, s.catalog)
}

// Sync mirrors the current entry's transaction log into its log table. All
// transactions of the fetched batch are written in one catalog transaction;
// the first failure rolls every one of them back.
func (s *Session) Sync(ctx context.Context) (res SyncResult, err error) {
	defer func() {
		switch {
		case errors.Is(err, database.ErrNoChanges):
			metrics.ObserveSync(metrics.OutcomeEmpty, 0, 0)
		case err != nil:
			metrics.ObserveSync(metrics.OutcomeError, 0, 0)
		default:
			metrics.ObserveSync(metrics.OutcomeSuccess, res.Transactions, res.Records)
		}
	}()

	tdb, err := s.trackedCurrent(ctx, "sync")
	if err != nil {
		return res, err
	}

	res.From, err = tdb.RetrieveLastLSN(ctx)
	if err != nil {
		return res, fmt.Errorf("sync: %w", err)
	}

	batch, err := tdb.FetchChangesSince(ctx, res.From)
	if err != nil {
		return res, fmt.Errorf("sync: %w", err)
	}
	res.Transactions = batch.Len()
	res.Records = batch.RecordCount()

	err = s.catalog.WithTx(ctx, func(tx *database.Tx) error {
		var err error
		res.Inserted, err = tdb.SyncLogBatchToCatalog(ctx, tx)
		return err
	})
	if err != nil {
		return res, fmt.Errorf("sync: %w", err)
	}

	log.Infow("synchronised log", "id", tdb.ID(), "from", res.From,
		"transactions", res.Transactions, "records", res.Records, "inserted", res.Inserted)
	return res, nil
}

// OperationalSettings reads backup history, recovery model and state of the
// current entry.
func (s *Session) OperationalSettings(ctx context.Context) (database.OperationalSettings, error) {
	_, tdb, err := s.currentEntry()
	if err != nil {
		return nil, err
	}
	if err := s.ensureConnected(ctx, tdb); err != nil {
		return nil, err
	}
	return tdb.FetchOperationalSettings(ctx)
}

// LogEntries returns the synchronised transactions of the current entry.
func (s *Session) LogEntries(ctx context.Context) ([]database.LogSummary, error) {
	_, tdb, err := s.currentEntry()
	if err != nil {
		return nil, err
	}
	if !tdb.Registered() {
		return nil, &database.LogicError{Op: "log entries", Err: database.ErrNotRegistered}
	}
	return tdb.ReadLogTable(ctx, s.catalog)
}

// SetProperties replaces the current entry's connection properties and
// reports which fields changed. Nothing is persisted until SaveConfiguration
// or Register.
func (s *Session) SetProperties(props database.ConnectionProperties) ([]diff.FieldChange, error) {
	_, tdb, err := s.currentEntry()
	if err != nil {
		return nil, err
	}
	changes := diff.FindChanges(tdb.Properties().Fields(), props.Fields())
	tdb.SetProperties(props)
	for _, ch := range changes {
		log.Debugw("connection property changed", "id", tdb.ID(), "field", ch.Name, "old", ch.Old, "new", ch.New)
	}
	return changes, nil
}

// UpdateProperties replaces the connection properties of the current entry
// and, when it is registered, saves them to the catalog. A failed save
// restores the previous properties. saved reports whether the catalog was
// written.
func (s *Session) UpdateProperties(ctx context.Context, props database.ConnectionProperties) (changes []diff.FieldChange, saved bool, err error) {
	_, tdb, err := s.currentEntry()
	if err != nil {
		return nil, false, err
	}
	prev := tdb.Properties()
	if changes, err = s.SetProperties(props); err != nil {
		return nil, false, err
	}
	if !tdb.Registered() {
		return changes, false, nil
	}
	if err := s.SaveConfiguration(ctx); err != nil {
		tdb.SetProperties(prev)
		return nil, false, err
	}
	return changes, true, nil
}

// SetProperty changes one connection property of the current entry.
func (s *Session) SetProperty(field, value string) error {
	_, tdb, err := s.currentEntry()
	if err != nil {
		return err
	}
	return tdb.SetProperty(field, value)
}

// IDs returns the entry identities in order.
func (s *Session) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s.entries))
	for _, tdb := range s.entries {
		ids = append(ids, tdb.ID())
	}
	return ids
}

// Current returns the current identity, or uuid.Nil when there is none.
func (s *Session) Current() uuid.UUID {
	return s.current
}

func (s *Session) Len() int {
	return len(s.entries)
}

// Entry returns a snapshot of the entry with the given id.
func (s *Session) Entry(id uuid.UUID) (Snapshot, error) {
	_, tdb, err := s.entry(id)
	if err != nil {
		return Snapshot{}, err
	}
	return newSnapshot(tdb, id == s.current), nil
}

// Entries returns snapshots of every entry in order.
func (s *Session) Entries() []Snapshot {
	out := make([]Snapshot, 0, len(s.entries))
	for _, tdb := range s.entries {
		out = append(out, newSnapshot(tdb, tdb.ID() == s.current))
	}
	return out
}

// CurrentBatch returns a copy of the records last fetched for the current
// entry.
func (s *Session) CurrentBatch() (*database.LogBatch, error) {
	_, tdb, err := s.currentEntry()
	if err != nil {
		return nil, err
	}
	return tdb.Batch(), nil
}

// Close closes every tracked connection and the catalog.
func (s *Session) Close() error {
	err := s.closeEntries()
	return multierr.Append(err, s.catalog.Close())
}

func (s *Session) closeEntries() error {
	var err error
	for _, tdb := range s.entries {
		err = multierr.Append(err, tdb.Close())
	}
	return err
}

func (s *Session) entry(id uuid.UUID) (int, *database.TrackedDatabase, error) {
	for i, tdb := range s.entries {
		if tdb.ID() == id {
			return i, tdb, nil
		}
	}
	return -1, nil, fmt.Errorf("%s: %w", id, ErrUnknownEntry)
}

func (s *Session) currentEntry() (int, *database.TrackedDatabase, error) {
	if s.current == uuid.Nil {
		return -1, nil, &database.LogicError{Op: "current entry", Err: ErrNoCurrent}
	}
	return s.entry(s.current)
}

// trackedCurrent returns the current entry connected, failing for
// unregistered ones.
func (s *Session) trackedCurrent(ctx context.Context, op string) (*database.TrackedDatabase, error) {
	_, tdb, err := s.currentEntry()
	if err != nil {
		return nil, err
	}
	if !tdb.Registered() {
		return nil, &database.LogicError{Op: op, Err: database.ErrNotRegistered}
	}
	if err := s.ensureConnected(ctx, tdb); err != nil {
		return nil, err
	}
	return tdb, nil
}
