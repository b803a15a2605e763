package database

import (
	"context"
	"database/sql"
	"fmt"

	"f0oster/dbtracker/query"

	"github.com/google/uuid"
)

// UnregisteredID is the external database id of an entry that was never
// committed to the catalog.
const UnregisteredID = -1

// TrackedDatabase is one external SQL Server database whose transaction log
// is mirrored into the catalog. Source statements run on its own connection;
// catalog statements run on the CatalogConn handed to each operation.
type TrackedDatabase struct {
	id             uuid.UUID
	databaseID     int
	connectionName string
	props          ConnectionProperties

	sources *query.Store
	db      *sql.DB
	batch   *LogBatch
}

// NewTrackedDatabase returns an unregistered entry with a fresh identity.
func NewTrackedDatabase(sources *query.Store, props ConnectionProperties) *TrackedDatabase {
	return newTrackedDatabase(uuid.New(), UnregisteredID, sources, props)
}

// RestoreTrackedDatabase rebuilds an entry from its catalog row.
func RestoreTrackedDatabase(sources *query.Store, rec TrackingRecord) *TrackedDatabase {
	return newTrackedDatabase(rec.ID, rec.DatabaseID, sources, rec.Properties())
}

func newTrackedDatabase(id uuid.UUID, databaseID int, sources *query.Store, props ConnectionProperties) *TrackedDatabase {
	return &TrackedDatabase{
		id:             id,
		databaseID:     databaseID,
		connectionName: "connection_" + id.String(),
		props:          props,
		sources:        sources,
		batch:          NewLogBatch(),
	}
}

func (t *TrackedDatabase) ID() uuid.UUID {
	return t.id
}

// DatabaseID is the server-assigned id, or UnregisteredID.
func (t *TrackedDatabase) DatabaseID() int {
	return t.databaseID
}

func (t *TrackedDatabase) Registered() bool {
	return t.databaseID != UnregisteredID
}

func (t *TrackedDatabase) ConnectionName() string {
	return t.connectionName
}

func (t *TrackedDatabase) Connected() bool {
	return t.db != nil
}

func (t *TrackedDatabase) Properties() ConnectionProperties {
	return t.props
}

func (t *TrackedDatabase) SetProperties(props ConnectionProperties) {
	t.props = props
}

func (t *TrackedDatabase) SetProperty(field, value string) error {
	return t.props.Set(field, value)
}

// Batch returns a copy of the records fetched by the last FetchChangesSince.
func (t *TrackedDatabase) Batch() *LogBatch {
	return t.batch.Clone()
}

// LogTableName is the catalog table holding this database's synchronised
// transactions.
func (t *TrackedDatabase) LogTableName() string {
	return "Track_DB_" + t.id.String()
}

func (t *TrackedDatabase) LogTableForeignKey() string {
	return "FK_" + t.LogTableName() + "_TrackedDatabaseID_TrackedDatabases_ID"
}

// ResetDatabaseID returns the entry to the unregistered state.
func (t *TrackedDatabase) ResetDatabaseID() {
	t.databaseID = UnregisteredID
}

// Connect opens a connection described by props, closing any previous one.
func (t *TrackedDatabase) Connect(ctx context.Context, props ConnectionProperties) error {
	if err := t.Close(); err != nil {
		log.Warnw("closing previous connection failed", "connection", t.connectionName, "error", err)
	}
	db, err := open(ctx, t.sources.Dialect(), props)
	if err != nil {
		return err
	}
	t.db = db
	log.Infow("connected", "connection", t.connectionName, "address", props.Address())
	return nil
}

func (t *TrackedDatabase) Close() error {
	if t.db == nil {
		return nil
	}
	err := t.db.Close()
	t.db = nil
	return err
}

func (t *TrackedDatabase) source(op string, id query.Resource) (*query.Template, error) {
	if t.db == nil {
		return nil, logicError(op, ErrNotConnected)
	}
	return query.Load(t.sources, id)
}

// VerifyIdentityMatchesName reports whether the server still knows the
// entry's database id under the configured database name.
func (t *TrackedDatabase) VerifyIdentityMatchesName(ctx context.Context) (bool, error) {
	tmpl, err := t.source("verify identity", DeriveNameFromDatabaseID)
	if err != nil {
		return false, err
	}
	rs, err := tmpl.Bind("databaseID", t.databaseID).Select(ctx, t.db)
	if err != nil {
		return false, fmt.Errorf("derive name from database id query failed: %w", err)
	}
	if rs.Empty() {
		return false, nil
	}
	return rs.Rows[0].String("DatabaseName") == t.props.Database, nil
}

// ResolveNumericID looks up the server-assigned id of the configured
// database name.
func (t *TrackedDatabase) ResolveNumericID(ctx context.Context) error {
	tmpl, err := t.source("resolve database id", DeriveIDFromDatabaseName)
	if err != nil {
		return err
	}
	rs, err := tmpl.Bind("databaseName", t.props.Database).Select(ctx, t.db)
	if err != nil {
		return fmt.Errorf("derive id from database name query failed: %w", err)
	}
	if rs.Empty() {
		return fmt.Errorf("%s: %w", t.props.Database, ErrUnknownDatabase)
	}
	id, ok := rs.Rows[0].Int64("DatabaseID")
	if !ok {
		return fmt.Errorf("%s: %w", t.props.Database, ErrUnknownDatabase)
	}
	t.databaseID = int(id)
	return nil
}

// IsAlreadyTracked reports whether the catalog holds a record with the same
// database id and name.
func (t *TrackedDatabase) IsAlreadyTracked(ctx context.Context, cat CatalogConn) (bool, error) {
	tmpl, err := query.Load(cat.Templates(), CheckIfDBIsAlreadyTracked)
	if err != nil {
		return false, err
	}
	rs, err := tmpl.
		Bind("databaseID", t.databaseID).
		Bind("databaseName", t.props.Database).
		Select(ctx, cat)
	if err != nil {
		return false, fmt.Errorf("check if database is tracked query failed: %w", err)
	}
	if rs.Empty() {
		return false, nil
	}
	n, _ := rs.Rows[0].Int64("Tracked")
	return n > 0, nil
}

// RegisterTracking inserts the tracking record.
func (t *TrackedDatabase) RegisterTracking(ctx context.Context, cat CatalogConn) error {
	if !t.Registered() {
		return logicError("register tracking", ErrUnresolvedID)
	}
	tmpl, err := query.Load(cat.Templates(), TrackNewDatabase)
	if err != nil {
		return err
	}
	_, err = tmpl.
		Bind("id", t.id.String()).
		Bind("serverName", t.props.Server).
		Bind("port", t.props.Port).
		Bind("databaseID", t.databaseID).
		Bind("databaseName", t.props.Database).
		Bind("userName", t.props.User).
		Modify(ctx, cat)
	if err != nil {
		return fmt.Errorf("track new database query failed: %w", err)
	}
	return nil
}

// UnregisterTracking deletes the tracking record. A record that is already
// gone is a LogicError wrapping ErrNotTracked.
func (t *TrackedDatabase) UnregisterTracking(ctx context.Context, cat CatalogConn) error {
	tmpl, err := query.Load(cat.Templates(), StopTrackingOfDatabase)
	if err != nil {
		return err
	}
	affected, err := tmpl.Bind("id", t.id.String()).Modify(ctx, cat)
	if err != nil {
		return fmt.Errorf("stop tracking query failed: %w", err)
	}
	if affected == 0 {
		return logicError("unregister tracking", ErrNotTracked)
	}
	return nil
}

func (t *TrackedDatabase) CreateLogTable(ctx context.Context, cat CatalogConn) error {
	tmpl, err := query.Load(cat.Templates(), CreateNewLogTable)
	if err != nil {
		return err
	}
	_, err = tmpl.
		SubstituteIdentifier("tableName", t.LogTableName()).
		SubstituteIdentifier("foreignKeyName", t.LogTableForeignKey()).
		Modify(ctx, cat)
	if err != nil {
		return fmt.Errorf("create log table %s failed: %w", t.LogTableName(), err)
	}
	return nil
}

func (t *TrackedDatabase) DropLogTable(ctx context.Context, cat CatalogConn) error {
	tmpl, err := query.Load(cat.Templates(), DropLogTable)
	if err != nil {
		return err
	}
	if _, err := tmpl.SubstituteIdentifier("tableName", t.LogTableName()).Modify(ctx, cat); err != nil {
		return fmt.Errorf("drop log table %s failed: %w", t.LogTableName(), err)
	}
	return nil
}

// RetrieveLastLSN returns the LSN synchronisation resumes from, or "" when
// the whole active log should be read.
func (t *TrackedDatabase) RetrieveLastLSN(ctx context.Context) (string, error) {
	tmpl, err := t.source("retrieve last LSN", RetrieveLastLSN)
	if err != nil {
		return "", err
	}
	rs, err := tmpl.Bind("databaseName", t.props.Database).Select(ctx, t.db)
	if err != nil {
		return "", fmt.Errorf("retrieve last LSN query failed: %w", err)
	}
	if rs.Empty() {
		return "", nil
	}
	return rs.Rows[0].String("LastLSN"), nil
}

// FetchChangesSince reads the log from lsn onwards and replaces the current
// batch. ErrNoChanges is returned, and the batch left as it was, when the
// log holds nothing.
func (t *TrackedDatabase) FetchChangesSince(ctx context.Context, lsn string) (*LogBatch, error) {
	tmpl, err := t.source("fetch changes", RetrieveChangesSinceLSN)
	if err != nil {
		return nil, err
	}
	rs, err := tmpl.
		SubstituteIdentifier("dbName", t.props.Database).
		Bind("fromLSN", lsn).
		Select(ctx, t.db)
	if err != nil {
		return nil, fmt.Errorf("retrieve changes query failed: %w", err)
	}
	if rs.Empty() {
		return nil, ErrNoChanges
	}

	batch := NewLogBatch()
	for _, row := range rs.Rows {
		batch.Add(LogRecord{
			ObjectName:      row.String("ObjectName"),
			Operation:       row.String("Operation"),
			TransactionName: row.String("TransactionName"),
			TransactionID:   row.String("TransactionID"),
			BeginTime:       row.String("BeginTime"),
			EndTime:         row.String("EndTime"),
			Description:     row.String("Description"),
			User:            row.String("UserName"),
			LSN:             row.String("LSN"),
		})
	}
	t.batch = batch
	log.Debugw("fetched log records", "connection", t.connectionName, "from", lsn,
		"transactions", batch.Len(), "records", batch.RecordCount())
	return batch.Clone(), nil
}

// SyncLogBatchToCatalog writes one row per transaction of the current batch
// into the log table. Transactions already present are skipped. The first
// failure aborts; the caller's transaction is expected to roll back.
func (t *TrackedDatabase) SyncLogBatchToCatalog(ctx context.Context, cat CatalogConn) (int64, error) {
	if !t.Registered() {
		return 0, logicError("sync log batch", ErrNotRegistered)
	}
	tmpl, err := query.Load(cat.Templates(), UpdateLogTableWithNewData)
	if err != nil {
		return 0, err
	}
	tmpl.SubstituteIdentifier("tableName", t.LogTableName())
	if err := tmpl.Bind("trackedDatabaseID", t.id.String()).Prepare(ctx, cat); err != nil {
		return 0, err
	}
	defer tmpl.Close()

	var inserted int64
	for _, group := range t.batch.Groups() {
		s := summary(group.Records)
		n, err := tmpl.
			Bind("transactionID", s.TransactionID).
			Bind("transactionName", s.TransactionName).
			Bind("beginTime", s.BeginTime).
			Bind("endTime", s.EndTime).
			Bind("userName", s.UserName).
			Bind("beginLSN", s.BeginLSN).
			Bind("endLSN", s.EndLSN).
			ExecuteModify(ctx)
		if err != nil {
			return inserted, fmt.Errorf("sync transaction %s failed: %w", s.TransactionID, err)
		}
		inserted += n
	}
	return inserted, nil
}

// SaveConfiguration stores the current connection properties in the
// tracking record after checking that the database id still belongs to the
// configured name.
func (t *TrackedDatabase) SaveConfiguration(ctx context.Context, cat CatalogConn) error {
	if !t.Registered() {
		return logicError("save configuration", ErrNotRegistered)
	}
	ok, err := t.VerifyIdentityMatchesName(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return logicError("save configuration", ErrNameMismatch)
	}

	tmpl, err := query.Load(cat.Templates(), UpdateDBConnectionSettings)
	if err != nil {
		return err
	}
	_, err = tmpl.
		Bind("id", t.id.String()).
		Bind("serverName", t.props.Server).
		Bind("port", t.props.Port).
		Bind("databaseName", t.props.Database).
		Bind("userName", t.props.User).
		Modify(ctx, cat)
	if err != nil {
		return fmt.Errorf("update connection settings query failed: %w", err)
	}
	return nil
}

// FetchOperationalSettings reads backup history, recovery model and state.
func (t *TrackedDatabase) FetchOperationalSettings(ctx context.Context) (OperationalSettings, error) {
	tmpl, err := t.source("fetch operational settings", RetrieveOperationalSettings)
	if err != nil {
		return nil, err
	}
	rs, err := tmpl.Bind("databaseName", t.props.Database).Select(ctx, t.db)
	if err != nil {
		return nil, fmt.Errorf("retrieve operational settings query failed: %w", err)
	}
	if rs.Empty() {
		return nil, fmt.Errorf("%s: %w", t.props.Database, ErrUnknownDatabase)
	}

	settings := OperationalSettings{}
	for _, key := range Settings {
		settings[key] = NoValue
		if _, ok := rs.Rows[0].Lookup(string(key)); ok {
			settings[key] = rs.Rows[0].String(string(key))
		}
	}
	return settings, nil
}

// ReadLogTable returns the synchronised transactions in insertion order.
func (t *TrackedDatabase) ReadLogTable(ctx context.Context, cat CatalogConn) ([]LogSummary, error) {
	tmpl, err := query.Load(cat.Templates(), ListLogTableContents)
	if err != nil {
		return nil, err
	}
	rs, err := tmpl.SubstituteIdentifier("tableName", t.LogTableName()).Select(ctx, cat)
	if err != nil {
		return nil, fmt.Errorf("read log table %s failed: %w", t.LogTableName(), err)
	}

	entries := make([]LogSummary, 0, rs.Len())
	for _, row := range rs.Rows {
		id, _ := row.Int64("ID")
		entries = append(entries, LogSummary{
			ID:              id,
			TransactionID:   row.String("TransactionID"),
			TransactionName: row.String("TransactionName"),
			BeginTime:       row.String("BeginTime"),
			EndTime:         row.String("EndTime"),
			UserName:        row.String("UserName"),
			BeginLSN:        row.String("BeginLSN"),
			EndLSN:          row.String("EndLSN"),
			SyncedAt:        row.String("SyncedAt"),
		})
	}
	return entries, nil
}
