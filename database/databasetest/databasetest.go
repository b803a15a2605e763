// Package databasetest provides in-memory SQLite catalogs and emulated source
// servers for tests. A source server is a shared in-memory SQLite database
// holding a sys_databases table and a <name>_log table standing in for the
// transaction log.
package databasetest

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"testing/fstest"

	"f0oster/dbtracker/database"
	"f0oster/dbtracker/query"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// SourceTemplates answers the source-side resources from the emulated tables.
var SourceTemplates = fstest.MapFS{
	"sqlite/derive_id_from_database_name.sql": {Data: []byte(
		`SELECT database_id AS DatabaseID FROM sys_databases WHERE name = @databaseName;`)},
	"sqlite/derive_name_from_database_id.sql": {Data: []byte(
		`SELECT name AS DatabaseName FROM sys_databases WHERE database_id = @databaseID;`)},
	"sqlite/retrieve_operational_settings.sql": {Data: []byte(
		`SELECT LastFullBackup, LastDiffBackup, LastLogBackup, RecoveryModel, State
FROM sys_databases WHERE name = @databaseName;`)},
	"sqlite/retrieve_last_lsn.sql": {Data: []byte(
		`SELECT LastLSN FROM sys_databases WHERE name = @databaseName AND LastLSN IS NOT NULL;`)},
	"sqlite/retrieve_changes_since_lsn.sql": {Data: []byte(
		`SELECT ObjectName, Operation, TransactionName, TransactionID, BeginTime, EndTime, Description, UserName, LSN
FROM {{dbName}}_log
WHERE @fromLSN = '' OR LSN >= @fromLSN
ORDER BY LSN;`)},
}

// SourceStore returns the store tracked databases use against emulated
// sources.
func SourceStore() *query.Store {
	return query.NewStore(query.SQLite, SourceTemplates)
}

// CatalogStore returns the embedded SQLite catalog statements.
func CatalogStore() *query.Store {
	return query.NewStore(query.SQLite)
}

func uniqueName(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString()[:8], "-", "")
}

// CatalogProperties addresses a fresh in-memory catalog.
func CatalogProperties() database.ConnectionProperties {
	return database.ConnectionProperties{Server: database.MemoryServer, Database: uniqueName("catalog_")}
}

// OpenCatalog opens a fresh in-memory catalog with its schema in place. It is
// closed when the test ends.
func OpenCatalog(t testing.TB) *database.Catalog {
	t.Helper()
	ctx := context.Background()
	cat, err := database.OpenCatalog(ctx, CatalogStore(), CatalogProperties())
	require.NoError(t, err)
	require.NoError(t, cat.EnsureSchema(ctx))
	t.Cleanup(func() { cat.Close() })
	return cat
}

// CountTables returns the number of user tables in the catalog.
func CountTables(t testing.TB, cat *database.Catalog) int {
	t.Helper()
	stmt, err := cat.PrepareContext(context.Background(),
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	require.NoError(t, err)
	defer stmt.Close()
	var n int
	require.NoError(t, stmt.QueryRow().Scan(&n))
	return n
}

// Source is an emulated SQL Server database.
type Source struct {
	t          testing.TB
	db         *sql.DB
	Name       string
	DatabaseID int
}

// NewSource creates an emulated database known to its server under a random
// name and the given id.
func NewSource(t testing.TB, databaseID int) *Source {
	t.Helper()
	s := &Source{t: t, Name: uniqueName("src_"), DatabaseID: databaseID}

	dsn, err := s.Properties().Descriptor(query.SQLite)
	require.NoError(t, err)
	s.db, err = sql.Open("sqlite", dsn)
	require.NoError(t, err)
	s.db.SetMaxOpenConns(1)
	t.Cleanup(func() { s.db.Close() })

	s.exec(`CREATE TABLE sys_databases (
		database_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		LastFullBackup TEXT,
		LastDiffBackup TEXT,
		LastLogBackup TEXT,
		RecoveryModel TEXT,
		State TEXT,
		LastLSN TEXT
	)`)
	s.exec(`INSERT INTO sys_databases (database_id, name, RecoveryModel, State) VALUES (?, ?, 'FULL', 'ONLINE')`,
		databaseID, s.Name)
	s.exec(`CREATE TABLE ` + s.Name + `_log (
		ObjectName TEXT,
		Operation TEXT,
		TransactionName TEXT,
		TransactionID TEXT,
		BeginTime TEXT,
		EndTime TEXT,
		Description TEXT,
		UserName TEXT,
		LSN TEXT
	)`)
	return s
}

func (s *Source) exec(stmt string, args ...any) {
	s.t.Helper()
	_, err := s.db.Exec(stmt, args...)
	require.NoError(s.t, err)
}

// Properties connects to the emulated database.
func (s *Source) Properties() database.ConnectionProperties {
	return database.ConnectionProperties{
		Server:   database.MemoryServer,
		Port:     database.DefaultPort,
		Database: s.Name,
		User:     "tester",
	}
}

// AddLog appends records to the emulated transaction log.
func (s *Source) AddLog(records ...database.LogRecord) {
	s.t.Helper()
	for _, r := range records {
		s.exec(`INSERT INTO `+s.Name+`_log
			(ObjectName, Operation, TransactionName, TransactionID, BeginTime, EndTime, Description, UserName, LSN)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ObjectName, r.Operation, r.TransactionName, r.TransactionID,
			r.BeginTime, r.EndTime, r.Description, r.User, r.LSN)
	}
}

// SetLastLSN records the LSN of the last log backup.
func (s *Source) SetLastLSN(lsn string) {
	s.t.Helper()
	s.exec(`UPDATE sys_databases SET LastLSN = ? WHERE database_id = ?`, lsn, s.DatabaseID)
}

// SetSetting sets one operational setting column.
func (s *Source) SetSetting(key database.Setting, value string) {
	s.t.Helper()
	s.exec(`UPDATE sys_databases SET `+string(key)+` = ? WHERE database_id = ?`, value, s.DatabaseID)
}

// Reassign makes the server report another name for the database id.
func (s *Source) Reassign(name string) {
	s.t.Helper()
	s.exec(`UPDATE sys_databases SET name = ? WHERE database_id = ?`, name, s.DatabaseID)
}

// Transaction builds the records of one transaction touching objects, with
// LSNs numbered from first.
func Transaction(id, user string, first int, objects ...string) []database.LogRecord {
	recs := make([]database.LogRecord, 0, len(objects))
	for i, obj := range objects {
		recs = append(recs, database.LogRecord{
			ObjectName:      obj,
			Operation:       "LOP_INSERT_ROWS",
			TransactionName: "INSERT",
			TransactionID:   id,
			BeginTime:       "2024/05/01 10:00:00:000",
			EndTime:         "2024/05/01 10:00:01:000",
			Description:     "",
			User:            user,
			LSN:             lsn(first + i),
		})
	}
	return recs
}

func lsn(n int) string {
	const digits = "0123456789abcdef"
	b := []byte("00000021:00000000:0001")
	for i := 16; i >= 9 && n > 0; i-- {
		b[i] = digits[n%16]
		n /= 16
	}
	return string(b)
}
