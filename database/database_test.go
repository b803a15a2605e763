package database_test

import (
	"context"
	"errors"
	"testing"

	"f0oster/dbtracker/database"
	"f0oster/dbtracker/database/databasetest"

	"github.com/stretchr/testify/require"
)

func connectedSource(t *testing.T, databaseID int) (*databasetest.Source, *database.TrackedDatabase) {
	t.Helper()
	src := databasetest.NewSource(t, databaseID)
	tdb := database.NewTrackedDatabase(databasetest.SourceStore(), src.Properties())
	require.NoError(t, tdb.Connect(context.Background(), tdb.Properties()))
	t.Cleanup(func() { tdb.Close() })
	return src, tdb
}

func register(t *testing.T, cat *database.Catalog, tdb *database.TrackedDatabase) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, tdb.ResolveNumericID(ctx))
	err := cat.WithTx(ctx, func(tx *database.Tx) error {
		if err := tdb.RegisterTracking(ctx, tx); err != nil {
			return err
		}
		return tdb.CreateLogTable(ctx, tx)
	})
	require.NoError(t, err)
}

func TestTrackedDatabase_Names(t *testing.T) {
	tdb := database.NewTrackedDatabase(databasetest.SourceStore(), database.NewConnectionProperties())
	id := tdb.ID().String()

	require.Equal(t, database.UnregisteredID, tdb.DatabaseID())
	require.False(t, tdb.Registered())
	require.False(t, tdb.Connected())
	require.Equal(t, "connection_"+id, tdb.ConnectionName())
	require.Equal(t, "Track_DB_"+id, tdb.LogTableName())
	require.Equal(t, "FK_Track_DB_"+id+"_TrackedDatabaseID_TrackedDatabases_ID", tdb.LogTableForeignKey())
}

func TestTrackedDatabase_RegisterAndRemoveRoundTrip(t *testing.T) {
	ctx := context.Background()
	cat := databasetest.OpenCatalog(t)
	tablesBefore := databasetest.CountTables(t, cat)

	_, tdb := connectedSource(t, 7)
	tracked, err := tdb.IsAlreadyTracked(ctx, cat)
	require.NoError(t, err)
	require.False(t, tracked)

	register(t, cat, tdb)
	require.Equal(t, 7, tdb.DatabaseID())
	require.True(t, tdb.Registered())
	require.Equal(t, tablesBefore+1, databasetest.CountTables(t, cat))

	tracked, err = tdb.IsAlreadyTracked(ctx, cat)
	require.NoError(t, err)
	require.True(t, tracked)

	records, err := cat.ListTrackedDatabases(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, tdb.ID(), records[0].ID)
	require.Equal(t, 7, records[0].DatabaseID)
	require.Equal(t, tdb.Properties().Database, records[0].DatabaseName)
	require.Equal(t, "tester", records[0].UserName)

	err = cat.WithTx(ctx, func(tx *database.Tx) error {
		if err := tdb.DropLogTable(ctx, tx); err != nil {
			return err
		}
		return tdb.UnregisterTracking(ctx, tx)
	})
	require.NoError(t, err)

	records, err = cat.ListTrackedDatabases(ctx)
	require.NoError(t, err)
	require.Empty(t, records)
	require.Equal(t, tablesBefore, databasetest.CountTables(t, cat))
}

func TestTrackedDatabase_UnregisterMissingRecord(t *testing.T) {
	ctx := context.Background()
	cat := databasetest.OpenCatalog(t)
	_, tdb := connectedSource(t, 8)
	register(t, cat, tdb)

	require.NoError(t, tdb.UnregisterTracking(ctx, cat))

	err := tdb.UnregisterTracking(ctx, cat)
	var logicErr *database.LogicError
	require.True(t, errors.As(err, &logicErr))
	require.ErrorIs(t, err, database.ErrNotTracked)
}

func TestCatalog_WithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	cat := databasetest.OpenCatalog(t)
	_, tdb := connectedSource(t, 3)
	require.NoError(t, tdb.ResolveNumericID(ctx))

	boom := errors.New("boom")
	err := cat.WithTx(ctx, func(tx *database.Tx) error {
		require.NoError(t, tdb.RegisterTracking(ctx, tx))
		return boom
	})
	require.ErrorIs(t, err, boom)

	records, err := cat.ListTrackedDatabases(ctx)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestCatalog_CreateLogTableFailureKeepsCatalogUnchanged(t *testing.T) {
	ctx := context.Background()
	cat := databasetest.OpenCatalog(t)
	_, tdb := connectedSource(t, 4)
	register(t, cat, tdb)
	tables := databasetest.CountTables(t, cat)

	// the log table already exists, so the transaction aborts
	err := cat.WithTx(ctx, func(tx *database.Tx) error {
		if err := tdb.CreateLogTable(ctx, tx); err != nil {
			return err
		}
		return tdb.RegisterTracking(ctx, tx)
	})
	require.Error(t, err)

	records, err := cat.ListTrackedDatabases(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, tables, databasetest.CountTables(t, cat))
}

func TestTrackedDatabase_ResolveUnknownName(t *testing.T) {
	src, tdb := connectedSource(t, 9)
	src.Reassign("renamed")

	err := tdb.ResolveNumericID(context.Background())
	require.ErrorIs(t, err, database.ErrUnknownDatabase)
	require.Equal(t, database.UnregisteredID, tdb.DatabaseID())
}

func TestTrackedDatabase_RequiresConnection(t *testing.T) {
	src := databasetest.NewSource(t, 1)
	tdb := database.NewTrackedDatabase(databasetest.SourceStore(), src.Properties())

	err := tdb.ResolveNumericID(context.Background())
	var logicErr *database.LogicError
	require.True(t, errors.As(err, &logicErr))
	require.ErrorIs(t, err, database.ErrNotConnected)
}

func TestTrackedDatabase_FetchAndSync(t *testing.T) {
	ctx := context.Background()
	cat := databasetest.OpenCatalog(t)
	src, tdb := connectedSource(t, 11)
	register(t, cat, tdb)

	lsn, err := tdb.RetrieveLastLSN(ctx)
	require.NoError(t, err)
	require.Equal(t, "", lsn)

	_, err = tdb.FetchChangesSince(ctx, lsn)
	require.ErrorIs(t, err, database.ErrNoChanges)

	src.AddLog(databasetest.Transaction("0000:000002e1", "alice", 1, "dbo.Orders", "dbo.OrderLines")...)
	src.AddLog(databasetest.Transaction("0000:000002e2", "bob", 3, "dbo.Customers")...)

	batch, err := tdb.FetchChangesSince(ctx, lsn)
	require.NoError(t, err)
	require.Equal(t, []string{"0000:000002e1", "0000:000002e2"}, batch.TransactionIDs())
	require.Equal(t, 3, batch.RecordCount())

	again, err := tdb.FetchChangesSince(ctx, lsn)
	require.NoError(t, err)
	require.Equal(t, batch.Groups(), again.Groups())

	var inserted int64
	err = cat.WithTx(ctx, func(tx *database.Tx) error {
		inserted, err = tdb.SyncLogBatchToCatalog(ctx, tx)
		return err
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, inserted)

	entries, err := tdb.ReadLogTable(ctx, cat)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "0000:000002e1", entries[0].TransactionID)
	require.Equal(t, "alice", entries[0].UserName)
	require.Equal(t, "00000021:00000001:0001", entries[0].BeginLSN)
	require.Equal(t, "00000021:00000002:0001", entries[0].EndLSN)
	require.Equal(t, "2024/05/01 10:00:01:000", entries[0].EndTime)
	require.NotEmpty(t, entries[0].SyncedAt)

	// syncing the same batch again adds nothing
	err = cat.WithTx(ctx, func(tx *database.Tx) error {
		inserted, err = tdb.SyncLogBatchToCatalog(ctx, tx)
		return err
	})
	require.NoError(t, err)
	require.Zero(t, inserted)

	// resume after the last log backup
	src.SetLastLSN("00000021:00000003:0001")
	lsn, err = tdb.RetrieveLastLSN(ctx)
	require.NoError(t, err)
	batch, err = tdb.FetchChangesSince(ctx, lsn)
	require.NoError(t, err)
	require.Equal(t, []string{"0000:000002e2"}, batch.TransactionIDs())
}

func TestTrackedDatabase_SyncRequiresRegistration(t *testing.T) {
	cat := databasetest.OpenCatalog(t)
	_, tdb := connectedSource(t, 12)

	_, err := tdb.SyncLogBatchToCatalog(context.Background(), cat)
	require.ErrorIs(t, err, database.ErrNotRegistered)
}

func TestTrackedDatabase_SaveConfiguration(t *testing.T) {
	ctx := context.Background()
	cat := databasetest.OpenCatalog(t)
	src, tdb := connectedSource(t, 21)
	register(t, cat, tdb)

	require.NoError(t, tdb.SetProperty(database.FieldUser, "auditor"))
	require.NoError(t, tdb.SaveConfiguration(ctx, cat))

	records, err := cat.ListTrackedDatabases(ctx)
	require.NoError(t, err)
	require.Equal(t, "auditor", records[0].UserName)

	src.Reassign("someone_else")
	require.NoError(t, tdb.SetProperty(database.FieldUser, "intruder"))
	err = tdb.SaveConfiguration(ctx, cat)
	var logicErr *database.LogicError
	require.True(t, errors.As(err, &logicErr))
	require.ErrorIs(t, err, database.ErrNameMismatch)

	records, err = cat.ListTrackedDatabases(ctx)
	require.NoError(t, err)
	require.Equal(t, "auditor", records[0].UserName)
}

func TestTrackedDatabase_OperationalSettings(t *testing.T) {
	src, tdb := connectedSource(t, 31)
	src.SetSetting(database.LastFullBackup, "2024-04-30 22:00:00")

	settings, err := tdb.FetchOperationalSettings(context.Background())
	require.NoError(t, err)
	require.Equal(t, database.OperationalSettings{
		database.LastFullBackup: "2024-04-30 22:00:00",
		database.LastDiffBackup: database.NoValue,
		database.LastLogBackup:  database.NoValue,
		database.RecoveryModel:  "FULL",
		database.State:          "ONLINE",
	}, settings)
}

func TestRestoreTrackedDatabase(t *testing.T) {
	rec := database.TrackingRecord{
		ServerName: "db01", Port: "1433", DatabaseID: 5, DatabaseName: "Sales", UserName: "web",
	}
	tdb := database.RestoreTrackedDatabase(databasetest.SourceStore(), rec)
	require.True(t, tdb.Registered())
	require.Equal(t, 5, tdb.DatabaseID())
	require.Equal(t, rec.Properties(), tdb.Properties())
	require.Empty(t, tdb.Properties().Password)

	tdb.ResetDatabaseID()
	require.False(t, tdb.Registered())
}
