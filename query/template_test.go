package query_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"testing/fstest"

	"f0oster/dbtracker/query"

	"github.com/stretchr/testify/require"
)

var fixtures = fstest.MapFS{
	"sqlite/create_items.sql": {Data: []byte(`CREATE TABLE {{table}} (ID INTEGER PRIMARY KEY, Name TEXT, Note TEXT, Qty INTEGER);`)},
	"sqlite/insert_item.sql":  {Data: []byte(`INSERT INTO {{table}} (ID, Name, Note, Qty) VALUES (@id, @name, @note, @qty);`)},
	"sqlite/select_items.sql": {Data: []byte(`SELECT ID, Note, Name, Qty FROM {{table}} WHERE Qty >= @minQty ORDER BY ID;`)},
	"sqlite/rename_items.sql": {Data: []byte(`UPDATE {{table}} SET Name = @name WHERE Qty >= @minQty;`)},
	"sqlite/broken.sql":       {Data: []byte(`SELEC nothing FROM`)},
	"sqlite/globals.sql":      {Data: []byte(`SELECT '@@notaparam' AS Txt, @value AS Value;`)},
}

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedItems(t *testing.T, ctx context.Context, db *sql.DB, store *query.Store, table string) {
	t.Helper()
	create, err := query.Load(store, "create_items")
	require.NoError(t, err)
	_, err = create.SubstituteIdentifier("table", table).Modify(ctx, db)
	require.NoError(t, err)

	insert, err := query.Load(store, "insert_item")
	require.NoError(t, err)
	insert.SubstituteIdentifier("table", table)
	require.NoError(t, insert.Prepare(ctx, db))
	defer insert.Close()

	rows := []struct {
		id   int64
		name string
		note any
		qty  int64
	}{
		{1, "bolt", nil, 10},
		{2, "nut", "metric", 5},
		{3, "washer", nil, 1},
	}
	for _, r := range rows {
		n, err := insert.Bind("id", r.id).Bind("name", r.name).Bind("note", r.note).Bind("qty", r.qty).ExecuteModify(ctx)
		require.NoError(t, err)
		require.EqualValues(t, 1, n)
	}
}

func TestTemplate_SelectOmitsNulls(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	store := query.NewStore(query.SQLite, fixtures)
	seedItems(t, ctx, db, store, "Stock Items")

	sel, err := query.Load(store, "select_items")
	require.NoError(t, err)
	rs, err := sel.SubstituteIdentifier("table", "Stock Items").Bind("minQty", 2).Select(ctx, db)
	require.NoError(t, err)

	require.Equal(t, []string{"ID", "Note", "Name", "Qty"}, rs.Columns)
	require.Equal(t, 2, rs.Len())

	first := rs.Rows[0]
	require.Len(t, first, 3)
	require.Equal(t, "Name", first[1].Column)
	require.Equal(t, "bolt", first.String("name"))
	_, ok := first.Lookup("Note")
	require.False(t, ok)
	require.Equal(t, "", first.String("Note"))

	second := rs.Rows[1]
	require.Len(t, second, 4)
	require.Equal(t, "metric", second.String("Note"))
	qty, ok := second.Int64("Qty")
	require.True(t, ok)
	require.EqualValues(t, 5, qty)
}

func TestTemplate_ZeroRowsIsSuccess(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	store := query.NewStore(query.SQLite, fixtures)
	seedItems(t, ctx, db, store, "items")

	sel, err := query.Load(store, "select_items")
	require.NoError(t, err)
	rs, err := sel.SubstituteIdentifier("table", "items").Bind("minQty", 1000).Select(ctx, db)
	require.NoError(t, err)
	require.True(t, rs.Empty())
}

func TestTemplate_ModifyReportsAffectedRows(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	store := query.NewStore(query.SQLite, fixtures)
	seedItems(t, ctx, db, store, "items")

	upd, err := query.Load(store, "rename_items")
	require.NoError(t, err)
	n, err := upd.SubstituteIdentifier("table", "items").Bind("name", "part").Bind("minQty", 5).Modify(ctx, db)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

func TestTemplate_ServerGlobalsAndLiteralsAreNotParameters(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	store := query.NewStore(query.SQLite, fixtures)

	tmpl, err := query.Load(store, "globals")
	require.NoError(t, err)
	text, params, err := tmpl.Statement()
	require.NoError(t, err)
	require.Equal(t, []string{"value"}, params)
	require.Contains(t, text, "'@@notaparam'")

	rs, err := tmpl.Bind("value", "x").Bind("unused", 1).Select(ctx, db)
	require.NoError(t, err)
	require.Equal(t, "@@notaparam", rs.Rows[0].String("Txt"))
	require.Equal(t, "x", rs.Rows[0].String("Value"))
}

func TestTemplate_PrepareErrors(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	store := query.NewStore(query.SQLite, fixtures)

	var prepErr *query.PrepareError

	// identifier never substituted
	sel, err := query.Load(store, "select_items")
	require.NoError(t, err)
	_, err = sel.Bind("minQty", 1).Select(ctx, db)
	require.True(t, errors.As(err, &prepErr))
	require.Equal(t, query.Resource("select_items"), prepErr.Resource)

	// value never bound
	sel, err = query.Load(store, "select_items")
	require.NoError(t, err)
	_, err = sel.SubstituteIdentifier("table", "items").Select(ctx, db)
	require.True(t, errors.As(err, &prepErr))

	// rejected by the driver, either at prepare or on first execution
	broken, err := query.Load(store, "broken")
	require.NoError(t, err)
	_, err = broken.Select(ctx, db)
	var drvErr *query.DriverError
	require.True(t, errors.As(err, &prepErr) || errors.As(err, &drvErr))

	// executing before preparing
	sel, err = query.Load(store, "select_items")
	require.NoError(t, err)
	_, err = sel.ExecuteSelect(ctx)
	require.ErrorIs(t, err, query.ErrNotPrepared)
}

func TestTemplate_BindAfterPrepare(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	store := query.NewStore(query.SQLite, fixtures)
	seedItems(t, ctx, db, store, "items")

	sel, err := query.Load(store, "select_items")
	require.NoError(t, err)
	require.NoError(t, sel.SubstituteIdentifier("table", "items").Prepare(ctx, db))
	defer sel.Close()

	// a missing value is reported when the statement runs
	_, err = sel.ExecuteSelect(ctx)
	var prepErr *query.PrepareError
	require.True(t, errors.As(err, &prepErr))
	require.Contains(t, prepErr.Error(), "@minQty")

	rs, err := sel.Bind("minQty", 5).ExecuteSelect(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, rs.Len())

	rs, err = sel.Bind("minQty", 100).ExecuteSelect(ctx)
	require.NoError(t, err)
	require.True(t, rs.Empty())
}

func TestTemplate_DriverErrorCarriesCode(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	store := query.NewStore(query.SQLite, fixtures)
	seedItems(t, ctx, db, store, "items")

	insert, err := query.Load(store, "insert_item")
	require.NoError(t, err)
	_, err = insert.SubstituteIdentifier("table", "items").
		Bind("id", 1).Bind("name", "dup").Bind("note", nil).Bind("qty", 1).
		Modify(ctx, db)

	var drvErr *query.DriverError
	require.True(t, errors.As(err, &drvErr))
	require.Equal(t, query.Resource("insert_item"), drvErr.Resource)
	require.NotEmpty(t, drvErr.Code)
	require.NotEmpty(t, drvErr.Message)
}

func TestTemplate_OrdinalRendering(t *testing.T) {
	store := query.NewStore(query.Postgres)
	tmpl, err := query.Load(store, "update_log_table_with_new_data")
	require.NoError(t, err)

	text, params, err := tmpl.SubstituteIdentifier("tableName", "Track_DB_x-y").Statement()
	require.NoError(t, err)
	require.Contains(t, text, `INSERT INTO "Track_DB_x-y"`)
	require.Contains(t, text, "TransactionID = $2::text")
	require.NotContains(t, text, "@")
	require.Equal(t, []string{
		"trackedDatabaseID", "transactionID", "transactionName", "beginTime",
		"endTime", "userName", "beginLSN", "endLSN",
	}, params)
}
