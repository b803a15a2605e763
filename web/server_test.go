package web_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"f0oster/dbtracker/database"
	"f0oster/dbtracker/database/databasetest"
	"f0oster/dbtracker/session"
	"f0oster/dbtracker/web"

	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) http.Handler {
	t.Helper()
	sess := session.New(databasetest.OpenCatalog(t), databasetest.SourceStore())
	t.Cleanup(func() { sess.Close() })
	return web.NewServer(sess, ":0").Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func propsRequest(src *databasetest.Source) web.PropertiesRequest {
	p := src.Properties()
	return web.PropertiesRequest{Server: p.Server, Port: p.Port, Database: p.Database, User: p.User}
}

func TestServer_TrackSyncAndRemove(t *testing.T) {
	h := newServer(t)
	src := databasetest.NewSource(t, 61)
	src.AddLog(databasetest.Transaction("0000:00000aa1", "carol", 1, "dbo.Parts")...)

	rec := do(t, h, http.MethodPost, "/api/databases", propsRequest(src))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[session.Snapshot](t, rec)
	require.Equal(t, "new", created.Label)
	base := "/api/databases/" + created.ID.String()

	rec = do(t, h, http.MethodPost, base+"/register", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reg := decode[web.RegisterResponse](t, rec)
	require.Equal(t, "registered", reg.Outcome)
	require.Equal(t, 61, reg.Database.DatabaseID)

	rec = do(t, h, http.MethodPost, base+"/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[session.SyncResult](t, rec)
	require.Equal(t, 1, res.Transactions)
	require.EqualValues(t, 1, res.Inserted)

	rec = do(t, h, http.MethodGet, base+"/batch", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	groups := decode[[]database.TransactionGroup](t, rec)
	require.Len(t, groups, 1)
	require.Equal(t, "dbo.Parts", groups[0].Records[0].ObjectName)

	rec = do(t, h, http.MethodGet, base+"/log", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]database.LogSummary](t, rec)
	require.Len(t, entries, 1)
	require.Equal(t, "carol", entries[0].UserName)

	rec = do(t, h, http.MethodGet, base+"/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	settings := decode[map[string]string](t, rec)
	require.Equal(t, "FULL", settings["RecoveryModel"])

	update := propsRequest(src)
	update.User = "auditor"
	rec = do(t, h, http.MethodPut, base, update)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	upd := decode[web.UpdateResponse](t, rec)
	require.True(t, upd.Saved)
	require.Len(t, upd.Changes, 1)
	require.Equal(t, "user", upd.Changes[0].Name)

	rejected := update
	rejected.Database = "elsewhere"
	rec = do(t, h, http.MethodPut, base, rejected)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	current := decode[session.Snapshot](t, rec)
	require.Equal(t, src.Name, current.Properties.Database)
	require.Equal(t, "auditor", current.Properties.User)

	rec = do(t, h, http.MethodDelete, base, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/databases", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[web.DatabaseListResponse](t, rec)
	require.Empty(t, list.Databases)
	require.Nil(t, list.Current)

	rec = do(t, h, http.MethodGet, base, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Errors(t *testing.T) {
	h := newServer(t)

	rec := do(t, h, http.MethodGet, "/api/databases/not-a-uuid", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/navigate/sideways", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// nothing to navigate
	rec = do(t, h, http.MethodPost, "/api/navigate/next", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/databases", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[session.Snapshot](t, rec)

	// syncing an unregistered entry is a logic error
	rec = do(t, h, http.MethodPost, "/api/databases/"+created.ID.String()+"/sync", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/navigate/next", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	nav := decode[web.NavigateResponse](t, rec)
	require.False(t, nav.Moved)
	require.Equal(t, created.ID, nav.Current)
}

func TestServer_Metrics(t *testing.T) {
	h := newServer(t)
	rec := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "dbtracker_tracked_databases"))
}
