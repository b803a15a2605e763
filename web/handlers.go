package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"f0oster/dbtracker/database"
	"f0oster/dbtracker/diff"
	"f0oster/dbtracker/query"
	"f0oster/dbtracker/session"

	"github.com/google/uuid"
)

// Response types for JSON serialization

type DatabaseListResponse struct {
	Databases []session.Snapshot `json:"databases"`
	Current   *uuid.UUID         `json:"current,omitempty"`
}

type UpdateResponse struct {
	Database session.Snapshot   `json:"database"`
	Changes  []diff.FieldChange `json:"changes"`
	Saved    bool               `json:"saved"`
}

type RegisterResponse struct {
	Outcome  string           `json:"outcome"`
	Database session.Snapshot `json:"database"`
}

type NavigateResponse struct {
	Current uuid.UUID `json:"current"`
	Moved   bool      `json:"moved"`
}

// PropertiesRequest carries connection properties, password included.
type PropertiesRequest struct {
	Server   string `json:"server"`
	Port     string `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`
	Password string `json:"password"`
}

func (p PropertiesRequest) properties() database.ConnectionProperties {
	props := database.ConnectionProperties{
		Server:   p.Server,
		Port:     p.Port,
		Database: p.Database,
		User:     p.User,
		Password: p.Password,
	}
	if props.Port == "" {
		props.Port = database.DefaultPort
	}
	return props
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeFailure maps an error to a status code.
func writeFailure(w http.ResponseWriter, err error) {
	var (
		logicErr  *database.LogicError
		driverErr *query.DriverError
		loadErr   *query.LoadError
	)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrUnknownEntry):
		status = http.StatusNotFound
	case errors.As(err, &logicErr):
		status = http.StatusConflict
	case errors.Is(err, database.ErrUnknownDatabase):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &driverErr):
		status = http.StatusBadGateway
	case errors.As(err, &loadErr):
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		log.Errorw("request failed", "error", err)
	}
	writeError(w, status, err.Error())
}

// selectEntry makes the {id} of the request current.
func (s *Server) selectEntry(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid database id")
		return uuid.Nil, false
	}
	if err := s.session.Select(id); err != nil {
		writeFailure(w, err)
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) writeEntry(w http.ResponseWriter, status int, id uuid.UUID) {
	snap, err := s.session.Entry(id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, status, snap)
}

func (s *Server) handleListDatabases(w http.ResponseWriter, r *http.Request) {
	resp := DatabaseListResponse{Databases: s.session.Entries()}
	if cur := s.session.Current(); cur != uuid.Nil {
		resp.Current = &cur
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAddDatabase(w http.ResponseWriter, r *http.Request) {
	var req PropertiesRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	id := s.session.AddNew()
	if _, err := s.session.SetProperties(req.properties()); err != nil {
		writeFailure(w, err)
		return
	}
	s.writeEntry(w, http.StatusCreated, id)
}

func (s *Server) handleGetDatabase(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid database id")
		return
	}
	s.writeEntry(w, http.StatusOK, id)
}

// handleUpdateDatabase replaces the connection properties and, for a
// registered entry, saves them to the catalog.
func (s *Server) handleUpdateDatabase(w http.ResponseWriter, r *http.Request) {
	id, ok := s.selectEntry(w, r)
	if !ok {
		return
	}
	var req PropertiesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	changes, saved, err := s.session.UpdateProperties(r.Context(), req.properties())
	if err != nil {
		writeFailure(w, err)
		return
	}
	snap, err := s.session.Entry(id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UpdateResponse{Database: snap, Changes: changes, Saved: saved})
}

func (s *Server) handleRemoveDatabase(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.selectEntry(w, r); !ok {
		return
	}
	if err := s.session.Remove(r.Context()); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	id, ok := s.selectEntry(w, r)
	if !ok {
		return
	}
	outcome, err := s.session.Register(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	snap, err := s.session.Entry(id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RegisterResponse{Outcome: outcome.String(), Database: snap})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	id, ok := s.selectEntry(w, r)
	if !ok {
		return
	}
	if err := s.session.ConnectCurrent(r.Context()); err != nil {
		writeFailure(w, err)
		return
	}
	s.writeEntry(w, http.StatusOK, id)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.selectEntry(w, r); !ok {
		return
	}
	res, err := s.session.Sync(r.Context())
	if err != nil && !errors.Is(err, database.ErrNoChanges) {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.selectEntry(w, r); !ok {
		return
	}
	settings, err := s.session.OperationalSettings(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.selectEntry(w, r); !ok {
		return
	}
	batch, err := s.session.CurrentBatch()
	if err != nil {
		writeFailure(w, err)
		return
	}
	groups := batch.Groups()
	if groups == nil {
		groups = []database.TransactionGroup{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.selectEntry(w, r); !ok {
		return
	}
	entries, err := s.session.LogEntries(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	dir, err := session.ParseDirection(r.PathValue("direction"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cur, err := s.session.Navigate(dir)
	switch {
	case errors.Is(err, session.ErrBoundary):
		writeJSON(w, http.StatusOK, NavigateResponse{Current: cur, Moved: false})
	case err != nil:
		writeFailure(w, err)
	default:
		writeJSON(w, http.StatusOK, NavigateResponse{Current: cur, Moved: true})
	}
}
