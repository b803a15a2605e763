package session

import (
	"strconv"
	"time"

	"f0oster/dbtracker/database"

	"github.com/google/uuid"
)

// Snapshot is a read-only view of one entry for presentation layers.
type Snapshot struct {
	// ID is the entry's identity.
	ID uuid.UUID `json:"id"`

	// Label is the server-assigned database id, or "new" before registration.
	Label string `json:"label"`

	DatabaseID int  `json:"databaseId"`
	Registered bool `json:"registered"`
	Connected  bool `json:"connected"`
	Current    bool `json:"current"`

	Properties database.ConnectionProperties `json:"properties"`
	LogTable   string                        `json:"logTable"`

	// Transactions is the size of the last fetched batch.
	Transactions int `json:"transactions"`

	// Timestamp records when this snapshot was taken.
	Timestamp time.Time `json:"timestamp"`
}

func newSnapshot(tdb *database.TrackedDatabase, current bool) Snapshot {
	label := "new"
	if tdb.Registered() {
		label = strconv.Itoa(tdb.DatabaseID())
	}
	props := tdb.Properties()
	props.Password = ""

	return Snapshot{
		ID:           tdb.ID(),
		Label:        label,
		DatabaseID:   tdb.DatabaseID(),
		Registered:   tdb.Registered(),
		Connected:    tdb.Connected(),
		Current:      current,
		Properties:   props,
		LogTable:     tdb.LogTableName(),
		Transactions: tdb.Batch().Len(),
		Timestamp:    time.Now(),
	}
}
