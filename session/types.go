package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyCatalog    = errors.New("catalog holds no tracked databases")
	ErrNoCurrent       = errors.New("no current entry")
	ErrUnknownEntry    = errors.New("no entry with that id")
	ErrBoundary        = errors.New("no entry in that direction")
	ErrMissingDatabase = errors.New("connection properties name no database")
)

// Direction selects the entry Navigate moves to.
type Direction int

const (
	First Direction = iota
	Previous
	Next
	Last
)

var directionNames = map[Direction]string{
	First:    "first",
	Previous: "previous",
	Next:     "next",
	Last:     "last",
}

func (d Direction) String() string {
	if name, ok := directionNames[d]; ok {
		return name
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// ParseDirection accepts first, previous/prev, next and last.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "first":
		return First, nil
	case "previous", "prev":
		return Previous, nil
	case "next":
		return Next, nil
	case "last":
		return Last, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// RegisterOutcome tells a successful registration from a duplicate.
type RegisterOutcome int

const (
	Registered RegisterOutcome = iota
	AlreadyTracked
)

func (o RegisterOutcome) String() string {
	if o == AlreadyTracked {
		return "already tracked"
	}
	return "registered"
}

// SyncResult summarises one log synchronisation.
type SyncResult struct {
	From         string `json:"from"`
	Transactions int    `json:"transactions"`
	Records      int    `json:"records"`
	Inserted     int64  `json:"inserted"`
}
