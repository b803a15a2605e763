package database

import (
	"github.com/google/uuid"
)

// TrackingRecord represents a row in the TrackedDatabases table.
// Passwords are never part of it.
type TrackingRecord struct {
	ID           uuid.UUID
	ServerName   string
	Port         string
	DatabaseID   int
	DatabaseName string
	UserName     string
}

// Properties returns the connection properties stored for the record.
func (r TrackingRecord) Properties() ConnectionProperties {
	return ConnectionProperties{
		Server:   r.ServerName,
		Port:     r.Port,
		Database: r.DatabaseName,
		User:     r.UserName,
	}
}

// LogRecord is one row read from the transaction log of a tracked database.
type LogRecord struct {
	ObjectName      string `json:"objectName"`
	Operation       string `json:"operation"`
	TransactionName string `json:"transactionName"`
	TransactionID   string `json:"transactionId"`
	BeginTime       string `json:"beginTime"`
	EndTime         string `json:"endTime"`
	Description     string `json:"description"`
	User            string `json:"user"`
	LSN             string `json:"lsn"`
}

// LogSummary represents a row in a per-database log table: one synchronised
// transaction.
type LogSummary struct {
	ID              int64  `json:"id"`
	TransactionID   string `json:"transactionId"`
	TransactionName string `json:"transactionName"`
	BeginTime       string `json:"beginTime"`
	EndTime         string `json:"endTime"`
	UserName        string `json:"userName"`
	BeginLSN        string `json:"beginLsn"`
	EndLSN          string `json:"endLsn"`
	SyncedAt        string `json:"syncedAt"`
}
