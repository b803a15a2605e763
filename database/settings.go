package database

// Setting names one operational property of a tracked database.
type Setting string

const (
	LastFullBackup Setting = "LastFullBackup"
	LastDiffBackup Setting = "LastDiffBackup"
	LastLogBackup  Setting = "LastLogBackup"
	RecoveryModel  Setting = "RecoveryModel"
	State          Setting = "State"
)

// NoValue stands in for a setting the server reported as NULL.
const NoValue = "N/A"

// Settings lists every key of OperationalSettings in display order.
var Settings = []Setting{LastFullBackup, LastDiffBackup, LastLogBackup, RecoveryModel, State}

// OperationalSettings holds a value for every key in Settings.
type OperationalSettings map[Setting]string
