package database

import "f0oster/dbtracker/query"

// Template resources used by the catalog and by tracked databases. Catalog
// statements ship for every dialect; source statements read SQL Server system
// views and the transaction log.
const (
	// catalog
	CreateTrackingTable        query.Resource = "create_tracking_table"
	ListOfTrackedDatabases     query.Resource = "list_of_tracked_databases"
	CheckIfDBIsAlreadyTracked  query.Resource = "check_if_db_is_already_tracked"
	TrackNewDatabase           query.Resource = "track_new_database"
	StopTrackingOfDatabase     query.Resource = "stop_tracking_of_database"
	UpdateDBConnectionSettings query.Resource = "update_db_connection_settings"
	CreateNewLogTable          query.Resource = "create_new_log_table"
	DropLogTable               query.Resource = "drop_log_table"
	UpdateLogTableWithNewData  query.Resource = "update_log_table_with_new_data"
	ListLogTableContents       query.Resource = "list_log_table_contents"

	// source
	DeriveIDFromDatabaseName    query.Resource = "derive_id_from_database_name"
	DeriveNameFromDatabaseID    query.Resource = "derive_name_from_database_id"
	RetrieveOperationalSettings query.Resource = "retrieve_operational_settings"
	RetrieveLastLSN             query.Resource = "retrieve_last_lsn"
	RetrieveChangesSinceLSN     query.Resource = "retrieve_changes_since_lsn"
)

