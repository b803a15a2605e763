package config

import (
	"errors"
	"fmt"
	"io/fs"

	"f0oster/dbtracker/database"
	"f0oster/dbtracker/query"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix of every environment variable read by Load.
const Prefix = "DBTRACK"

// DefaultFile is the env file loaded when none is named.
const DefaultFile = "settings.env"

// Configuration is filled from DBTRACK_* environment variables, after the
// env file has been merged into the environment.
type Configuration struct {
	CatalogDialect  string `envconfig:"CATALOG_DIALECT" default:"sqlserver"`
	CatalogServer   string `envconfig:"CATALOG_SERVER" default:"."`
	CatalogPort     string `envconfig:"CATALOG_PORT" default:"1433"`
	CatalogDatabase string `envconfig:"CATALOG_DATABASE" default:"DBLogger"`
	CatalogUser     string `envconfig:"CATALOG_USER" default:"web"`
	CatalogPassword string `envconfig:"CATALOG_PASSWORD" default:"web"`

	SourceDialect  string `envconfig:"SOURCE_DIALECT" default:"sqlserver"`
	SourcePassword string `envconfig:"SOURCE_PASSWORD"`

	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load merges the env file into the process environment and reads the
// configuration. A missing file is not an error when it is the default one;
// variables already set in the environment win over the file.
func Load(file string) (Configuration, error) {
	var cfg Configuration

	name := file
	if name == "" {
		name = DefaultFile
	}
	if err := godotenv.Load(name); err != nil {
		if file != "" || !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", name, err)
		}
	}

	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return cfg, fmt.Errorf("read environment: %w", err)
	}
	return cfg, nil
}

// CatalogProperties returns the catalog connection properties.
func (c Configuration) CatalogProperties() database.ConnectionProperties {
	return database.ConnectionProperties{
		Server:   c.CatalogServer,
		Port:     c.CatalogPort,
		Database: c.CatalogDatabase,
		User:     c.CatalogUser,
		Password: c.CatalogPassword,
	}
}

// CatalogStore returns the statement store for the catalog dialect.
func (c Configuration) CatalogStore() (*query.Store, error) {
	d, err := query.DialectByName(c.CatalogDialect)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return query.NewStore(d), nil
}

// SourceStore returns the statement store for tracked databases.
func (c Configuration) SourceStore() (*query.Store, error) {
	d, err := query.DialectByName(c.SourceDialect)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	return query.NewStore(d), nil
}
