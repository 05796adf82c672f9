package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/carelink/emr-connector/internal/config"

	_ "github.com/lib/pq"
)

// InitializeDatabaseConnection opens the connection pool against the
// destination patient-record store.
func InitializeDatabaseConnection(cfg *config.Config) (*sql.DB, error) {

	psqlConnectionInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s TimeZone=UTC",
		cfg.DestinationDatabaseHost,
		cfg.DestinationDatabasePort,
		cfg.DestinationDatabaseUser,
		cfg.DestinationDatabasePassword,
		cfg.DestinationDatabaseName)

	sslSettings, err := buildPostgresSslConfigString(cfg)
	if err != nil {
		return nil, err
	}

	psqlConnectionInfo += " " + sslSettings

	return sql.Open("postgres", psqlConnectionInfo)
}

func buildPostgresSslConfigString(cfg *config.Config) (string, error) {
	if cfg.DestinationDatabaseSslMode == "disable" {
		return "sslmode=disable", nil
	} else if cfg.DestinationDatabaseSslMode == "verify-full" {
		return "sslmode=verify-full sslrootcert=" + cfg.DestinationDatabaseSslRootCert, nil
	} else {
		return "", errors.New("Invalid SSL configuration for database connection: " + cfg.DestinationDatabaseSslMode)
	}
}
