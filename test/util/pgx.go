package util

import (
	stdsql "database/sql"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver for database/sql
)

func openPgx(connStr string) (*stdsql.DB, error) {
	return stdsql.Open("pgx", connStr)
}
