package db

import (
	"database/sql"
)

// Querier is satisfied by *sql.DB, *sql.Tx and Tx; store helpers take it so
// they run equally inside and outside transactions.
type Querier interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}
