package db

import (
	"database/sql"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const dialectSQLite = "sqlite"

// ReadCommitted returns transaction options for READ COMMITTED isolation.
// SQLite has a single isolation mode and rejects explicit levels, so nil is
// returned there.
func ReadCommitted(db *gorm.DB) *sql.TxOptions {
	if isSQLite(db) {
		return nil
	}
	return &sql.TxOptions{Isolation: sql.LevelReadCommitted}
}

// ForUpdate adds a row lock to the next query. SQLite serialises writers on
// the database file and has no FOR UPDATE.
func ForUpdate(db *gorm.DB) *gorm.DB {
	if isSQLite(db) {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func isSQLite(db *gorm.DB) bool {
	return db != nil && db.Dialector != nil && db.Dialector.Name() == dialectSQLite
}
