package migration

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

//go:embed schema/*.sql
var dialectSchemas embed.FS

var ErrUnsupportedSchema = errors.New("unsupported_schema_dialect")

// Migrate brings the schema up to date for the connection's dialect. Postgres
// goes through versioned migrations; sqlite and mysql get an idempotent
// snapshot of the same tables and keys.
func Migrate(conn *gorm.DB) error {
	switch name := conn.Dialector.Name(); name {
	case "postgres":
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	case "sqlite", "mysql":
		return ApplySchema(conn, name)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedSchema, name)
	}
}

// ApplySchema executes the embedded schema snapshot for dialect.
func ApplySchema(conn *gorm.DB, dialect string) error {
	body, err := dialectSchemas.ReadFile("schema/" + dialect + ".sql")
	if err != nil {
		return fmt.Errorf("%w: %q", ErrUnsupportedSchema, dialect)
	}
	for _, stmt := range statements(string(body)) {
		if err := conn.Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply %s schema: %w", dialect, err)
		}
	}
	return nil
}

func statements(body string) []string {
	parts := strings.Split(body, ";")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if stmt := strings.TrimSpace(part); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
