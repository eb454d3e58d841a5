package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}

func TestTuitionUniquenessIsDeclared(t *testing.T) {
	body, err := fs.ReadFile(embeddedMigrations, migrationsDir+"/000001_tuition_billing.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "UNIQUE (student_id, semester_id, billing_mode, resource_id)")
}

func TestApplySQLiteSchemaIsIdempotentAndKeyed(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, Migrate(db))
	require.NoError(t, Migrate(db))

	insert := `INSERT INTO tuitions (id, student_id, semester_id, billing_mode, resource_id, base_amount, final_amount, due_date, status, created_at, updated_at)
		VALUES (?, 1, 2, 'FLAT', 0, 100, 100, '2024-10-01', 'UNPAID', '2024-09-01', '2024-09-01')`
	require.NoError(t, db.Exec(insert, 10).Error)
	assert.Error(t, db.Exec(insert, 11).Error)
}

func TestDialectSchemasDeclareTuitionKey(t *testing.T) {
	for _, dialect := range []string{"sqlite", "mysql"} {
		body, err := dialectSchemas.ReadFile("schema/" + dialect + ".sql")
		require.NoError(t, err, dialect)
		assert.Contains(t, string(body), "UNIQUE (student_id, semester_id, billing_mode, resource_id)", dialect)
		assert.Len(t, statements(string(body)), strings.Count(string(body), ";"), dialect)
	}
}

func TestApplySchemaRejectsUnknownDialect(t *testing.T) {
	assert.ErrorIs(t, ApplySchema(nil, "oracle"), ErrUnsupportedSchema)
}
