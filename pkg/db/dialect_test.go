package db

import (
	"testing"

	"github.com/smallbiznis/bursar/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectByType(t *testing.T) {
	cases := map[string]string{
		"postgres":   "postgres",
		"PostgreSQL": "postgres",
		"mysql":      "mysql",
		"sqlite":     "sqlite",
	}
	for dbType, want := range cases {
		d, err := Dialect(config.Config{DBType: dbType, DBPath: "test.db"})
		require.NoError(t, err, dbType)
		assert.Equal(t, want, d.Name(), dbType)
	}

	_, err := Dialect(config.Config{DBType: "oracle"})
	assert.ErrorIs(t, err, ErrUnsupportedDialect)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "bursar.db?_foreign_keys=on&_busy_timeout=5000", sqliteDSN(""))
	assert.Equal(t, "file::memory:?cache=shared", sqliteDSN("file::memory:?cache=shared"))
}
