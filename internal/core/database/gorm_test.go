package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDriver(t *testing.T) {
	cases := []struct {
		driver, dsn, want string
	}{
		{"", "", DriverSQLite},
		{"", "data/app.db", DriverSQLite},
		{"", "mysql://root:pw@localhost:3306/appdb", DriverMySQL},
		{"", "jdbc:mysql://localhost:3306/appdb", DriverMySQL},
		{"", "postgres://u:p@localhost/app", DriverPostgres},
		{"", "postgresql://u:p@localhost/app", DriverPostgres},
		{"MySQL", "", DriverMySQL},
		{"pg", "", DriverPostgres},
		{"sqlite3", "", DriverSQLite},
		{"oracle", "", "oracle"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ResolveDriver(c.driver, c.dsn), "driver=%q dsn=%q", c.driver, c.dsn)
	}
}

func TestNormalizeMySQLDSN(t *testing.T) {
	got := normalizeMySQLDSN("jdbc:mysql://db.local:3306/appdb?useSSL=false&serverTimezone=UTC&characterEncoding=utf8", "root", "secret")
	assert.Equal(t, "root:secret@tcp(db.local:3306)/appdb?charset=utf8&loc=UTC&parseTime=true&tls=false", got)

	// go-sql-driver 原生 DSN 保持不变
	raw := "root:pw@tcp(127.0.0.1:3306)/appdb?parseTime=true"
	assert.Equal(t, raw, normalizeMySQLDSN(raw, "x", "y"))

	assert.Equal(t, "u:p@tcp(h:1)/d?charset=utf8mb4&parseTime=true", normalizeMySQLDSN("mysql://u:p@h:1/d", "", ""))
	assert.Equal(t, "", normalizeMySQLDSN("  ", "", ""))
}

func TestMaskDSN(t *testing.T) {
	assert.Equal(t, "root:****@tcp(h:1)/d", maskDSN("root:secret@tcp(h:1)/d"))
	assert.Equal(t, "data/app.db", maskDSN("data/app.db"))
}

func TestNormalizeSQLiteDSN(t *testing.T) {
	assert.Equal(t, "a.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", normalizeSQLiteDSN("a.db"))
	assert.Equal(t, "file:a.db?mode=ro", normalizeSQLiteDSN("file:a.db?mode=ro"))
}

func TestPoolSize(t *testing.T) {
	open, idle := poolSize(DriverSQLite, 0, 0)
	assert.Equal(t, 1, open)
	assert.Equal(t, 1, idle)

	open, idle = poolSize(DriverMySQL, 0, 0)
	assert.Equal(t, 10, open)
	assert.Equal(t, 10, idle)

	open, idle = poolSize(DriverPostgres, 4, 8)
	assert.Equal(t, 4, open)
	assert.Equal(t, 4, idle)
}

func TestNewGormSQLiteCreatesDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "app.db")
	db, err := NewGorm(Opts{Driver: DriverSQLite, DSN: path, LogLevel: "silent"})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, sqlDB.Ping())
	_, err = os.Stat(filepath.Dir(path))
	assert.NoError(t, err)
}

func TestNewGormUnsupportedDriver(t *testing.T) {
	_, err := NewGorm(Opts{Driver: "oracle"})
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}
