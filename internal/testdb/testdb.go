// Package testdb opens throwaway in-memory SQLite databases with the same
// gorm settings the service uses against PostgreSQL.
package testdb

import (
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/compliance_api/internal/models"
	"github.com/Skotchmaster/compliance_api/pkg/db"
)

func New(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	cfg := db.GormConfig()
	cfg.PrepareStmt = false
	gdb, err := gorm.Open(sqlite.Open(dsn), cfg)
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, gdb.AutoMigrate(&models.User{}, &models.RefreshToken{}))
	return gdb
}

// BeforeFirstUpdate calls fn with the statement of the first UPDATE issued
// against table, right before it runs. fn may interleave a competing write
// on the same connection through tx.Session(&gorm.Session{NewDB: true}), or
// fail the statement with tx.AddError.
func BeforeFirstUpdate(t testing.TB, gdb *gorm.DB, table string, fn func(tx *gorm.DB)) {
	t.Helper()

	var fired atomic.Bool
	err := gdb.Callback().Update().Before("gorm:update").Register("testdb:before_first_update", func(tx *gorm.DB) {
		if tx.Statement.Table != table || !fired.CompareAndSwap(false, true) {
			return
		}
		fn(tx)
	})
	require.NoError(t, err)
}
