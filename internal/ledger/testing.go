package ledger

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/crowdrank/crowdrank-backend/pkg/logging"
)

// NewTestStore opens an in-memory sqlite store scoped to the test name,
// migrates the schema, and closes it when the test finishes. The single
// connection keeps the shared-cache database alive for the whole test.
func NewTestStore(t *testing.T) *Store {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access test connection pool: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := NewStore(db, logging.NewNoOpLogger())
	if err := store.Migrate(); err != nil {
		t.Fatalf("failed to migrate test schema: %v", err)
	}
	return store
}
