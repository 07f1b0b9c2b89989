package testutil

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	appdb "github.com/yungbote/docsync-backend/internal/data/db"
	"github.com/yungbote/docsync-backend/internal/platform/logger"
)

var dbSeq atomic.Int64

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	log, err := logger.New("test")
	if err != nil {
		tb.Fatalf("failed to init logger: %v", err)
	}
	return log
}

// DB returns a migrated database. TEST_POSTGRES_DSN selects a real Postgres
// (tables are truncated first); otherwise each call gets a private in-memory
// sqlite database with foreign keys enforced.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	cfg := &gorm.Config{Logger: gormLogger.Default.LogMode(gormLogger.Silent)}

	var (
		db  *gorm.DB
		err error
	)
	if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
		db, err = gorm.Open(postgres.Open(dsn), cfg)
		if err != nil {
			tb.Fatalf("open postgres: %v", err)
		}
		if err := appdb.Migrate(db); err != nil {
			tb.Fatalf("migrate: %v", err)
		}
		if err := db.Exec(`TRUNCATE file_change, tracked_file, subscription, drive CASCADE`).Error; err != nil {
			tb.Fatalf("truncate: %v", err)
		}
	} else {
		name := fmt.Sprintf("file:docsync_test_%d?mode=memory&cache=shared&_foreign_keys=on", dbSeq.Add(1))
		db, err = gorm.Open(sqlite.Open(name), cfg)
		if err != nil {
			tb.Fatalf("open sqlite: %v", err)
		}
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			tb.Fatalf("enable foreign keys: %v", err)
		}
		if err := appdb.Migrate(db); err != nil {
			tb.Fatalf("migrate: %v", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("sql db: %v", err)
	}
	if os.Getenv("TEST_POSTGRES_DSN") == "" {
		// A shared-cache memory database lives as long as one connection does.
		sqlDB.SetMaxOpenConns(1)
	}
	tb.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func Tx(tb testing.TB, db *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := db.WithContext(context.Background()).Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}
