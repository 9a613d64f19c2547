package tester

import (
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dgraph-io/badger/v3"
	"github.com/emrgen/notesync/internal/blob"
	"github.com/emrgen/notesync/internal/model"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Tables enables every optional table, tests run in dual-write mode unless they opt out.
var Tables = model.Tables{
	NoteTags:    model.NoteTagsTable,
	Attachments: "attachments",
}

// TestDB opens a migrated sqlite database private to the test.
func TestDB(t testing.TB) *gorm.DB {
	return TestDBWithTables(t, Tables)
}

func TestDBWithTables(t testing.TB, tables model.Tables) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "notesync.db")
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	// sqlite allows a single writer
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := model.Migrate(db, tables); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	return db
}

// BlobStore returns an in-memory badger blob store.
func BlobStore(t testing.TB) *blob.BadgerStore {
	t.Helper()

	bs, err := blob.NewBadgerStore(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("open blob store: %v", err)
	}
	t.Cleanup(func() {
		if err := bs.Close(); err != nil {
			logrus.Errorf("close blob store: %v", err)
		}
	})

	return bs
}

// Redis returns a client connected to a throwaway miniredis server.
func Redis(t testing.TB) *redis.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}
