package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gluk-w/ftpgate/internal/ftpproxy"
)

// setupTestDB creates a file-backed SQLite database in a temp dir, so every
// pooled connection sees the same schema.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := db.AutoMigrate(&RefreshRun{}); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestRecordRefresh_SuccessAndFailure(t *testing.T) {
	log := NewRefreshLog(setupTestDB(t), 0)
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := log.RecordRefresh(ctx, ftpproxy.RefreshRun{
		Key:        "refresh-1",
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Nodes:      3,
	}); err != nil {
		t.Fatalf("RecordRefresh() error: %v", err)
	}
	if err := log.RecordRefresh(ctx, ftpproxy.RefreshRun{
		Key:        "refresh-2",
		StartedAt:  start.Add(time.Minute),
		FinishedAt: start.Add(time.Minute + time.Second),
		Err:        errors.New("550 no such directory"),
	}); err != nil {
		t.Fatalf("RecordRefresh() error: %v", err)
	}

	runs, err := log.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Recent() returned %d rows, want 2", len(runs))
	}
	failed, ok := runs[0], runs[1]
	if failed.Key != "refresh-2" || failed.Status != RefreshStatusFailed || failed.Error != "550 no such directory" {
		t.Errorf("newest run = %+v", failed)
	}
	if ok.Status != RefreshStatusOK || ok.Nodes != 3 || ok.DurationMs != 1500 || ok.Error != "" {
		t.Errorf("oldest run = %+v", ok)
	}
	if !ok.StartedAt.Equal(start) {
		t.Errorf("StartedAt = %v, want %v", ok.StartedAt, start)
	}
}

func TestRecordRefresh_Prunes(t *testing.T) {
	log := NewRefreshLog(setupTestDB(t), 3)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		now := time.Now()
		if err := log.RecordRefresh(ctx, ftpproxy.RefreshRun{
			Key:        fmt.Sprintf("refresh-%d", i),
			StartedAt:  now,
			FinishedAt: now,
		}); err != nil {
			t.Fatalf("RecordRefresh(%d) error: %v", i, err)
		}
	}

	runs, err := log.Recent(ctx, 100)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("kept %d rows, want 3", len(runs))
	}
	for i, want := range []string{"refresh-6", "refresh-5", "refresh-4"} {
		if runs[i].Key != want {
			t.Errorf("runs[%d].Key = %q, want %q", i, runs[i].Key, want)
		}
	}
}

func TestRecent_DefaultLimit(t *testing.T) {
	log := NewRefreshLog(setupTestDB(t), 0)
	ctx := context.Background()
	for i := 0; i < 60; i++ {
		now := time.Now()
		if err := log.RecordRefresh(ctx, ftpproxy.RefreshRun{Key: "k", StartedAt: now, FinishedAt: now}); err != nil {
			t.Fatalf("RecordRefresh() error: %v", err)
		}
	}
	runs, err := log.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(runs) != 50 {
		t.Errorf("Recent(0) returned %d rows, want 50", len(runs))
	}
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "ftpgate.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	sqlDB, _ := db.DB()
	defer sqlDB.Close()

	if !db.Migrator().HasTable(&RefreshRun{}) {
		t.Error("refresh_runs table missing after Open")
	}
}

func TestInitAndClose(t *testing.T) {
	if err := Init(filepath.Join(t.TempDir(), "ftpgate.db")); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	if DB == nil {
		t.Fatal("DB is nil after Init")
	}
	if err := Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	DB = nil
}
