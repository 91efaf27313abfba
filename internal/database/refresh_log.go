package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/gluk-w/ftpgate/internal/ftpproxy"
)

// RefreshLog stores refresher ticks and keeps only the newest keep rows.
type RefreshLog struct {
	db   *gorm.DB
	keep int
}

// NewRefreshLog returns a history store over db. keep <= 0 disables pruning.
func NewRefreshLog(db *gorm.DB, keep int) *RefreshLog {
	return &RefreshLog{db: db, keep: keep}
}

// RecordRefresh implements ftpproxy.RefreshRecorder.
func (l *RefreshLog) RecordRefresh(ctx context.Context, run ftpproxy.RefreshRun) error {
	row := RefreshRun{
		Key:        run.Key,
		StartedAt:  run.StartedAt.UTC(),
		FinishedAt: run.FinishedAt.UTC(),
		DurationMs: run.FinishedAt.Sub(run.StartedAt).Milliseconds(),
		Nodes:      run.Nodes,
		Status:     RefreshStatusOK,
	}
	if run.Err != nil {
		row.Status = RefreshStatusFailed
		row.Error = run.Err.Error()
	}

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert refresh run: %w", err)
		}
		if l.keep <= 0 {
			return nil
		}
		// Drop everything older than the newest keep rows.
		cutoff := tx.Model(&RefreshRun{}).Select("id").Order("id DESC").Limit(l.keep)
		if err := tx.Where("id NOT IN (?)", cutoff).Delete(&RefreshRun{}).Error; err != nil {
			return fmt.Errorf("prune refresh runs: %w", err)
		}
		return nil
	})
}

// Recent returns up to limit runs, newest first.
func (l *RefreshLog) Recent(ctx context.Context, limit int) ([]RefreshRun, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []RefreshRun
	if err := l.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list refresh runs: %w", err)
	}
	return runs, nil
}
