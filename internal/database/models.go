package database

import "time"

// RefreshRun is one tree refresh as stored in the history table.
type RefreshRun struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Key        string    `gorm:"not null;index" json:"key"`
	StartedAt  time.Time `gorm:"not null;index" json:"started_at"`
	FinishedAt time.Time `gorm:"not null" json:"finished_at"`
	DurationMs int64     `gorm:"not null;default:0" json:"duration_ms"`
	Nodes      int       `gorm:"not null;default:0" json:"nodes"`
	Status     string    `gorm:"not null;default:ok" json:"status"` // "ok" or "failed"
	Error      string    `gorm:"type:text" json:"error,omitempty"`
}

const (
	RefreshStatusOK     = "ok"
	RefreshStatusFailed = "failed"
)
