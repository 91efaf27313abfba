package ftpproxy

import (
	"context"
	"time"
)

// Metrics receives counters from the Manager. internal/metrics provides the
// Prometheus implementation.
type Metrics interface {
	SetOpenSessions(n int)
	ObserveOp(op string, err error)
	ObserveRefresh(d time.Duration, err error)
	ObserveHealthCheck(err error)
	SetCachedNodes(n int)
}

type nopMetrics struct{}

func (nopMetrics) SetOpenSessions(int)                 {}
func (nopMetrics) ObserveOp(string, error)             {}
func (nopMetrics) ObserveRefresh(time.Duration, error) {}
func (nopMetrics) ObserveHealthCheck(error)            {}
func (nopMetrics) SetCachedNodes(int)                  {}

// RefreshRun describes one refresher tick.
type RefreshRun struct {
	Key        string
	StartedAt  time.Time
	FinishedAt time.Time
	Nodes      int
	Err        error
}

// RefreshRecorder stores refresh history. internal/database provides the
// gorm implementation.
type RefreshRecorder interface {
	RecordRefresh(ctx context.Context, run RefreshRun) error
}
