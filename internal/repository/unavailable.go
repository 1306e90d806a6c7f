package repository

import (
	"context"
	"fmt"

	"github.com/splax/terror/internal/domain"
)

// Unavailable stands in for a store that could not be opened. Every write fails
// with ErrStore and Ping reports the original cause, so the service keeps
// answering while health checks show it degraded.
type Unavailable struct {
	Cause error
}

var (
	_ ErrorRecordRepository = Unavailable{}
	_ HealthChecker         = Unavailable{}
)

// InsertErrorRecord always fails.
func (u Unavailable) InsertErrorRecord(ctx context.Context, rec domain.ErrorRecord) error {
	return fmt.Errorf("%w: record %s not written: %v", ErrStore, rec.ID, u.Cause)
}

// Ping always fails.
func (u Unavailable) Ping(ctx context.Context) error {
	return fmt.Errorf("%w: %v", ErrStore, u.Cause)
}
