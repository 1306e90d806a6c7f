package repository

import (
	"context"

	"github.com/splax/terror/internal/domain"
)

// ErrorRecordRepository appends captured error records.
type ErrorRecordRepository interface {
	// InsertErrorRecord writes rec once, keyed by rec.ID.
	InsertErrorRecord(ctx context.Context, rec domain.ErrorRecord) error
}

// HealthChecker reports whether the store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
