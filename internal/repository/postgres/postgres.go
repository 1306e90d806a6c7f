package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/terror/internal/domain"
	"github.com/splax/terror/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.ErrorRecordRepository = (*Repository)(nil)
	_ repository.HealthChecker         = (*Repository)(nil)
)

// Connect opens a pool for dsn. A non-empty database overrides the database named
// in the DSN.
func Connect(ctx context.Context, dsn, database string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if name := strings.TrimSpace(database); name != "" {
		cfg.ConnConfig.Database = name
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	return pool, nil
}

const insertErrorRecord = `INSERT INTO error_records (id, created_at, msg, type, details, request, response, document)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// InsertErrorRecord acquires a connection, inserts rec and releases the connection.
func (r *Repository) InsertErrorRecord(ctx context.Context, rec domain.ErrorRecord) error {
	args, err := insertArgs(rec)
	if err != nil {
		return err
	}
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("%w: acquire connection: %v", repository.ErrStore, err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, insertErrorRecord, args...); err != nil {
		return mapError(err)
	}
	return nil
}

// Ping checks the pool can reach the database.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// insertArgs orders the INSERT parameters. The msg and details columns are
// text, which rejects NUL and invalid UTF-8, so they hold a cleaned copy; the
// json columns keep the record as captured.
func insertArgs(rec domain.ErrorRecord) ([]any, error) {
	doc := rec.Document()
	details := make([]string, 0, len(doc.Details))
	for _, line := range doc.Details {
		details = append(details, textColumn(line))
	}
	request, err := json.Marshal(doc.Request)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", repository.ErrInvalidArgument, err)
	}
	response, err := json.Marshal(doc.Response)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal response: %v", repository.ErrInvalidArgument, err)
	}
	document, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal document: %v", repository.ErrInvalidArgument, err)
	}
	return []any{rec.ID, doc.CreatedAt, textColumn(doc.Msg), textColumn(doc.Type), details, request, response, document}, nil
}

func textColumn(s string) string {
	return strings.ReplaceAll(strings.ToValidUTF8(s, "\uFFFD"), "\x00", "\uFFFD")
}

func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", repository.ErrDuplicate, pgErr.Message)
		case "22P02", "22021", "22P05":
			return fmt.Errorf("%w: %s", repository.ErrInvalidArgument, pgErr.Message)
		}
		return fmt.Errorf("insert error record: %w", err)
	}
	return fmt.Errorf("%w: %v", repository.ErrStore, err)
}
