package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/splax/terror/internal/domain"
	"github.com/splax/terror/internal/repository"
)

const defaultPrefix = "terror"

// Repository appends error records to a Redis stream.
type Repository struct {
	client *redis.Client
	stream string
}

var (
	_ repository.ErrorRecordRepository = (*Repository)(nil)
	_ repository.HealthChecker         = (*Repository)(nil)
)

// Connect parses url, verifies the server answers and returns a Repository that
// writes to the "<database>:errors" stream.
func Connect(ctx context.Context, url, database string) (*Repository, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping redis: %v", repository.ErrStore, err)
	}
	return New(client, database), nil
}

// New wraps an existing client.
func New(client *redis.Client, database string) *Repository {
	return &Repository{client: client, stream: StreamName(database)}
}

// StreamName is the stream key records are appended to.
func StreamName(database string) string {
	prefix := strings.TrimSpace(database)
	if prefix == "" {
		prefix = defaultPrefix
	}
	return prefix + ":errors"
}

// InsertErrorRecord appends rec as one stream entry. Stream IDs must grow
// monotonically, so the server assigns the entry ID and the record is keyed by
// its "_id" field instead.
func (r *Repository) InsertErrorRecord(ctx context.Context, rec domain.ErrorRecord) error {
	args, err := r.xaddArgs(rec)
	if err != nil {
		return err
	}
	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("%w: xadd %s: %v", repository.ErrStore, r.stream, err)
	}
	return nil
}

// Ping checks the server answers.
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client.
func (r *Repository) Close() error {
	return r.client.Close()
}

func (r *Repository) xaddArgs(rec domain.ErrorRecord) (*redis.XAddArgs, error) {
	values, err := streamValues(rec)
	if err != nil {
		return nil, err
	}
	return &redis.XAddArgs{Stream: r.stream, ID: "*", Values: values}, nil
}

func streamValues(rec domain.ErrorRecord) (map[string]any, error) {
	doc := rec.Document()
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal document: %v", repository.ErrInvalidArgument, err)
	}
	return map[string]any{
		"_id":        doc.ID,
		"created_at": doc.CreatedAt.Format(time.RFC3339Nano),
		"type":       doc.Type,
		"document":   string(body),
	}, nil
}
