// Package postgres provides a PostgreSQL implementation of storage.Store.
// It uses pgx/v5 for connection pooling and JSONB for the tool-call
// payload.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tributary-ai/tributary/pkg/api"
	"github.com/tributary-ai/tributary/pkg/storage"
	"github.com/tributary-ai/tributary/pkg/toolcall"
)

// Store is a PostgreSQL-backed transcript store.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

// New creates a PostgreSQL store with the given configuration. If
// MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}
	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}
	return s, nil
}

// Save persists a transcript.
func (s *Store) Save(ctx context.Context, tr *storage.Transcript) error {
	var toolCallsJSON []byte
	if len(tr.ToolCalls) > 0 {
		var err error
		toolCallsJSON, err = json.Marshal(tr.ToolCalls)
		if err != nil {
			return fmt.Errorf("marshaling tool calls: %w", err)
		}
	}

	var usageIn, usageOut, usageTotal int
	if tr.Usage != nil {
		usageIn = tr.Usage.InputTokens
		usageOut = tr.Usage.OutputTokens
		usageTotal = tr.Usage.TotalTokens
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO transcripts (
			id, provider, model, text, thinking, tool_calls,
			finish_reason, usage_input_tokens, usage_output_tokens,
			usage_total_tokens, retried, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		tr.ID, tr.Provider, tr.Model, tr.Text, tr.Thinking, nullJSON(toolCallsJSON),
		string(tr.FinishReason), usageIn, usageOut, usageTotal, tr.Retried, tr.CreatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting transcript: %w", err)
	}
	return nil
}

// Get retrieves a transcript by ID.
func (s *Store) Get(ctx context.Context, id string) (*storage.Transcript, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, provider, model, text, thinking, tool_calls,
		       finish_reason, usage_input_tokens, usage_output_tokens,
		       usage_total_tokens, retried, created_at
		FROM transcripts
		WHERE id = $1
	`, id)

	tr, err := scanTranscript(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying transcript: %w", err)
	}
	return tr, nil
}

// List returns the most recent transcripts, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*storage.Transcript, error) {
	query := `
		SELECT id, provider, model, text, thinking, tool_calls,
		       finish_reason, usage_input_tokens, usage_output_tokens,
		       usage_total_tokens, retried, created_at
		FROM transcripts
		ORDER BY created_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying transcripts: %w", err)
	}
	defer rows.Close()

	var out []*storage.Transcript
	for rows.Next() {
		tr, err := scanTranscript(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transcript: %w", err)
		}
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transcripts: %w", err)
	}
	return out, nil
}

// Delete removes a transcript by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.pool.Exec(ctx, "DELETE FROM transcripts WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting transcript: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTranscript(row rowScanner) (*storage.Transcript, error) {
	var tr storage.Transcript
	var finishReason string
	var toolCallsJSON *[]byte
	var usageIn, usageOut, usageTotal int

	err := row.Scan(
		&tr.ID, &tr.Provider, &tr.Model, &tr.Text, &tr.Thinking, &toolCallsJSON,
		&finishReason, &usageIn, &usageOut, &usageTotal, &tr.Retried, &tr.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	tr.FinishReason = api.FinishReason(finishReason)
	if toolCallsJSON != nil {
		var calls []toolcall.Completed
		if err := json.Unmarshal(*toolCallsJSON, &calls); err != nil {
			return nil, fmt.Errorf("unmarshaling tool calls: %w", err)
		}
		tr.ToolCalls = calls
	}
	if usageIn != 0 || usageOut != 0 || usageTotal != 0 {
		tr.Usage = &api.Usage{
			InputTokens:  usageIn,
			OutputTokens: usageOut,
			TotalTokens:  usageTotal,
		}
	}
	return &tr, nil
}

// isDuplicateKey reports whether the error is a unique constraint violation.
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// nullJSON converts nil/empty byte slices to nil for nullable JSONB columns.
func nullJSON(b []byte) *[]byte {
	if len(b) == 0 {
		return nil
	}
	return &b
}
