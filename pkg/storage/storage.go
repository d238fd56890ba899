// Package storage defines the transcript store interface shared by the
// in-memory and postgres implementations. A transcript is the normalized
// final result of one request: visible text, thinking, completed tool
// calls, usage, and how the stream ended. Individual streaming events
// are never persisted.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/tributary-ai/tributary/pkg/api"
	"github.com/tributary-ai/tributary/pkg/toolcall"
)

// Sentinel errors for storage operations.
var (
	// ErrNotFound is returned when a transcript does not exist.
	ErrNotFound = errors.New("transcript not found")

	// ErrConflict is returned when a transcript with the given ID already exists.
	ErrConflict = errors.New("transcript already exists")
)

// Transcript is the persisted record of one normalized completion.
type Transcript struct {
	ID           string               `json:"id"`
	Provider     string               `json:"provider"`
	Model        string               `json:"model"`
	Text         string               `json:"text"`
	Thinking     string               `json:"thinking,omitempty"`
	ToolCalls    []toolcall.Completed `json:"tool_calls,omitempty"`
	FinishReason api.FinishReason     `json:"finish_reason,omitempty"`
	Usage        *api.Usage           `json:"usage,omitempty"`
	Retried      bool                 `json:"retried,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
}

// Store persists transcripts.
type Store interface {
	// Save persists a transcript. Returns ErrConflict if the ID exists.
	Save(ctx context.Context, tr *Transcript) error

	// Get retrieves a transcript by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*Transcript, error)

	// List returns the most recent transcripts, newest first, up to limit.
	// A limit of 0 means no limit.
	List(ctx context.Context, limit int) ([]*Transcript, error)

	// Delete removes a transcript by ID. Returns ErrNotFound if absent.
	Delete(ctx context.Context, id string) error

	// Close releases any resources held by the store.
	Close() error
}
