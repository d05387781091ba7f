// Package session persists conversations so a chat can be resumed later.
package session

import (
	"context"
	"errors"
	"strings"

	"github.com/samsaffron/toolchat/internal/llm"
)

// ErrNotFound is returned when a session id does not resolve.
var ErrNotFound = errors.New("session not found")

// Store is the interface for session persistence.
type Store interface {
	// Session CRUD
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Rename(ctx context.Context, id, name string) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, opts ListOptions) ([]Summary, error)

	// Turn operations. Turns are stored in history order.
	AppendTurn(ctx context.Context, sessionID string, turn llm.Turn) error
	Turns(ctx context.Context, sessionID string) (llm.History, error)
	TruncateTurns(ctx context.Context, sessionID string, keep int) error

	// Metrics for incremental saving
	AddMetrics(ctx context.Context, id string, m Metrics) error
	UpdateStatus(ctx context.Context, id string, status Status) error

	// Current session tracking for "--resume last"
	SetCurrent(ctx context.Context, sessionID string) error
	GetCurrent(ctx context.Context) (*Session, error)

	Close() error
}

// NewStore opens the SQLite store at path, or a no-op store when sessions
// are disabled.
func NewStore(enabled bool, path string) (Store, error) {
	if !enabled {
		return &NoopStore{}, nil
	}
	return NewSQLiteStore(path)
}

// Resolve finds a session by reference: "last" means the current session,
// anything else is an id or a unique id prefix.
func Resolve(ctx context.Context, store Store, ref string) (*Session, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || ref == "last" {
		sess, err := store.GetCurrent(ctx)
		if err != nil {
			return nil, err
		}
		if sess == nil {
			return nil, ErrNotFound
		}
		return sess, nil
	}

	sess, err := store.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		return sess, nil
	}

	summaries, err := store.List(ctx, ListOptions{Limit: -1})
	if err != nil {
		return nil, err
	}
	var match string
	for _, s := range summaries {
		if strings.HasPrefix(s.ID, ref) {
			if match != "" {
				return nil, errors.New("ambiguous session id: " + ref)
			}
			match = s.ID
		}
	}
	if match == "" {
		return nil, ErrNotFound
	}
	return store.Get(ctx, match)
}
