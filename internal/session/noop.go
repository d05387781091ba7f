package session

import (
	"context"

	"github.com/samsaffron/toolchat/internal/llm"
)

// NoopStore is used when sessions are disabled. Writes are discarded and
// reads return nothing.
type NoopStore struct{}

var _ Store = (*NoopStore)(nil)

func (s *NoopStore) Create(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = NewID()
	}
	return nil
}

func (s *NoopStore) Get(ctx context.Context, id string) (*Session, error) { return nil, nil }

func (s *NoopStore) Rename(ctx context.Context, id, name string) error { return nil }

func (s *NoopStore) Delete(ctx context.Context, id string) error { return nil }

func (s *NoopStore) List(ctx context.Context, opts ListOptions) ([]Summary, error) {
	return nil, nil
}

func (s *NoopStore) AppendTurn(ctx context.Context, sessionID string, turn llm.Turn) error {
	return nil
}

func (s *NoopStore) Turns(ctx context.Context, sessionID string) (llm.History, error) {
	return nil, nil
}

func (s *NoopStore) TruncateTurns(ctx context.Context, sessionID string, keep int) error {
	return nil
}

func (s *NoopStore) AddMetrics(ctx context.Context, id string, m Metrics) error { return nil }

func (s *NoopStore) UpdateStatus(ctx context.Context, id string, status Status) error { return nil }

func (s *NoopStore) SetCurrent(ctx context.Context, sessionID string) error { return nil }

func (s *NoopStore) GetCurrent(ctx context.Context) (*Session, error) { return nil, nil }

func (s *NoopStore) Close() error { return nil }
