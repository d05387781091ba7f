package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/samsaffron/toolchat/internal/llm"
)

// LoggingStore wraps a Store and logs write failures. Persistence stays
// best effort: errors are still returned, but each operation warns once so a
// broken database does not flood the terminal.
type LoggingStore struct {
	Store
	log *zap.Logger

	mu     sync.Mutex
	warned map[string]bool
}

func NewLoggingStore(store Store, log *zap.Logger) *LoggingStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoggingStore{Store: store, log: log, warned: make(map[string]bool)}
}

func (s *LoggingStore) logOnce(op string, err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.warned[op] {
		s.log.Debug("session write failed", zap.String("op", op), zap.Error(err))
		return
	}
	s.warned[op] = true
	s.log.Warn("session write failed", zap.String("op", op), zap.Error(err))
}

func (s *LoggingStore) Create(ctx context.Context, sess *Session) error {
	err := s.Store.Create(ctx, sess)
	s.logOnce("create", err)
	return err
}

func (s *LoggingStore) AppendTurn(ctx context.Context, sessionID string, turn llm.Turn) error {
	err := s.Store.AppendTurn(ctx, sessionID, turn)
	s.logOnce("append_turn", err)
	return err
}

func (s *LoggingStore) TruncateTurns(ctx context.Context, sessionID string, keep int) error {
	err := s.Store.TruncateTurns(ctx, sessionID, keep)
	s.logOnce("truncate_turns", err)
	return err
}

func (s *LoggingStore) AddMetrics(ctx context.Context, id string, m Metrics) error {
	err := s.Store.AddMetrics(ctx, id, m)
	s.logOnce("add_metrics", err)
	return err
}

func (s *LoggingStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	err := s.Store.UpdateStatus(ctx, id, status)
	s.logOnce("update_status", err)
	return err
}

func (s *LoggingStore) SetCurrent(ctx context.Context, sessionID string) error {
	err := s.Store.SetCurrent(ctx, sessionID)
	s.logOnce("set_current", err)
	return err
}
