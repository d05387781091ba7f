package cmd

import (
	"context"
	"errors"
	"os"

	"go.uber.org/zap"

	"github.com/samsaffron/toolchat/internal/llm"
	"github.com/samsaffron/toolchat/internal/session"
)

// conversation owns a history between loop invocations and mirrors it
// into the session store. Only one loop runs at a time; edits happen
// between loops.
type conversation struct {
	app     *app
	mode    session.Mode
	sess    *session.Session // nil until the first save
	history llm.History
	saved   int // history turns persisted so far
}

func newConversation(a *app, mode session.Mode, system string) *conversation {
	c := &conversation{app: a, mode: mode}
	if system != "" {
		c.history = llm.NewHistory(llm.SystemTurn(system))
	}
	return c
}

// resumeConversation loads a stored session.
func resumeConversation(ctx context.Context, a *app, ref string) (*conversation, error) {
	sess, err := session.Resolve(ctx, a.store, ref)
	if err != nil {
		return nil, err
	}
	history, err := a.store.Turns(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	_ = a.store.SetCurrent(ctx, sess.ID)
	return &conversation{app: a, mode: sess.Mode, sess: sess, history: history, saved: len(history)}, nil
}

// persist saves unsaved turns, creating the session on first use.
func (c *conversation) persist(ctx context.Context) {
	if c.saved >= len(c.history) {
		return
	}
	if c.sess == nil {
		cwd, _ := os.Getwd()
		sess := &session.Session{
			Provider: c.app.engine.Backend().Name(),
			Model:    c.app.engine.Model(),
			Mode:     c.mode,
			CWD:      cwd,
		}
		if err := c.app.store.Create(ctx, sess); err != nil {
			return
		}
		c.sess = sess
		_ = c.app.store.SetCurrent(ctx, sess.ID)
	}
	for _, turn := range c.history[c.saved:] {
		if err := c.app.store.AppendTurn(ctx, c.sess.ID, turn); err != nil {
			return
		}
		c.saved++
	}
}

// send appends a user turn and runs a loop to completion. A loop that
// fails or is interrupted leaves the history as it was before the
// message, so the user can retry.
func (c *conversation) send(ctx context.Context, text string, interruptible bool) (llm.LoopStats, error) {
	before := len(c.history)
	c.history = append(c.history.Clone(), llm.UserTurn(text))
	c.persist(ctx)

	// Saving must outlive a cancelled loop context.
	saveCtx := context.WithoutCancel(ctx)
	// Turns are saved one by one only while the store holds an unbroken
	// prefix of the history. After a gap, persist catches up once the loop
	// is done.
	next := len(c.history)
	onTurn := func(turn llm.Turn) {
		idx := next
		next++
		if c.sess == nil || c.saved != idx {
			return
		}
		if err := c.app.store.AppendTurn(saveCtx, c.sess.ID, turn); err != nil {
			c.app.log.Warn("saving turn failed, retrying after the loop", zap.Int("turn", idx), zap.Error(err))
			return
		}
		c.saved++
	}

	result, stats, err := c.app.runLoop(ctx, c.history, onTurn, interruptible)
	if c.sess != nil {
		_ = c.app.store.AddMetrics(saveCtx, c.sess.ID, session.Metrics{
			Rounds:       stats.Rounds,
			ToolCalls:    stats.ToolCalls,
			InputTokens:  stats.Usage.InputTokens,
			OutputTokens: stats.Usage.OutputTokens,
		})
		_ = c.app.store.UpdateStatus(saveCtx, c.sess.ID, loopStatus(err))
	}
	if err != nil {
		c.truncate(saveCtx, before)
		return stats, err
	}
	c.history = result
	c.persist(saveCtx)
	return stats, nil
}

func loopStatus(err error) session.Status {
	switch {
	case err == nil:
		return session.StatusComplete
	case errors.Is(err, context.Canceled):
		return session.StatusInterrupted
	default:
		return session.StatusError
	}
}

// truncate drops every turn after the first n, in memory and in the store.
func (c *conversation) truncate(ctx context.Context, n int) {
	if n < len(c.history) {
		c.history = c.history[:n].Clone()
	}
	if c.sess != nil && c.saved > n {
		if err := c.app.store.TruncateTurns(ctx, c.sess.ID, n); err == nil {
			c.saved = n
		}
	}
	if c.saved > len(c.history) {
		c.saved = len(c.history)
	}
}

// undo drops the last exchange. It reports false when there is none.
func (c *conversation) undo(ctx context.Context) bool {
	prev := c.history.WithoutLastExchange()
	if len(prev) == len(c.history) {
		return false
	}
	c.truncate(ctx, len(prev))
	return true
}

// clear starts a fresh session that keeps only the system turn.
func (c *conversation) clear() {
	var kept llm.History
	if len(c.history) > 0 && c.history[0].Role == llm.RoleSystem {
		kept = llm.NewHistory(c.history[0])
	}
	c.history = kept
	c.sess = nil
	c.saved = 0
}

// userTurns counts the user messages in the history.
func (c *conversation) userTurns() int {
	n := 0
	for _, t := range c.history {
		if t.Role == llm.RoleUser {
			n++
		}
	}
	return n
}
