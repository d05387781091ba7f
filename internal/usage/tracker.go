// Package usage aggregates token usage and loop statistics across the loops
// of one process.
package usage

import (
	"sort"
	"sync"
	"time"

	"github.com/samsaffron/toolchat/internal/llm"
)

// Entry records one finished loop.
type Entry struct {
	Model     string
	Rounds    int
	ToolCalls int
	Input     int
	Output    int
	Duration  time.Duration
}

// ModelBreakdown is usage summed per model.
type ModelBreakdown struct {
	Model     string
	Loops     int
	Rounds    int
	ToolCalls int
	Input     int
	Output    int
}

// Totals sums every recorded loop.
type Totals struct {
	Loops     int
	Rounds    int
	ToolCalls int
	Input     int
	Output    int
	Duration  time.Duration
}

// TotalTokens returns input plus output tokens.
func (t Totals) TotalTokens() int {
	return t.Input + t.Output
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	entries []Entry
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Record adds the statistics of a finished loop run against model.
func (t *Tracker) Record(model string, stats llm.LoopStats) Entry {
	e := Entry{
		Model:     model,
		Rounds:    stats.Rounds,
		ToolCalls: stats.ToolCalls,
		Input:     stats.Usage.InputTokens,
		Output:    stats.Usage.OutputTokens,
		Duration:  stats.Duration,
	}
	t.mu.Lock()
	t.entries = append(t.entries, e)
	t.mu.Unlock()
	return e
}

// Last returns the most recent entry.
func (t *Tracker) Last() (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.entries) == 0 {
		return Entry{}, false
	}
	return t.entries[len(t.entries)-1], true
}

func (t *Tracker) Totals() Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	var tot Totals
	for _, e := range t.entries {
		tot.Loops++
		tot.Rounds += e.Rounds
		tot.ToolCalls += e.ToolCalls
		tot.Input += e.Input
		tot.Output += e.Output
		tot.Duration += e.Duration
	}
	return tot
}

// Breakdown returns per-model totals, highest token count first.
func (t *Tracker) Breakdown() []ModelBreakdown {
	t.mu.Lock()
	byModel := make(map[string]*ModelBreakdown)
	for _, e := range t.entries {
		b, ok := byModel[e.Model]
		if !ok {
			b = &ModelBreakdown{Model: e.Model}
			byModel[e.Model] = b
		}
		b.Loops++
		b.Rounds += e.Rounds
		b.ToolCalls += e.ToolCalls
		b.Input += e.Input
		b.Output += e.Output
	}
	t.mu.Unlock()

	result := make([]ModelBreakdown, 0, len(byModel))
	for _, b := range byModel {
		result = append(result, *b)
	}
	sort.Slice(result, func(i, j int) bool {
		ti, tj := result[i].Input+result[i].Output, result[j].Input+result[j].Output
		if ti != tj {
			return ti > tj
		}
		return result[i].Model < result[j].Model
	})
	return result
}

// Reset forgets every recorded loop.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.entries = nil
	t.mu.Unlock()
}
