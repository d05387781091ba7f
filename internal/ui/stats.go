package ui

import (
	"fmt"
	"time"

	"github.com/samsaffron/toolchat/internal/llm"
	"github.com/samsaffron/toolchat/internal/usage"
)

// LoopStatsLine renders the statistics of one loop as a compact line, e.g.
// "Stats: 3.4s | 2 rounds | 1.2k in / 310 out | 3 tools".
func LoopStatsLine(s llm.LoopStats) string {
	return statsLine(s.Duration, 0, s.Rounds, s.Usage.InputTokens, s.Usage.OutputTokens, s.ToolCalls)
}

// TotalsLine renders accumulated statistics across loops.
func TotalsLine(t usage.Totals) string {
	return statsLine(t.Duration, t.Loops, t.Rounds, t.Input, t.Output, t.ToolCalls)
}

func statsLine(d time.Duration, loops, rounds, in, out, tools int) string {
	tokens := fmt.Sprintf("%s in / %s out", formatTokenCount(in), formatTokenCount(out))
	if loops > 0 {
		return fmt.Sprintf("Stats: %.1fs | %s | %s | %s | %s",
			d.Seconds(), plural(loops, "turn"), plural(rounds, "round"), tokens, plural(tools, "tool"))
	}
	return fmt.Sprintf("Stats: %.1fs | %s | %s | %s",
		d.Seconds(), plural(rounds, "round"), tokens, plural(tools, "tool"))
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// formatTokenCount abbreviates token counts: 950, 1.2k, 3.4M.
func formatTokenCount(n int) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

// BreakdownLine renders one model's share of the totals, e.g.
// "debug:fast: 2 turns | 3 rounds | 1.2k in / 310 out | 1 tool".
func BreakdownLine(b usage.ModelBreakdown) string {
	return fmt.Sprintf("%s: %s | %s | %s in / %s out | %s", b.Model,
		plural(b.Loops, "turn"), plural(b.Rounds, "round"),
		formatTokenCount(b.Input), formatTokenCount(b.Output), plural(b.ToolCalls, "tool"))
}
