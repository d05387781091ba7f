package debuglog

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/samsaffron/toolchat/internal/ui"
)

// FormatOptions controls how a session is printed.
type FormatOptions struct {
	RoundsOnly    bool // skip observer events
	ShowTimestamp bool
}

// FormatSessionList prints one numbered line per session.
func FormatSessionList(w io.Writer, styles *ui.Styles, sessions []SessionSummary) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No debug sessions found.")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Record one with: toolchat --debug-log chat")
		return
	}

	var totIn, totOut int
	for i, s := range sessions {
		backendModel := s.Backend
		if s.Model != "" {
			backendModel = s.Backend + " / " + s.Model
		}
		errMark := " "
		if s.HasErrors {
			errMark = styles.Error.Render("!")
		}
		totIn += s.Input
		totOut += s.Output
		fmt.Fprintf(w, "%s%2d. %s  %-36s  %3d rounds  %s\n",
			errMark, i+1,
			styles.Muted.Render(s.StartTime.Local().Format("Jan 02 15:04")),
			ui.Truncate(backendModel, 36),
			s.Rounds,
			formatTokens(s.Input, s.Output))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, styles.Muted.Render(fmt.Sprintf("Total: %d sessions  %s", len(sessions), formatTokens(totIn, totOut))))
}

func formatTokens(in, out int) string {
	if in == 0 && out == 0 {
		return "0 tokens"
	}
	return compactNum(in) + "→" + compactNum(out)
}

func compactNum(n int) string {
	switch {
	case n < 1000:
		return fmt.Sprintf("%d", n)
	case n < 10000:
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	case n < 1000000:
		return fmt.Sprintf("%dK", n/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

// FormatSession prints a header followed by every round and event.
// Consecutive chunk events are merged into one block of text.
func FormatSession(w io.Writer, styles *ui.Styles, s *Session, opts FormatOptions) {
	fmt.Fprintf(w, "%s %s\n", styles.Highlighted.Render("Session:"), s.ID)
	if s.Command != "" {
		fmt.Fprintf(w, "%s %s\n", styles.Muted.Render("Command:"),
			ui.Truncate(strings.TrimSpace(s.Command+" "+strings.Join(s.Args, " ")), 120))
	}
	if s.Cwd != "" {
		fmt.Fprintf(w, "%s %s\n", styles.Muted.Render("Cwd:"), s.Cwd)
	}
	fmt.Fprintf(w, "%s %s/%s\n", styles.Muted.Render("Backend:"), s.Backend, s.Model)
	fmt.Fprintf(w, "%s %s\n", styles.Muted.Render("Started:"), s.StartTime.Local().Format("2006-01-02 15:04:05"))
	if s.EndTime.After(s.StartTime) {
		fmt.Fprintf(w, "%s %s\n", styles.Muted.Render("Duration:"), s.EndTime.Sub(s.StartTime).Round(time.Millisecond))
	}
	fmt.Fprintf(w, "%s %d rounds, %d tool calls\n", styles.Muted.Render("Rounds:"), s.Rounds, s.ToolCalls)
	fmt.Fprintf(w, "%s input=%d output=%d\n", styles.Muted.Render("Tokens:"), s.Tokens.Input, s.Tokens.Output)
	if s.HasErrors {
		fmt.Fprintln(w, styles.Error.Render("Has errors"))
	}
	fmt.Fprintln(w)

	var text strings.Builder
	flushText := func() {
		if text.Len() == 0 {
			return
		}
		for _, line := range strings.Split(strings.TrimRight(text.String(), "\n"), "\n") {
			fmt.Fprintf(w, "         %s\n", line)
		}
		text.Reset()
	}

	for _, entry := range s.Entries {
		switch e := entry.(type) {
		case RoundEntry:
			flushText()
			formatRound(w, styles, e, opts)
		case EventEntry:
			if opts.RoundsOnly {
				continue
			}
			if e.EventType == "chunk" {
				if t, ok := e.Data["text"].(string); ok {
					text.WriteString(t)
				}
				continue
			}
			flushText()
			formatEvent(w, styles, e, opts)
		}
	}
	flushText()
}

func stamp(ts time.Time, opts FormatOptions) string {
	if !opts.ShowTimestamp {
		return ""
	}
	return ts.Local().Format("15:04:05") + " "
}

func formatRound(w io.Writer, styles *ui.Styles, r RoundEntry, opts FormatOptions) {
	fmt.Fprintf(w, "%s%s %d %s/%s\n", stamp(r.Timestamp, opts), styles.Highlighted.Render("ROUND"), r.Round, r.Backend, r.Model)
	tools := "none"
	if len(r.Tools) > 0 {
		tools = strings.Join(r.Tools, ", ")
	}
	fmt.Fprintf(w, "         history: %d turns, tools: %s", len(r.History), tools)
	if r.Thinking {
		fmt.Fprint(w, ", thinking")
	}
	fmt.Fprintln(w)
}

func formatEvent(w io.Writer, styles *ui.Styles, e EventEntry, opts FormatOptions) {
	prefix := stamp(e.Timestamp, opts)
	name, _ := e.Data["name"].(string)
	id := intField(e.Data, "id")

	switch e.EventType {
	case "tool_started":
		args := ""
		if raw, ok := e.Data["arguments"]; ok {
			if data, err := json.Marshal(raw); err == nil {
				args = " " + ui.Truncate(string(data), 100)
			}
		}
		fmt.Fprintf(w, "%s%s #%d %s%s\n", prefix, styles.Muted.Render("TOOL"), id, name, args)
	case "tool_result":
		if errMsg, ok := e.Data["error"].(string); ok {
			fmt.Fprintf(w, "%s%s #%d %s: %s\n", prefix, styles.Error.Render("FAIL"), id, name, errMsg)
			return
		}
		out, _ := e.Data["output"].(string)
		fmt.Fprintf(w, "%s%s #%d %s: %s\n", prefix, styles.Success.Render("DONE"), id, name, ui.Truncate(ui.FirstLine(out), 100))
	case "error":
		msg, _ := e.Data["error"].(string)
		fmt.Fprintf(w, "%s%s %s\n", prefix, styles.Error.Render("ERROR"), msg)
	default:
		fmt.Fprintf(w, "%s%s\n", prefix, e.EventType)
	}
}
