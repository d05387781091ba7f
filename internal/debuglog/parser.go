package debuglog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const maxLine = 16 * 1024 * 1024

// ListSessions returns summaries of every log in dir, most recent first.
// A missing directory yields no sessions.
func ListSessions(dir string) ([]SessionSummary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var sessions []SessionSummary
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jsonl" {
			continue
		}
		s, err := ParseSession(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue // skip malformed files
		}
		var size int64
		if info, err := entry.Info(); err == nil {
			size = info.Size()
		}
		sessions = append(sessions, SessionSummary{
			ID:        s.ID,
			FilePath:  s.FilePath,
			StartTime: s.StartTime,
			Backend:   s.Backend,
			Model:     s.Model,
			Rounds:    s.Rounds,
			Input:     s.Tokens.Input,
			Output:    s.Tokens.Output,
			HasErrors: s.HasErrors,
			FileSize:  size,
		})
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartTime.After(sessions[j].StartTime)
	})
	return sessions, nil
}

// ParseSession reads a whole log file.
func ParseSession(path string) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s, err := Parse(f)
	if err != nil {
		return nil, err
	}
	s.ID = strings.TrimSuffix(filepath.Base(path), ".jsonl")
	s.FilePath = path
	return s, nil
}

// Parse reads log lines from r. Lines that are not valid entries are skipped.
func Parse(r io.Reader) (*Session, error) {
	s := &Session{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	for scanner.Scan() {
		var entry rawEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, entry.Timestamp)
		if err != nil {
			continue
		}
		if s.StartTime.IsZero() || ts.Before(s.StartTime) {
			s.StartTime = ts
		}
		if ts.After(s.EndTime) {
			s.EndTime = ts
		}
		if s.ID == "" {
			s.ID = entry.SessionID
		}

		switch entry.Type {
		case "session_start":
			s.Command = entry.Command
			s.Args = entry.Args
			s.Cwd = entry.Cwd

		case "round":
			s.Rounds++
			if s.Backend == "" {
				s.Backend = entry.Backend
				s.Model = entry.Model
			}
			s.Entries = append(s.Entries, RoundEntry{
				Timestamp: ts,
				Round:     entry.Round,
				Backend:   entry.Backend,
				Model:     entry.Model,
				Thinking:  entry.Thinking,
				Tools:     entry.Tools,
				History:   entry.History,
			})

		case "event":
			ev := EventEntry{Timestamp: ts, EventType: entry.EventType}
			if entry.Data != nil {
				_ = json.Unmarshal(entry.Data, &ev.Data)
			}
			s.Entries = append(s.Entries, ev)
			switch ev.EventType {
			case "chunk":
				s.Tokens.Input += intField(ev.Data, "input_tokens")
				s.Tokens.Output += intField(ev.Data, "output_tokens")
			case "tool_started":
				s.ToolCalls++
			case "error":
				s.HasErrors = true
			}
		}
	}
	return s, scanner.Err()
}

func intField(data map[string]any, key string) int {
	if v, ok := data[key].(float64); ok {
		return int(v)
	}
	return 0
}

// ResolveSession finds a log by 1-based recency number ("1" is the most
// recent), by id, or by unique id prefix.
func ResolveSession(dir, ref string) (*SessionSummary, error) {
	sessions, err := ListSessions(dir)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("no debug logs in %s", dir)
	}
	if ref == "" || ref == "last" {
		return &sessions[0], nil
	}
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(sessions) {
			return nil, fmt.Errorf("no debug log #%d (have %d)", n, len(sessions))
		}
		return &sessions[n-1], nil
	}

	var match *SessionSummary
	for i := range sessions {
		if sessions[i].ID == ref {
			return &sessions[i], nil
		}
		if strings.HasPrefix(sessions[i].ID, ref) {
			if match != nil {
				return nil, fmt.Errorf("debug log prefix %q is ambiguous", ref)
			}
			match = &sessions[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no debug log matches %q", ref)
	}
	return match, nil
}
