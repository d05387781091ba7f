package session

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/samsaffron/toolchat/internal/llm"
)

// Status represents the current state of a session.
type Status string

const (
	StatusActive      Status = "active"      // Session is open
	StatusComplete    Status = "complete"    // Last loop finished normally
	StatusError       Status = "error"       // Last loop ended with an error
	StatusInterrupted Status = "interrupted" // Last loop was cancelled by the user
)

// Mode records which command created a session.
type Mode string

const (
	ModeChat Mode = "chat"
	ModeAsk  Mode = "ask"
)

// Session is a stored conversation.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Summary   string    `json:"summary,omitempty"` // First user message
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	Mode      Mode      `json:"mode,omitempty"`
	CWD       string    `json:"cwd,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Rounds       int    `json:"rounds,omitempty"`     // Backend round trips
	ToolCalls    int    `json:"tool_calls,omitempty"` // Tool executions
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	Status       Status `json:"status,omitempty"`
}

// Summary is a lightweight view of a session for listing.
type Summary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	Summary      string    `json:"summary,omitempty"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Mode         Mode      `json:"mode,omitempty"`
	TurnCount    int       `json:"turn_count"`
	Rounds       int       `json:"rounds,omitempty"`
	ToolCalls    int       `json:"tool_calls,omitempty"`
	InputTokens  int       `json:"input_tokens,omitempty"`
	OutputTokens int       `json:"output_tokens,omitempty"`
	Status       Status    `json:"status,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ListOptions configures session listing.
type ListOptions struct {
	Provider string // Filter by provider
	Model    string // Filter by model
	Mode     Mode   // Filter by mode
	Status   Status // Filter by status
	Limit    int    // Max results (0 = use default)
	Offset   int
}

// Metrics is an increment applied to a session's counters.
type Metrics struct {
	Rounds       int
	ToolCalls    int
	InputTokens  int
	OutputTokens int
}

// NewID returns a fresh session id.
func NewID() string {
	return uuid.NewString()
}

// ShortID returns the first block of an id, enough to identify it in listings.
func ShortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

// encodeTurn serializes a turn for storage. The full turn is kept so tool
// calls and tool result names survive a resume.
func encodeTurn(turn llm.Turn) (string, error) {
	data, err := json.Marshal(turn)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeTurn(data string) (llm.Turn, error) {
	var turn llm.Turn
	err := json.Unmarshal([]byte(data), &turn)
	return turn, err
}

// TruncateSummary returns the first line of content, truncated to 100 chars.
func TruncateSummary(content string) string {
	content = strings.TrimSpace(content)
	if idx := strings.Index(content, "\n"); idx != -1 {
		content = content[:idx]
	}
	if r := []rune(content); len(r) > 100 {
		content = string(r[:97]) + "..."
	}
	return content
}
