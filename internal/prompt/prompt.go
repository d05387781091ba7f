// Package prompt builds the system and user messages sent to the model.
package prompt

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/samsaffron/toolchat/internal/input"
)

// SystemPrompt returns the system prompt for chat and ask. custom replaces
// the default guidance; the environment block is always included so the
// model knows where its tools operate.
func SystemPrompt(custom string, toolNames []string, now time.Time) string {
	cwd, _ := os.Getwd()
	var sb strings.Builder
	if custom != "" {
		sb.WriteString(strings.TrimSpace(custom))
	} else {
		sb.WriteString("You are a helpful assistant running in a terminal. Be concise. " +
			"Use the available tools when they help answer accurately, and say so when a tool fails.")
	}
	fmt.Fprintf(&sb, "\n\nEnvironment:\n- Operating System: %s\n- Architecture: %s\n- Working Directory: %s\n- Date: %s",
		runtime.GOOS, runtime.GOARCH, cwd, now.Format("2006-01-02"))
	if len(toolNames) > 0 {
		fmt.Fprintf(&sb, "\n- Tools: %s", strings.Join(toolNames, ", "))
	}
	return sb.String()
}

// UserPrompt prefixes question with any attached file and stdin context.
func UserPrompt(question string, files []input.Attachment, stdin string) string {
	context := input.Format(files, stdin)
	if context == "" {
		return question
	}
	if question == "" {
		return context
	}
	return context + "\n\n" + question
}
