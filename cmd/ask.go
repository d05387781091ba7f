package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/samsaffron/toolchat/internal/input"
	"github.com/samsaffron/toolchat/internal/prompt"
	"github.com/samsaffron/toolchat/internal/session"
	"github.com/samsaffron/toolchat/internal/signal"
)

var askFiles []string

var askCmd = &cobra.Command{
	Use:   "ask [question...]",
	Short: "Ask a single question and exit",
	Long: `Ask a question and print the answer. The model may call tools as many
times as it needs before answering. Piped stdin and --file attachments are
added to the question.

Examples:
  toolchat ask "what is the capital of France"
  toolchat ask "explain this code" -f main.go
  toolchat ask "find the bug" -f 'internal/**/*.go' -f go.mod
  toolchat ask "review lines 10-40" -f server.go:10-40
  git diff | toolchat ask "write a commit message"
  toolchat ask --tools none "no tools for this one"`,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringArrayVarP(&askFiles, "file", "f", nil, "Attach a file, glob, or path:start-end range (repeatable)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))

	files, err := input.ReadFiles(askFiles)
	if err != nil {
		return err
	}
	stdin, err := input.ReadStdin(os.Stdin)
	if err != nil {
		return err
	}
	if question == "" && len(files) == 0 && strings.TrimSpace(stdin) == "" {
		return errors.New("no question provided")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent)
	defer stop()

	a, err := newApp(ctx, cfg, defaultAppOptions("ask"))
	if err != nil {
		return err
	}
	defer a.Close()

	return askOnce(ctx, a, prompt.UserPrompt(question, files, stdin))
}

// askOnce runs a single loop in a fresh ask session.
func askOnce(ctx context.Context, a *app, text string) error {
	system := prompt.SystemPrompt(a.cfg.SystemPrompt, a.registry.Names(), time.Now())
	conv := newConversation(a, session.ModeAsk, system)
	if _, err := conv.send(ctx, text, false); err != nil {
		if errors.Is(err, context.Canceled) {
			return errors.New("interrupted")
		}
		return fmt.Errorf("%s: %w", a.engine.Describe(), err)
	}
	return nil
}
