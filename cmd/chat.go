package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/samsaffron/toolchat/internal/prompt"
	"github.com/samsaffron/toolchat/internal/session"
	"github.com/samsaffron/toolchat/internal/ui"
	"github.com/samsaffron/toolchat/internal/usage"
)

var chatResume string

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Start an interactive chat",
	Long: `Start an interactive chat. Each message runs the model until it stops
requesting tools. Ctrl-C while the model is working cancels that request;
Ctrl-C or Ctrl-D at the prompt exits.

Commands:
  /clear            start over with a new session and stats
  /undo             drop the last exchange
  /model <ref>      switch model: provider:model, provider, or model
  /thinking         toggle extended thinking
  /tools            list the tools offered to the model
  /stats            show statistics for this chat
  /save [name]      save and optionally name the session
  /help             show this help
  /quit             exit

Examples:
  toolchat chat
  toolchat chat --resume last
  toolchat chat "summarize the README" --tools read_file,glob`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatResume, "resume", "r", "", "Resume a session by id, id prefix, or 'last'")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, cfg, defaultAppOptions("chat"))
	if err != nil {
		return err
	}
	defer a.Close()

	var conv *conversation
	if chatResume != "" {
		conv, err = resumeConversation(ctx, a, chatResume)
		if err != nil {
			return fmt.Errorf("resume %s: %w", chatResume, err)
		}
		fmt.Fprintln(a.out, a.styles.Muted.Render(fmt.Sprintf("Resumed session %s (%d messages)",
			session.ShortID(conv.sess.ID), conv.userTurns())))
	} else {
		conv = newConversation(a, session.ModeChat, prompt.SystemPrompt(cfg.SystemPrompt, a.registry.Names(), time.Now()))
	}

	repl := &chatREPL{conv: conv, in: os.Stdin, interactive: ui.IsTerminal(os.Stdin)}
	if len(args) > 0 {
		repl.handleMessage(ctx, strings.Join(args, " "))
	}
	return repl.run(ctx)
}

// chatREPL reads lines and dispatches slash commands or messages.
type chatREPL struct {
	conv        *conversation
	in          io.Reader
	interactive bool
}

var errQuit = errors.New("quit")

func (r *chatREPL) run(ctx context.Context) error {
	a := r.conv.app
	if r.interactive {
		fmt.Fprintln(a.out, a.styles.Muted.Render(fmt.Sprintf("%s · /help for commands", a.engine.Describe())))
	}
	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for {
		if r.interactive {
			fmt.Fprint(a.out, a.styles.Highlighted.Render("> "))
		}
		if !scanner.Scan() {
			if r.interactive {
				fmt.Fprintln(a.out)
			}
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if err := r.handleCommand(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				fmt.Fprintln(a.out, a.styles.Error.Render(err.Error()))
			}
			continue
		}
		r.handleMessage(ctx, line)
	}
}

func (r *chatREPL) handleMessage(ctx context.Context, text string) {
	a := r.conv.app
	_, err := r.conv.send(ctx, text, true)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(a.out, a.styles.Muted.Render("Interrupted. The message was discarded."))
	default:
		fmt.Fprintln(a.out, a.styles.Error.Render("Error: "+err.Error()))
	}
}

func (r *chatREPL) handleCommand(ctx context.Context, line string) error {
	a := r.conv.app
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit", "/q":
		return errQuit

	case "/help":
		fmt.Fprintln(a.out, strings.TrimSpace(chatHelp))

	case "/clear":
		r.conv.clear()
		a.tracker.Reset()
		fmt.Fprintln(a.out, a.styles.Muted.Render("Started a new conversation."))

	case "/undo":
		if !r.conv.undo(ctx) {
			return errors.New("nothing to undo")
		}
		fmt.Fprintln(a.out, a.styles.Muted.Render("Removed the last exchange."))

	case "/model":
		if arg == "" {
			fmt.Fprintln(a.out, a.engine.Describe())
			return nil
		}
		if err := a.switchModel(arg); err != nil {
			return err
		}
		fmt.Fprintln(a.out, a.styles.Muted.Render("Model: "+a.engine.Describe()))

	case "/thinking":
		a.engine.SetThinking(!a.engine.Thinking())
		fmt.Fprintln(a.out, "Thinking: "+a.styles.FormatEnabled(a.engine.Thinking()))

	case "/tools":
		specs := a.engine.Tools()
		if len(specs) == 0 {
			fmt.Fprintln(a.out, a.styles.Muted.Render("No tools enabled."))
			return nil
		}
		for _, spec := range specs {
			fmt.Fprintf(a.out, "%s  %s\n", a.styles.Highlighted.Render(spec.Name),
				a.styles.Muted.Render(ui.Truncate(ui.FirstLine(spec.Description), 70)))
		}

	case "/stats":
		for _, line := range statsReport(a.tracker) {
			fmt.Fprintln(a.out, a.styles.Muted.Render(line))
		}

	case "/save":
		r.conv.persist(ctx)
		if r.conv.sess == nil {
			return errors.New("nothing to save yet")
		}
		if arg != "" {
			if err := a.store.Rename(ctx, r.conv.sess.ID, arg); err != nil {
				return err
			}
		}
		fmt.Fprintln(a.out, a.styles.FormatResult(true, "Saved session "+session.ShortID(r.conv.sess.ID)))

	default:
		return fmt.Errorf("unknown command %s (try /help)", name)
	}
	return nil
}

// statsReport is the /stats output: totals, the last loop's model, and a
// per-model breakdown once more than one model has been used.
func statsReport(tr *usage.Tracker) []string {
	lines := []string{ui.TotalsLine(tr.Totals())}
	if last, ok := tr.Last(); ok {
		lines = append(lines, "Last model: "+last.Model)
	}
	if breakdown := tr.Breakdown(); len(breakdown) > 1 {
		for _, b := range breakdown {
			lines = append(lines, "  "+ui.BreakdownLine(b))
		}
	}
	return lines
}

const chatHelp = `
/clear            start over with a new session and stats
/undo             drop the last exchange
/model <ref>      switch model: provider:model, provider, or model
/thinking         toggle extended thinking
/tools            list the tools offered to the model
/stats            show statistics for this chat
/save [name]      save and optionally name the session
/quit             exit
`

