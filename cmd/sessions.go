package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/samsaffron/toolchat/internal/llm"
	"github.com/samsaffron/toolchat/internal/session"
	"github.com/samsaffron/toolchat/internal/ui"
)

var (
	sessionsLimit int
	sessionsModel string
	sessionsMode  string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage saved chat sessions",
	Long: `List, inspect, rename, export and delete saved sessions.

Sessions are identified by their id or any unique id prefix; 'last' refers
to the most recently used session.

Examples:
  toolchat sessions
  toolchat sessions list --limit 5 --model sonnet
  toolchat sessions show last
  toolchat sessions name 3f2a "refactor notes"
  toolchat sessions export 3f2a notes.md
  toolchat sessions delete 3f2a`,
	RunE: runSessionsList,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, most recent first",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a session's details and messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

var sessionsNameCmd = &cobra.Command{
	Use:     "name <id> <name>",
	Aliases: []string{"rename"},
	Short:   "Name a session",
	Args:    cobra.MinimumNArgs(2),
	RunE:    runSessionsName,
}

var sessionsExportCmd = &cobra.Command{
	Use:   "export <id> [path]",
	Short: "Export a session as markdown",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runSessionsExport,
}

func init() {
	for _, c := range []*cobra.Command{sessionsCmd, sessionsListCmd} {
		c.Flags().IntVarP(&sessionsLimit, "limit", "n", 20, "Maximum sessions to list (-1 for all)")
		c.Flags().StringVar(&sessionsModel, "model", "", "Only sessions using this model")
		c.Flags().StringVar(&sessionsMode, "mode", "", "Only sessions created by chat or ask")
	}
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsDeleteCmd, sessionsNameCmd, sessionsExportCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// openSessionStore opens the configured store without starting a backend.
func openSessionStore() (session.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.Sessions.Enabled {
		return nil, fmt.Errorf("sessions are disabled (sessions.enabled: false)")
	}
	return session.NewStore(true, cfg.SessionsPath())
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	store, err := openSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()
	return listSessions(context.Background(), os.Stdout, store, session.ListOptions{
		Model: sessionsModel,
		Mode:  session.Mode(sessionsMode),
		Limit: sessionsLimit,
	}, time.Now())
}

func listSessions(ctx context.Context, w io.Writer, store session.Store, opts session.ListOptions, now time.Time) error {
	summaries, err := store.List(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No sessions found.")
		return nil
	}

	fmt.Fprintf(w, "%-10s %-30s %-5s %4s %6s %5s %-11s %-11s %s\n",
		"ID", "SUMMARY", "MODE", "MSGS", "ROUNDS", "TOOLS", "TOKENS", "STATUS", "AGE")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, s := range summaries {
		summary := s.Summary
		if s.Name != "" {
			summary = s.Name
		}
		status := string(s.Status)
		if status == "" {
			status = string(session.StatusActive)
		}
		fmt.Fprintf(w, "%-10s %-30s %-5s %4d %6d %5d %-11s %-11s %s\n",
			session.ShortID(s.ID), ui.Truncate(summary, 30), s.Mode, s.TurnCount, s.Rounds, s.ToolCalls,
			formatSessionTokens(s.InputTokens, s.OutputTokens), status, formatRelativeTime(s.UpdatedAt, now))
	}
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	store, err := openSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()
	return showSession(context.Background(), os.Stdout, store, args[0])
}

func showSession(ctx context.Context, w io.Writer, store session.Store, ref string) error {
	sess, err := session.Resolve(ctx, store, ref)
	if err != nil {
		return err
	}
	turns, err := store.Turns(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("failed to load turns: %w", err)
	}

	fmt.Fprintf(w, "Session: %s\n", sess.ID)
	if sess.Name != "" {
		fmt.Fprintf(w, "Name: %s\n", sess.Name)
	}
	fmt.Fprintf(w, "Provider: %s\n", sess.Provider)
	fmt.Fprintf(w, "Model: %s\n", sess.Model)
	fmt.Fprintf(w, "Mode: %s\n", sess.Mode)
	fmt.Fprintf(w, "Created: %s\n", sess.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Updated: %s\n", sess.UpdatedAt.Format(time.RFC3339))
	if sess.CWD != "" {
		fmt.Fprintf(w, "CWD: %s\n", sess.CWD)
	}
	fmt.Fprintf(w, "Status: %s\n", sess.Status)
	fmt.Fprintf(w, "Rounds: %d\n", sess.Rounds)
	fmt.Fprintf(w, "Tool Calls: %d\n", sess.ToolCalls)
	fmt.Fprintf(w, "Tokens: %s\n", formatSessionTokens(sess.InputTokens, sess.OutputTokens))
	fmt.Fprintln(w)

	for _, turn := range turns {
		if line := turnLine(turn); line != "" {
			fmt.Fprintln(w, line)
		}
	}
	return nil
}

// turnLine renders a stored turn as one line. System turns are omitted.
func turnLine(turn llm.Turn) string {
	switch turn.Role {
	case llm.RoleUser:
		return "> " + ui.Truncate(ui.FirstLine(turn.Text), 200)
	case llm.RoleAssistant:
		var parts []string
		if turn.Text != "" {
			parts = append(parts, "assistant: "+ui.Truncate(ui.FirstLine(turn.Text), 200))
		}
		for _, call := range turn.ToolCalls {
			parts = append(parts, "  call "+call.Name+llm.FormatToolArgs(call.Arguments, 60, 3))
		}
		return strings.Join(parts, "\n")
	case llm.RoleTool:
		return "  " + turn.ToolName + " -> " + ui.Truncate(ui.FirstLine(turn.Text), 80)
	}
	return ""
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	store, err := openSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	sess, err := session.Resolve(ctx, store, args[0])
	if err != nil {
		return err
	}
	if err := store.Delete(ctx, sess.ID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	fmt.Printf("Deleted session: %s\n", session.ShortID(sess.ID))
	return nil
}

func runSessionsName(cmd *cobra.Command, args []string) error {
	store, err := openSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	sess, err := session.Resolve(ctx, store, args[0])
	if err != nil {
		return err
	}
	name := strings.Join(args[1:], " ")
	if err := store.Rename(ctx, sess.ID, name); err != nil {
		return fmt.Errorf("failed to name session: %w", err)
	}
	fmt.Printf("Session %s named: %s\n", session.ShortID(sess.ID), name)
	return nil
}

func runSessionsExport(cmd *cobra.Command, args []string) error {
	store, err := openSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	sess, err := session.Resolve(ctx, store, args[0])
	if err != nil {
		return err
	}
	turns, err := store.Turns(ctx, sess.ID)
	if err != nil {
		return err
	}

	outputPath := ""
	if len(args) > 1 {
		outputPath = args[1]
	} else {
		name := sess.Name
		if name == "" {
			name = session.ShortID(sess.ID)
		}
		outputPath = name + ".md"
	}
	if err := os.WriteFile(outputPath, []byte(exportMarkdown(sess, turns)), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	fmt.Printf("Exported %d turns to %s\n", len(turns), outputPath)
	return nil
}

func exportMarkdown(sess *session.Session, turns llm.History) string {
	var b strings.Builder
	b.WriteString("# Chat Export\n\n")
	fmt.Fprintf(&b, "**Session:** %s\n", sess.ID)
	if sess.Name != "" {
		fmt.Fprintf(&b, "**Name:** %s\n", sess.Name)
	}
	fmt.Fprintf(&b, "**Provider:** %s\n", sess.Provider)
	fmt.Fprintf(&b, "**Model:** %s\n", sess.Model)
	fmt.Fprintf(&b, "**Created:** %s\n", sess.CreatedAt.Format(time.RFC3339))
	b.WriteString("\n---\n\n")

	for _, turn := range turns {
		switch turn.Role {
		case llm.RoleUser:
			b.WriteString("## User\n\n")
			b.WriteString(turn.Text)
		case llm.RoleAssistant:
			b.WriteString("## Assistant\n\n")
			b.WriteString(turn.Text)
			for _, call := range turn.ToolCalls {
				fmt.Fprintf(&b, "\n- `%s%s`", call.Name, llm.FormatToolArgs(call.Arguments, 80, 5))
			}
		case llm.RoleTool:
			fmt.Fprintf(&b, "### Tool result: %s\n\n```\n%s\n```", turn.ToolName, turn.Text)
		default:
			continue
		}
		b.WriteString("\n\n---\n\n")
	}
	return b.String()
}

func formatSessionTokens(input, output int) string {
	if input == 0 && output == 0 {
		return "-"
	}
	return formatSessionCount(input) + "/" + formatSessionCount(output)
}

func formatSessionCount(n int) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1000:
		return fmt.Sprintf("%.1fk", float64(n)/1000)
	}
	return fmt.Sprintf("%d", n)
}

func formatRelativeTime(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
	return t.Format("2006-01-02")
}
