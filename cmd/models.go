package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/samsaffron/toolchat/internal/llm"
	"github.com/samsaffron/toolchat/internal/ui"
)

var (
	modelsJSON   bool
	modelsFilter string
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List available models from a provider",
	Long: `List available models from a provider.

This command queries the provider's models API to discover what models
are available. Use the global --provider flag to pick the provider.

Examples:
  toolchat models                       # list models from current provider
  toolchat -p anthropic models          # list models from Anthropic
  toolchat -p ollama models             # list models from Ollama
  toolchat models --filter sonnet       # fuzzy filter
  toolchat models --json                # output as JSON`,
	RunE: runModels,
}

func init() {
	modelsCmd.Flags().BoolVar(&modelsJSON, "json", false, "Output as JSON")
	modelsCmd.Flags().StringVar(&modelsFilter, "filter", "", "Fuzzy filter model names")
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	backend, err := llm.NewBackend(cfg)
	if err != nil {
		return err
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()

	models, err := backend.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list %s models: %w", backend.Name(), err)
	}
	sort.Strings(models)

	styles := ui.NewStyles(os.Stdout, ui.ThemeFromConfig(cfg.Theme))
	return printModels(os.Stdout, styles, backend.Name(), models, modelsFilter, modelsJSON)
}

// printModels writes models, optionally fuzzy filtered. Filtered results
// are ordered by match score with the matched runes highlighted.
func printModels(w io.Writer, styles *ui.Styles, provider string, models []string, filter string, asJSON bool) error {
	names := models
	var matches fuzzy.Matches
	if filter != "" {
		matches = fuzzy.Find(filter, models)
		names = make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.Str
		}
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Provider string   `json:"provider"`
			Models   []string `json:"models"`
		}{provider, nonNil(names)})
	}

	if len(names) == 0 {
		if filter != "" {
			fmt.Fprintf(w, "No %s models match %q\n", provider, filter)
		} else {
			fmt.Fprintf(w, "No models reported by %s\n", provider)
		}
		return nil
	}

	fmt.Fprintln(w, styles.Bold.Render(fmt.Sprintf("%s models:", provider)))
	if matches == nil {
		for _, name := range names {
			fmt.Fprintf(w, "  %s\n", name)
		}
		return nil
	}
	for _, m := range matches {
		fmt.Fprintf(w, "  %s\n", highlightMatch(styles, m))
	}
	return nil
}

func highlightMatch(styles *ui.Styles, m fuzzy.Match) string {
	matched := make(map[int]bool, len(m.MatchedIndexes))
	for _, i := range m.MatchedIndexes {
		matched[i] = true
	}
	var sb strings.Builder
	for i, r := range m.Str {
		if matched[i] {
			sb.WriteString(styles.Highlighted.Render(string(r)))
		} else {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
