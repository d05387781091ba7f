package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/samsaffron/toolchat/internal/config"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var (
	configPath   string
	providerFlag string
	logLevel     string
	debugLog     bool
	showStats    bool
	toolsFlag    string
	thinkingFlag bool
	noMarkdown   bool
)

var rootCmd = &cobra.Command{
	Use:   "toolchat",
	Short: "Chat with language models that can use local and MCP tools",
	Long: `toolchat talks to Anthropic, OpenAI, Gemini and OpenAI-compatible models
from the terminal. The model can read and write files, glob, run allowed
shell commands and call tools served by MCP servers.

Examples:
  toolchat chat                           # interactive chat
  toolchat chat --resume last             # continue the last session
  toolchat ask "what does main.go do" -f main.go
  toolchat -p openai:gpt-4.1 ask "hello"
  toolchat -p debug chat                  # offline debug backend
  toolchat config init                    # write a starter config`,
	SilenceUsage:      true,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Config file (default: ~/.config/toolchat/config.yaml)")
	pf.StringVarP(&providerFlag, "provider", "p", "", "Override provider, optionally with model (e.g., openai:gpt-4.1)")
	pf.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.BoolVar(&debugLog, "debug-log", false, "Write every round and event to a JSONL debug log")
	pf.BoolVar(&showStats, "stats", false, "Show loop statistics (time, tokens, tool calls)")
	pf.StringVar(&toolsFlag, "tools", "", "Restrict the tools offered to the model (comma-separated, or 'none')")
	pf.BoolVar(&thinkingFlag, "thinking", false, "Enable extended thinking / reasoning")
	pf.BoolVar(&noMarkdown, "no-markdown", false, "Print model output as plain text")

	if err := rootCmd.RegisterFlagCompletionFunc("provider", providerFlagCompletion); err != nil {
		panic("failed to register provider completion: " + err.Error())
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func providerFlagCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return config.ProviderNames, cobra.ShellCompDirectiveNoFileComp
}
