package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/samsaffron/toolchat/internal/logging"
	"github.com/samsaffron/toolchat/internal/mcp"
	"github.com/samsaffron/toolchat/internal/ui"
)

var (
	mcpAddURL     string
	mcpAddHeaders []string
	mcpAddEnv     []string
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Manage MCP servers",
	Long: `Manage the Model Context Protocol servers whose tools are offered to the
model. Tools from a server are named <server>__<tool>.

Examples:
  toolchat mcp list
  toolchat mcp add fs -- npx -y @modelcontextprotocol/server-filesystem .
  toolchat mcp add docs --url https://example.com/mcp --header "Authorization=Bearer $TOKEN"
  toolchat mcp status
  toolchat mcp remove fs`,
}

var mcpListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured MCP servers",
	Args:  cobra.NoArgs,
	RunE:  mcpList,
}

var mcpAddCmd = &cobra.Command{
	Use:   "add <name> [--url URL | -- command args...]",
	Short: "Add an MCP server",
	Args:  cobra.MinimumNArgs(1),
	RunE:  mcpAdd,
}

var mcpRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove an MCP server",
	Args:  cobra.ExactArgs(1),
	RunE:  mcpRemove,
}

var mcpStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Start every server and report its tools",
	Args:  cobra.NoArgs,
	RunE:  mcpStatus,
}

var mcpPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the MCP config file path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := mcpConfigPath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

func init() {
	mcpAddCmd.Flags().StringVar(&mcpAddURL, "url", "", "Server URL (streamable HTTP transport)")
	mcpAddCmd.Flags().StringArrayVar(&mcpAddHeaders, "header", nil, "HTTP header as KEY=VALUE (repeatable)")
	mcpAddCmd.Flags().StringArrayVar(&mcpAddEnv, "env", nil, "Environment variable as KEY=VALUE (repeatable)")
	mcpCmd.AddCommand(mcpListCmd, mcpAddCmd, mcpRemoveCmd, mcpStatusCmd, mcpPathCmd)
	rootCmd.AddCommand(mcpCmd)
}

func mcpConfigPath() (string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.MCPConfigPath()
}

func loadMCPConfig() (*mcp.Config, string, error) {
	path, err := mcpConfigPath()
	if err != nil {
		return nil, "", err
	}
	cfg, err := mcp.LoadConfig(path)
	if err != nil {
		return nil, "", fmt.Errorf("load config: %w", err)
	}
	return cfg, path, nil
}

func mcpList(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadMCPConfig()
	if err != nil {
		return err
	}
	printMCPServers(os.Stdout, cfg, path)
	return nil
}

func printMCPServers(w io.Writer, cfg *mcp.Config, path string) {
	if len(cfg.Servers) == 0 {
		fmt.Fprintln(w, "No MCP servers configured.")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Add one with: toolchat mcp add <name> -- <command> [args...]")
		return
	}

	fmt.Fprintf(w, "Configured MCP servers (%d):\n\n", len(cfg.Servers))
	for _, name := range cfg.ServerNames() {
		server := cfg.Servers[name]
		suffix := ""
		if server.Disabled {
			suffix = " (disabled)"
		}
		fmt.Fprintf(w, "  %s%s\n", name, suffix)
		if server.TransportType() == "http" {
			fmt.Fprintf(w, "    url: %s\n", server.URL)
			if len(server.Headers) > 0 {
				fmt.Fprintf(w, "    headers: %d\n", len(server.Headers))
			}
		} else {
			fmt.Fprintf(w, "    command: %s\n", strings.TrimSpace(server.Command+" "+strings.Join(server.Args, " ")))
		}
		if len(server.Env) > 0 {
			fmt.Fprintf(w, "    env: %d variables\n", len(server.Env))
		}
	}
	fmt.Fprintf(w, "\nConfig file: %s\n", path)
}

func mcpAdd(cmd *cobra.Command, args []string) error {
	name := args[0]
	var command []string
	if dash := cmd.ArgsLenAtDash(); dash >= 0 {
		if dash != 1 {
			return fmt.Errorf("expected exactly one name before --")
		}
		command = args[dash:]
	} else if len(args) > 1 {
		return fmt.Errorf("put the server command after --, e.g. toolchat mcp add %s -- %s", name, strings.Join(args[1:], " "))
	}

	server, err := buildServerConfig(mcpAddURL, command, mcpAddHeaders, mcpAddEnv)
	if err != nil {
		return err
	}

	cfg, path, err := loadMCPConfig()
	if err != nil {
		return err
	}
	if err := cfg.AddServer(name, server); err != nil {
		return err
	}
	if err := cfg.Save(path); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("Added MCP server %s (%s)\n", name, server.TransportType())
	return nil
}

// buildServerConfig assembles a server entry from mcp add's flags.
func buildServerConfig(url string, command, headers, env []string) (mcp.ServerConfig, error) {
	server := mcp.ServerConfig{URL: url}
	if len(command) > 0 {
		server.Command = command[0]
		server.Args = command[1:]
	}
	var err error
	if server.Headers, err = parseKeyValues(headers, "header"); err != nil {
		return server, err
	}
	if server.Env, err = parseKeyValues(env, "env"); err != nil {
		return server, err
	}
	if err := server.Validate(); err != nil {
		return server, err
	}
	return server, nil
}

func parseKeyValues(pairs []string, what string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid %s %q (expected KEY=VALUE)", what, pair)
		}
		out[k] = v
	}
	return out, nil
}

func mcpRemove(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadMCPConfig()
	if err != nil {
		return err
	}
	if !cfg.RemoveServer(args[0]) {
		return fmt.Errorf("no MCP server named %s", args[0])
	}
	if err := cfg.Save(path); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("Removed MCP server %s\n", args[0])
	return nil
}

func mcpStatus(cmd *cobra.Command, args []string) error {
	appCfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg, _, err := loadMCPConfig()
	if err != nil {
		return err
	}
	if len(cfg.Servers) == 0 {
		fmt.Println("No MCP servers configured.")
		return nil
	}
	log, err := logging.NewLogger(appCfg.Log.Level, appCfg.Log.Format, appCfg.Log.File)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	manager := mcp.NewManager(cfg, Version, log)
	defer manager.StopAll()
	_ = manager.StartAll(ctx) // failures are reported per server below

	styles := ui.NewStyles(os.Stdout, ui.ThemeFromConfig(appCfg.Theme))
	printMCPStates(os.Stdout, styles, manager.States())
	return nil
}

func printMCPStates(w io.Writer, styles *ui.Styles, states []mcp.ServerState) {
	for _, s := range states {
		switch s.Status {
		case mcp.StatusReady:
			fmt.Fprintln(w, styles.FormatResult(true, fmt.Sprintf("%s: %d tools", s.Name, s.Tools)))
		default:
			msg := string(s.Status)
			if s.Error != nil {
				msg = s.Error.Error()
			}
			fmt.Fprintln(w, styles.FormatResult(false, fmt.Sprintf("%s: %s", s.Name, msg)))
		}
	}
}
