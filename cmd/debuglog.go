package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/samsaffron/toolchat/internal/config"
	"github.com/samsaffron/toolchat/internal/debuglog"
	"github.com/samsaffron/toolchat/internal/ui"
)

var (
	debugLogRoundsOnly bool
	debugLogTimestamps bool
)

var debugLogCmd = &cobra.Command{
	Use:   "debug-log",
	Short: "Inspect logs recorded with --debug-log",
	Long: `Inspect the JSONL logs written when --debug-log is set. Each log holds
every request round and observer event of one run. Logs older than seven
days are removed automatically.

Examples:
  toolchat debug-log                 # list logs, most recent first
  toolchat debug-log show            # show the most recent log
  toolchat debug-log show 2          # show the second most recent
  toolchat debug-log show 3f2a --rounds
  toolchat debug-log path`,
	Args: cobra.NoArgs,
	RunE: runDebugLogList,
}

var debugLogShowCmd = &cobra.Command{
	Use:   "show [number|id]",
	Short: "Show a debug log",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDebugLogShow,
}

var debugLogPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the debug log directory",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(config.DebugLogDir())
	},
}

func init() {
	debugLogShowCmd.Flags().BoolVar(&debugLogRoundsOnly, "rounds", false, "Only show request rounds")
	debugLogShowCmd.Flags().BoolVar(&debugLogTimestamps, "timestamps", false, "Show a timestamp for each entry")
	debugLogCmd.AddCommand(debugLogShowCmd, debugLogPathCmd)
	rootCmd.AddCommand(debugLogCmd)
}

func runDebugLogList(cmd *cobra.Command, args []string) error {
	sessions, err := debuglog.ListSessions(config.DebugLogDir())
	if err != nil {
		return err
	}
	debuglog.FormatSessionList(os.Stdout, ui.NewStyles(os.Stdout, ui.DefaultTheme()), sessions)
	return nil
}

func runDebugLogShow(cmd *cobra.Command, args []string) error {
	ref := ""
	if len(args) > 0 {
		ref = args[0]
	}
	summary, err := debuglog.ResolveSession(config.DebugLogDir(), ref)
	if err != nil {
		return err
	}
	s, err := debuglog.ParseSession(summary.FilePath)
	if err != nil {
		return err
	}
	debuglog.FormatSession(os.Stdout, ui.NewStyles(os.Stdout, ui.DefaultTheme()), s, debuglog.FormatOptions{
		RoundsOnly:    debugLogRoundsOnly,
		ShowTimestamp: debugLogTimestamps,
	})
	return nil
}
