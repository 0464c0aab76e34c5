package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kulti/stream/internal/hook"
	"github.com/kulti/stream/internal/watcher"
)

func newWatchCmd(opts *globalOptions) *cobra.Command {
	var agent string
	var ignore []string
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Stream file changes under dir",
		Long: "Stream file changes under dir (default KULTI_WATCH_PATH or the current directory).\n" +
			"Extra ignore patterns come from --ignore and KULTI_WATCH_IGNORE.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := envOr("KULTI_WATCH_PATH", ".")
			if len(args) == 1 {
				dir = args[0]
			}
			w, err := watcher.New(watcher.Config{
				Root:   dir,
				Ignore: append(watcher.SplitIgnore(os.Getenv("KULTI_WATCH_IGNORE")), ignore...),
			}, opts.client(agent, localServer))
			if err != nil {
				return err
			}
			slog.Info("streaming file changes", "agent", agent, "root", w.Root())
			return w.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&agent, "agent", envOr("KULTI_AGENT_ID", "watcher"), "agent id (env KULTI_AGENT_ID)")
	cmd.Flags().StringSliceVar(&ignore, "ignore", nil, "extra path components to ignore")
	return cmd
}

// newHookCmd reads one Claude Code hook invocation from stdin. It never
// fails so the agent is never blocked by streaming problems.
func newHookCmd(opts *globalOptions) *cobra.Command {
	var agent, event string
	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Forward a Claude Code hook event read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if os.Getenv("KULTI_STREAM_ENABLED") == "0" {
				return nil
			}
			if err := hook.Run(cmd.Context(), cmd.InOrStdin(), event, opts.client(agent, localServer)); err != nil {
				slog.Debug("hook not streamed", "event", event, "error", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&agent, "agent", envOr("KULTI_AGENT_ID", "nex"), "agent id (env KULTI_AGENT_ID)")
	cmd.Flags().StringVar(&event, "event", os.Getenv("CLAUDE_HOOK_EVENT_NAME"), "hook event name, read from the input when empty")
	return cmd
}
