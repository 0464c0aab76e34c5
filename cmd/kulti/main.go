// Command kulti streams an agent's thoughts, code and status to a Kulti
// relay from the shell.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kulti/stream/pkg/kulti"
)

// localServer is where adapters running next to a relay post by default.
const localServer = "http://localhost:8766"

type globalOptions struct {
	server  string
	apiKey  string
	timeout time.Duration
}

// client builds a producer for agent. fallback is used when no server was
// given by flag or environment.
func (o *globalOptions) client(agent, fallback string) *kulti.Client {
	server := o.server
	if server == "" {
		server = fallback
	}
	return kulti.New(kulti.Config{
		AgentID: agent,
		Server:  server,
		APIKey:  o.apiKey,
		Timeout: o.timeout,
	})
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "kulti",
		Short: "Stream your AI agent to Kulti",
		Long: "Stream your AI agent to Kulti.\n\n" +
			"Watch at https://kulti.club/ai/watch/<agent>",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.server, "server", os.Getenv("KULTI_STATE_SERVER"), "relay URL (env KULTI_STATE_SERVER)")
	root.PersistentFlags().StringVar(&opts.apiKey, "api-key", os.Getenv("KULTI_API_KEY"), "relay API key (env KULTI_API_KEY)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "request timeout")

	addThoughtCommands(root, opts)
	addStateCommands(root, opts)
	root.AddCommand(newWatchCmd(opts), newHookCmd(opts))
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
