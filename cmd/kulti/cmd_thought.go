package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kulti/stream/pkg/kulti"
)

type thoughtCommand struct {
	use     string
	aliases []string
	short   string
	done    string
	send    func(c *kulti.Client, ctx context.Context, text string) error
}

var thoughtCommands = []thoughtCommand{
	{"think", []string{"t"}, "General thought", "Streamed thought", (*kulti.Client).Think},
	{"reason", []string{"r"}, "Why you are doing something", "Streamed reasoning", (*kulti.Client).Reason},
	{"decide", []string{"d"}, "A choice you made", "Streamed decision", (*kulti.Client).Decide},
	{"observe", []string{"o"}, "Something you noticed", "Streamed observation", (*kulti.Client).Observe},
	{"confused", nil, "Something you do not understand yet", "Streamed confusion", (*kulti.Client).Confused},
	{"prompt", []string{"p"}, "A prompt you are crafting", "Streamed prompt", (*kulti.Client).Prompt},
}

func addThoughtCommands(root *cobra.Command, opts *globalOptions) {
	for _, tc := range thoughtCommands {
		root.AddCommand(&cobra.Command{
			Use:     tc.use + " <agent> <text>",
			Aliases: tc.aliases,
			Short:   tc.short,
			Args:    cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := tc.send(opts.client(args[0], kulti.DefaultServer), cmd.Context(), args[1]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), tc.done)
				return nil
			},
		})
	}

	evaluate := &cobra.Command{
		Use:     "evaluate <agent> <text>",
		Aliases: []string{"e"},
		Short:   "Weigh options",
		Example: `  kulti evaluate my-agent "Auth approach" --options "JWT|Session|OAuth2" --chosen OAuth2`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("options")
			chosen, _ := cmd.Flags().GetString("chosen")
			var options []string
			if raw != "" {
				options = strings.Split(raw, "|")
			}
			if err := opts.client(args[0], kulti.DefaultServer).Evaluate(cmd.Context(), args[1], options, chosen); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Streamed evaluation")
			return nil
		},
	}
	evaluate.Flags().String("options", "", "options separated by |")
	evaluate.Flags().String("chosen", "", "the option you picked")

	contextCmd := &cobra.Command{
		Use:   "context <agent> <text> [file]",
		Short: "Context you are loading",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client(args[0], kulti.DefaultServer).Context(cmd.Context(), args[1], optionalArg(args, 2)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Streamed context")
			return nil
		},
	}

	tool := &cobra.Command{
		Use:   "tool <agent> <text> [name]",
		Short: "A tool you are using",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client(args[0], kulti.DefaultServer).Tool(cmd.Context(), args[1], optionalArg(args, 2)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Streamed tool")
			return nil
		},
	}

	root.AddCommand(evaluate, contextCmd, tool)
}

func optionalArg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
