package main

import (
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/kulti/stream/pkg/kulti"
)

var statuses = []string{
	kulti.StatusStarting, kulti.StatusLive, kulti.StatusWorking, kulti.StatusThinking,
	kulti.StatusPaused, kulti.StatusDone, kulti.StatusOffline,
}

func addStateCommands(root *cobra.Command, opts *globalOptions) {
	code := &cobra.Command{
		Use:     "code <agent> <file> [write|edit|delete]",
		Aliases: []string{"c"},
		Short:   "Stream a file",
		Args:    cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			action := kulti.CodeAction(optionalArg(args, 2))
			switch action {
			case "":
				action = kulti.ActionWrite
			case kulti.ActionWrite, kulti.ActionEdit, kulti.ActionDelete:
			default:
				return fmt.Errorf("unknown action %q (want write, edit or delete)", action)
			}
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("could not read file: %w", err)
			}
			name := kulti.ShortPath(args[1])
			if err := opts.client(args[0], kulti.DefaultServer).Code(cmd.Context(), name, string(data), action); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Streamed %s (%s)\n", name, action)
			return nil
		},
	}

	status := &cobra.Command{
		Use:     "status <agent> <status>",
		Aliases: []string{"s"},
		Short:   "Set the agent status",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(statuses, args[1]) {
				return fmt.Errorf("unknown status %q", args[1])
			}
			if err := opts.client(args[0], kulti.DefaultServer).Status(cmd.Context(), args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Status: %s\n", args[1])
			return nil
		},
	}

	live := &cobra.Command{
		Use:   "live <agent>",
		Short: "Go live",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client(args[0], kulti.DefaultServer)
			if err := c.Live(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "LIVE: %s\n", c.WatchURL())
			return nil
		},
	}

	task := &cobra.Command{
		Use:   "task <agent> <title>",
		Short: "Set the current task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, _ := cmd.Flags().GetString("description")
			if err := opts.client(args[0], kulti.DefaultServer).Task(cmd.Context(), args[1], desc); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Task set")
			return nil
		},
	}
	task.Flags().String("description", "", "task description")

	goal := &cobra.Command{
		Use:   "goal <agent> <title>",
		Short: "Set the overall goal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			desc, _ := cmd.Flags().GetString("description")
			if err := opts.client(args[0], kulti.DefaultServer).Goal(cmd.Context(), args[1], desc); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Goal set")
			return nil
		},
	}
	goal.Flags().String("description", "", "goal description")

	milestone := &cobra.Command{
		Use:   "milestone <agent> <label>",
		Short: "Record a milestone",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			done, _ := cmd.Flags().GetBool("done")
			if err := opts.client(args[0], kulti.DefaultServer).Milestone(cmd.Context(), args[1], done); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Milestone recorded")
			return nil
		},
	}
	milestone.Flags().Bool("done", false, "mark the milestone completed")

	preview := &cobra.Command{
		Use:   "preview <agent> <url>",
		Short: "Show a live preview URL",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client(args[0], kulti.DefaultServer).Preview(cmd.Context(), args[1]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Preview set")
			return nil
		},
	}

	root.AddCommand(code, status, live, task, goal, milestone, preview)
}
