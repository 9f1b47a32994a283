package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/toolhub-crawler/internal/crawler"
)

const cliActor = "cli"

func newTargetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "targets",
		Short: "Manages crawl targets",
	}
	cmd.AddCommand(newTargetsAddCmd(), newTargetsListCmd(), newTargetsRemoveCmd())
	return cmd
}

func newTargetsAddCmd() *cobra.Command {
	var owner, comment string
	cmd := &cobra.Command{
		Use:   "add URL",
		Short: "Registers a toolinfo URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer closeApp(cmd)
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			target, err := appInstance.Targets().AddTarget(cmd.Context(),
				crawler.Target{URL: args[0], Owner: owner},
				crawler.Audit{Actor: cliActor, Comment: comment})
			if err != nil {
				return fmt.Errorf("add target: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s\n", target.URL)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "user responsible for the target")
	cmd.Flags().StringVar(&comment, "comment", "registered via CLI", "audit comment")
	return cmd
}

func newTargetsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Lists crawl targets in registration order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer closeApp(cmd)
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			targets, err := appInstance.Targets().ListTargets(cmd.Context())
			if err != nil {
				return fmt.Errorf("list targets: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tURL\tOWNER\tCREATED")
			for _, t := range targets {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", t.ID, t.URL, t.Owner, t.CreatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

func newTargetsRemoveCmd() *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "remove URL",
		Short: "Unregisters a toolinfo URL; its tools stay in the inventory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer closeApp(cmd)
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := appInstance.Targets().RemoveTarget(cmd.Context(), args[0],
				crawler.Audit{Actor: cliActor, Comment: comment}); err != nil {
				return fmt.Errorf("remove target: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "removed via CLI", "audit comment")
	return cmd
}
