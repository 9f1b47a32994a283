package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/toolhub-crawler/internal/crawler"
)

func newCrawlCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs one crawl over every registered target",
		Long: `Fetches every registered crawl target in registration order, reconciles
the tools they serve with the inventory and prints the run summary.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer closeApp(cmd)
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := appInstance.Crawl(cmd.Context())
			if err != nil {
				return fmt.Errorf("run crawler: %w", err)
			}
			printSummary(cmd.OutOrStdout(), summary, verbose)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print per-target outcomes")
	return cmd
}

func printSummary(w io.Writer, s crawler.RunSummary, verbose bool) {
	fmt.Fprintf(w, "run %s: %d new, %d updated, %d deleted, %d total tools, %d invalid targets\n",
		s.RunID, s.NewTools, s.UpdatedTools, s.DeletedTools, s.TotalTools, s.InvalidTargets())
	if !verbose {
		return
	}
	for _, o := range s.Outcomes {
		status := "valid"
		if !o.Valid {
			status = "invalid"
		}
		fmt.Fprintf(w, "  %s status=%d %s elapsed=%dms tools=%d", o.TargetURL, o.StatusCode, status, o.ElapsedMs, len(o.Tools))
		if o.Redirected {
			fmt.Fprint(w, " redirected")
		}
		fmt.Fprintln(w)
		for _, a := range o.Actions {
			line := fmt.Sprintf("    %s %s", a.Kind, a.Name)
			if len(a.ChangedFields) > 0 {
				line += " [" + strings.Join(a.ChangedFields, ",") + "]"
			}
			if a.Revived {
				line += " (revived)"
			}
			if a.FirstSeenTarget != "" {
				line += " (claimed by " + a.FirstSeenTarget + ")"
			}
			fmt.Fprintln(w, line)
		}
		for _, name := range o.Deleted {
			fmt.Fprintf(w, "    delete %s\n", name)
		}
		if o.Error != "" {
			fmt.Fprintf(w, "    error: %s\n", o.Error)
		}
	}
}
