package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/eduspider/internal/crawler"
)

const defaultListLimit = 50

func newTopicsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "List topics ordered by page count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			topics, err := appInstance.Catalog().ListTopics(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list topics: %w", err)
			}
			if len(topics) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No topics found.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TOPIC\tPAGES")
			for _, t := range topics {
				fmt.Fprintf(w, "%s\t%d\n", t.Name, t.PageCount)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", defaultListLimit, "maximum rows to print (0 for all)")
	return cmd
}

func newPagesCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "pages <topic>",
		Short: "List pages tagged with a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			pages, err := appInstance.Catalog().ListPagesForTopic(cmd.Context(), args[0], limit)
			if errors.Is(err, crawler.ErrNotFound) {
				fmt.Fprintf(cmd.OutOrStdout(), "Topic %q not found.\n", args[0])
				return nil
			}
			if err != nil {
				return fmt.Errorf("list pages for %q: %w", args[0], err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "URL\tTITLE\tDEPTH")
			for _, p := range pages {
				fmt.Fprintf(w, "%s\t%s\t%d\n", p.URL, p.Title, p.Depth)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", defaultListLimit, "maximum rows to print (0 for all)")
	return cmd
}

func newJobsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent crawl jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			jobs, err := appInstance.Catalog().ListJobs(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list jobs: %w", err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSEED\tDEPTH\tSTATUS\tPAGES\tSTARTED")
			for _, j := range jobs {
				fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%d\t%s\n",
					j.ID, j.SeedURL, j.MaxDepth, j.Status, j.PagesFound, j.StartedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", defaultListLimit, "maximum rows to print (0 for all)")
	return cmd
}
