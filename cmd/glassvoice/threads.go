package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ent0n29/glassvoice/internal/threads"
)

func newThreadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "Inspect stored conversation threads",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List threads, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withThreads(cmd.Context(), func(m *threads.Manager) error {
				return printThreads(cmd, m.List())
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withThreads(cmd.Context(), func(m *threads.Manager) error {
				if err := m.DeleteThread(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	})
	return cmd
}

func withThreads(ctx context.Context, fn func(*threads.Manager) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	backend, err := threads.OpenBackend(ctx, cfg.ThreadsBackend, cfg.ThreadsPath, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	m := threads.NewManager(ctx, backend, threads.Options{SaveDebounce: time.Millisecond})
	runErr := fn(m)
	if err := m.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func printThreads(cmd *cobra.Command, list []threads.Summary) error {
	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no threads")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUPDATED\tMESSAGES\tTITLE")
	for _, s := range list {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.ID, s.UpdatedAt.Local().Format(time.RFC3339), s.MessageCount, strings.Join(strings.Fields(s.Title), " "))
	}
	return w.Flush()
}
