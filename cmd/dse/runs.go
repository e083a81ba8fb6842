package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/benbjohnson/dse/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// RunsCommand lists the runs persisted in a store, or the states of one run.
type RunsCommand struct {
	StorePath string

	Stdout io.Writer
}

// NewRunsCommand returns a new instance of RunsCommand.
func NewRunsCommand() *RunsCommand {
	return &RunsCommand{Stdout: os.Stdout}
}

// Command returns the cobra command bound to cmd.
func (cmd *RunsCommand) Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "runs [flags] [run-id]",
		Short: "List stored runs or the states of a run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cmd.Stdout = c.OutOrStdout()
			return cmd.Run(c.Context(), args)
		},
	}
	c.Flags().StringVar(&cmd.StorePath, "store", "", "database path")
	c.MarkFlagRequired("store")
	return c
}

// Run executes the command.
func (cmd *RunsCommand) Run(ctx context.Context, args []string) error {
	db, err := store.OpenPath(cmd.StorePath)
	if err != nil {
		return err
	}
	defer db.Close()

	if len(args) == 0 {
		return cmd.listRuns(db)
	}

	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid run id: %w", err)
	}
	return cmd.listStates(db, id)
}

func (cmd *RunsCommand) listRuns(db *store.Store) error {
	ids, err := db.Runs()
	if err != nil {
		return err
	}
	for _, id := range ids {
		rec, err := db.Coverage(id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.Stdout, "%s\t%.1f%%\t%d/%d\t%d steps\t%s\n", id, rec.Percent, rec.Covered, rec.Total, rec.Steps, rec.Elapsed)
	}
	return nil
}

func (cmd *RunsCommand) listStates(db *store.Store, id uuid.UUID) error {
	if _, err := db.Coverage(id); err != nil {
		return fmt.Errorf("run %s: %w", id, err)
	}
	recs, err := db.States(id)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		status := "ok"
		if rec.Exceptional {
			status = "exception"
		} else if !rec.Reachable {
			status = "unreachable"
		}
		fmt.Fprintf(cmd.Stdout, "state#%d\t%s\t%s\t%v\n", rec.ID, status, rec.Entry, rec.Inputs)
		if len(rec.Path) > 0 {
			fmt.Fprintf(cmd.Stdout, "\t%s\n", strings.Join(rec.Path, " -> "))
		}
	}
	return nil
}
