package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewRootCommand returns the dse command with its subcommands attached.
func NewRootCommand() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "dse",
		Short: "Dynamic symbolic execution of Go code",
		Long: `Dse explores the paths of Go functions symbolically, tracking
statement coverage and reporting the inputs reaching each terminated path.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose")

	cmd.AddCommand(NewRunCommand().Command())
	cmd.AddCommand(NewRunsCommand().Command())
	return cmd
}
