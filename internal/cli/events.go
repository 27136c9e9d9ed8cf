package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	Instance string
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the audit trail",
		Long: `Show the audit trail: every initialization, ownership transfer,
upgrade, and bundle deployment, in acceptance order.

Example:
  pivot events
  pivot events --instance <instance-id>`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Instance, "instance", "", "filter by instance ID")

	return cmd
}

func runEvents(opts *EventsOptions, cmd *cobra.Command) error {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	ctx := cmd.Context()
	rt, err := openRuntime(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.Close()

	events, err := rt.store.ListEvents(ctx, opts.Instance)
	if err != nil {
		return WrapExitError(ExitCommandError, "list events", err)
	}

	if opts.Format == "json" {
		return out.Success(events)
	}

	for _, ev := range events {
		line := fmt.Sprintf("%6d  %-22s  %s  actor=%s", ev.Seq, ev.Kind, ev.InstanceID, ev.Actor)
		if ev.FromVersion != "" || ev.ToVersion != "" {
			line += fmt.Sprintf("  %s -> %s", ev.FromVersion, ev.ToVersion)
		}
		line += "  " + ev.At.UTC().Format(time.RFC3339)
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	if len(events) == 0 {
		out.VerboseLog("no events recorded")
	}
	return nil
}
