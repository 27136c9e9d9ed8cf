package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// InfoOptions holds flags for the info command.
type InfoOptions struct {
	*RootOptions
}

// NewInfoCommand creates the info command.
func NewInfoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InfoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "info <instance-id>",
		Short:         "Show an instance's current implementation and state",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(opts, args[0], cmd)
		},
	}

	return cmd
}

func runInfo(opts *InfoOptions, instanceID string, cmd *cobra.Command) error {
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

	info, err := rt.proxy.Info(ctx, instanceID)
	if err != nil {
		return protocolExit(err)
	}

	if opts.Format == "json" {
		return out.Success(info)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Instance:    %s\n", info.ID)
	fmt.Fprintf(cmd.OutOrStdout(), "Owner:       %s\n", info.Owner)
	fmt.Fprintf(cmd.OutOrStdout(), "Initialized: %v\n", info.Initialized)
	fmt.Fprintf(cmd.OutOrStdout(), "Handle:      %s\n", info.Handle)
	fmt.Fprintf(cmd.OutOrStdout(), "Version:     %s\n", info.Version)
	return nil
}
