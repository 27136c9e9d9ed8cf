package cli

import (
	"github.com/spf13/cobra"
)

// TransferOptions holds flags for the transfer command.
type TransferOptions struct {
	*RootOptions
	Caller string
}

// NewTransferCommand creates the transfer command.
func NewTransferCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TransferOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "transfer <instance-id> <new-owner>",
		Short: "Transfer instance ownership to a new principal",
		Long: `Transfer ownership of a component instance.

Only the current owner may transfer; the new owner must be non-empty.
The transfer is recorded in the audit trail.

Example:
  pivot transfer <instance-id> bob --caller alice`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransfer(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Caller, "caller", "", "principal requesting the transfer (required)")
	cmd.MarkFlagRequired("caller")

	return cmd
}

func runTransfer(opts *TransferOptions, instanceID, newOwner string, cmd *cobra.Command) error {
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

	if _, err := rt.proxy.TransferOwnership(ctx, instanceID, opts.Caller, newOwner); err != nil {
		return protocolExit(err)
	}

	return out.Success(map[string]any{
		"instance": instanceID,
		"owner":    newOwner,
	})
}
