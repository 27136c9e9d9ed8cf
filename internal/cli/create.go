package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/pivot/internal/deploy"
)

// CreateOptions holds flags for the create command.
type CreateOptions struct {
	*RootOptions
	Payload string
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create <bundle-handle>",
		Short: "Create and initialize a component instance",
		Long: `Create a component instance hosting the given bundle.

The instance is created and initialized in one step - there is never a
window where it exists uninitialized. The payload file sets the first
owner and the initial field values:

  owner: alice
  values:
    value: 5

Example:
  pivot create <handle> --payload init.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Payload, "payload", "", "initializer payload YAML file (required)")
	cmd.MarkFlagRequired("payload")

	return cmd
}

func runCreate(opts *CreateOptions, handle string, cmd *cobra.Command) error {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	payload, err := deploy.LoadInitPayload(opts.Payload)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("load payload %s", opts.Payload), err)
	}

	ctx := cmd.Context()
	rt, err := openRuntime(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.Close()

	d := deploy.New(rt.proxy, nil)
	id, err := d.DeployInstance(ctx, handle, payload)
	if err != nil {
		return protocolExit(err)
	}

	return out.Success(map[string]any{
		"instance": id,
		"owner":    payload.Owner,
	})
}
