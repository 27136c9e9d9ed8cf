package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/pivot/internal/proxy"
)

// CallOptions holds flags for the call command.
type CallOptions struct {
	*RootOptions
	Caller string
	Args   string
}

// NewCallCommand creates the call command.
func NewCallCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CallOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "call <instance-id> <op>",
		Short: "Dispatch an operation against an instance",
		Long: `Dispatch an operation through the proxy.

Bundles deployed from a manifest expose get_<field> and set_<field> for
every schema field. The call executes against the instance's own storage
using whichever implementation is current at dispatch time.

Example:
  pivot call <instance-id> set_value --args '{"value":5}'
  pivot call <instance-id> get_value`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Caller, "caller", "", "principal making the call")
	cmd.Flags().StringVar(&opts.Args, "args", "{}", "operation arguments as JSON")

	return cmd
}

func runCall(opts *CallOptions, instanceID, op string, cmd *cobra.Command) error {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	var argsMap map[string]any
	if err := json.Unmarshal([]byte(opts.Args), &argsMap); err != nil {
		return WrapExitError(ExitCommandError, "invalid --args JSON", err)
	}

	ctx := cmd.Context()
	rt, err := openRuntime(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.Close()

	res, err := rt.proxy.Dispatch(ctx, proxy.Call{
		InstanceID: instanceID,
		Caller:     opts.Caller,
		Op:         op,
		Args:       argsMap,
	})
	if err != nil {
		return protocolExit(err)
	}

	out.VerboseLog("executed by implementation version %s", res.Version)
	if opts.Format == "json" {
		return out.Success(map[string]any{
			"version": res.Version,
			"output":  res.Output,
		})
	}
	return out.Success(fmt.Sprintf("%v", res.Output))
}
