package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/pivot/internal/bundle"
	"github.com/roach88/pivot/internal/deploy"
)

// DeployOptions holds flags for the deploy command.
type DeployOptions struct {
	*RootOptions
	Actor string
}

// NewDeployCommand creates the deploy command.
func NewDeployCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeployOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "deploy <manifest.cue>",
		Short: "Deploy an implementation bundle from a manifest",
		Long: `Deploy an implementation bundle from a CUE manifest.

The manifest declares the bundle version, its ordered field schema, and an
optional reservation for future fields. Deployment is idempotent: a manifest
always deploys to the same content-addressed handle.

Example:
  pivot deploy box_v1.cue --actor alice`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Actor, "actor", "", "principal recorded as the deployer")

	return cmd
}

func runDeploy(opts *DeployOptions, manifestPath string, cmd *cobra.Command) error {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	m, err := bundle.LoadManifest(manifestPath)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("load manifest %s", manifestPath), err)
	}

	ctx := cmd.Context()
	rt, err := openRuntime(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.Close()

	d := deploy.New(rt.proxy, nil)
	b, err := d.DeployBundle(ctx, m, nil, opts.Actor)
	if err != nil {
		return protocolExit(err)
	}

	out.VerboseLog("deployed ops: %v", b.Ops())
	return out.Success(map[string]any{
		"handle":  b.Handle(),
		"version": b.Version(),
	})
}
