package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/pivot/internal/bundle"
	"github.com/roach88/pivot/internal/deploy"
)

// UpgradeOptions holds flags for the upgrade command.
type UpgradeOptions struct {
	*RootOptions
	Caller  string
	Payload string
}

// NewUpgradeCommand creates the upgrade command.
func NewUpgradeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UpgradeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "upgrade <instance-id> <manifest.cue>",
		Short: "Upgrade an instance to a new implementation bundle",
		Long: `Upgrade a component instance to the bundle described by a manifest.

The manifest is deployed first (idempotent), then the instance is repointed
at its handle. The upgrade is rejected unless the caller owns the instance
and the new schema is a prefix-compatible superset of the current one.
An optional migration payload sets initial values for appended fields:

  values:
    name: "renamed box"

Example:
  pivot upgrade <instance-id> box_v2.cue --caller alice --payload migrate.yaml`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpgrade(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Caller, "caller", "", "principal requesting the upgrade (required)")
	cmd.Flags().StringVar(&opts.Payload, "payload", "", "migration payload YAML file")
	cmd.MarkFlagRequired("caller")

	return cmd
}

func runUpgrade(opts *UpgradeOptions, instanceID, manifestPath string, cmd *cobra.Command) error {
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

	var payload deploy.MigrationPayload
	if opts.Payload != "" {
		payload, err = deploy.LoadMigrationPayload(opts.Payload)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("load payload %s", opts.Payload), err)
		}
	}

	ctx := cmd.Context()
	rt, err := openRuntime(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.Close()

	d := deploy.New(rt.proxy, nil)
	b, err := d.DeployBundle(ctx, m, nil, opts.Caller)
	if err != nil {
		return protocolExit(err)
	}
	out.VerboseLog("upgrade target handle: %s", b.Handle())

	res, err := d.Upgrade(ctx, instanceID, opts.Caller, b.Handle(), payload)
	if err != nil {
		return protocolExit(err)
	}

	return out.Success(map[string]any{
		"instance": instanceID,
		"handle":   b.Handle(),
		"version":  res.Version,
	})
}
