package main

import (
	"tlsflow/config"
	"tlsflow/session/tls/common"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newTraceCommand(a *app) *cobra.Command {
	var role, out string
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Write the default trace document for a role",
		Long: "Write the trace a client, server or relay runs when no trace file is given.\n" +
			"The document can be edited and passed back with --trace.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode := config.Mode(role)
			if _, ok := common.ParseRole(role); !ok && mode != config.ModeRelay {
				return errors.Wrapf(common.ErrConfiguration, "unknown role %q", role)
			}

			a.cfg.TraceFile = ""
			trace, err := a.trace(mode)
			if err != nil {
				return err
			}
			if err := a.save(out, trace); err != nil {
				return err
			}
			a.logger.Debug("trace written", "role", role, "actions", trace.Len(), "out", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "client", "client, server or relay")
	cmd.Flags().StringVar(&out, "out", "-", "file to write, - for stdout")
	return cmd
}
