package cmd

import (
	"errors"

	"cvectl/internal/lifecycle"
	"cvectl/pkg/logging"

	"github.com/spf13/cobra"
)

func newResetCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Stop the services, optionally deleting all data",
		Long: `Stops every service of the deployment.

With --all the container volumes and the data, model and log directories
configured for this project are deleted as well. Nothing outside the project
directory is ever removed. Resetting twice is harmless.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, nil)
			if err != nil {
				return err
			}
			mgr, err := s.Existing()
			if err != nil {
				return err
			}

			if all {
				s.Out.Warning("Deleting volumes and %v", s.Config.DeploymentDirs())
			}
			err = mgr.Reset(commandContext(cmd), all)

			var resetErr *lifecycle.ResetError
			if errors.As(err, &resetErr) {
				logging.WarnErr("Reset", err, "Reset finished with errors")
				if len(resetErr.Dirs) > 0 {
					s.Out.Warning("Could not remove: %v", resetErr.Dirs)
				} else {
					s.Out.Warning("Reset incomplete: %v", err)
				}
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Also delete volumes and the data, model and log directories")
	return cmd
}
