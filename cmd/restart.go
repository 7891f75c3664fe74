package cmd

import (
	"cvectl/internal/lifecycle"

	"github.com/spf13/cobra"
)

func newRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the deployed services",
		Long: `Stops and starts the services of the current deployment, then waits for
them to report healthy again.`,
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

			state, err := mgr.Restart(commandContext(cmd))
			if err != nil {
				return err
			}
			if state == lifecycle.StateReady {
				s.Out.Success("Services restarted")
			} else {
				s.Out.Warning("Services restarted but the deployment is %s", state)
			}
			return nil
		},
	}
}
