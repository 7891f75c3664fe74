package cmd

import (
	"github.com/spf13/cobra"
)

func newLogsCmd() *cobra.Command {
	var tail int

	cmd := &cobra.Command{
		Use:   "logs [service]",
		Short: "Show recent service logs",
		Long: `Prints the most recent log lines of one service, or of every service in
the deployment when no service is named.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var service string
			if len(args) == 1 {
				service = args[0]
			}

			s, err := newSession(cmd, nil)
			if err != nil {
				return err
			}
			mgr, err := s.Existing()
			if err != nil {
				return err
			}
			return mgr.Logs(commandContext(cmd), service, tail, s.Out.Writer())
		},
	}

	cmd.Flags().IntVarP(&tail, "tail", "n", 100, "Number of lines to show per service (0 for all)")
	return cmd
}
