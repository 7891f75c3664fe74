package cmd

import (
	"errors"
	"fmt"

	"cvectl/internal/analysis"
	"cvectl/internal/console"
	"cvectl/pkg/logging"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var output string
	var recent int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state and health of the deployed services",
		Long: `Inspects the running services and probes their health endpoints once.
The deployment state is derived fresh on every call; nothing is stored.

Use --recent to also list the most recently published CVEs known to the
analysis API.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := console.ParseFormat(output)
			if err != nil {
				return err
			}
			s, err := newSession(cmd, nil)
			if err != nil {
				return err
			}
			mgr, err := s.Existing()
			if err != nil {
				return err
			}

			ctx := commandContext(cmd)
			obs, err := mgr.Observe(ctx)
			if err != nil {
				return fmt.Errorf("failed to inspect services: %w", err)
			}
			view := console.NewStatusView(obs)

			if format != console.FormatTable {
				return console.Encode(s.Out.Writer(), format, view)
			}
			s.Out.StatusTable(view)

			if recent <= 0 {
				return nil
			}
			cves, err := analysis.NewClient(s.Config.APIBaseURL()).RecentCVEs(ctx, recent)
			if err != nil {
				logging.WarnErr("Status", err, "Could not list recent CVEs")
				if errors.Is(err, analysis.ErrUnreachable) {
					s.Out.Warning("Analysis API is not reachable at %s", s.Config.APIBaseURL())
					return nil
				}
				s.Out.Warning("Could not list recent CVEs: %v", err)
				return nil
			}
			s.Out.Heading("Recent CVEs")
			s.Out.CVETable(cves)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table, json or yaml")
	cmd.Flags().IntVar(&recent, "recent", 0, "Also list the N most recent CVEs")
	return cmd
}
