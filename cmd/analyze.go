package cmd

import (
	"errors"
	"strings"

	"cvectl/internal/analysis"
	"cvectl/internal/console"
	"cvectl/pkg/logging"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
)

// For mocking in tests
var copyToClipboard = clipboard.WriteAll

func newAnalyzeCmd() *cobra.Command {
	var copyResult bool
	var output string

	cmd := &cobra.Command{
		Use:   "analyze <CVE-ID> [instruction]",
		Short: "Ask the analysis API about a CVE",
		Long: `Sends a CVE identifier to the running analysis API and prints the
model's assessment. An optional instruction replaces the default prompt.

Errors returned by the API are printed as received.`,
		Example: `  cvectl analyze CVE-2024-1234
  cvectl analyze cve-2021-44228 "Summarize the impact for a Java web service"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := console.ParseFormat(output)
			if err != nil {
				return err
			}
			cveID, err := analysis.NormalizeCVEID(args[0])
			if err != nil {
				return err
			}
			instruction := strings.Join(args[1:], " ")

			s, err := newSession(cmd, nil)
			if err != nil {
				return err
			}

			s.Out.Step("Analyzing %s", cveID)
			res, err := analysis.NewClient(s.Config.APIBaseURL()).Analyze(commandContext(cmd), cveID, instruction)
			if err != nil {
				return reportAnalyzeError(s.Out, s.Config.APIBaseURL(), err)
			}

			if format != console.FormatTable {
				return console.Encode(s.Out.Writer(), format, res)
			}
			s.Out.Heading("Analysis of " + res.CVEID)
			s.Out.Println(res.Analysis)

			if copyResult {
				if err := copyToClipboard(res.Analysis); err != nil {
					logging.WarnErr("Analyze", err, "Failed to copy analysis to clipboard")
					s.Out.Warning("Could not copy to clipboard: %v", err)
				} else {
					s.Out.Success("Copied to clipboard")
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&copyResult, "copy", false, "Copy the analysis text to the clipboard")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table (plain text), json or yaml")
	return cmd
}

// reportAnalyzeError shows API and connection failures to the operator. They
// do not fail the command; anything else does.
func reportAnalyzeError(out *console.Printer, baseURL string, err error) error {
	var apiErr *analysis.APIError
	switch {
	case errors.As(err, &apiErr):
		logging.WarnErr("Analyze", err, "Analysis API rejected the request")
		out.Error("Analysis failed (HTTP %d):", apiErr.StatusCode)
		out.Println(apiErr.Body)
		return nil
	case errors.Is(err, analysis.ErrUnreachable):
		logging.WarnErr("Analyze", err, "Analysis API unreachable")
		out.Error("Analysis API is not reachable at %s", baseURL)
		out.Hint("cvectl status", "check whether the services are running")
		return nil
	default:
		return err
	}
}
