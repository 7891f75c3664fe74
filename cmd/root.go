package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"cvectl/internal/app"

	"github.com/spf13/cobra"
)

// debug enables verbose logging for every command.
var debug bool

// rootFlags are the setup flags accepted directly on the root command.
var rootFlags = &setupFlags{}

// rootCmd represents the base command when called without any subcommands.
// Without a subcommand it runs setup.
var rootCmd = &cobra.Command{
	Use:   "cvectl",
	Short: "Deploy and operate the CVE Analyst system",
	Long: `cvectl deploys the CVE Analyst system (analysis API, web UI and update
scheduler) on this machine, either in docker containers or as local
processes, and helps you check, analyze with and maintain it afterwards.

Running cvectl without a command starts setup. Pick a mode with --docker,
--local or --manual, or choose one interactively.

cvectl operates on the current directory. Do not run several cvectl
commands against the same directory at the same time.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetup(cmd, rootFlags)
	},
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. failed builds, unreachable services)
	SilenceUsage: true,
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "cvectl version %s\n" .Version}}`)

	// Interrupts cancel the running step, including readiness polling.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootFlags.register(rootCmd)

	rootCmd.AddCommand(newSetupCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newLogsCmd())
	rootCmd.AddCommand(newRestartCmd())
	rootCmd.AddCommand(newResetCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}

// newSession resolves the configuration for one command.
func newSession(cmd *cobra.Command, overrides map[string]string) (*app.Session, error) {
	return app.NewSession(app.SessionOptions{
		Overrides: overrides,
		Debug:     debug,
		Out:       cmd.OutOrStdout(),
		LogOutput: cmd.ErrOrStderr(),
	})
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
