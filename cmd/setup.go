package cmd

import (
	"strconv"

	"cvectl/internal/app"
	"cvectl/internal/config"

	"github.com/spf13/cobra"
)

// setupFlags holds the flags shared by the root and setup commands.
type setupFlags struct {
	modes         app.ModeSelector
	auto          bool
	light         bool
	offline       bool
	apiPort       int
	uiPort        int
	with          []string
	forceSettings bool
}

var modeUsage = map[app.Mode]string{
	app.ModeDocker: "Deploy every service in docker containers",
	app.ModeLocal:  "Run the services as local Python processes",
	app.ModeManual: "Print the deployment steps instead of running them",
}

func (f *setupFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	for _, m := range app.Modes {
		flags.Var(f.modes.Flag(m), string(m), modeUsage[m]+" (the first mode flag wins)")
		flags.Lookup(string(m)).NoOptDefVal = "true"
	}
	flags.BoolVar(&f.auto, "auto", false, "Never prompt; use docker mode unless another mode is given")
	flags.BoolVar(&f.light, "light-mode", false, "Skip the scheduler and seed only the last 7 days of CVE data")
	flags.BoolVar(&f.offline, "offline", false, "Skip the initial CVE data download")
	flags.IntVar(&f.apiPort, "api-port", config.DefaultAPIPort, "Host port for the analysis API")
	flags.IntVar(&f.uiPort, "ui-port", config.DefaultUIPort, "Host port for the web UI")
	flags.StringSliceVar(&f.with, "with", nil, "Optional services to deploy as well (db, cache, proxy)")
	flags.BoolVar(&f.forceSettings, "force-settings", false, "Rewrite the .env settings file even if it exists")
}

// overrides returns the configuration values set explicitly on the command
// line. Unset flags leave the settings file and environment in charge.
func (f *setupFlags) overrides(cmd *cobra.Command) map[string]string {
	out := make(map[string]string)
	if cmd.Flags().Changed("api-port") {
		out[config.KeyAPIPort] = strconv.Itoa(f.apiPort)
	}
	if cmd.Flags().Changed("ui-port") {
		out[config.KeyUIPort] = strconv.Itoa(f.uiPort)
	}
	return out
}

func (f *setupFlags) options(cmd *cobra.Command) app.SetupOptions {
	return app.SetupOptions{
		Mode:          f.modes.Mode(),
		IgnoredModes:  f.modes.Ignored(),
		Auto:          f.auto,
		Light:         f.light,
		Offline:       f.offline,
		With:          f.with,
		ForceSettings: f.forceSettings,
		In:            cmd.InOrStdin(),
	}
}

func newSetupCmd() *cobra.Command {
	flags := &setupFlags{}
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Deploy the CVE Analyst system",
		Long: `Deploys the CVE Analyst system in the chosen mode:

  --docker  builds the images and starts every service with docker compose
  --local   installs the Python requirements and runs the services as
            background processes on this host
  --manual  renders the compose file and prints the commands to run

Setup checks prerequisites, writes .env on first run, builds and starts the
services, waits for the API to report healthy and seeds recent CVE data.
Without a mode flag you are asked to choose one; with --auto, or when input
is not a terminal, docker is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetup(cmd, flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func runSetup(cmd *cobra.Command, flags *setupFlags) error {
	s, err := newSession(cmd, flags.overrides(cmd))
	if err != nil {
		return err
	}
	return s.Setup(commandContext(cmd), flags.options(cmd))
}
