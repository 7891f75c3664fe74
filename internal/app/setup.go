package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"cvectl/internal/compose"
	"cvectl/internal/config"
	"cvectl/internal/lifecycle"
	"cvectl/internal/registry"
	"cvectl/internal/runtime"
	"cvectl/pkg/logging"
)

// SetupOptions are the operator's choices for one setup run.
type SetupOptions struct {
	Mode          Mode   // Explicit mode, "" to resolve
	IgnoredModes  []Mode // Mode flags that lost to an earlier one
	Auto          bool   // Never prompt
	Light         bool
	Offline       bool
	With          []string // Optional services to add
	ForceSettings bool     // Rewrite an existing settings file
	In            io.Reader
}

// DataMode maps the setup flags to the data bootstrap mode.
func (o SetupOptions) DataMode() lifecycle.DataMode {
	switch {
	case o.Offline:
		return lifecycle.DataOffline
	case o.Light:
		return lifecycle.DataLight
	default:
		return lifecycle.DataFull
	}
}

// Setup deploys the CVE Analyst system. Fatal errors are returned; a
// deployment that comes up degraded is reported and counts as success.
func (s *Session) Setup(ctx context.Context, opts SetupOptions) error {
	s.Out.Banner("CVE Analyst", "AI-powered CVE analysis, deployed locally")

	for _, m := range opts.IgnoredModes {
		s.Out.Warning("Ignoring --%s, --%s was given first", m, opts.Mode)
	}

	mode, err := ResolveMode(opts.Mode, opts.Auto, opts.In, s.Out)
	if err != nil {
		return err
	}
	logging.Info("Setup", "Deploying in %s mode", mode)

	if err := s.ensureSettings(opts); err != nil {
		return err
	}

	group, err := s.Group(mode, registry.Selection{Light: opts.Light, With: opts.With})
	if err != nil {
		return err
	}

	if mode == ModeManual {
		return s.printManualSteps(group, opts.DataMode())
	}

	mgr, err := s.Manager(mode, group)
	if err != nil {
		return err
	}
	state, err := mgr.Deploy(ctx, opts.DataMode())
	if err != nil {
		return err
	}
	s.printSummary(state)
	return nil
}

// ensureSettings writes the settings file on first setup so later commands
// resolve the same configuration. An existing file is kept unless forced.
func (s *Session) ensureSettings(opts SetupOptions) error {
	path := config.SettingsPath(s.ProjectDir)
	_, err := os.Stat(path)
	switch {
	case err == nil && !opts.ForceSettings:
		logging.Debug("Setup", "Keeping existing settings file %s", path)
		return nil
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("failed to check settings file: %w", err)
	}

	cfg := s.Config
	if cfg.NVDAPIKey == "" && !opts.Auto {
		key, err := PromptNVDKey(s.Out)
		if err != nil {
			return err
		}
		if key != "" {
			cfg.NVDAPIKey = key
			s.Out.Success("NVD API key configured")
		}
	}

	if err := config.WriteSettings(path, cfg); err != nil {
		return err
	}
	s.Config = cfg
	s.Out.Success("Wrote settings to %s", config.SettingsPath("."))
	return nil
}

func (s *Session) printManualSteps(group []registry.Binding, mode lifecycle.DataMode) error {
	composePath := runtime.ComposePath(s.ProjectDir)
	if err := compose.Write(composePath, compose.FromBindings(s.Config.ProjectName, group)); err != nil {
		return err
	}
	s.Out.Success("Rendered compose file %s", runtime.ComposePath("."))

	names := make([]string, 0, len(group))
	for _, b := range group {
		names = append(names, b.Name)
	}
	composeCmd := fmt.Sprintf("docker compose -p %s --project-directory . -f %s", s.Config.ProjectName, runtime.ComposePath("."))

	s.Out.Heading("Deploy with docker")
	s.Out.Hint(composeCmd+" up -d --build "+strings.Join(names, " "), "build and start the services")
	s.Out.Hint("curl "+s.Config.APIBaseURL()+"/health", "wait until the API reports healthy")
	if days := mode.Days(); days > 0 {
		scrape := strings.Join(runtime.ScrapeArgs("python", days), " ")
		s.Out.Hint(composeCmd+" exec api "+scrape, "seed CVE data")
	}

	s.Out.Heading("Or run the services on this host")
	s.Out.Hint("python3 -m pip install -r requirements.txt", "install dependencies")
	for _, b := range group {
		if len(b.LocalArgs) == 0 {
			continue
		}
		s.Out.Hint(strings.Join(b.LocalArgs, " "), "run "+b.Name)
	}
	return nil
}

func (s *Session) printSummary(state lifecycle.State) {
	if state == lifecycle.StateReady {
		s.Out.Success("CVE Analyst is running")
	} else {
		s.Out.Warning("CVE Analyst is %s; some services are not ready yet", state)
	}

	s.Out.Heading("Access your system")
	s.Out.Hint("Web interface", s.Config.UIBaseURL())
	s.Out.Hint("API endpoint ", s.Config.APIBaseURL())
	s.Out.Hint("API docs     ", s.Config.APIBaseURL()+"/docs")

	s.Out.Heading("Quick commands")
	s.Out.Hint("cvectl status", "check service health")
	s.Out.Hint("cvectl analyze CVE-2024-1234", "analyze a CVE")
	s.Out.Hint("cvectl logs", "view service logs")
	s.Out.Hint("cvectl restart", "restart all services")
}
