// Package app wires the configuration, service catalogue, runtimes and
// lifecycle manager together for the cvectl commands.
package app

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cvectl/internal/compose"
	"cvectl/internal/config"
	"cvectl/internal/console"
	"cvectl/internal/health"
	"cvectl/internal/lifecycle"
	"cvectl/internal/registry"
	"cvectl/internal/runtime"
	"cvectl/pkg/logging"

	"github.com/google/uuid"
)

// SessionOptions configures one cvectl invocation.
type SessionOptions struct {
	ProjectDir string            // Defaults to the working directory
	Overrides  map[string]string // Command-line configuration overrides
	Debug      bool
	Out        io.Writer // Operator output, defaults to stdout
	LogOutput  io.Writer // Log output, defaults to stderr
}

// Session is the resolved context shared by all steps of one invocation.
type Session struct {
	RunID      string
	ProjectDir string
	Config     config.Config
	Registry   *registry.Registry
	Out        *console.Printer

	// For mocking in tests
	newRuntime func(s *Session, mode Mode) (runtime.Runtime, error)
	clock      health.Clock
}

// NewSession resolves the configuration once and sets up logging.
func NewSession(opts SessionOptions) (*Session, error) {
	logOut := opts.LogOutput
	if logOut == nil {
		logOut = os.Stderr
	}
	level := logging.LevelInfo
	if opts.Debug {
		level = logging.LevelDebug
	}
	logging.InitForCLI(level, logOut)

	runID := uuid.NewString()
	logging.SetRunID(runID)

	projectDir := opts.ProjectDir
	if projectDir == "" {
		dir, err := config.ProjectDir()
		if err != nil {
			return nil, fmt.Errorf("failed to determine project directory: %w", err)
		}
		projectDir = dir
	}

	cfg := config.Resolve(config.Environ(), config.SettingsPath(projectDir), opts.Overrides)
	if !opts.Debug {
		if lvl, ok := logging.ParseLevel(cfg.LogLevel); ok && lvl != level {
			logging.InitForCLI(lvl, logOut)
		}
	}
	logging.Debug("Bootstrap", "Project directory %s, API port %d, UI port %d", projectDir, cfg.APIPort, cfg.UIPort)

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	return &Session{
		RunID:      runID,
		ProjectDir: projectDir,
		Config:     cfg,
		Registry:   registry.Default(),
		Out:        console.New(out),
		newRuntime: defaultRuntime,
		clock:      health.RealClock(),
	}, nil
}

func defaultRuntime(s *Session, mode Mode) (runtime.Runtime, error) {
	switch mode {
	case ModeDocker:
		api, err := runtime.NewDockerClient()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", lifecycle.ErrPrerequisiteMissing, err)
		}
		return runtime.NewDocker(runtime.ExecExecutor{}, api, s.Config, s.ProjectDir), nil
	case ModeLocal:
		return runtime.NewLocal(runtime.ExecExecutor{}, s.Config, s.ProjectDir), nil
	default:
		return nil, fmt.Errorf("mode %s has no runtime", mode)
	}
}

// Group selects and binds the deployment group for mode. Local mode drops
// services that can only run in containers.
func (s *Session) Group(mode Mode, sel registry.Selection) ([]registry.Binding, error) {
	services, err := s.Registry.Select(sel)
	if err != nil {
		return nil, err
	}
	if mode == ModeLocal {
		services = s.localOnly(services)
	}
	return registry.BindAll(services, s.Config)
}

func (s *Session) localOnly(services []registry.ServiceDescriptor) []registry.ServiceDescriptor {
	var kept []registry.ServiceDescriptor
	for _, svc := range services {
		if !svc.SupportsLocal() {
			s.Out.Warning("%s only runs in docker mode, skipping it", svc.Name)
			continue
		}
		kept = append(kept, svc)
	}
	return kept
}

// DetectMode guesses how the existing deployment was started: local mode
// leaves pid files behind, everything else is treated as docker.
func (s *Session) DetectMode() Mode {
	if len(s.localServices()) > 0 {
		return ModeLocal
	}
	return ModeDocker
}

// DeployedGroup binds the services of an existing deployment: the services
// in the rendered compose file (docker) or with pid files (local). If nothing
// was deployed yet, the default group is used.
func (s *Session) DeployedGroup(mode Mode) ([]registry.Binding, error) {
	var names []string
	switch mode {
	case ModeDocker:
		f, err := compose.Load(runtime.ComposePath(s.ProjectDir))
		switch {
		case err == nil:
			for name := range f.Services {
				names = append(names, name)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			logging.WarnErr("Bootstrap", err, "Ignoring unreadable compose file")
		}
	case ModeLocal:
		names = s.localServices()
	}

	if len(names) == 0 {
		return s.Group(mode, registry.Selection{})
	}

	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}
	var services []registry.ServiceDescriptor
	for _, svc := range s.Registry.List() {
		if wanted[svc.Name] {
			services = append(services, svc)
		}
	}
	return registry.BindAll(services, s.Config)
}

func (s *Session) localServices() []string {
	matches, err := filepath.Glob(filepath.Join(runtime.PidDir(s.ProjectDir), "*.pid"))
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(filepath.Base(m), ".pid"))
	}
	return names
}

// Manager builds a lifecycle manager for group in the given mode.
func (s *Session) Manager(mode Mode, group []registry.Binding) (*lifecycle.Manager, error) {
	rt, err := s.newRuntime(s, mode)
	if err != nil {
		return nil, err
	}
	return lifecycle.NewManager(lifecycle.Options{
		Config:     s.Config,
		ProjectDir: s.ProjectDir,
		Group:      group,
		Runtime:    rt,
		Monitor:    health.NewMonitor(s.clock),
		Reporter:   s.Out,
	}), nil
}

// Existing returns a manager for the deployment already present in the
// project directory.
func (s *Session) Existing() (*lifecycle.Manager, error) {
	mode := s.DetectMode()
	group, err := s.DeployedGroup(mode)
	if err != nil {
		return nil, err
	}
	logging.Debug("Bootstrap", "Using %s mode with %d service(s)", mode, len(group))
	return s.Manager(mode, group)
}
