package lifecycle

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cvectl/internal/config"
	"cvectl/internal/health"
	"cvectl/internal/registry"
	"cvectl/internal/runtime"
	"cvectl/pkg/logging"
)

// Reporter receives operator-facing progress from the manager.
type Reporter interface {
	Step(format string, args ...interface{})
	Success(format string, args ...interface{})
	Warning(format string, args ...interface{})
}

type nopReporter struct{}

func (nopReporter) Step(string, ...interface{})    {}
func (nopReporter) Success(string, ...interface{}) {}
func (nopReporter) Warning(string, ...interface{}) {}

// DataMode selects how much CVE data is seeded after the first start.
type DataMode string

const (
	DataFull    DataMode = "full"
	DataLight   DataMode = "light"
	DataOffline DataMode = "offline"
)

// Days returns how many days back the scrape covers; zero means skip.
func (m DataMode) Days() int {
	switch m {
	case DataFull:
		return 30
	case DataLight:
		return 7
	default:
		return 0
	}
}

// ServiceHealth is the readiness result for one probed service.
type ServiceHealth struct {
	Service string        `json:"service" yaml:"service"`
	Target  string        `json:"target" yaml:"target"`
	Report  health.Report `json:"report" yaml:"report"`
	Err     error         `json:"-" yaml:"-"`
}

// Ready reports whether the probe succeeded.
func (h ServiceHealth) Ready() bool { return h.Err == nil }

// Options configures a Manager.
type Options struct {
	Config     config.Config
	ProjectDir string
	Group      []registry.Binding
	Runtime    runtime.Runtime
	Monitor    *health.Monitor
	Reporter   Reporter

	// Probers builds the readiness prober for a binding. Defaults to ProberFor.
	Probers func(registry.Binding) health.Prober
}

// Manager drives one deployment group through its lifecycle. It runs every
// step sequentially on the calling goroutine.
type Manager struct {
	cfg        config.Config
	projectDir string
	group      []registry.Binding
	rt         runtime.Runtime
	monitor    *health.Monitor
	reporter   Reporter
	probers    func(registry.Binding) health.Prober

	state State
}

// NewManager returns a manager in the Uninitialized state.
func NewManager(opts Options) *Manager {
	m := &Manager{
		cfg:        opts.Config,
		projectDir: opts.ProjectDir,
		group:      opts.Group,
		rt:         opts.Runtime,
		monitor:    opts.Monitor,
		reporter:   opts.Reporter,
		probers:    opts.Probers,
		state:      StateUninitialized,
	}
	if m.monitor == nil {
		m.monitor = health.NewMonitor(nil)
	}
	if m.reporter == nil {
		m.reporter = nopReporter{}
	}
	if m.probers == nil {
		m.probers = ProberFor
	}
	return m
}

// State returns the current deployment state.
func (m *Manager) State() State {
	return m.state
}

func (m *Manager) transition(to State) error {
	if !canTransition(m.state, to) {
		return transitionError(m.state, to)
	}
	logging.Debug("Lifecycle", "State %s -> %s", m.state, to)
	m.state = to
	return nil
}

// CheckPrerequisites verifies the runtime's external tools. It changes no
// state.
func (m *Manager) CheckPrerequisites(ctx context.Context) error {
	m.reporter.Step("Checking %s prerequisites", m.rt.Name())
	if err := m.rt.CheckPrerequisites(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrPrerequisiteMissing, err)
	}
	m.reporter.Success("Prerequisites satisfied")
	return nil
}

// Build runs each service's build step in order. The first failure aborts the
// sequence; nothing is retried or rolled back.
func (m *Manager) Build(ctx context.Context) error {
	if err := m.transition(StateBuilding); err != nil {
		return err
	}
	for _, b := range m.group {
		m.reporter.Step("Building %s", b.Name)
		res := m.rt.Build(ctx, b)
		if !res.OK() {
			logging.Error("Lifecycle", res.Failure(), "Build of %s failed", b.Name)
			return fmt.Errorf("%w: %w", ErrBuildFailed, res.Failure())
		}
		logging.Debug("Lifecycle", "Built %s in %s", b.Name, res.Duration.Round(time.Millisecond))
	}
	m.reporter.Success("Built %d service(s)", len(m.group))
	return nil
}

// Start brings the group up. It is legal after Build and during Restart.
func (m *Manager) Start(ctx context.Context) error {
	if m.state != StateBuilding && m.state != StateRestarting {
		return transitionError(m.state, StateStarting)
	}
	m.reporter.Step("Starting %s", strings.Join(m.serviceNames(), ", "))
	res := m.rt.Start(ctx, m.group)
	if !res.OK() {
		logging.Error("Lifecycle", res.Failure(), "Start failed")
		return fmt.Errorf("%w: %w", ErrStartFailed, res.Failure())
	}
	return m.transition(StateStarting)
}

// Verify waits for every probed service to become ready. Timeouts leave the
// deployment Degraded and are returned as ErrReadinessTimeout; only
// cancellation is reported as a plain context error.
func (m *Manager) Verify(ctx context.Context) ([]ServiceHealth, error) {
	var results []ServiceHealth
	var timedOut []string

	for _, b := range m.group {
		p := m.probers(b)
		if p == nil {
			continue
		}
		m.reporter.Step("Waiting for %s at %s", b.Name, p.Target())
		rep, err := m.monitor.Await(ctx, p, m.cfg.HealthTimeout, m.cfg.HealthInterval)
		if err != nil && ctx.Err() != nil {
			return results, ctx.Err()
		}
		results = append(results, ServiceHealth{Service: b.Name, Target: p.Target(), Report: rep, Err: err})
		if err != nil {
			logging.WarnErr("Lifecycle", err, "%s did not become ready", b.Name)
			timedOut = append(timedOut, b.Name)
			continue
		}
		m.reporter.Success("%s is ready", b.Name)
	}

	if len(timedOut) > 0 {
		if err := m.transition(StateDegraded); err != nil {
			return results, err
		}
		m.reporter.Warning("%s not ready after %s; check again later with 'cvectl status'", strings.Join(timedOut, ", "), m.cfg.HealthTimeout)
		return results, fmt.Errorf("%w: %s", ErrReadinessTimeout, strings.Join(timedOut, ", "))
	}
	return results, m.transition(StateReady)
}

// BootstrapData seeds CVE data. It only runs once the group is Ready; a
// failure degrades the deployment but is not fatal.
func (m *Manager) BootstrapData(ctx context.Context, mode DataMode) error {
	days := mode.Days()
	if days == 0 {
		logging.Info("Lifecycle", "Skipping data bootstrap (%s mode)", mode)
		return nil
	}
	if m.state != StateReady {
		logging.Warn("Lifecycle", "Skipping data bootstrap: deployment is %s", m.state)
		return nil
	}

	m.reporter.Step("Seeding CVE data (last %d days)", days)
	res := m.rt.Bootstrap(ctx, days)
	if !res.OK() {
		err := fmt.Errorf("%w: %w", ErrDataBootstrapFailed, res.Failure())
		logging.WarnErr("Lifecycle", err, "Data bootstrap failed, continuing")
		m.reporter.Warning("Initial data load failed; the system is usable and the scheduler will retry")
		if terr := m.transition(StateDegraded); terr != nil {
			return terr
		}
		return err
	}
	m.reporter.Success("CVE data seeded")
	return nil
}

// Stop shuts the group down. It is always attempted, even when nothing runs.
func (m *Manager) Stop(ctx context.Context) error {
	m.reporter.Step("Stopping services")
	res := m.rt.Stop(ctx)
	if !res.OK() {
		return fmt.Errorf("failed to stop services: %w", res.Failure())
	}
	if err := m.transition(StateStopped); err != nil {
		return err
	}
	m.reporter.Success("Services stopped")
	return nil
}

// Reset stops the group and, if full, deletes the deployment's volumes and
// data directories. Only directories declared in the configuration and
// located inside the project directory are ever removed. Resetting an
// already reset deployment succeeds.
func (m *Manager) Reset(ctx context.Context, full bool) error {
	if err := m.Stop(ctx); err != nil {
		return err
	}
	if !full {
		return nil
	}

	if err := m.transition(StateResetting); err != nil {
		return err
	}

	resetErr := &ResetError{}
	if res := m.rt.RemoveVolumes(ctx); !res.OK() {
		resetErr.Errs = append(resetErr.Errs, res.Failure())
	}
	for _, dir := range m.cfg.DeploymentDirs() {
		path, err := m.ownedPath(dir)
		if err != nil {
			resetErr.Dirs = append(resetErr.Dirs, dir)
			resetErr.Errs = append(resetErr.Errs, err)
			continue
		}
		m.reporter.Step("Removing %s", dir)
		if err := os.RemoveAll(path); err != nil {
			resetErr.Dirs = append(resetErr.Dirs, dir)
			resetErr.Errs = append(resetErr.Errs, err)
		}
	}

	if err := m.transition(StateUninitialized); err != nil {
		return err
	}
	if len(resetErr.Errs) > 0 {
		logging.WarnErr("Lifecycle", resetErr, "Reset incomplete")
		return resetErr
	}
	m.reporter.Success("Deployment reset")
	return nil
}

// ownedPath resolves a deployment directory and refuses anything outside the
// project directory, or the project directory itself.
func (m *Manager) ownedPath(dir string) (string, error) {
	root, err := filepath.Abs(m.projectDir)
	if err != nil {
		return "", err
	}
	path := filepath.Join(root, dir)
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("refusing to remove %s: outside the project directory", dir)
	}
	return path, nil
}

// Restart stops and starts the group, then checks readiness again. It returns
// the resulting state; a readiness timeout is reported but not fatal.
func (m *Manager) Restart(ctx context.Context) (State, error) {
	if err := m.transition(StateRestarting); err != nil {
		return m.state, err
	}
	m.reporter.Step("Stopping services")
	if res := m.rt.Stop(ctx); !res.OK() {
		return m.state, fmt.Errorf("failed to stop services: %w", res.Failure())
	}
	if err := m.Start(ctx); err != nil {
		return m.state, err
	}
	_, err := m.Verify(ctx)
	if err != nil && !IsRecoverable(err) {
		return m.state, err
	}
	return m.state, nil
}

// Deploy runs the whole setup sequence: prerequisites, directories, build,
// start, readiness and data bootstrap. Fatal errors abort; recoverable ones
// are logged and the resulting state is returned.
func (m *Manager) Deploy(ctx context.Context, mode DataMode) (State, error) {
	if err := m.CheckPrerequisites(ctx); err != nil {
		return m.state, err
	}
	if err := m.ensureDirs(); err != nil {
		return m.state, err
	}
	if err := m.rt.Prepare(ctx, m.group); err != nil {
		return m.state, fmt.Errorf("%w: %w", ErrStartFailed, err)
	}
	if err := m.Build(ctx); err != nil {
		return m.state, err
	}
	if err := m.Start(ctx); err != nil {
		return m.state, err
	}
	if _, err := m.Verify(ctx); err != nil && !IsRecoverable(err) {
		return m.state, err
	}
	if err := m.BootstrapData(ctx, mode); err != nil && !IsRecoverable(err) {
		return m.state, err
	}
	return m.state, nil
}

func (m *Manager) ensureDirs() error {
	for _, dir := range m.cfg.DeploymentDirs() {
		path, err := m.ownedPath(dir)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Observation is a freshly derived view of the deployment.
type Observation struct {
	State    State                   `json:"state" yaml:"state"`
	Mode     string                  `json:"mode" yaml:"mode"`
	Services []runtime.ServiceStatus `json:"services" yaml:"services"`
	Health   []ServiceHealth         `json:"health" yaml:"health"`
}

// Observe derives the deployment state from the runtime and a single probe
// pass. Nothing is persisted.
func (m *Manager) Observe(ctx context.Context) (Observation, error) {
	obs := Observation{Mode: m.rt.Name()}
	services, err := m.rt.Status(ctx)
	if err != nil {
		return obs, err
	}
	obs.Services = services

	running := 0
	for _, s := range services {
		if s.Running() {
			running++
		}
	}

	switch {
	case running == 0 && len(services) == 0:
		obs.State = StateUninitialized
	case running == 0:
		obs.State = StateStopped
	default:
		obs.State = StateReady
		for _, b := range m.group {
			p := m.probers(b)
			if p == nil {
				continue
			}
			rep, err := m.monitor.Check(ctx, p)
			obs.Health = append(obs.Health, ServiceHealth{Service: b.Name, Target: p.Target(), Report: rep, Err: err})
			if err != nil {
				obs.State = StateDegraded
			}
		}
		if running < len(services) {
			obs.State = StateDegraded
		}
	}

	m.state = obs.State
	return obs, nil
}

// Logs writes recent service logs to w.
func (m *Manager) Logs(ctx context.Context, service string, tail int, w io.Writer) error {
	if service != "" && !m.inGroup(service) {
		return fmt.Errorf("unknown service %q (known: %s)", service, strings.Join(m.serviceNames(), ", "))
	}
	return m.rt.Logs(ctx, service, tail, w)
}

func (m *Manager) inGroup(name string) bool {
	for _, b := range m.group {
		if b.Name == name {
			return true
		}
	}
	return false
}

func (m *Manager) serviceNames() []string {
	names := make([]string, 0, len(m.group))
	for _, b := range m.group {
		names = append(names, b.Name)
	}
	return names
}

// ProberFor returns the readiness prober for a bound service, or nil if the
// service declares no probe.
func ProberFor(b registry.Binding) health.Prober {
	switch b.Probe.Kind {
	case registry.ProbeHTTP:
		return health.NewHTTPProber(b.ProbeTarget)
	case registry.ProbePostgres:
		return &health.PostgresProber{DSN: b.ProbeTarget}
	case registry.ProbeRedis:
		return &health.RedisProber{Addr: b.ProbeTarget}
	default:
		return nil
	}
}
