package runtime

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"cvectl/internal/config"
	"cvectl/internal/registry"
	"cvectl/pkg/logging"
)

// Process describes a detached service process.
type Process struct {
	Args    []string
	Dir     string
	Env     []string
	LogPath string
}

// LocalRuntime runs services as detached processes on the host. Each process
// leads its own process group; its pid is kept under .cvectl/pids so later
// invocations can find and stop it.
type LocalRuntime struct {
	exec       Executor
	cfg        config.Config
	projectDir string
	pidDir     string
	python     string

	spawn  func(p Process) (int, error)
	signal func(pid int, sig syscall.Signal) error

	// stopTimeout is how long a process group gets to exit after SIGTERM
	// before it is killed.
	stopTimeout  time.Duration
	pollInterval time.Duration

	installed bool
}

// NewLocal returns a local-mode runtime.
func NewLocal(exec Executor, cfg config.Config, projectDir string) *LocalRuntime {
	return &LocalRuntime{
		exec:         exec,
		cfg:          cfg,
		projectDir:   projectDir,
		pidDir:       PidDir(projectDir),
		python:       "python3",
		spawn:        spawnDetached,
		signal:       syscall.Kill,
		stopTimeout:  10 * time.Second,
		pollInterval: 100 * time.Millisecond,
	}
}

// PidDir is where local mode keeps one pid file per service it started.
func PidDir(projectDir string) string {
	return filepath.Join(projectDir, StateDir, "pids")
}

func (l *LocalRuntime) Name() string { return "local" }

// CheckPrerequisites verifies python3 and pip.
func (l *LocalRuntime) CheckPrerequisites(ctx context.Context) error {
	if _, err := l.exec.LookPath(l.python); err != nil {
		return &MissingToolError{Tool: l.python, Hint: "install Python 3.9 or newer", Err: err}
	}
	res := l.exec.Run(ctx, Command{Step: "pip version", Dir: l.projectDir, Name: l.python, Args: []string{"-m", "pip", "--version"}})
	if !res.OK() {
		return &MissingToolError{Tool: "pip", Hint: "install pip for " + l.python, Err: res.Failure()}
	}
	return nil
}

// Prepare creates the pid and log directories.
func (l *LocalRuntime) Prepare(_ context.Context, _ []registry.Binding) error {
	for _, dir := range []string{l.pidDir, l.logsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

func (l *LocalRuntime) logsDir() string {
	return filepath.Join(l.projectDir, l.cfg.LogsDir)
}

// Build installs Python requirements once per invocation. Services without a
// local command cannot be built in this mode.
func (l *LocalRuntime) Build(ctx context.Context, b registry.Binding) Result {
	step := "build " + b.Name
	if len(b.LocalArgs) == 0 {
		return Result{Step: step, ExitCode: -1, Err: fmt.Errorf("service %s has no local command", b.Name)}
	}
	if l.installed || b.Build == "" {
		return Result{Step: step}
	}

	reqs := filepath.Join(l.projectDir, b.Build, "requirements.txt")
	if _, err := os.Stat(reqs); err != nil {
		logging.Debug("LocalRuntime", "No %s, skipping dependency install", reqs)
		l.installed = true
		return Result{Step: step}
	}

	res := l.exec.Run(ctx, Command{
		Step: step,
		Dir:  l.projectDir,
		Name: l.python,
		Args: []string{"-m", "pip", "install", "-r", reqs},
	})
	if res.OK() {
		l.installed = true
	}
	return res
}

// Start spawns every service of the group that is not already running.
func (l *LocalRuntime) Start(_ context.Context, group []registry.Binding) Result {
	res := Result{Step: "start"}
	var out strings.Builder

	for _, b := range group {
		if len(b.LocalArgs) == 0 {
			continue
		}
		if pid, ok := l.readPid(b.Name); ok && l.alive(pid) {
			fmt.Fprintf(&out, "%s already running (pid %d)\n", b.Name, pid)
			continue
		}

		env := append(b.SortedEnv(), l.localEnv()...)
		pid, err := l.spawn(Process{
			Args:    b.LocalArgs,
			Dir:     l.projectDir,
			Env:     env,
			LogPath: filepath.Join(l.logsDir(), b.Name+".log"),
		})
		if err != nil {
			res.ExitCode = -1
			res.Err = fmt.Errorf("failed to start %s: %w", b.Name, err)
			break
		}
		if err := l.writePid(b.Name, pid); err != nil {
			res.ExitCode = -1
			res.Err = err
			break
		}
		logging.Info("LocalRuntime", "Started %s (pid %d)", b.Name, pid)
		fmt.Fprintf(&out, "started %s (pid %d)\n", b.Name, pid)
	}

	res.Output = out.String()
	return res
}

// localEnv overrides container paths and addresses with their host
// equivalents.
func (l *LocalRuntime) localEnv() []string {
	return []string{
		"DATA_DIR=" + filepath.Join(l.projectDir, l.cfg.DataDir),
		"MODELS_DIR=" + filepath.Join(l.projectDir, l.cfg.ModelsDir),
		"LOGS_DIR=" + l.logsDir(),
		"API_URL=" + l.cfg.APIBaseURL(),
	}
}

// Stop terminates every recorded process group and waits for it to exit,
// killing groups that outlive the grace period. Pid files are kept so the
// stopped services are still reported; RemoveVolumes forgets them.
func (l *LocalRuntime) Stop(ctx context.Context) Result {
	res := Result{Step: "stop"}
	services, err := l.recorded()
	if err != nil {
		res.ExitCode = -1
		res.Err = err
		return res
	}

	var errs []error
	var out strings.Builder
	for _, svc := range services {
		pid, ok := l.readPid(svc)
		if !ok || !l.alive(pid) {
			continue
		}
		if err := l.terminate(ctx, svc, pid); err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(&out, "stopped %s (pid %d)\n", svc, pid)
	}

	res.Output = out.String()
	if len(errs) > 0 {
		res.ExitCode = 1
		res.Err = errors.Join(errs...)
	}
	return res
}

func (l *LocalRuntime) terminate(ctx context.Context, svc string, pid int) error {
	if err := l.signal(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("failed to stop %s (pid %d): %w", svc, pid, err)
	}
	if l.waitExit(ctx, pid, l.stopTimeout) {
		return nil
	}

	logging.Warn("LocalRuntime", "%s (pid %d) still running after %s, killing it", svc, pid, l.stopTimeout)
	if err := l.signal(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("failed to kill %s (pid %d): %w", svc, pid, err)
	}
	// The kill is waited for even when ctx is already done.
	if l.waitExit(context.WithoutCancel(ctx), pid, l.stopTimeout) {
		return nil
	}
	return fmt.Errorf("%s (pid %d) is still running after SIGKILL", svc, pid)
}

// waitExit polls until pid is gone, the timeout passes or ctx is done. It
// reports whether the process exited.
func (l *LocalRuntime) waitExit(ctx context.Context, pid int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(l.pollInterval)
	defer tick.Stop()

	for {
		if !l.alive(pid) {
			return true
		}
		select {
		case <-ctx.Done():
			return !l.alive(pid)
		case <-deadline.C:
			return !l.alive(pid)
		case <-tick.C:
		}
	}
}

// RemoveVolumes forgets the recorded processes. Local mode keeps its data in
// the project directories, which a full reset removes separately.
func (l *LocalRuntime) RemoveVolumes(_ context.Context) Result {
	res := Result{Step: "remove volumes"}
	if err := os.RemoveAll(l.pidDir); err != nil {
		res.ExitCode = -1
		res.Err = fmt.Errorf("failed to remove %s: %w", l.pidDir, err)
	}
	return res
}

// Bootstrap runs the scrape command in the foreground.
func (l *LocalRuntime) Bootstrap(ctx context.Context, days int) Result {
	argv := ScrapeArgs(l.python, days)
	return l.exec.Run(ctx, Command{
		Step: "bootstrap data",
		Dir:  l.projectDir,
		Name: argv[0],
		Args: argv[1:],
		Env:  l.localEnv(),
	})
}

// Status reports each recorded process.
func (l *LocalRuntime) Status(_ context.Context) ([]ServiceStatus, error) {
	services, err := l.recorded()
	if err != nil {
		return nil, err
	}
	out := make([]ServiceStatus, 0, len(services))
	for _, svc := range services {
		pid, _ := l.readPid(svc)
		st := ServiceStatus{Service: svc, State: StateExited, Detail: "pid " + strconv.Itoa(pid)}
		if l.alive(pid) {
			st.State = StateRunning
		}
		out = append(out, st)
	}
	return out, nil
}

// Logs writes the last tail lines of the service log files to w.
func (l *LocalRuntime) Logs(_ context.Context, service string, tail int, w io.Writer) error {
	var files []string
	if service != "" {
		files = []string{filepath.Join(l.logsDir(), service+".log")}
	} else {
		matches, err := filepath.Glob(filepath.Join(l.logsDir(), "*.log"))
		if err != nil {
			return err
		}
		sort.Strings(matches)
		files = matches
	}
	if len(files) == 0 {
		return fmt.Errorf("no log files in %s", l.logsDir())
	}

	for _, path := range files {
		lines, err := tailFile(path, tail)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		if len(files) > 1 {
			fmt.Fprintf(w, "==> %s <==\n", strings.TrimSuffix(filepath.Base(path), ".log"))
		}
		for _, line := range lines {
			fmt.Fprintln(w, line)
		}
	}
	return nil
}

func (l *LocalRuntime) pidPath(service string) string {
	return filepath.Join(l.pidDir, service+".pid")
}

func (l *LocalRuntime) writePid(service string, pid int) error {
	if err := os.MkdirAll(l.pidDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", l.pidDir, err)
	}
	return os.WriteFile(l.pidPath(service), []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

func (l *LocalRuntime) readPid(service string) (int, bool) {
	data, err := os.ReadFile(l.pidPath(service))
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func (l *LocalRuntime) alive(pid int) bool {
	return pid > 0 && l.signal(pid, 0) == nil
}

// recorded lists services with a pid file, sorted by name.
func (l *LocalRuntime) recorded() ([]string, error) {
	entries, err := os.ReadDir(l.pidDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", l.pidDir, err)
	}
	var services []string
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".pid"); ok && !e.IsDir() {
			services = append(services, name)
		}
	}
	sort.Strings(services)
	return services, nil
}

func spawnDetached(p Process) (int, error) {
	if len(p.Args) == 0 {
		return 0, errors.New("empty command")
	}
	logFile, err := os.OpenFile(p.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(p.Args[0], p.Args[1:]...)
	cmd.Dir = p.Dir
	cmd.Env = append(os.Environ(), p.Env...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	// Reap the child if it exits while cvectl is still running, otherwise it
	// lingers as a zombie and still answers signal 0.
	go func() {
		if err := cmd.Wait(); err != nil {
			logging.Debug("LocalRuntime", "pid %d exited: %v", pid, err)
		}
	}()
	return pid, nil
}

// tailFile returns the last n lines of a file, or all of them if n <= 0.
func tailFile(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if n > 0 && len(lines) > n {
			lines = lines[1:]
		}
	}
	return lines, scanner.Err()
}
