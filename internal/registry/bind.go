package registry

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"cvectl/internal/config"

	"github.com/docker/go-connections/nat"
)

// Binding is a service descriptor rendered against one configuration.
type Binding struct {
	ServiceDescriptor

	PortSpecs    []string          // Rendered host:container specs, in declaration order
	ExposedPorts nat.PortSet       // Container ports
	PortMap      nat.PortMap       // Container port -> host bindings
	Environment  map[string]string // Concrete environment
	VolumeSpecs  []string
	LocalArgs    []string
	ProbeTarget  string // URL for HTTP probes, address/DSN for datastore probes
}

// HostPort returns the host port bound to the given container port.
func (b Binding) HostPort(containerPort int) (int, bool) {
	bindings, ok := b.PortMap[nat.Port(fmt.Sprintf("%d/tcp", containerPort))]
	if !ok || len(bindings) == 0 {
		return 0, false
	}
	port, err := strconv.Atoi(bindings[0].HostPort)
	if err != nil {
		return 0, false
	}
	return port, true
}

// SortedEnv returns the environment as KEY=VALUE pairs sorted by key.
func (b Binding) SortedEnv() []string {
	keys := make([]string, 0, len(b.Environment))
	for k := range b.Environment {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+b.Environment[k])
	}
	return out
}

// placeholders returns the template replacer for cfg.
func placeholders(cfg config.Config) *strings.Replacer {
	return strings.NewReplacer(
		"{api_port}", strconv.Itoa(cfg.APIPort),
		"{ui_port}", strconv.Itoa(cfg.UIPort),
		"{nvd_api_key}", cfg.NVDAPIKey,
		"{model_name}", cfg.ModelName,
		"{max_length}", strconv.Itoa(cfg.MaxLength),
		"{batch_size}", strconv.Itoa(cfg.BatchSize),
		"{update_interval_hours}", strconv.Itoa(cfg.UpdateIntervalHours),
		"{log_level}", cfg.LogLevel,
		"{data_dir}", cfg.DataDir,
		"{models_dir}", cfg.ModelsDir,
		"{logs_dir}", cfg.LogsDir,
		"{database_url}", cfg.DatabaseURL,
		"{redis_addr}", cfg.RedisAddr,
	)
}

// Bind renders a descriptor against cfg. Port specs are validated with the
// Docker port-spec parser, so a bad template surfaces here rather than at
// container start.
func Bind(d ServiceDescriptor, cfg config.Config) (Binding, error) {
	r := placeholders(cfg)

	b := Binding{
		ServiceDescriptor: d,
		Environment:       make(map[string]string, len(d.Env)),
	}

	for _, tmpl := range d.Ports {
		b.PortSpecs = append(b.PortSpecs, r.Replace(tmpl))
	}
	exposed, portMap, err := nat.ParsePortSpecs(b.PortSpecs)
	if err != nil {
		return Binding{}, fmt.Errorf("service %s: invalid port binding: %w", d.Name, err)
	}
	b.ExposedPorts = exposed
	b.PortMap = portMap

	for k, v := range d.Env {
		b.Environment[k] = r.Replace(v)
	}
	for _, v := range d.Volumes {
		b.VolumeSpecs = append(b.VolumeSpecs, r.Replace(v))
	}
	for _, arg := range d.LocalCommand {
		b.LocalArgs = append(b.LocalArgs, r.Replace(arg))
	}

	switch d.Probe.Kind {
	case ProbeHTTP:
		hostPort, ok := b.HostPort(d.Probe.Port)
		if !ok {
			return Binding{}, fmt.Errorf("service %s: probe port %d is not published", d.Name, d.Probe.Port)
		}
		b.ProbeTarget = fmt.Sprintf("http://localhost:%d%s", hostPort, d.Probe.Path)
	case ProbePostgres:
		b.ProbeTarget = cfg.DatabaseURL
	case ProbeRedis:
		b.ProbeTarget = cfg.RedisAddr
	}

	return b, nil
}

// BindAll renders every descriptor, stopping at the first error.
func BindAll(services []ServiceDescriptor, cfg config.Config) ([]Binding, error) {
	out := make([]Binding, 0, len(services))
	for _, svc := range services {
		b, err := Bind(svc, cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// Lookup finds a service by name and renders it against cfg.
func (r *Registry) Lookup(name string, cfg config.Config) (Binding, error) {
	svc, err := r.Find(name)
	if err != nil {
		return Binding{}, err
	}
	return Bind(svc, cfg)
}
