// Package registry holds the static catalogue of services that make up a
// CVE Analyst deployment.
//
// Descriptors are declared in code and never persisted. Values that depend on
// the configuration (host ports, directories, credentials) are written as
// {placeholder} templates and rendered by Bind, so the same descriptor yields
// different concrete bindings for different configurations.
package registry

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a service name is not in the registry.
var ErrNotFound = errors.New("service not found")

// ProbeKind selects how a service's readiness is checked.
type ProbeKind string

const (
	ProbeNone     ProbeKind = ""
	ProbeHTTP     ProbeKind = "http"
	ProbePostgres ProbeKind = "postgres"
	ProbeRedis    ProbeKind = "redis"
)

// Probe describes a service's readiness check.
type Probe struct {
	Kind ProbeKind
	Path string // HTTP path, e.g. "/health"
	Port int    // Container port the probe targets
}

// ServiceDescriptor declares one deployable service.
type ServiceDescriptor struct {
	Name       string
	Build      string   // Build context relative to the project directory
	Dockerfile string   // Optional Dockerfile inside the build context
	Image      string   // Image reference, used when Build is empty
	Command    []string // Optional command override inside the container
	Ports      []string // host:container templates, e.g. "{ui_port}:7860"
	Env        map[string]string
	Volumes    []string // host:container templates
	DependsOn  []string
	Probe      Probe

	// LocalCommand runs the service as a host process in local mode. Services
	// without one are container-only.
	LocalCommand []string

	// Optional services are only deployed when requested explicitly.
	Optional bool
	// Light services are kept in light mode.
	Light bool
}

// SupportsLocal reports whether the service can run as a host process.
func (d ServiceDescriptor) SupportsLocal() bool {
	return len(d.LocalCommand) > 0
}

// Registry is an ordered, immutable set of service descriptors.
type Registry struct {
	services []ServiceDescriptor
}

// New creates a registry from descriptors, rejecting empty or duplicate names
// and dependencies on unknown services.
func New(services ...ServiceDescriptor) (*Registry, error) {
	seen := make(map[string]bool, len(services))
	for _, svc := range services {
		if svc.Name == "" {
			return nil, fmt.Errorf("service descriptor without a name")
		}
		if seen[svc.Name] {
			return nil, fmt.Errorf("duplicate service %q", svc.Name)
		}
		if svc.Build == "" && svc.Image == "" {
			return nil, fmt.Errorf("service %q needs a build context or an image", svc.Name)
		}
		seen[svc.Name] = true
	}
	for _, svc := range services {
		for _, dep := range svc.DependsOn {
			if !seen[dep] {
				return nil, fmt.Errorf("service %q depends on unknown service %q", svc.Name, dep)
			}
		}
	}

	return &Registry{services: append([]ServiceDescriptor(nil), services...)}, nil
}

// List returns all descriptors in declaration order.
func (r *Registry) List() []ServiceDescriptor {
	out := make([]ServiceDescriptor, len(r.services))
	copy(out, r.services)
	return out
}

// Names returns all service names in declaration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.services))
	for _, svc := range r.services {
		names = append(names, svc.Name)
	}
	return names
}

// Find returns the descriptor with the given name.
func (r *Registry) Find(name string) (ServiceDescriptor, error) {
	for _, svc := range r.services {
		if svc.Name == name {
			return svc, nil
		}
	}
	return ServiceDescriptor{}, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Selection controls which services form the deployment group.
type Selection struct {
	Light bool     // Keep only services marked Light
	With  []string // Optional services to add
}

// Select returns the deployment group in declaration order. Required
// services are always included (unless excluded by light mode); optional
// services only when named in With. Dependencies of selected services are
// pulled in.
func (r *Registry) Select(sel Selection) ([]ServiceDescriptor, error) {
	wanted := make(map[string]bool)
	for _, name := range sel.With {
		svc, err := r.Find(name)
		if err != nil {
			return nil, err
		}
		wanted[svc.Name] = true
	}

	for _, svc := range r.services {
		if svc.Optional {
			continue
		}
		if sel.Light && !svc.Light {
			continue
		}
		wanted[svc.Name] = true
	}

	// Pull in dependencies until the set is closed.
	for changed := true; changed; {
		changed = false
		for _, svc := range r.services {
			if !wanted[svc.Name] {
				continue
			}
			for _, dep := range svc.DependsOn {
				if !wanted[dep] {
					wanted[dep] = true
					changed = true
				}
			}
		}
	}

	var group []ServiceDescriptor
	for _, svc := range r.services {
		if wanted[svc.Name] {
			group = append(group, svc)
		}
	}
	return group, nil
}
