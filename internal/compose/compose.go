// Package compose renders a deployment group into a Docker Compose file.
package compose

import (
	"fmt"
	"os"
	"path/filepath"

	"cvectl/internal/registry"

	"gopkg.in/yaml.v3"
)

// File is the subset of the Compose specification cvectl generates.
type File struct {
	Name     string              `yaml:"name,omitempty"`
	Services map[string]Service  `yaml:"services"`
	Volumes  map[string]struct{} `yaml:"volumes,omitempty"`
}

// Service is one entry under "services".
type Service struct {
	Build       *Build            `yaml:"build,omitempty"`
	Image       string            `yaml:"image,omitempty"`
	Command     []string          `yaml:"command,omitempty"`
	Ports       []string          `yaml:"ports,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
	Volumes     []string          `yaml:"volumes,omitempty"`
	DependsOn   []string          `yaml:"depends_on,omitempty"`
	Restart     string            `yaml:"restart,omitempty"`
}

// Build is a service build section.
type Build struct {
	Context    string `yaml:"context"`
	Dockerfile string `yaml:"dockerfile,omitempty"`
}

// FromBindings builds a compose file for the given bound services. Only
// dependencies that are part of the group are kept.
func FromBindings(project string, bindings []registry.Binding) File {
	inGroup := make(map[string]bool, len(bindings))
	for _, b := range bindings {
		inGroup[b.Name] = true
	}

	f := File{
		Name:     project,
		Services: make(map[string]Service, len(bindings)),
	}
	for _, b := range bindings {
		svc := Service{
			Image:   b.Image,
			Command: b.Command,
			Ports:   b.PortSpecs,
			Volumes: b.VolumeSpecs,
			Restart: "unless-stopped",
		}
		if b.Build != "" {
			svc.Build = &Build{Context: b.Build, Dockerfile: b.Dockerfile}
		}
		if len(b.Environment) > 0 {
			svc.Environment = b.Environment
		}
		for _, dep := range b.DependsOn {
			if inGroup[dep] {
				svc.DependsOn = append(svc.DependsOn, dep)
			}
		}
		f.Services[b.Name] = svc
	}

	for _, name := range registry.NamedVolumes(bindings) {
		if f.Volumes == nil {
			f.Volumes = make(map[string]struct{})
		}
		f.Volumes[name] = struct{}{}
	}
	return f
}

// Marshal encodes the compose file as YAML.
func (f File) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode compose file: %w", err)
	}
	return data, nil
}

// Write encodes f and writes it to path, creating parent directories. The
// file is only readable by the owner because the rendered environment may
// hold the NVD API key.
func Write(path string, f File) error {
	data, err := f.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write compose file %s: %w", path, err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("failed to restrict compose file %s: %w", path, err)
	}
	return nil
}

// Load reads a compose file written by Write.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("failed to parse compose file %s: %w", path, err)
	}
	return f, nil
}
