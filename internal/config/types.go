package config

import (
	"fmt"
	"time"
)

// Config is the resolved configuration snapshot for one cvectl invocation.
// It is passed by value and never mutated after Resolve returns.
type Config struct {
	NVDAPIKey           string // Optional credential for the NVD feed
	ModelName           string // Model identifier served by the API
	APIPort             int    // Host port of the analysis API
	UIPort              int    // Host port of the web UI
	MaxLength           int    // Maximum request/sequence length
	BatchSize           int
	UpdateIntervalHours int // Scheduler update interval
	LogLevel            string

	HealthTimeout  time.Duration // Upper bound for readiness polling
	HealthInterval time.Duration // Delay between readiness attempts

	DataDir   string // Data directory owned by the deployment, relative to the project dir
	ModelsDir string
	LogsDir   string

	ProjectName string // Compose project name, also used to label containers
	DatabaseURL string // Connection string for the optional db service
	RedisAddr   string // host:port of the optional cache service
}

// APIBaseURL returns the base URL of the analysis API on the local host.
func (c Config) APIBaseURL() string {
	return fmt.Sprintf("http://localhost:%d", c.APIPort)
}

// UIBaseURL returns the base URL of the web UI on the local host.
func (c Config) UIBaseURL() string {
	return fmt.Sprintf("http://localhost:%d", c.UIPort)
}

// DeploymentDirs returns the directories owned by the deployment. These are
// the only paths a full reset may delete.
func (c Config) DeploymentDirs() []string {
	return []string{c.DataDir, c.ModelsDir, c.LogsDir}
}

// Source identifies a configuration layer.
type Source string

const (
	SourceDefault     Source = "default"
	SourceEnvironment Source = "environment"
	SourceSettings    Source = "settings"
	SourceOverride    Source = "override"
)
