package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cvectl/pkg/logging"
)

// For mocking in tests
var osGetwd = os.Getwd

const settingsFileName = ".env"

// Resolve produces the configuration snapshot for one invocation by layering
// defaults, env, the settings file at settingsPath (if it exists) and
// overrides. It never fails: missing sources are skipped and invalid values
// fall back to the previous layer.
func Resolve(env map[string]string, settingsPath string, overrides map[string]string) Config {
	// 1. Start with the hard-coded defaults
	cfg := Defaults()

	// 2. Environment variables, exact key names only
	cfg = overlay(cfg, env, SourceEnvironment, false)

	// 3. Persisted settings file
	if settingsPath != "" {
		settings, err := LoadSettings(settingsPath)
		switch {
		case err == nil:
			cfg = overlay(cfg, settings, SourceSettings, true)
			logging.Debug("Config", "Applied %d settings from %s", len(settings), settingsPath)
		case errors.Is(err, fs.ErrNotExist):
			logging.Debug("Config", "No settings file at %s", settingsPath)
		default:
			// Log this error but don't fail; the settings file is optional
			logging.WarnErr("Config", err, "Could not read settings file %s", settingsPath)
		}
	}

	// 4. Operator overrides always win
	cfg = overlay(cfg, overrides, SourceOverride, true)

	return cfg
}

// SettingsPath returns the settings file location for a project directory.
func SettingsPath(projectDir string) string {
	return filepath.Join(projectDir, settingsFileName)
}

// ProjectDir returns the directory cvectl operates on (the working directory).
func ProjectDir() (string, error) {
	return osGetwd()
}

// Environ returns the process environment as a map, the form Resolve expects.
func Environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		env[k] = v
	}
	return env
}
