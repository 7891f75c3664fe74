package config

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cvectl/pkg/logging"
)

const settingsHeader = "# CVE Analyst System Configuration"

// LoadSettings parses a settings file of KEY=VALUE lines. Blank lines and
// lines starting with '#' are skipped, keys are upper-cased and values are
// kept verbatim apart from surrounding whitespace.
func LoadSettings(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSettings(data), nil
}

// maxSettingsLine bounds a single settings line.
const maxSettingsLine = 1024 * 1024

// ParseSettings parses settings-file content. See LoadSettings.
func ParseSettings(data []byte) map[string]string {
	settings := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), maxSettingsLine)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if lineNo == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			logging.Debug("Config", "Skipping settings line %d without '='", lineNo)
			continue
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		settings[key] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		logging.WarnErr("Config", err, "Stopped reading settings after line %d", lineNo)
	}
	return settings
}

// WriteSettings persists cfg as a settings file at path. The file is
// written to a temporary sibling first and renamed into place, and is only
// readable by the owner because it may hold the NVD API key.
func WriteSettings(path string, cfg Config) error {
	defaults := Defaults()

	var buf bytes.Buffer
	buf.WriteString(settingsHeader + "\n")
	for _, f := range fields {
		value := f.get(cfg)
		if !persistedKeys[f.key] && value == f.get(defaults) {
			continue
		}
		fmt.Fprintf(&buf, "%s=%s\n", f.key, value)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".env-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary settings file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set settings permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close settings file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move settings into place: %w", err)
	}
	return nil
}
