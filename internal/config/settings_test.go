package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSettings(t *testing.T) {
	data := []byte("\ufeff# header\nA=1\n\n  b = two words  \nC==x\nnoequals\n=orphan\n")

	settings := ParseSettings(data)

	assert.Equal(t, map[string]string{
		"A": "1",
		"B": "two words",
		"C": "=x",
	}, settings)
}

func TestParseSettings_LongLines(t *testing.T) {
	long := strings.Repeat("x", 100*1024)
	settings := ParseSettings([]byte("# " + long + "\nNVD_API_KEY=abc\nAPI_PORT=9000\n"))
	assert.Equal(t, "abc", settings["NVD_API_KEY"])
	assert.Equal(t, "9000", settings["API_PORT"])

	// A line over the limit ends parsing; earlier keys are kept.
	settings = ParseSettings([]byte("API_PORT=9000\n# " + strings.Repeat("x", maxSettingsLine) + "\nUI_PORT=9001\n"))
	assert.Equal(t, map[string]string{"API_PORT": "9000"}, settings)
}

func TestWriteSettings_RoundTrip(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, ".env")

	cfg := Resolve(nil, "", map[string]string{
		KeyNVDAPIKey: "k",
		KeyAPIPort:   "9000",
		KeyDataDir:   "data",
	})
	require.NoError(t, WriteSettings(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(content)
	assert.True(t, strings.HasPrefix(text, settingsHeader))
	assert.Contains(t, text, "API_PORT=9000\n")
	assert.Contains(t, text, "NVD_API_KEY=k\n")
	assert.Contains(t, text, "DATA_DIR=data\n")
	assert.NotContains(t, text, "REDIS_ADDR", "unchanged optional keys are not written")

	reloaded := Resolve(nil, path, nil)
	assert.Equal(t, cfg, reloaded)
}

func TestKeys(t *testing.T) {
	keys := Keys()
	assert.Equal(t, KeyNVDAPIKey, keys[0])
	assert.Contains(t, keys, KeyUpdateIntervalHours)
	assert.Len(t, keys, len(fields))
}
