package cmd

import (
	"testing"

	"cvectl/internal/app"
	"cvectl/internal/config"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseSetupFlags(t *testing.T, args ...string) (*setupFlags, *cobra.Command) {
	t.Helper()
	f := &setupFlags{}
	c := &cobra.Command{Use: "setup"}
	f.register(c)
	require.NoError(t, c.ParseFlags(args))
	return f, c
}

func TestSetupFlags_FirstModeWins(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		want        app.Mode
		wantIgnored []app.Mode
	}{
		{"no mode", nil, "", nil},
		{"docker", []string{"--docker"}, app.ModeDocker, nil},
		{"local before docker", []string{"--local", "--docker"}, app.ModeLocal, []app.Mode{app.ModeDocker}},
		{"manual before local", []string{"--manual", "--auto", "--local"}, app.ModeManual, []app.Mode{app.ModeLocal}},
		{"explicit false is ignored", []string{"--docker=false", "--local"}, app.ModeLocal, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, c := parseSetupFlags(t, tt.args...)
			opts := f.options(c)
			assert.Equal(t, tt.want, opts.Mode)
			assert.Equal(t, tt.wantIgnored, opts.IgnoredModes)
		})
	}
}

func TestSetupFlags_Options(t *testing.T) {
	f, c := parseSetupFlags(t, "--docker", "--light-mode", "--offline", "--with", "db,cache", "--force-settings")

	opts := f.options(c)

	assert.True(t, opts.Light)
	assert.True(t, opts.Offline)
	assert.True(t, opts.ForceSettings)
	assert.Equal(t, []string{"db", "cache"}, opts.With)
}

func TestSetupFlags_OverridesOnlyChangedPorts(t *testing.T) {
	f, c := parseSetupFlags(t, "--docker")
	assert.Empty(t, f.overrides(c))

	f, c = parseSetupFlags(t, "--api-port", "9000", "--ui-port=9001")
	assert.Equal(t, map[string]string{
		config.KeyAPIPort: "9000",
		config.KeyUIPort:  "9001",
	}, f.overrides(c))
}
