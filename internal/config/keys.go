package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cvectl/pkg/logging"
)

// Configuration keys. The same names are used for environment variables,
// settings-file entries and operator overrides.
const (
	KeyNVDAPIKey           = "NVD_API_KEY"
	KeyModelName           = "MODEL_NAME"
	KeyAPIPort             = "API_PORT"
	KeyUIPort              = "UI_PORT"
	KeyMaxLength           = "MAX_LENGTH"
	KeyBatchSize           = "BATCH_SIZE"
	KeyUpdateIntervalHours = "UPDATE_INTERVAL_HOURS"
	KeyLogLevel            = "LOG_LEVEL"
	KeyHealthTimeout       = "HEALTH_TIMEOUT_SECONDS"
	KeyHealthInterval      = "HEALTH_INTERVAL_SECONDS"
	KeyDataDir             = "DATA_DIR"
	KeyModelsDir           = "MODELS_DIR"
	KeyLogsDir             = "LOGS_DIR"
	KeyProjectName         = "COMPOSE_PROJECT_NAME"
	KeyDatabaseURL         = "DATABASE_URL"
	KeyRedisAddr           = "REDIS_ADDR"
)

// field binds one configuration key to the Config field it sets. get renders
// the current value back to its settings-file form.
type field struct {
	key string
	set func(c *Config, v string) error
	get func(c Config) string
}

// fields is the fixed name to field table. Its order is the order used when
// writing a settings file.
var fields = []field{
	{KeyNVDAPIKey, setString(func(c *Config) *string { return &c.NVDAPIKey }), func(c Config) string { return c.NVDAPIKey }},
	{KeyModelName, setNonEmpty(func(c *Config) *string { return &c.ModelName }), func(c Config) string { return c.ModelName }},
	{KeyAPIPort, setPort(func(c *Config) *int { return &c.APIPort }), func(c Config) string { return strconv.Itoa(c.APIPort) }},
	{KeyUIPort, setPort(func(c *Config) *int { return &c.UIPort }), func(c Config) string { return strconv.Itoa(c.UIPort) }},
	{KeyMaxLength, setPositive(func(c *Config) *int { return &c.MaxLength }), func(c Config) string { return strconv.Itoa(c.MaxLength) }},
	{KeyBatchSize, setPositive(func(c *Config) *int { return &c.BatchSize }), func(c Config) string { return strconv.Itoa(c.BatchSize) }},
	{KeyUpdateIntervalHours, setPositive(func(c *Config) *int { return &c.UpdateIntervalHours }), func(c Config) string { return strconv.Itoa(c.UpdateIntervalHours) }},
	{KeyLogLevel, setLogLevel, func(c Config) string { return c.LogLevel }},
	{KeyHealthTimeout, setDuration(func(c *Config) *time.Duration { return &c.HealthTimeout }), func(c Config) string { return formatSeconds(c.HealthTimeout) }},
	{KeyHealthInterval, setDuration(func(c *Config) *time.Duration { return &c.HealthInterval }), func(c Config) string { return formatSeconds(c.HealthInterval) }},
	{KeyDataDir, setRelativeDir(func(c *Config) *string { return &c.DataDir }), func(c Config) string { return c.DataDir }},
	{KeyModelsDir, setRelativeDir(func(c *Config) *string { return &c.ModelsDir }), func(c Config) string { return c.ModelsDir }},
	{KeyLogsDir, setRelativeDir(func(c *Config) *string { return &c.LogsDir }), func(c Config) string { return c.LogsDir }},
	{KeyProjectName, setNonEmpty(func(c *Config) *string { return &c.ProjectName }), func(c Config) string { return c.ProjectName }},
	{KeyDatabaseURL, setNonEmpty(func(c *Config) *string { return &c.DatabaseURL }), func(c Config) string { return c.DatabaseURL }},
	{KeyRedisAddr, setNonEmpty(func(c *Config) *string { return &c.RedisAddr }), func(c Config) string { return c.RedisAddr }},
}

// persistedKeys are written by WriteSettings. The remaining keys are
// accepted on read but only written when they differ from the default.
var persistedKeys = map[string]bool{
	KeyNVDAPIKey:           true,
	KeyModelName:           true,
	KeyAPIPort:             true,
	KeyUIPort:              true,
	KeyMaxLength:           true,
	KeyBatchSize:           true,
	KeyUpdateIntervalHours: true,
	KeyLogLevel:            true,
}

// Keys returns all recognised configuration keys in table order.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, f.key)
	}
	return keys
}

func lookupField(key string) (field, bool) {
	for _, f := range fields {
		if f.key == key {
			return f, true
		}
	}
	return field{}, false
}

// overlay applies every recognised key of values on top of base. Values that
// fail to parse keep base's value.
func overlay(base Config, values map[string]string, source Source, foldKeys bool) Config {
	cfg := base
	for rawKey, value := range values {
		key := rawKey
		if foldKeys {
			key = strings.ToUpper(strings.TrimSpace(rawKey))
		}
		f, ok := lookupField(key)
		if !ok {
			if source != SourceEnvironment {
				logging.Debug("Config", "Ignoring unknown %s key %q", source, rawKey)
			}
			continue
		}
		if err := f.set(&cfg, value); err != nil {
			logging.WarnErr("Config", err, "Ignoring invalid %s value for %s", source, key)
		}
	}
	return cfg
}

func setString(ptr func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*ptr(c) = v
		return nil
	}
}

func setNonEmpty(ptr func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("value must not be empty")
		}
		*ptr(c) = v
		return nil
	}
}

func setPositive(ptr func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("not an integer: %q", v)
		}
		if n <= 0 {
			return fmt.Errorf("must be positive, got %d", n)
		}
		*ptr(c) = n
		return nil
	}
}

func setPort(ptr func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("not a port number: %q", v)
		}
		if n < 1 || n > 65535 {
			return fmt.Errorf("port out of range: %d", n)
		}
		*ptr(c) = n
		return nil
	}
}

// setDuration accepts whole seconds ("90") or a Go duration ("1m30s").
func setDuration(ptr func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		v = strings.TrimSpace(v)
		var d time.Duration
		if n, err := strconv.Atoi(v); err == nil {
			d = time.Duration(n) * time.Second
		} else {
			parsed, perr := time.ParseDuration(v)
			if perr != nil {
				return fmt.Errorf("not a duration: %q", v)
			}
			d = parsed
		}
		if d <= 0 {
			return fmt.Errorf("duration must be positive, got %s", d)
		}
		*ptr(c) = d
		return nil
	}
}

func setLogLevel(c *Config, v string) error {
	if _, ok := logging.ParseLevel(v); !ok {
		return fmt.Errorf("unknown log level %q", v)
	}
	c.LogLevel = strings.ToUpper(strings.TrimSpace(v))
	return nil
}

// setRelativeDir only accepts paths that stay inside the project directory,
// so a full reset can never reach outside it.
func setRelativeDir(ptr func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		clean := filepath.Clean(strings.TrimSpace(v))
		if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return fmt.Errorf("directory must be relative to the project directory: %q", v)
		}
		*ptr(c) = clean
		return nil
	}
}

func formatSeconds(d time.Duration) string {
	if d%time.Second == 0 {
		return strconv.Itoa(int(d / time.Second))
	}
	return d.String()
}
