package registry

import "strings"

// Service names of the default catalogue.
const (
	ServiceAPI       = "api"
	ServiceUI        = "ui"
	ServiceScheduler = "scheduler"
	ServiceDB        = "db"
	ServiceCache     = "cache"
	ServiceProxy     = "proxy"
)

// APIContainerPort is the port the analysis API listens on inside its container.
const APIContainerPort = 8000

var appVolumes = []string{
	"./{data_dir}:/app/cve_data",
	"./{models_dir}:/app/models",
	"./{logs_dir}:/app/logs",
}

var appEnv = map[string]string{
	"NVD_API_KEY":           "{nvd_api_key}",
	"MODEL_NAME":            "{model_name}",
	"MAX_LENGTH":            "{max_length}",
	"BATCH_SIZE":            "{batch_size}",
	"UPDATE_INTERVAL_HOURS": "{update_interval_hours}",
	"LOG_LEVEL":             "{log_level}",
	"DATA_DIR":              "/app/cve_data",
	"MODELS_DIR":            "/app/models",
	"LOGS_DIR":              "/app/logs",
}

func withEnv(base map[string]string, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Default returns the CVE Analyst service catalogue: API, UI and scheduler,
// plus the optional datastore, cache and reverse proxy.
func Default() *Registry {
	r, err := New(
		ServiceDescriptor{
			Name:         ServiceAPI,
			Build:        ".",
			Command:      []string{"python", "cli/main.py", "api", "--port", "8000", "--interface", "fastapi"},
			Ports:        []string{"{api_port}:8000"},
			Env:          appEnv,
			Volumes:      appVolumes,
			Probe:        Probe{Kind: ProbeHTTP, Path: "/health", Port: APIContainerPort},
			LocalCommand: []string{"python3", "cli/main.py", "api", "--port", "{api_port}", "--interface", "fastapi"},
			Light:        true,
		},
		ServiceDescriptor{
			Name:         ServiceUI,
			Build:        ".",
			Command:      []string{"python", "cli/main.py", "api", "--port", "7860", "--interface", "gradio"},
			Ports:        []string{"{ui_port}:7860"},
			Env:          withEnv(appEnv, map[string]string{"API_URL": "http://api:8000"}),
			Volumes:      appVolumes,
			DependsOn:    []string{ServiceAPI},
			LocalCommand: []string{"python3", "cli/main.py", "api", "--port", "{ui_port}", "--interface", "gradio"},
			Light:        true,
		},
		ServiceDescriptor{
			Name:         ServiceScheduler,
			Build:        ".",
			Command:      []string{"python", "cli/main.py", "schedule"},
			Env:          appEnv,
			Volumes:      appVolumes,
			DependsOn:    []string{ServiceAPI},
			LocalCommand: []string{"python3", "cli/main.py", "schedule"},
		},
		ServiceDescriptor{
			Name:  ServiceDB,
			Image: "postgres:16-alpine",
			Ports: []string{"5432:5432"},
			Env: map[string]string{
				"POSTGRES_USER":     "cve",
				"POSTGRES_PASSWORD": "cve",
				"POSTGRES_DB":       "cve",
			},
			Volumes:  []string{"db-data:/var/lib/postgresql/data"},
			Probe:    Probe{Kind: ProbePostgres, Port: 5432},
			Optional: true,
		},
		ServiceDescriptor{
			Name:     ServiceCache,
			Image:    "redis:7-alpine",
			Ports:    []string{"6379:6379"},
			Probe:    Probe{Kind: ProbeRedis, Port: 6379},
			Optional: true,
		},
		ServiceDescriptor{
			Name:      ServiceProxy,
			Image:     "nginx:1.27-alpine",
			Ports:     []string{"8080:80"},
			DependsOn: []string{ServiceAPI, ServiceUI},
			Optional:  true,
		},
	)
	if err != nil {
		// The catalogue is static; an error here is a programming mistake.
		panic(err)
	}
	return r
}

// NamedVolumes returns the named (non bind-mount) volumes used by services.
func NamedVolumes(bindings []Binding) []string {
	seen := make(map[string]bool)
	var out []string
	for _, b := range bindings {
		for _, spec := range b.VolumeSpecs {
			name := volumeSource(spec)
			if name == "" || isPathLike(name) || seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

func volumeSource(spec string) string {
	src, _, ok := strings.Cut(spec, ":")
	if !ok {
		return ""
	}
	return src
}

func isPathLike(s string) bool {
	return strings.HasPrefix(s, ".") || strings.HasPrefix(s, "/") || strings.HasPrefix(s, "~")
}
