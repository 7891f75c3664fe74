// Package config provides configuration resolution for cvectl.
//
// This package implements a layered configuration system that produces a
// single immutable Config value per invocation. Every consumer receives that
// value (a copy), and nothing reads the process environment after resolution.
//
// # Configuration Layers
//
// Configuration is resolved in the following order, later layers overriding
// earlier ones:
//
//  1. Hard-coded defaults (embedded in binary)
//     - API port 8000, UI port 7860, max length 2048, batch size 4
//     - update interval 6 hours, empty NVD API key
//
//  2. Environment variables
//     - Only the names listed in the key table are consulted
//
//  3. Settings file (./.env)
//     - KEY=VALUE lines, blank lines and lines starting with '#' are ignored
//     - Keys are case-folded, values are taken verbatim (surrounding space trimmed)
//
//  4. Operator overrides (command-line flags such as --api-port)
//     - Always win over every other layer
//
// # Settings File Format
//
//	# CVE Analyst System Configuration
//	NVD_API_KEY=
//	MODEL_NAME=deepseek-ai/deepseek-coder-1.3b-instruct
//	API_PORT=8000
//	UI_PORT=7860
//	MAX_LENGTH=2048
//	BATCH_SIZE=4
//	UPDATE_INTERVAL_HOURS=6
//	LOG_LEVEL=INFO
//
// # Invalid Values
//
// Resolution never fails. A value that cannot be parsed for a typed field
// (for example API_PORT=abc) is ignored with a warning and the value from the
// previous layer is kept. Unknown keys are ignored.
//
// # Concurrency
//
// The settings file is single-writer: only `cvectl setup` writes it. Running
// several cvectl invocations against the same project directory at the same
// time is not supported.
//
// # Usage Example
//
//	cfg := config.Resolve(config.Environ(), config.SettingsPath(projectDir), map[string]string{
//	    config.KeyAPIPort: "9000",
//	})
//	fmt.Println(cfg.APIBaseURL())
package config
