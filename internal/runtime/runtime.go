package runtime

import (
	"context"
	"io"
	"strconv"

	"cvectl/internal/registry"
)

// Runtime carries out lifecycle steps for one deployment mode.
type Runtime interface {
	// Name identifies the mode in logs and output ("docker", "local").
	Name() string

	CheckPrerequisites(ctx context.Context) error

	// Prepare writes whatever the later steps need (compose file, directories).
	Prepare(ctx context.Context, group []registry.Binding) error

	Build(ctx context.Context, b registry.Binding) Result
	Start(ctx context.Context, group []registry.Binding) Result
	Stop(ctx context.Context) Result
	RemoveVolumes(ctx context.Context) Result

	// Bootstrap runs the collaborator's scrape command for the last days.
	Bootstrap(ctx context.Context, days int) Result

	Status(ctx context.Context) ([]ServiceStatus, error)
	Logs(ctx context.Context, service string, tail int, w io.Writer) error
}

// ScrapeArgs is the collaborator command that seeds CVE data.
func ScrapeArgs(python string, days int) []string {
	return []string{python, "cli/main.py", "scrape", "--days", strconv.Itoa(days)}
}
