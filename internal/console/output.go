package console

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"cvectl/internal/analysis"
	"cvectl/internal/lifecycle"
	"cvectl/internal/runtime"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// Format is an output format for machine-readable commands.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates an --output value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (use table, json or yaml)", s)
	}
}

// Encode writes v as JSON or YAML.
func Encode(w io.Writer, f Format, v interface{}) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("format %s is not an encoding", f)
	}
}

// StatusView is the printable form of an observation.
type StatusView struct {
	State    string        `json:"state" yaml:"state"`
	Mode     string        `json:"mode" yaml:"mode"`
	Services []ServiceView `json:"services" yaml:"services"`
}

// ServiceView merges the runtime state and the probe result of one service.
type ServiceView struct {
	Service         string  `json:"service" yaml:"service"`
	State           string  `json:"state" yaml:"state"`
	Detail          string  `json:"detail,omitempty" yaml:"detail,omitempty"`
	Health          string  `json:"health,omitempty" yaml:"health,omitempty"`
	ModelLoaded     *bool   `json:"model_loaded,omitempty" yaml:"model_loaded,omitempty"`
	DatabaseRecords *int    `json:"database_records,omitempty" yaml:"database_records,omitempty"`
	LastUpdate      *string `json:"last_update,omitempty" yaml:"last_update,omitempty"`
	Error           string  `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewStatusView flattens an observation, one row per service.
func NewStatusView(obs lifecycle.Observation) StatusView {
	view := StatusView{State: obs.State.String(), Mode: obs.Mode}
	byName := make(map[string]lifecycle.ServiceHealth, len(obs.Health))
	for _, h := range obs.Health {
		byName[h.Service] = h
	}

	for _, s := range obs.Services {
		row := ServiceView{Service: s.Service, State: s.State, Detail: s.Detail}
		if h, ok := byName[s.Service]; ok {
			applyHealth(&row, h)
			delete(byName, s.Service)
		}
		view.Services = append(view.Services, row)
	}
	for _, h := range obs.Health {
		if _, ok := byName[h.Service]; !ok {
			continue
		}
		row := ServiceView{Service: h.Service, State: "unknown"}
		applyHealth(&row, h)
		view.Services = append(view.Services, row)
	}
	return view
}

func applyHealth(row *ServiceView, h lifecycle.ServiceHealth) {
	switch {
	case h.Ready():
		row.Health = h.Report.Status
		if h.Report.Status == "" {
			row.Health = "ready"
		}
	case h.Report.Reachable:
		row.Health = "not ready"
	default:
		row.Health = "unreachable"
	}
	if h.Err != nil {
		row.Error = h.Err.Error()
	}
	if h.Ready() && h.Report.Timestamp != "" {
		loaded := h.Report.ModelLoaded
		row.ModelLoaded = &loaded
	}
	row.DatabaseRecords = h.Report.DatabaseRecords
	row.LastUpdate = h.Report.LastUpdate
}

func (p *Printer) colorful() bool {
	f, ok := p.out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (p *Printer) paint(c text.Colors, s string) string {
	if !p.colorful() {
		return s
	}
	return c.Sprint(s)
}

func (p *Printer) newTable(headers ...string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	t.SetStyle(table.StyleRounded)
	row := make(table.Row, len(headers))
	for i, h := range headers {
		row[i] = p.paint(text.Colors{text.FgHiCyan}, strings.ToUpper(h))
	}
	t.AppendHeader(row)
	return t
}

// StatusTable prints the deployment state and one row per service.
func (p *Printer) StatusTable(view StatusView) {
	p.Heading(fmt.Sprintf("Deployment: %s (%s mode)", view.State, view.Mode))
	if len(view.Services) == 0 {
		p.Println(p.paint(text.Colors{text.FgYellow}, "No services found"))
		return
	}

	t := p.newTable("service", "state", "health", "model", "records", "detail")
	for _, s := range view.Services {
		t.AppendRow(table.Row{
			s.Service,
			p.stateCell(s.State),
			dash(s.Health),
			boolCell(s.ModelLoaded),
			intCell(s.DatabaseRecords),
			dash(s.Detail),
		})
	}
	t.Render()
}

func (p *Printer) stateCell(state string) string {
	switch state {
	case runtime.StateRunning:
		return p.paint(text.Colors{text.FgGreen}, state)
	case runtime.StateExited:
		return p.paint(text.Colors{text.FgRed}, state)
	default:
		return p.paint(text.Colors{text.FgYellow}, state)
	}
}

// CVETable prints recent CVE summaries.
func (p *Printer) CVETable(cves []analysis.CVESummary) {
	if len(cves) == 0 {
		p.Println(p.paint(text.Colors{text.FgYellow}, "No recent CVEs found"))
		return
	}
	t := p.newTable("cve", "severity", "published", "description")
	for _, c := range cves {
		sev := "-"
		if c.Severity != nil {
			sev = fmt.Sprintf("%.1f", *c.Severity)
		}
		t.AppendRow(table.Row{c.CVEID, sev, dash(c.PublishedDate), truncate(c.Description, 80)})
	}
	t.Render()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func boolCell(b *bool) string {
	if b == nil {
		return "-"
	}
	if *b {
		return "loaded"
	}
	return "not loaded"
}

func intCell(n *int) string {
	if n == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *n)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
