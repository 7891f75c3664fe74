// Package analysis is a client for the CVE Analyst HTTP API.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cvectl/internal/health"
)

// DefaultInstruction is sent when the operator gives none.
const DefaultInstruction = "Analyze this CVE and provide security recommendations"

var (
	// ErrUnreachable wraps transport failures talking to the API.
	ErrUnreachable = errors.New("analysis API unreachable")
	// ErrInvalidCVEID is returned for identifiers not shaped like CVE-YYYY-NNNN.
	ErrInvalidCVEID = errors.New("invalid CVE identifier")
)

var cveIDPattern = regexp.MustCompile(`^CVE-\d{4}-\d{4,}$`)

// NormalizeCVEID upper-cases and validates a CVE identifier.
func NormalizeCVEID(id string) (string, error) {
	id = strings.ToUpper(strings.TrimSpace(id))
	if !cveIDPattern.MatchString(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCVEID, id)
	}
	return id, nil
}

// APIError is a non-200 response. Body is kept verbatim for the operator.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("analysis API returned status %d: %s", e.StatusCode, e.Body)
}

// Analysis is the result of POST /analyze.
type Analysis struct {
	CVEID     string `json:"cve_id" yaml:"cve_id"`
	Analysis  string `json:"analysis" yaml:"analysis"`
	Timestamp string `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

// CVESummary is one entry of GET /recent-cves.
type CVESummary struct {
	CVEID            string   `json:"cve_id" yaml:"cve_id"`
	Description      string   `json:"description" yaml:"description"`
	Severity         *float64 `json:"severity" yaml:"severity"`
	PublishedDate    string   `json:"published_date" yaml:"published_date"`
	CWEID            string   `json:"cwe_id,omitempty" yaml:"cwe_id,omitempty"`
	ExploitAvailable int      `json:"exploit_available" yaml:"exploit_available"`
}

// Client talks to the analysis API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for baseURL. Analysis runs model inference, so
// the timeout is generous.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

// Health fetches GET /health.
func (c *Client) Health(ctx context.Context) (health.Report, error) {
	var rep health.Report
	if err := c.do(ctx, http.MethodGet, "/health", nil, &rep); err != nil {
		return health.Report{}, err
	}
	rep.Reachable = true
	rep.CheckedAt = time.Now()
	return rep, nil
}

// Analyze asks the model to analyze a CVE.
func (c *Client) Analyze(ctx context.Context, cveID, instruction string) (Analysis, error) {
	if instruction == "" {
		instruction = DefaultInstruction
	}
	body := map[string]string{"cve_id": cveID, "instruction": instruction}

	var out Analysis
	if err := c.do(ctx, http.MethodPost, "/analyze", body, &out); err != nil {
		return Analysis{}, err
	}
	if out.CVEID == "" {
		out.CVEID = cveID
	}
	return out, nil
}

// RecentCVEs lists the most recently published CVEs.
func (c *Client) RecentCVEs(ctx context.Context, limit int) ([]CVESummary, error) {
	q := url.Values{"limit": []string{strconv.Itoa(limit)}}
	var out []CVESummary
	if err := c.do(ctx, http.MethodGet, "/recent-cves?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
