// Package health polls service readiness endpoints.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
)

// Report is the result of one readiness check.
type Report struct {
	Reachable       bool      `json:"-" yaml:"reachable"`
	Status          string    `json:"status" yaml:"status"`
	ModelLoaded     bool      `json:"model_loaded" yaml:"model_loaded"`
	Timestamp       string    `json:"timestamp" yaml:"timestamp"`
	DatabaseRecords *int      `json:"database_records,omitempty" yaml:"database_records,omitempty"`
	LastUpdate      *string   `json:"last_update,omitempty" yaml:"last_update,omitempty"`
	CheckedAt       time.Time `json:"-" yaml:"checked_at"`
}

// Prober performs a single readiness check. An error means "not ready yet";
// the returned report still says whether the target was reachable.
type Prober interface {
	Probe(ctx context.Context) (Report, error)
	Target() string
}

// ErrMalformedPayload is returned when a 200 response does not carry a
// status payload.
var ErrMalformedPayload = errors.New("malformed health payload")

// HTTPProber checks a JSON health endpoint.
type HTTPProber struct {
	URL    string
	Client *http.Client
}

// NewHTTPProber returns a prober for url with a bounded client.
func NewHTTPProber(url string) *HTTPProber {
	return &HTTPProber{
		URL:    url,
		Client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (p *HTTPProber) Target() string { return p.URL }

// Probe succeeds only on HTTP 200 with a JSON body that has a status field.
func (p *HTTPProber) Probe(ctx context.Context) (Report, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return Report{}, fmt.Errorf("failed to create request: %w", err)
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Report{}, fmt.Errorf("failed to connect to %s: %w", p.URL, err)
	}
	defer resp.Body.Close()

	rep := Report{Reachable: true}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return rep, fmt.Errorf("%s returned status %d: %s", p.URL, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		return Report{Reachable: true}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	rep.Reachable = true
	if rep.Status == "" {
		return rep, fmt.Errorf("%w: missing status", ErrMalformedPayload)
	}
	return rep, nil
}

// PostgresProber checks that the database accepts connections.
type PostgresProber struct {
	DSN string
}

func (p *PostgresProber) Target() string { return "postgres" }

func (p *PostgresProber) Probe(ctx context.Context) (Report, error) {
	conn, err := pgx.Connect(ctx, p.DSN)
	if err != nil {
		return Report{}, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer conn.Close(context.Background())

	if err := conn.Ping(ctx); err != nil {
		return Report{Reachable: true}, fmt.Errorf("postgres ping failed: %w", err)
	}
	return Report{Reachable: true, Status: "ok"}, nil
}

// RedisProber checks that the cache answers PING.
type RedisProber struct {
	Addr string
}

func (p *RedisProber) Target() string { return p.Addr }

func (p *RedisProber) Probe(ctx context.Context) (Report, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        p.Addr,
		DialTimeout: 3 * time.Second,
		MaxRetries:  -1,
	})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		return Report{}, fmt.Errorf("redis ping %s failed: %w", p.Addr, err)
	}
	return Report{Reachable: true, Status: "ok"}, nil
}
