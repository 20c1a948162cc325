// Package advisors adapts remote intelligence services to the engine's
// Advisor interface. Each advisor is an independent HTTP service that takes
// an event plus the current system state and proposes one remediation.
package advisors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aegismesh/aegis-meta/internal/models"
)

// HTTPAdvisor calls one advisor service over HTTP JSON.
type HTTPAdvisor struct {
	name          string
	baseURL       string
	recommendPath string
	healthPath    string
	httpClient    *http.Client
}

// NewHTTPAdvisor constructs an advisor client. name is the advisor's source
// label (gnn, rl, transformer, llm, ...); empty paths get the conventional
// /recommend and /health.
func NewHTTPAdvisor(name, baseURL, recommendPath, healthPath string, timeout time.Duration) *HTTPAdvisor {
	if recommendPath == "" {
		recommendPath = "/recommend"
	}
	if healthPath == "" {
		healthPath = "/health"
	}
	return &HTTPAdvisor{
		name:          name,
		baseURL:       strings.TrimRight(baseURL, "/"),
		recommendPath: recommendPath,
		healthPath:    healthPath,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name returns the advisor's source label.
func (a *HTTPAdvisor) Name() string { return a.name }

// Recommend asks the advisor for a remediation proposal.
func (a *HTTPAdvisor) Recommend(ctx context.Context, event models.Event, state models.SystemState) (models.Recommendation, error) {
	if a == nil {
		return models.Recommendation{}, fmt.Errorf("advisor client not initialised")
	}
	if a.baseURL == "" {
		return models.Recommendation{}, fmt.Errorf("advisor %s base URL not configured", a.name)
	}

	payload := recommendRequest{Event: event, SystemState: state}
	var response recommendResponse
	if err := a.postJSON(ctx, a.resolvePath(a.recommendPath), payload, &response); err != nil {
		return models.Recommendation{}, fmt.Errorf("advisor %s request failed: %w", a.name, err)
	}
	rec, err := response.toRecommendation(a.name)
	if err != nil {
		return models.Recommendation{}, fmt.Errorf("advisor %s: %w", a.name, err)
	}
	return rec, nil
}

// Healthy probes the advisor's health endpoint.
func (a *HTTPAdvisor) Healthy(ctx context.Context) error {
	if a == nil || a.baseURL == "" {
		return fmt.Errorf("advisor client not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.resolvePath(a.healthPath), nil)
	if err != nil {
		return err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("advisor %s health returned %s", a.name, resp.Status)
	}
	return nil
}

func (a *HTTPAdvisor) resolvePath(p string) string {
	if a.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(a.baseURL)
	if err != nil {
		return a.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (a *HTTPAdvisor) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	if endpoint == "" {
		return fmt.Errorf("empty endpoint")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("advisor returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
