// ABOUTME: REST client for the SolidityScan scanning API
// ABOUTME: Carries a per-call bearer token and returns opaque JSON results

package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrUnauthorized is returned when the API rejects the supplied token.
var ErrUnauthorized = errors.New("solidityscan api rejected the token")

// ContractScanPayload identifies a deployed contract to scan.
type ContractScanPayload struct {
	ContractAddress  string `json:"contract_address"`
	ContractChain    string `json:"contract_chain"`
	ContractPlatform string `json:"contract_platform"`
}

// ProjectScanPayload identifies a git repository to scan.
type ProjectScanPayload struct {
	Provider      string   `json:"provider"`
	ProjectURL    string   `json:"project_url"`
	ProjectName   string   `json:"project_name"`
	ProjectBranch string   `json:"project_branch"`
	RecurScans    bool     `json:"recur_scans"`
	SkipFilePaths []string `json:"skip_file_paths"`
}

// ReportPayload requests report generation for a completed scan.
type ReportPayload struct {
	ProjectID     string          `json:"project_id"`
	ScanID        string          `json:"scan_id"`
	ScanType      string          `json:"scan_type"`
	ReportOptions json.RawMessage `json:"report_options,omitempty"`
}

// QuickScanResult carries the identifiers needed for report generation.
// Everything else in the response is opaque pass-through data.
type QuickScanResult struct {
	ProjectID string          `json:"project_id"`
	ScanID    string          `json:"scan_id"`
	Raw       json.RawMessage `json:"-"`
}

// ReportResult carries the identifiers composing the public report URL.
type ReportResult struct {
	ProjectID string `json:"project_id"`
	ReportID  string `json:"report_id"`
	ScanID    string `json:"scan_id"`
}

// Client is the SolidityScan API client. Scan results are treated as opaque
// JSON: this layer never interprets finding contents.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// New creates a scanning API client against the given base URL.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With("component", "scanner"),
	}
}

// ContractScan runs a full scan of a deployed contract.
func (c *Client) ContractScan(ctx context.Context, payload ContractScanPayload, token string) (json.RawMessage, error) {
	return c.post(ctx, "/api-start-scan-block/", payload, token)
}

// QuickScan runs the quick contract scan used by the report flow and returns
// the project/scan identifiers alongside the raw result.
func (c *Client) QuickScan(ctx context.Context, payload ContractScanPayload, token string) (*QuickScanResult, error) {
	raw, err := c.post(ctx, "/api-quick-scan-sse/", payload, token)
	if err != nil {
		return nil, err
	}
	result := &QuickScanResult{Raw: raw}
	if err := json.Unmarshal(raw, result); err != nil {
		return nil, fmt.Errorf("decoding quick scan result: %w", err)
	}
	return result, nil
}

// ProjectScan starts a scan of a remote git repository.
func (c *Client) ProjectScan(ctx context.Context, payload ProjectScanPayload, token string) (json.RawMessage, error) {
	if payload.ProjectBranch == "" {
		payload.ProjectBranch = "main"
	}
	if payload.SkipFilePaths == nil {
		payload.SkipFilePaths = []string{}
	}
	return c.post(ctx, "/api-project-scan/", payload, token)
}

// GenerateReport generates a report for a completed scan.
func (c *Client) GenerateReport(ctx context.Context, payload ReportPayload, token string) (*ReportResult, error) {
	raw, err := c.post(ctx, "/api-generate-report/", payload, token)
	if err != nil {
		return nil, err
	}
	result := &ReportResult{}
	if err := json.Unmarshal(raw, result); err != nil {
		return nil, fmt.Errorf("decoding report result: %w", err)
	}
	return result, nil
}

// ReportURL composes the public quick-scan report link.
func ReportURL(r *ReportResult) string {
	return fmt.Sprintf("https://solidityscan.com/qs-report/%s/%s/%s", r.ProjectID, r.ReportID, r.ScanID)
}

func (c *Client) post(ctx context.Context, path string, payload any, token string) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", path, err)
	}

	c.logger.Debug("api call complete",
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("calling %s: status %d: %s", path, resp.StatusCode, truncate(data, 200))
	}

	return json.RawMessage(data), nil
}

func truncate(data []byte, n int) string {
	s := string(data)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
