// ABOUTME: Tests for the SolidityScan API client
// ABOUTME: Verifies bearer token handling, error mapping, and source uploads

package scanner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	upstream := httptest.NewServer(handler)
	t.Cleanup(upstream.Close)
	return New(upstream.URL, 5*time.Second, nil)
}

func TestContractScan_SendsBearerToken(t *testing.T) {
	var gotAuth string
	var gotPayload ContractScanPayload

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		_, _ = w.Write([]byte(`{"scan_status":"done"}`))
	})

	raw, err := client.ContractScan(context.Background(), ContractScanPayload{
		ContractAddress:  "0xabc",
		ContractChain:    "mainnet",
		ContractPlatform: "etherscan",
	}, "tok-123")
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, "0xabc", gotPayload.ContractAddress)
	assert.JSONEq(t, `{"scan_status":"done"}`, string(raw))
}

func TestPost_UnauthorizedMapsToSentinel(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.ContractScan(context.Background(), ContractScanPayload{}, "bad")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestQuickScan_ExtractsIdentifiers(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"project_id":"p1","scan_id":"s1","other":"stuff"}`))
	})

	result, err := client.QuickScan(context.Background(), ContractScanPayload{}, "tok")
	require.NoError(t, err)
	assert.Equal(t, "p1", result.ProjectID)
	assert.Equal(t, "s1", result.ScanID)
	assert.NotEmpty(t, result.Raw)
}

func TestProjectScan_DefaultsBranch(t *testing.T) {
	var gotPayload ProjectScanPayload
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := client.ProjectScan(context.Background(), ProjectScanPayload{
		Provider:    "github",
		ProjectURL:  "https://github.com/a/b",
		ProjectName: "b",
	}, "tok")
	require.NoError(t, err)
	assert.Equal(t, "main", gotPayload.ProjectBranch)
	assert.NotNil(t, gotPayload.SkipFilePaths)
}

func TestReportURL(t *testing.T) {
	url := ReportURL(&ReportResult{ProjectID: "p", ReportID: "r", ScanID: "s"})
	assert.Equal(t, "https://solidityscan.com/qs-report/p/r/s", url)
}

func TestAnalyseProject_UploadsOnlySolidityFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Token.sol"), []byte("contract Token {}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("docs"), 0o644))

	var gotContentType string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "inline", r.FormValue("project_name"))
		_, _ = w.Write([]byte(`{"status":"queued"}`))
	})

	raw, err := client.AnalyseProject(context.Background(), dir, "inline", "tok")
	require.NoError(t, err)
	assert.Contains(t, gotContentType, "multipart/form-data")
	assert.JSONEq(t, `{"status":"queued"}`, string(raw))
}

func TestAnalyseProject_NoSolidityFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("upstream should not be called")
	})

	_, err := client.AnalyseProject(context.Background(), dir, "p", "tok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no Solidity files")
}

func TestAnalyseProject_MissingDirectory(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("upstream should not be called")
	})

	_, err := client.AnalyseProject(context.Background(), filepath.Join(t.TempDir(), "missing"), "p", "tok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory not found")
}
