// ABOUTME: Source-level scanning tools: git repositories, local directories, inline files
// ABOUTME: Local variants stage sources on disk and upload them as a zip archive

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/credshields/solidityscan-mcp/internal/mcp"
	"github.com/credshields/solidityscan-mcp/internal/scanner"
	"github.com/credshields/solidityscan-mcp/internal/store"
)

func (d *Deps) scanProjectTool() mcp.Tool {
	return mcp.Tool{
		Name:        "scan_project",
		Description: "Scan a remote git repository of Solidity sources with SolidityScan",
		InputSchema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "provider": {"type": "string", "description": "Git provider (e.g., github, gitlab)"},
    "projectUrl": {"type": "string", "description": "Full URL to the git repository"},
    "projectName": {"type": "string", "description": "Name for the project scan"},
    "projectBranch": {"type": "string", "description": "Branch to scan (default: main)"},
    "recurScans": {"type": "boolean", "description": "Enable recurring scans"},
    "skipFilePaths": {"type": "array", "items": {"type": "string"}, "description": "File paths to skip during scanning"},
    "apiToken": {"type": "string", "description": "SolidityScan API token"}
  },
  "required": ["provider", "projectUrl", "projectName"]
}`),
		Handler: d.handleScanProject,
	}
}

func (d *Deps) handleScanProject(ctx context.Context, req *mcp.ToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Provider      string   `json:"provider"`
		ProjectURL    string   `json:"projectUrl"`
		ProjectName   string   `json:"projectName"`
		ProjectBranch string   `json:"projectBranch"`
		RecurScans    bool     `json:"recurScans"`
		SkipFilePaths []string `json:"skipFilePaths"`
		APIToken      string   `json:"apiToken"`
	}
	if err := json.Unmarshal(req.Arguments, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if args.Provider == "" || args.ProjectURL == "" || args.ProjectName == "" {
		return nil, fmt.Errorf("provider, projectUrl, and projectName are required")
	}

	token, err := d.resolveToken(args.APIToken, req)
	if err != nil {
		return nil, err
	}

	raw, err := d.Scanner.ProjectScan(ctx, scanner.ProjectScanPayload{
		Provider:      args.Provider,
		ProjectURL:    args.ProjectURL,
		ProjectName:   args.ProjectName,
		ProjectBranch: args.ProjectBranch,
		RecurScans:    args.RecurScans,
		SkipFilePaths: args.SkipFilePaths,
	}, token)
	if err != nil {
		d.record(ctx, req, "scan_project", args.ProjectURL, store.ScanStatusFailed, err.Error())
		return nil, err
	}

	d.record(ctx, req, "scan_project", args.ProjectURL, store.ScanStatusCompleted, args.ProjectName)

	heading := fmt.Sprintf("# Project Scan Results\n\n**Project:** %s\n**URL:** %s\n\n## Scan Results:",
		args.ProjectName, args.ProjectURL)
	return mcp.JSONResult(heading, raw)
}

func (d *Deps) scanLocalDirectoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "scan_local_directory",
		Description: "Zip the Solidity files under a local directory and scan them",
		InputSchema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "directoryPath": {"type": "string", "description": "Path to local directory containing Solidity files"},
    "projectName": {"type": "string", "description": "Name for the local project scan (default: LocalScan)"},
    "apiToken": {"type": "string", "description": "SolidityScan API token"}
  },
  "required": ["directoryPath"]
}`),
		Handler: d.handleScanLocalDirectory,
	}
}

func (d *Deps) handleScanLocalDirectory(ctx context.Context, req *mcp.ToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		DirectoryPath string `json:"directoryPath"`
		ProjectName   string `json:"projectName"`
		APIToken      string `json:"apiToken"`
	}
	if err := json.Unmarshal(req.Arguments, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if args.DirectoryPath == "" {
		return nil, fmt.Errorf("directoryPath is required")
	}

	token, err := d.resolveToken(args.APIToken, req)
	if err != nil {
		return nil, err
	}

	projectName := args.ProjectName
	if projectName == "" {
		projectName = "LocalScan"
	}

	raw, err := d.Scanner.AnalyseProject(ctx, args.DirectoryPath, projectName, token)
	if err != nil {
		d.record(ctx, req, "scan_local_directory", args.DirectoryPath, store.ScanStatusFailed, err.Error())
		return nil, err
	}

	d.record(ctx, req, "scan_local_directory", args.DirectoryPath, store.ScanStatusCompleted, projectName)

	heading := fmt.Sprintf("# Local Directory Scan Results\n\n**Directory:** %s\n**Project Name:** %s\n\n## Scan Results:",
		args.DirectoryPath, projectName)
	return mcp.JSONResult(heading, raw)
}

func (d *Deps) scanFileContentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "scan_file_content",
		Description: "Scan inline Solidity source content without a file on disk",
		InputSchema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "fileContent": {"type": "string", "description": "Raw Solidity contract source code to scan"},
    "fileName": {"type": "string", "description": "Name for the contract file (default: Contract.sol)"},
    "projectName": {"type": "string", "description": "Name for the scan project (default: InlineScan)"},
    "apiToken": {"type": "string", "description": "SolidityScan API token"}
  },
  "required": ["fileContent"]
}`),
		Handler: d.handleScanFileContent,
	}
}

func (d *Deps) handleScanFileContent(ctx context.Context, req *mcp.ToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		FileContent string `json:"fileContent"`
		FileName    string `json:"fileName"`
		ProjectName string `json:"projectName"`
		APIToken    string `json:"apiToken"`
	}
	if err := json.Unmarshal(req.Arguments, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if strings.TrimSpace(args.FileContent) == "" {
		return nil, fmt.Errorf("fileContent is required")
	}

	token, err := d.resolveToken(args.APIToken, req)
	if err != nil {
		return nil, err
	}

	fileName := filepath.Base(args.FileName)
	if fileName == "." || fileName == "/" || fileName == "" {
		fileName = "Contract.sol"
	}
	if !strings.HasSuffix(fileName, ".sol") {
		fileName += ".sol"
	}
	projectName := args.ProjectName
	if projectName == "" {
		projectName = "InlineScan"
	}

	// Stage the content in a throwaway directory and reuse the upload path.
	dir, err := os.MkdirTemp("", "solidityscan-inline-*")
	if err != nil {
		return nil, fmt.Errorf("staging source: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := os.WriteFile(filepath.Join(dir, fileName), []byte(args.FileContent), 0o600); err != nil {
		return nil, fmt.Errorf("staging source: %w", err)
	}

	raw, err := d.Scanner.AnalyseProject(ctx, dir, projectName, token)
	if err != nil {
		d.record(ctx, req, "scan_file_content", fileName, store.ScanStatusFailed, err.Error())
		return nil, err
	}

	d.record(ctx, req, "scan_file_content", fileName, store.ScanStatusCompleted, projectName)

	heading := fmt.Sprintf("# File Content Scan Results\n\n**File:** %s\n**Project Name:** %s\n\n## Scan Results:",
		fileName, projectName)
	return mcp.JSONResult(heading, raw)
}
