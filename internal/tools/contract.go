// ABOUTME: Deployed-contract scanning tools: full scan and quick-scan-with-report
// ABOUTME: Resolves platform/chain inputs before touching the scanning API

package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/credshields/solidityscan-mcp/internal/mcp"
	"github.com/credshields/solidityscan-mcp/internal/scanner"
	"github.com/credshields/solidityscan-mcp/internal/store"
)

type contractScanArgs struct {
	ContractAddress string          `json:"contractAddress"`
	Platform        string          `json:"platform"`
	Chain           string          `json:"chain"`
	ReportOptions   json.RawMessage `json:"reportOptions"`
	APIToken        string          `json:"apiToken"`
}

const contractScanSchema = `{
  "type": "object",
  "properties": {
    "contractAddress": {"type": "string", "description": "The deployed contract address to scan"},
    "platform": {"type": "string", "description": "Platform name or ID, e.g. etherscan"},
    "chain": {"type": "string", "description": "Chain name or ID within the platform, e.g. mainnet"},
    "apiToken": {"type": "string", "description": "SolidityScan API token (optional if set in environment or headers)"}
  },
  "required": ["contractAddress", "chain"]
}`

const reportScanSchema = `{
  "type": "object",
  "properties": {
    "contractAddress": {"type": "string", "description": "The deployed contract address to scan"},
    "platform": {"type": "string", "description": "Platform name or ID, e.g. etherscan"},
    "chain": {"type": "string", "description": "Chain name or ID within the platform, e.g. mainnet"},
    "reportOptions": {"description": "Optional report generation options passed through to the API"},
    "apiToken": {"type": "string", "description": "SolidityScan API token (optional if set in environment or headers)"}
  },
  "required": ["contractAddress", "chain"]
}`

func (d *Deps) scanContractTool() mcp.Tool {
	return mcp.Tool{
		Name:        "scan_contract",
		Description: "Run a full SolidityScan security scan on a deployed smart contract",
		InputSchema: json.RawMessage(contractScanSchema),
		Handler:     d.handleScanContract,
	}
}

func (d *Deps) handleScanContract(ctx context.Context, req *mcp.ToolRequest) (*mcp.CallToolResult, error) {
	var args contractScanArgs
	if err := json.Unmarshal(req.Arguments, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if args.ContractAddress == "" {
		return nil, fmt.Errorf("contractAddress is required")
	}

	token, err := d.resolveToken(args.APIToken, req)
	if err != nil {
		return nil, err
	}

	resolved, err := d.Directory.ResolvePlatformAndChain(ctx, args.Platform, args.Chain)
	if err != nil {
		return nil, err
	}

	raw, err := d.Scanner.ContractScan(ctx, scanner.ContractScanPayload{
		ContractAddress:  args.ContractAddress,
		ContractChain:    resolved.ChainName,
		ContractPlatform: resolved.PlatformName,
	}, token)
	if err != nil {
		d.record(ctx, req, "scan_contract", args.ContractAddress, store.ScanStatusFailed, err.Error())
		return nil, err
	}

	d.record(ctx, req, "scan_contract", args.ContractAddress, store.ScanStatusCompleted,
		fmt.Sprintf("%s/%s", resolved.PlatformName, resolved.ChainName))

	heading := fmt.Sprintf("# Contract Scan Results\n\n**Contract:** %s\n**Platform:** %s\n**Chain:** %s\n\n## Scan Results:",
		args.ContractAddress, resolved.PlatformName, resolved.ChainName)
	return mcp.JSONResult(heading, raw)
}

func (d *Deps) scanAndGetReportTool() mcp.Tool {
	return mcp.Tool{
		Name:        "scan_and_get_report_pdf",
		Description: "Quick-scan a deployed contract and generate a shareable report link",
		InputSchema: json.RawMessage(reportScanSchema),
		Handler:     d.handleScanAndGetReport,
	}
}

func (d *Deps) handleScanAndGetReport(ctx context.Context, req *mcp.ToolRequest) (*mcp.CallToolResult, error) {
	var args contractScanArgs
	if err := json.Unmarshal(req.Arguments, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if args.ContractAddress == "" {
		return nil, fmt.Errorf("contractAddress is required")
	}

	token, err := d.resolveToken(args.APIToken, req)
	if err != nil {
		return nil, err
	}

	resolved, err := d.Directory.ResolvePlatformAndChain(ctx, args.Platform, args.Chain)
	if err != nil {
		return nil, err
	}

	payload := scanner.ContractScanPayload{
		ContractAddress:  args.ContractAddress,
		ContractChain:    resolved.ChainName,
		ContractPlatform: resolved.PlatformName,
	}

	quick, err := d.Scanner.QuickScan(ctx, payload, token)
	if err != nil {
		d.record(ctx, req, "scan_and_get_report_pdf", args.ContractAddress, store.ScanStatusFailed, err.Error())
		return nil, err
	}
	if quick.ProjectID == "" || quick.ScanID == "" {
		d.record(ctx, req, "scan_and_get_report_pdf", args.ContractAddress, store.ScanStatusFailed, "scan returned no identifiers")
		return nil, fmt.Errorf("scan completed but returned no project/scan identifiers; report cannot be generated")
	}

	report, err := d.Scanner.GenerateReport(ctx, scanner.ReportPayload{
		ProjectID:     quick.ProjectID,
		ScanID:        quick.ScanID,
		ScanType:      "block",
		ReportOptions: args.ReportOptions,
	}, token)
	if err != nil {
		d.record(ctx, req, "scan_and_get_report_pdf", args.ContractAddress, store.ScanStatusFailed, err.Error())
		return nil, err
	}

	url := scanner.ReportURL(report)
	d.record(ctx, req, "scan_and_get_report_pdf", args.ContractAddress, store.ScanStatusCompleted, url)

	text := fmt.Sprintf(
		"# Scan and Report PDF\n\n**Contract:** %s\n**Platform:** %s\n**Chain:** %s\n\n## PDF Link\n\n%s\n",
		args.ContractAddress, resolved.PlatformName, resolved.ChainName, url)
	return mcp.TextResult(text), nil
}
