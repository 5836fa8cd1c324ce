// ABOUTME: Directory enumeration tool listing supported platforms and chains
// ABOUTME: Serves from the memoized directory; no credential required

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/credshields/solidityscan-mcp/internal/mcp"
)

func (d *Deps) supportedPlatformsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_supported_platforms_chains",
		Description: "List the platforms and chains supported for contract scanning",
		InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
		Handler:     d.handleSupportedPlatforms,
	}
}

func (d *Deps) handleSupportedPlatforms(ctx context.Context, _ *mcp.ToolRequest) (*mcp.CallToolResult, error) {
	dir := d.Directory.Load(ctx)
	if len(dir.Platforms) == 0 {
		return mcp.ErrorResult("The platform/chain directory is currently unavailable. Contract scans by platform name will not work until the server can reach the directory endpoint."), nil
	}

	var b strings.Builder
	b.WriteString("# Supported Platforms and Chains\n")
	for _, name := range dir.Platforms {
		entry := dir.ByName[name]
		fmt.Fprintf(&b, "\n## %s (id: %s)\n", name, entry.ID)

		chains := make([]string, 0, len(entry.ChainsByName))
		for chain := range entry.ChainsByName {
			chains = append(chains, chain)
		}
		sort.Strings(chains)
		for _, chain := range chains {
			id := entry.ChainsByName[chain]
			if id == "" {
				fmt.Fprintf(&b, "- %s\n", chain)
				continue
			}
			fmt.Fprintf(&b, "- %s (id: %s)\n", chain, id)
		}
	}
	return mcp.TextResult(b.String()), nil
}
