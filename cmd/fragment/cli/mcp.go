package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sofragment/fragment/internal/codeshot"
	fmcp "github.com/sofragment/fragment/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	var (
		transport string
		port      int
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agents",
		Long: `Start a Model Context Protocol (MCP) server that exposes the codeshot
renderer as tools for AI agents. Supports stdio (default) and HTTP transports.

In stdio mode, the MCP server communicates over stdin/stdout using JSON-RPC,
suitable for direct integration with desktop MCP clients.

In HTTP mode, the server listens on the specified port with the Streamable
HTTP transport and no authentication. 'fragment serve' also mounts the same
tools at /api/mcp behind API key authentication.`,
		Example: `  fragment mcp                             # stdio mode
  fragment mcp --transport http --port 3002  # Streamable HTTP mode`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(transport, port)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport mode: stdio or http")
	cmd.Flags().IntVar(&port, "port", 3002, "HTTP port (only used with --transport http)")

	return cmd
}

func runMCP(transport string, port int) error {
	if transport != "stdio" && transport != "http" {
		return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", transport)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// stdout carries the protocol in stdio mode.
	logger := newCLILogger(cfg, false)

	renderer := codeshot.NewRenderer(codeshot.Config{
		PoolSize:          cfg.Codeshot.PoolSize,
		QueueDepth:        cfg.Codeshot.QueueDepth,
		RenderTimeout:     cfg.Codeshot.RenderTimeout,
		PerRequestBrowser: cfg.Codeshot.PerRequestBrowser,
		ChromePath:        cfg.Codeshot.ChromePath,
		NoSandbox:         cfg.Codeshot.NoSandbox,
	}, logger)
	defer renderer.Close()

	mcpSrv := fmcp.NewMCPServer(renderer, versionString(), logger)

	if transport == "stdio" {
		return mcpSrv.ServeStdio()
	}
	addr := fmt.Sprintf(":%d", port)
	logger.Info("starting MCP HTTP server", "addr", addr)
	return mcpSrv.ServeHTTP(addr)
}
