package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sofragment/fragment/internal/codeshot"
)

const defaultsURI = "codeshot://options/defaults"

// registerResources adds MCP resource definitions to the server. Resources
// provide read-only data that LLM clients can load into their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {
	srv.AddResource(
		mcp.NewResource(
			defaultsURI,
			"Codeshot Default Options",
			mcp.WithResourceDescription(
				"The options applied to every field a render request omits. "+
					"Use it as a template for the 'options' argument of codeshot_render.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleDefaultsResource,
	)
}

// handleDefaultsResource returns codeshot.DefaultOptions as JSON.
func (s *MCPServer) handleDefaultsResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	b, err := json.MarshalIndent(codeshot.DefaultOptions(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal default options: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      defaultsURI,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
