// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes shopping list tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/basket/internal/apperr"
	"github.com/starford/basket/internal/session"
)

const kpiGuideURI = "basket://kpi-guide"

// Server wraps the MCP server with list tools.
type Server struct {
	mcp *server.MCPServer
	mgr *session.Manager
}

// New creates a new MCP server with all list tools registered.
func New(mgr *session.Manager, version string) *Server {
	s := &Server{mgr: mgr}

	s.mcp = server.NewMCPServer(
		"Basket",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_drafts",
		mcp.WithDescription("List all shopping lists with item counts and status."),
	), s.listDrafts)

	s.mcp.AddTool(mcp.NewTool("get_draft",
		mcp.WithDescription("Read a shopping list with its items and cached optimization, if any."),
		mcp.WithString("id", mcp.Required(), mcp.Description("List ID")),
	), s.getDraft)

	s.mcp.AddTool(mcp.NewTool("create_list",
		mcp.WithDescription("Create an empty shopping list."),
		mcp.WithString("name", mcp.Required(), mcp.Description("List name")),
		mcp.WithNumber("max_stores", mcp.Description("How many stores the optimizer may split the basket across (1-5, default 2)")),
	), s.createList)

	s.mcp.AddTool(mcp.NewTool("add_item",
		mcp.WithDescription("Add a product to a list. Adding a product already on the list increases its quantity."),
		mcp.WithString("id", mcp.Required(), mcp.Description("List ID")),
		mcp.WithNumber("canonical_id", mcp.Required(), mcp.Description("Catalog product ID")),
		mcp.WithNumber("quantity", mcp.Required(), mcp.Description("Positive quantity")),
		mcp.WithString("product_name", mcp.Description("Display name of the product")),
	), s.addItem)

	s.mcp.AddTool(mcp.NewTool("optimize_list",
		mcp.WithDescription("Ask the optimizer for the cheapest split of the list across stores. "+
			"Read the "+kpiGuideURI+" resource before explaining the result."),
		mcp.WithString("id", mcp.Required(), mcp.Description("List ID")),
	), s.optimizeList)

	s.mcp.AddTool(mcp.NewTool("get_kpis",
		mcp.WithDescription("Get totals, savings and excluded items derived from the list's cached optimization."),
		mcp.WithString("id", mcp.Required(), mcp.Description("List ID")),
	), s.getKPIs)

	s.mcp.AddResource(
		mcp.NewResource(kpiGuideURI, "KPI Guide",
			mcp.WithResourceDescription("How optimization totals, savings and excluded items are derived."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readKPIGuide,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listDrafts(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lists, err := s.mgr.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(lists) == 0 {
		return mcp.NewToolResultText("no lists"), nil
	}
	return jsonResult(lists)
}

func (s *Server) getDraft(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, res := s.open(ctx, req)
	if res != nil {
		return res, nil
	}
	return jsonResult(sess.Snapshot())
}

func (s *Server) createList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := s.mgr.Create(ctx, name, req.GetInt("max_stores", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(sess.Snapshot())
}

func (s *Server) addItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	canonicalID, err := req.RequireFloat("canonical_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	quantity, err := req.RequireFloat("quantity")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if canonicalID != float64(int64(canonicalID)) {
		return mcp.NewToolResultError("canonical_id must be an integer"), nil
	}
	sess, res := s.open(ctx, req)
	if res != nil {
		return res, nil
	}
	d, err := sess.AddItem(int64(canonicalID), req.GetString("product_name", ""), quantity)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(d)
}

func (s *Server) optimizeList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, res := s.open(ctx, req)
	if res != nil {
		return res, nil
	}
	d, err := sess.Optimize(ctx)
	switch {
	case err == nil && d.Optimization == nil:
		return mcp.NewToolResultText("the list changed while optimizing; run optimize_list again"), nil
	case err == nil:
		return jsonResult(d.Optimization)
	case errors.Is(err, apperr.ErrEmptyList):
		return mcp.NewToolResultError("the list has no items to optimize"), nil
	case errors.Is(err, apperr.ErrOptimizationInProgress):
		return mcp.NewToolResultError("an optimization for this list is already running"), nil
	case errors.Is(err, apperr.ErrOptimizerRejected):
		return mcp.NewToolResultError(err.Error()), nil
	default:
		return mcp.NewToolResultError("optimizer unavailable, try again later"), nil
	}
}

func (s *Server) getKPIs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, res := s.open(ctx, req)
	if res != nil {
		return res, nil
	}
	return jsonResult(sess.KPIs())
}

func (s *Server) readKPIGuide(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      kpiGuideURI,
			MIMEType: "text/markdown",
			Text:     KPIGuide,
		},
	}, nil
}

// open resolves the "id" argument. A non-nil result is an error to hand back as is.
func (s *Server) open(ctx context.Context, req mcp.CallToolRequest) (*session.Session, *mcp.CallToolResult) {
	id, err := req.RequireString("id")
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	sess, err := s.mgr.Open(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, mcp.NewToolResultError(fmt.Sprintf("not found: %s", id))
		}
		return nil, mcp.NewToolResultError(err.Error())
	}
	return sess, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcpserver: encode result: %w", err)
	}
	return mcp.NewToolResultText(string(out)), nil
}
