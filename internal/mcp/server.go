// Package mcp registers read-only lead and sprint tools on an MCP server,
// served over stdio for staff tooling and assistants.
package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/bridgeit/bridgeit/internal/db"
	"github.com/bridgeit/bridgeit/internal/engine"
)

// NewServer creates an MCPServer with the read-only tools registered. Mutations
// stay on the authenticated HTTP surface.
func NewServer(eng *engine.Engine) *server.MCPServer {
	srv := server.NewMCPServer(
		"bridgeit",
		"0.1.0",
		server.WithToolCapabilities(true),
	)

	registerListLeads(srv, eng)
	registerGetLead(srv, eng)
	registerSprintStatus(srv, eng)
	registerSprintStandings(srv, eng)

	return srv
}

func registerListLeads(srv *server.MCPServer, eng *engine.Engine) {
	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"status":   map[string]string{"type": "string", "description": "Filter by lead status"},
			"borough":  map[string]string{"type": "string", "description": "Filter by borough"},
			"category": map[string]string{"type": "string", "description": "Filter by business category"},
			"limit":    map[string]string{"type": "number", "description": "Maximum number of leads to return"},
		},
	})
	tool := mcp.NewToolWithRawSchema("list_leads", "List leads ordered by friction intensity, highest first", schema)

	srv.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		filter := db.ListLeadsFilter{
			Status:   stringArg(args, "status"),
			Borough:  stringArg(args, "borough"),
			Category: stringArg(args, "category"),
			Limit:    intArg(args, "limit"),
		}
		leads, err := eng.Store().ListLeads(filter)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"leads": leads, "count": len(leads)})
	})
}

func registerGetLead(srv *server.MCPServer, eng *engine.Engine) {
	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"lead_id": map[string]string{"type": "string", "description": "Lead ID"},
		},
		"required": []string{"lead_id"},
	})
	tool := mcp.NewToolWithRawSchema("get_lead", "Fetch a lead with its friction analysis and build-tier recommendation", schema)

	srv.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		lead, err := eng.Store().GetLead(stringArg(req.GetArguments(), "lead_id"))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{
			"lead":     lead,
			"analysis": engine.AnalyzeLead(lead),
		})
	})
}

func registerSprintStatus(srv *server.MCPServer, eng *engine.Engine) {
	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"lead_id": map[string]string{"type": "string", "description": "Lead ID"},
		},
		"required": []string{"lead_id"},
	})
	tool := mcp.NewToolWithRawSchema("sprint_status", "Latest sprint record for a lead: deadline, paused flag, submission window and winner", schema)

	srv.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sprint, err := eng.Store().GetLatestSprint(stringArg(req.GetArguments(), "lead_id"))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"sprint": sprint})
	})
}

func registerSprintStandings(srv *server.MCPServer, eng *engine.Engine) {
	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"lead_id": map[string]string{"type": "string", "description": "Lead ID"},
		},
		"required": []string{"lead_id"},
	})
	tool := mcp.NewToolWithRawSchema("sprint_standings", "Current sprint standings for a lead: roster, checkpoint progress, pace, finalist and voting state", schema)

	srv.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		standings, err := eng.Standings(ctx, stringArg(req.GetArguments(), "lead_id"))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(standings)
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func intArg(args map[string]any, key string) int {
	// JSON numbers decode as float64.
	f, _ := args[key].(float64)
	return int(f)
}
