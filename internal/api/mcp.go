package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/jobtrack/internal/application"
	"github.com/kalambet/jobtrack/internal/auth"
	"github.com/kalambet/jobtrack/internal/listview"
	"github.com/kalambet/jobtrack/internal/profile"
	"github.com/kalambet/jobtrack/internal/recordstore"
)

// MCPDeps holds dependencies for the MCP server. Session supplies the
// principal every tool acts as.
type MCPDeps struct {
	Records *recordstore.Service
	Profile *profile.Manager
	Session *auth.Session
	View    listview.View
}

// NewMCPServer creates an MCP server with all jobtrack tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"jobtrack",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("jobtrack: the user's job applications, with search, status updates and analytics."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_applications",
			mcp.WithDescription("List job applications, optionally filtered and sorted."),
			mcp.WithString("search", mcp.Description("Case-insensitive substring of the company name")),
			mcp.WithString("job_type", mcp.Description("full-time, part-time, contract, internship or remote")),
			mcp.WithString("start_date", mcp.Description("Earliest application date, YYYY-MM-DD")),
			mcp.WithString("end_date", mcp.Description("Latest application date, YYYY-MM-DD")),
			mcp.WithString("sort", mcp.Description("companyName, dateApplied, status or jobType")),
			mcp.WithString("order", mcp.Description("asc or desc")),
		),
		mcpListApplications(deps),
	)

	s.AddTool(
		mcp.NewTool("add_application",
			mcp.WithDescription("Record a new job application."),
			mcp.WithString("companyName", mcp.Required()),
			mcp.WithString("jobTitle", mcp.Required()),
			mcp.WithString("jobType", mcp.Description("full-time, part-time, contract, internship or remote"), mcp.Required()),
			mcp.WithString("location", mcp.Required()),
			mcp.WithString("dateApplied", mcp.Description("YYYY-MM-DD, not in the future"), mcp.Required()),
			mcp.WithString("status", mcp.Description("applied, interviewing, rejected or accepted (default applied)")),
			mcp.WithString("jobUrl", mcp.Description("Link to the posting")),
			mcp.WithString("notes"),
		),
		mcpAddApplication(deps),
	)

	s.AddTool(
		mcp.NewTool("update_status",
			mcp.WithDescription("Change the status of an existing application."),
			mcp.WithString("id", mcp.Description("Application id"), mcp.Required()),
			mcp.WithString("status", mcp.Description("applied, interviewing, rejected or accepted"), mcp.Required()),
		),
		mcpUpdateStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("application_analytics",
			mcp.WithDescription("Summary statistics over all applications: status counts, success rate, response time, top companies."),
		),
		mcpAnalytics(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"user://applications",
			"Job Applications",
			mcp.WithResourceDescription("All job applications, newest first, as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceApplications(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"user://profile",
			"User Profile",
			mcp.WithResourceDescription("Current user profile as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceProfile(deps),
	)

	return s
}

var errNoSession = errors.New("not signed in: set mcp.principal in the jobtrack config")

func mcpPrincipal(deps MCPDeps) (string, error) {
	if deps.Session == nil {
		return "", errNoSession
	}
	p, ok := deps.Session.Current()
	if !ok {
		return "", errNoSession
	}
	return p, nil
}

func mcpListApplications(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		owner, err := mcpPrincipal(deps)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		q := url.Values{}
		for _, key := range []string{"search", "job_type", "start_date", "end_date", "sort", "order"} {
			if v := req.GetString(key, ""); v != "" {
				q.Set(key, v)
			}
		}
		f, err := listview.ParseFilter(q)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		s, err := listview.ParseSort(q)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		records, err := deps.Records.List(ctx, owner)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list applications: %v", err)), nil
		}

		b, err := json.Marshal(deps.View.Apply(records, f, s))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAddApplication(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		owner, err := mcpPrincipal(deps)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		c := application.Candidate{
			CompanyName: req.GetString("companyName", ""),
			JobTitle:    req.GetString("jobTitle", ""),
			JobType:     req.GetString("jobType", ""),
			Location:    req.GetString("location", ""),
			DateApplied: req.GetString("dateApplied", ""),
			Status:      req.GetString("status", string(application.Applied)),
			JobURL:      req.GetString("jobUrl", ""),
			Notes:       req.GetString("notes", ""),
		}

		id, err := deps.Records.Create(ctx, owner, c)
		if err != nil {
			return mcpError(describeError(err)), nil
		}
		return mcpText(fmt.Sprintf("Recorded application %s", id)), nil
	}
}

func mcpUpdateStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		owner, err := mcpPrincipal(deps)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		status, err := req.RequireString("status")
		if err != nil {
			return mcpError("status is required"), nil
		}

		a, err := deps.Records.Update(ctx, owner, id, application.Patch{Status: &status})
		if err != nil {
			return mcpError(describeError(err)), nil
		}
		return mcpText(fmt.Sprintf("%s at %s is now %s", a.JobTitle, a.CompanyName, a.Status.Label())), nil
	}
}

func mcpAnalytics(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		owner, err := mcpPrincipal(deps)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		records, err := deps.Records.List(ctx, owner)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load applications: %v", err)), nil
		}
		b, err := json.Marshal(listview.Aggregate(records))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal analytics: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceApplications(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		owner, err := mcpPrincipal(deps)
		if err != nil {
			return nil, err
		}
		records, err := deps.Records.List(ctx, owner)
		if err != nil {
			return nil, fmt.Errorf("failed to list applications: %w", err)
		}

		b, err := json.Marshal(deps.View.Apply(records, listview.FilterState{}, listview.DefaultSort))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal applications: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceProfile(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		owner, err := mcpPrincipal(deps)
		if err != nil {
			return nil, err
		}
		p, err := deps.Profile.GetProfile(owner)
		if err != nil {
			return nil, fmt.Errorf("failed to get profile: %w", err)
		}

		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal profile: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

// describeError renders a domain error for a tool caller. Validation
// failures list every field message.
func describeError(err error) string {
	var ve *recordstore.ValidationError
	if errors.As(err, &ve) {
		msgs := make([]string, len(ve.Fields))
		for i, f := range ve.Fields {
			msgs[i] = f.Message
		}
		return "invalid application: " + strings.Join(msgs, "; ")
	}
	if recordstore.IsNotFound(err) {
		return "application not found"
	}
	return err.Error()
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
