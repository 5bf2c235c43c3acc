// Package tools registers the query and synthesis operations as MCP tools.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"githubactivity/models"
	"githubactivity/service"
)

// ServerName is the MCP implementation name.
const ServerName = "github-activity"

// ErrUnknownTool is returned by Registry.Call for an unregistered name.
var ErrUnknownTool = errors.New("unknown tool")

// Service is the subset of *service.Service the tools call.
type Service interface {
	UserEvents(ctx context.Context, username string, limit int) (*models.EventList, error)
	RepositoryEvents(ctx context.Context, owner, repo string, limit int) (*models.EventList, error)
	UserActivity(ctx context.Context, username string, days int) (*models.ActivitySummary, error)
	UserCommits(ctx context.Context, username, since string, limit int) (*models.CommitList, error)
	TechStack(ctx context.Context, username string, days int) (*models.TechStackProfile, error)
	WorkExperience(ctx context.Context, username string, days int, granularity string) (*models.WorkExperienceProfile, error)
}

// Tool pairs an MCP definition with its handler.
type Tool struct {
	def mcp.Tool
	run func(ctx context.Context, req mcp.CallToolRequest) (any, error)
}

func (t *Tool) Definition() mcp.Tool { return t.def }

// Handle runs the tool. Results are JSON text; failures are error results
// carrying a JSON {kind, message} object and never a protocol error.
func (t *Tool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.run(ctx, req)
	if err != nil {
		var terr *service.ToolError
		if !errors.As(err, &terr) {
			terr = &service.ToolError{Kind: service.KindInvalidArgument, Message: err.Error()}
		}
		body, _ := json.Marshal(terr)
		return mcp.NewToolResultError(string(body)), nil
	}
	body, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf(`{"kind":"internal","message":%q}`, err.Error())), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}

// Registry holds the tools by name.
type Registry struct {
	tools map[string]*Tool
}

// NewRegistry builds the six tools over svc.
func NewRegistry(svc Service) *Registry {
	r := &Registry{tools: map[string]*Tool{}}
	for _, t := range []*Tool{
		userEventsTool(svc),
		repositoryEventsTool(svc),
		userActivityTool(svc),
		userCommitsTool(svc),
		techStackTool(svc),
		workExperienceTool(svc),
	} {
		r.tools[t.def.Name] = t
	}
	return r
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definition returns the schema of a registered tool.
func (r *Registry) Definition(name string) (mcp.Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return mcp.Tool{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return t.Definition(), nil
}

// Call invokes a tool by name outside of an MCP session.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return t.Handle(ctx, req)
}

// Register adds every tool to s.
func (r *Registry) Register(s *server.MCPServer) {
	for _, name := range r.Names() {
		t := r.tools[name]
		s.AddTool(t.Definition(), t.Handle)
	}
}

// NewServer creates the MCP server with every tool registered.
func NewServer(svc Service, version string) *server.MCPServer {
	s := server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	NewRegistry(svc).Register(s)
	return s
}

func userEventsTool(svc Service) *Tool {
	return &Tool{
		def: mcp.NewTool("get_user_events",
			mcp.WithDescription("Get the most recent public events of a GitHub user."),
			mcp.WithString("username", mcp.Required(), mcp.Description("GitHub login")),
			mcp.WithNumber("limit", mcp.DefaultNumber(service.DefaultEventLimit), mcp.Description("Maximum number of events")),
		),
		run: func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
			username, err := req.RequireString("username")
			if err != nil {
				return nil, err
			}
			return svc.UserEvents(ctx, username, req.GetInt("limit", service.DefaultEventLimit))
		},
	}
}

func repositoryEventsTool(svc Service) *Tool {
	return &Tool{
		def: mcp.NewTool("get_repository_events",
			mcp.WithDescription("Get the most recent events of a GitHub repository."),
			mcp.WithString("owner", mcp.Required(), mcp.Description("Repository owner")),
			mcp.WithString("repo", mcp.Required(), mcp.Description("Repository name")),
			mcp.WithNumber("limit", mcp.DefaultNumber(service.DefaultEventLimit), mcp.Description("Maximum number of events")),
		),
		run: func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
			owner, err := req.RequireString("owner")
			if err != nil {
				return nil, err
			}
			repo, err := req.RequireString("repo")
			if err != nil {
				return nil, err
			}
			return svc.RepositoryEvents(ctx, owner, repo, req.GetInt("limit", service.DefaultEventLimit))
		},
	}
}

func userActivityTool(svc Service) *Tool {
	return &Tool{
		def: mcp.NewTool("get_user_activity",
			mcp.WithDescription("Summarize a GitHub user's events, commits, issues and pull requests over recent days."),
			mcp.WithString("username", mcp.Required(), mcp.Description("GitHub login")),
			mcp.WithNumber("days", mcp.DefaultNumber(service.DefaultActivityDays), mcp.Description("Number of days to look back")),
		),
		run: func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
			username, err := req.RequireString("username")
			if err != nil {
				return nil, err
			}
			return svc.UserActivity(ctx, username, req.GetInt("days", service.DefaultActivityDays))
		},
	}
}

func userCommitsTool(svc Service) *Tool {
	return &Tool{
		def: mcp.NewTool("get_user_commits",
			mcp.WithDescription("List commits authored by a GitHub user across their repositories, newest first."),
			mcp.WithString("username", mcp.Required(), mcp.Description("GitHub login")),
			mcp.WithString("since", mcp.Description("RFC3339 timestamp or YYYY-MM-DD; defaults to 30 days ago")),
			mcp.WithNumber("limit", mcp.DefaultNumber(service.DefaultCommitLimit), mcp.Description("Maximum number of commits")),
		),
		run: func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
			username, err := req.RequireString("username")
			if err != nil {
				return nil, err
			}
			return svc.UserCommits(ctx, username, req.GetString("since", ""), req.GetInt("limit", service.DefaultCommitLimit))
		},
	}
}

func techStackTool(svc Service) *Tool {
	return &Tool{
		def: mcp.NewTool("analyze_tech_stack",
			mcp.WithDescription("Infer languages, frameworks and change patterns from a GitHub user's recent commits."),
			mcp.WithString("username", mcp.Required(), mcp.Description("GitHub login")),
			mcp.WithNumber("days", mcp.DefaultNumber(service.DefaultTechStackDays), mcp.Description("Number of days to analyze")),
		),
		run: func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
			username, err := req.RequireString("username")
			if err != nil {
				return nil, err
			}
			return svc.TechStack(ctx, username, req.GetInt("days", service.DefaultTechStackDays))
		},
	}
}

func workExperienceTool(svc Service) *Tool {
	return &Tool{
		def: mcp.NewTool("generate_work_experience",
			mcp.WithDescription("Condense a GitHub user's activity into work-experience periods."),
			mcp.WithString("username", mcp.Required(), mcp.Description("GitHub login")),
			mcp.WithNumber("days", mcp.DefaultNumber(service.DefaultExperienceDays), mcp.Description("Number of days to cover")),
			mcp.WithString("granularity", mcp.Enum("auto", "monthly", "quarterly"), mcp.Description("Period size; auto picks quarterly above one year")),
		),
		run: func(ctx context.Context, req mcp.CallToolRequest) (any, error) {
			username, err := req.RequireString("username")
			if err != nil {
				return nil, err
			}
			return svc.WorkExperience(ctx, username,
				req.GetInt("days", service.DefaultExperienceDays),
				req.GetString("granularity", ""))
		},
	}
}
