package main

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commitsTool() mcp.Tool {
	return mcp.NewTool("get_user_commits",
		mcp.WithString("username", mcp.Required()),
		mcp.WithString("since"),
		mcp.WithNumber("limit"),
	)
}

func TestParseToolArgs(t *testing.T) {
	args, err := parseToolArgs(commitsTool(), []string{"username=octocat", "limit=30", "since=2024-01-01"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"username": "octocat",
		"limit":    30,
		"since":    "2024-01-01",
	}, args)

	_, err = parseToolArgs(commitsTool(), []string{"octocat"})
	assert.Error(t, err)

	_, err = parseToolArgs(commitsTool(), []string{"=x"})
	assert.Error(t, err)
}

func TestParseToolArgsKeepsNumericStrings(t *testing.T) {
	args, err := parseToolArgs(commitsTool(), []string{"username=1234", "limit=2.5"})
	require.NoError(t, err)
	assert.Equal(t, "1234", args["username"])
	assert.Equal(t, 2.5, args["limit"])

	_, err = parseToolArgs(commitsTool(), []string{"limit=many"})
	assert.Error(t, err)
}
