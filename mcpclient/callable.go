package mcpclient

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/tools"
	"github.com/mark3labs/mcp-go/mcp"
)

// RemoteCallable invokes a tool on a remote server.
type RemoteCallable struct {
	server  string
	tool    string
	session Session
	timeout time.Duration
}

var _ tools.Callable = (*RemoteCallable)(nil)

// NewRemoteCallable returns a Callable for the tool of the session.
func NewRemoteCallable(server, tool string, session Session, timeout time.Duration) *RemoteCallable {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RemoteCallable{
		server:  server,
		tool:    tool,
		session: session,
		timeout: timeout,
	}
}

// Call implements tools.Callable.
// A result flagged as error by the server is returned as RemoteToolError.
// Expiry of the server timeout is returned as tools.TimeoutError.
func (r *RemoteCallable) Call(parent context.Context, args map[string]any) (string, error) {
	ctx, cancel := context.WithTimeout(parent, r.timeout)
	defer cancel()

	res, err := r.session.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      r.tool,
			Arguments: args,
		},
	})
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded && parent.Err() == nil {
			return "", &tools.TimeoutError{Tool: r.tool, After: r.timeout}
		}
		return "", errors.Wrapf(err, "failed to call %q on server %q", r.tool, r.server)
	}
	if res == nil {
		return "", nil
	}

	text := ResultText(res)
	if res.IsError {
		return "", &RemoteToolError{Server: r.server, Tool: r.tool, Message: text}
	}
	return text, nil
}

// ResultText returns the text of the result content.
// Non-text content is returned as JSON, structured content is used
// when the result has no content.
func ResultText(res *mcp.CallToolResult) string {
	parts := make([]string, 0, len(res.Content))
	for _, c := range res.Content {
		if tc, ok := mcp.AsTextContent(c); ok {
			parts = append(parts, tc.Text)
			continue
		}
		if js, err := json.Marshal(c); err == nil {
			parts = append(parts, string(js))
		}
	}
	if len(parts) == 0 && res.StructuredContent != nil {
		if js, err := json.Marshal(res.StructuredContent); err == nil {
			parts = append(parts, string(js))
		}
	}
	return strings.Join(parts, "\n")
}
