package mcpclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/mcpclient"
	"github.com/effective-security/toolagent/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type headerRecorder struct {
	lock sync.Mutex
	auth []string
}

func (h *headerRecorder) add(v string) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.auth = append(h.auth, v)
}

func (h *headerRecorder) all() []string {
	h.lock.Lock()
	defer h.lock.Unlock()
	return append([]string(nil), h.auth...)
}

// newTestServer serves the tools over streamable HTTP.
// The server lists tools sorted by name.
func newTestServer(t *testing.T, rec *headerRecorder, toolNames ...string) *httptest.Server {
	s := server.NewMCPServer("test-mcp", "1.0.0")
	for _, name := range toolNames {
		s.AddTool(
			mcp.NewTool(name,
				mcp.WithDescription("Tool "+name),
				mcp.WithString("query", mcp.Required(), mcp.Description("The query")),
			),
			func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				q, err := req.RequireString("query")
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}
				if q == "fail" {
					return mcp.NewToolResultError("query failed"), nil
				}
				return mcp.NewToolResultText(req.Params.Name + ": " + q), nil
			},
		)
	}

	h := server.NewStreamableHTTPServer(s)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rec != nil {
			rec.add(r.Header.Get("Authorization"))
		}
		h.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func unreachableURL(t *testing.T) string {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func TestDiscover_PartialFailure(t *testing.T) {
	ctx := context.Background()
	rec := &headerRecorder{}
	srv := newTestServer(t, rec, "execute_dql", "list_problems")

	client, err := mcpclient.New([]*mcpclient.ServerConfig{
		{
			Name:        "down",
			URL:         unreachableURL(t),
			Timeout:     2 * time.Second,
			BearerToken: "ignored",
		},
		{
			Name:        "dynatrace-mcp",
			Transport:   mcpclient.TransportStreamableHTTP,
			URL:         srv.URL,
			BearerToken: "secret",
			ToolPrefix:  "dt_",
		},
	})
	require.NoError(t, err)

	cat := client.Discover(ctx)
	defer cat.Close()

	require.Len(t, cat.Failures, 1)
	assert.Equal(t, "down", cat.Failures[0].Server)
	require.Error(t, cat.Err())
	assert.True(t, errors.Is(cat.Err(), mcpclient.ErrDiscovery))
	assert.Contains(t, cat.Err().Error(), `discovery failed for server "down"`)

	// listing order is kept
	require.Len(t, cat.Descriptors, 2)
	assert.Equal(t, "dt_execute_dql", cat.Descriptors[0].Name)
	d := cat.Descriptors[1]
	assert.Equal(t, "dt_list_problems", d.Name)
	assert.Equal(t, "Tool list_problems", d.Description)
	assert.Equal(t, tools.OriginRemote, d.Origin)
	assert.Equal(t, "dynatrace-mcp", d.Server)
	assert.Equal(t, "object", d.Parameters.Type)
	_, ok := d.Parameters.Properties.Get("query")
	assert.True(t, ok)
	assert.Equal(t, []string{"query"}, d.Parameters.Required)

	assert.Contains(t, rec.all(), "Bearer secret")

	// the registry works with the reduced catalog
	reg, err := tools.NewRegistry()
	require.NoError(t, err)
	require.NoError(t, reg.SetRemote(cat.Descriptors))

	tool, err := reg.Resolve("dt_list_problems")
	require.NoError(t, err)
	res, err := tool.Call(ctx, map[string]any{"query": "open"})
	require.NoError(t, err)
	assert.Equal(t, "list_problems: open", res)

	_, err = tool.Call(ctx, map[string]any{"query": "fail"})
	require.Error(t, err)
	var rerr *mcpclient.RemoteToolError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "list_problems", rerr.Tool)
	assert.EqualError(t, err, `tool "list_problems" on server "dynatrace-mcp" failed: query failed`)
}

func TestRefresher(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t, nil, "list_problems")

	local := &tools.Descriptor{
		Name:     "get_current_time",
		Origin:   tools.OriginLocal,
		Callable: tools.CallableFunc(func(context.Context, map[string]any) (string, error) { return "noon", nil }),
	}
	reg, err := tools.NewRegistry(local)
	require.NoError(t, err)

	client, err := mcpclient.New([]*mcpclient.ServerConfig{{Name: "one", URL: srv.URL}})
	require.NoError(t, err)

	r := mcpclient.NewRefresher(client, reg, false)
	defer r.Close()

	cat, err := r.Refresh(ctx)
	require.NoError(t, err)
	assert.NoError(t, cat.Err())
	assert.Equal(t, []string{"get_current_time", "list_problems"}, reg.Names())
	fp := r.Fingerprint()
	assert.NotZero(t, fp)

	// same catalog, same fingerprint
	_, err = r.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, fp, r.Fingerprint())

	assert.Len(t, reg.Catalog(), 2)
}

func TestRefresher_RetiredCatalog(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t, nil, "list_problems")

	reg, err := tools.NewRegistry()
	require.NoError(t, err)

	client, err := mcpclient.New([]*mcpclient.ServerConfig{{Name: "one", URL: srv.URL}})
	require.NoError(t, err)

	r := mcpclient.NewRefresher(client, reg, false).WithCloseGrace(time.Hour)
	defer r.Close()

	first, err := r.Refresh(ctx)
	require.NoError(t, err)
	require.Len(t, first.Descriptors, 1)
	old := first.Descriptors[0]

	_, err = r.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Retired())

	// a call resolved before the swap still completes
	res, err := old.Callable.Call(ctx, map[string]any{"query": "open"})
	require.NoError(t, err)
	assert.Equal(t, "list_problems: open", res)

	require.NoError(t, r.Close())
	assert.Equal(t, 0, r.Retired())
}

func TestRefresher_RetiredCatalogClosedAfterGrace(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t, nil, "list_problems")

	reg, err := tools.NewRegistry()
	require.NoError(t, err)

	client, err := mcpclient.New([]*mcpclient.ServerConfig{{Name: "one", URL: srv.URL}})
	require.NoError(t, err)

	r := mcpclient.NewRefresher(client, reg, false).WithCloseGrace(20 * time.Millisecond)
	defer r.Close()

	_, err = r.Refresh(ctx)
	require.NoError(t, err)
	_, err = r.Refresh(ctx)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return r.Retired() == 0 }, time.Second, 5*time.Millisecond)
}

func TestRefresher_Collision(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t, nil, "get_current_time")

	local := &tools.Descriptor{
		Name:     "get_current_time",
		Origin:   tools.OriginLocal,
		Callable: tools.CallableFunc(func(context.Context, map[string]any) (string, error) { return "noon", nil }),
	}
	reg, err := tools.NewRegistry(local)
	require.NoError(t, err)

	client, err := mcpclient.New([]*mcpclient.ServerConfig{{Name: "one", URL: srv.URL}})
	require.NoError(t, err)

	r := mcpclient.NewRefresher(client, reg, false)
	defer r.Close()

	_, err = r.Refresh(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, tools.ErrConfiguration))
	assert.Equal(t, []string{"get_current_time"}, reg.Names())
}

func TestRefresher_RequireAll(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t, nil, "list_problems")

	reg, err := tools.NewRegistry()
	require.NoError(t, err)

	client, err := mcpclient.New([]*mcpclient.ServerConfig{
		{Name: "one", URL: srv.URL},
		{Name: "down", URL: unreachableURL(t), Timeout: time.Second},
	})
	require.NoError(t, err)

	r := mcpclient.NewRefresher(client, reg, true)
	defer r.Close()

	_, err = r.Refresh(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, mcpclient.ErrDiscovery))
	assert.Equal(t, 0, reg.Len())
}

func TestNew_Invalid(t *testing.T) {
	_, err := mcpclient.New([]*mcpclient.ServerConfig{{Name: "a"}})
	assert.True(t, errors.Is(err, tools.ErrConfiguration))

	_, err = mcpclient.New([]*mcpclient.ServerConfig{{URL: "http://localhost"}})
	assert.True(t, errors.Is(err, tools.ErrConfiguration))

	_, err = mcpclient.New([]*mcpclient.ServerConfig{{Name: "a", Transport: "ws", URL: "ws://x"}})
	assert.EqualError(t, err, `MCP server "a": unsupported transport "ws": configuration error`)

	_, err = mcpclient.New([]*mcpclient.ServerConfig{{Name: "a", Transport: mcpclient.TransportStdio}})
	assert.True(t, errors.Is(err, tools.ErrConfiguration))

	_, err = mcpclient.New([]*mcpclient.ServerConfig{
		{Name: "a", URL: "http://localhost"},
		{Name: "a", URL: "http://localhost"},
	})
	assert.True(t, errors.Is(err, tools.ErrConfiguration))
}

func TestToolName(t *testing.T) {
	assert.Equal(t, "dt_list_problems", mcpclient.ToolName("dt_", "list_problems"))
	assert.Equal(t, "files_read_file", mcpclient.ToolName("", "files.read file"))
	assert.Len(t, mcpclient.ToolName("", string(make([]byte, 100))), 64)
}

func TestResultText(t *testing.T) {
	res := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent("line 1"),
			mcp.NewTextContent("line 2"),
		},
	}
	assert.Equal(t, "line 1\nline 2", mcpclient.ResultText(res))

	res = &mcp.CallToolResult{StructuredContent: map[string]any{"count": 2}}
	assert.Equal(t, `{"count":2}`, mcpclient.ResultText(res))
}

type blockingSession struct{}

func (blockingSession) ListTools(context.Context, mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	return &mcp.ListToolsResult{}, nil
}

func (blockingSession) CallTool(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingSession) Close() error { return nil }

func TestRemoteCallable_Timeout(t *testing.T) {
	c := mcpclient.NewRemoteCallable("slow", "execute_dql", blockingSession{}, 20*time.Millisecond)

	_, err := c.Call(context.Background(), map[string]any{"query": "x"})
	require.Error(t, err)
	var terr *tools.TimeoutError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, 20*time.Millisecond, terr.After)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.EqualError(t, err, "tool execute_dql timed out after 20ms")

	// cancellation of the caller is not a timeout
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Call(ctx, nil)
	require.Error(t, err)
	assert.False(t, errors.As(err, &terr))
}
