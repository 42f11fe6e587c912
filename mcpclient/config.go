package mcpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/tools"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// Transport is the MCP transport of a server.
type Transport string

const (
	// TransportStreamableHTTP is the default transport.
	TransportStreamableHTTP Transport = "streamable_http"
	// TransportSSE is the legacy HTTP+SSE transport.
	TransportSSE Transport = "sse"
	// TransportStdio starts the server as a subprocess.
	TransportStdio Transport = "stdio"
)

// DefaultTimeout bounds connect, discovery and each tool call
// when the server has no timeout configured.
const DefaultTimeout = 30 * time.Second

// ServerConfig describes a remote tool server.
type ServerConfig struct {
	Name      string
	Transport Transport
	// URL is the endpoint for HTTP transports.
	URL string
	// Headers are added to every HTTP request.
	Headers map[string]string
	// BearerToken is sent as Authorization header when set.
	BearerToken string
	// Command, Args and Env start a stdio server.
	Command string
	Args    []string
	Env     []string
	// Timeout bounds connect, discovery and each tool call.
	Timeout time.Duration
	// ToolPrefix is prepended to the names of the discovered tools.
	ToolPrefix string
	// HTTPClient is used by HTTP transports when set.
	HTTPClient *http.Client
}

// Validate returns ConfigurationError if the server can not be used.
func (c *ServerConfig) Validate() error {
	if c.Name == "" {
		return errors.Wrap(tools.ErrConfiguration, "MCP server name is required")
	}
	switch c.transport() {
	case TransportStreamableHTTP, TransportSSE:
		if c.URL == "" {
			return errors.Wrapf(tools.ErrConfiguration, "MCP server %q: url is required", c.Name)
		}
	case TransportStdio:
		if c.Command == "" {
			return errors.Wrapf(tools.ErrConfiguration, "MCP server %q: command is required", c.Name)
		}
	default:
		return errors.Wrapf(tools.ErrConfiguration, "MCP server %q: unsupported transport %q", c.Name, c.Transport)
	}
	return nil
}

func (c *ServerConfig) transport() Transport {
	if c.Transport == "" {
		return TransportStreamableHTTP
	}
	return c.Transport
}

func (c *ServerConfig) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

func (c *ServerConfig) headers() map[string]string {
	h := make(map[string]string, len(c.Headers)+1)
	for k, v := range c.Headers {
		h[k] = v
	}
	if c.BearerToken != "" {
		h["Authorization"] = "Bearer " + c.BearerToken
	}
	return h
}

// Session is a connection to a remote tool server.
type Session interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// ConnectFunc opens an initialized Session to the server.
type ConnectFunc func(ctx context.Context, cfg *ServerConfig) (Session, error)

// Connect opens an initialized MCP client session to the server.
func Connect(ctx context.Context, cfg *ServerConfig) (Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		c   *client.Client
		err error
	)
	switch cfg.transport() {
	case TransportStreamableHTTP:
		opts := []transport.StreamableHTTPCOption{
			transport.WithHTTPHeaders(cfg.headers()),
			transport.WithHTTPTimeout(cfg.timeout()),
		}
		if cfg.HTTPClient != nil {
			opts = append(opts, transport.WithHTTPBasicClient(cfg.HTTPClient))
		}
		c, err = client.NewStreamableHttpClient(cfg.URL, opts...)
	case TransportSSE:
		opts := []transport.ClientOption{
			transport.WithHeaders(cfg.headers()),
		}
		if cfg.HTTPClient != nil {
			opts = append(opts, transport.WithHTTPClient(cfg.HTTPClient))
		}
		c, err = client.NewSSEMCPClient(cfg.URL, opts...)
	case TransportStdio:
		// the stdio client starts the subprocess on creation
		c, err = client.NewStdioMCPClient(cfg.Command, cfg.Env, cfg.Args...)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create MCP client")
	}

	if cfg.transport() != TransportStdio {
		// the SSE stream lives until Close, not until ctx is done
		started := make(chan error, 1)
		go func() {
			started <- c.Start(context.WithoutCancel(ctx))
		}()
		select {
		case err = <-started:
		case <-ctx.Done():
			err = ctx.Err()
		}
		if err != nil {
			_ = c.Close()
			return nil, errors.Wrapf(err, "failed to start MCP client")
		}
	}

	_, err = c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    ClientName,
				Version: ClientVersion,
			},
		},
	})
	if err != nil {
		_ = c.Close()
		return nil, errors.Wrapf(err, "failed to initialize MCP session")
	}
	return c, nil
}

// Client identification sent on initialize.
var (
	ClientName    = "toolagent"
	ClientVersion = "0.1.0"
)

func (c *ServerConfig) String() string {
	if c.transport() == TransportStdio {
		return fmt.Sprintf("%s (stdio: %s)", c.Name, c.Command)
	}
	return fmt.Sprintf("%s (%s: %s)", c.Name, c.transport(), c.URL)
}
