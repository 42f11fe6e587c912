package mcpclient

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/pkg/metricskey"
	"github.com/effective-security/toolagent/pkg/schema"
	"github.com/effective-security/toolagent/tools"
	"github.com/effective-security/xlog"
	"github.com/mark3labs/mcp-go/mcp"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent", "mcpclient")

// Client discovers the tools of the configured servers.
type Client struct {
	servers []*ServerConfig
	connect ConnectFunc
}

// maxTimeout returns the longest per call timeout of the servers.
func (c *Client) maxTimeout() time.Duration {
	var d time.Duration
	for _, s := range c.servers {
		d = max(d, s.timeout())
	}
	return d
}

// Option configures the Client
type Option func(*Client)

// WithConnectFunc replaces the session factory.
func WithConnectFunc(fn ConnectFunc) Option {
	return func(c *Client) {
		c.connect = fn
	}
}

// New returns a Client for the servers.
// It returns ConfigurationError for invalid or duplicate server entries.
func New(servers []*ServerConfig, opts ...Option) (*Client, error) {
	seen := map[string]bool{}
	for _, s := range servers {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if seen[s.Name] {
			return nil, errors.Wrapf(tools.ErrConfiguration, "duplicate MCP server %q", s.Name)
		}
		seen[s.Name] = true
	}

	c := &Client{
		servers: servers,
		connect: Connect,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Servers returns the configured servers.
func (c *Client) Servers() []*ServerConfig {
	return c.servers
}

// Catalog is the result of one discovery.
// It owns the sessions used by the remote tools and must be closed
// when the tools are no longer used.
type Catalog struct {
	// Descriptors are in server configuration order,
	// then in the order the server listed them.
	Descriptors []*tools.Descriptor
	// Failures has one entry per unreachable server.
	Failures DiscoveryErrors

	sessions  []Session
	closeOnce sync.Once
}

// Err returns the aggregated failures, or nil when every server was discovered.
func (c *Catalog) Err() error {
	if len(c.Failures) == 0 {
		return nil
	}
	return c.Failures
}

// Fingerprint returns a hash of the tool names, descriptions and schemas,
// to detect catalog changes between discoveries.
func (c *Catalog) Fingerprint() uint64 {
	h := xxhash.New()
	for _, d := range c.Descriptors {
		_, _ = fmt.Fprintf(h, "%s\x00%s\x00%s\x00%d\x00", d.Server, d.Name, d.Description, schema.Fingerprint(d.Parameters))
	}
	return h.Sum64()
}

// Close closes the sessions of the catalog.
func (c *Catalog) Close() error {
	var err error
	c.closeOnce.Do(func() {
		for _, s := range c.sessions {
			if cerr := s.Close(); cerr != nil {
				err = errors.CombineErrors(err, cerr)
			}
		}
	})
	return err
}

type serverCatalog struct {
	session     Session
	descriptors []*tools.Descriptor
	err         error
}

// Discover fetches the catalogs of all servers concurrently.
// A server that fails does not abort the discovery of the others.
func (c *Client) Discover(ctx context.Context) *Catalog {
	results := make([]serverCatalog, len(c.servers))

	var wg sync.WaitGroup
	for i, server := range c.servers {
		wg.Add(1)
		go func(idx int, server *ServerConfig) {
			defer wg.Done()
			results[idx] = c.discoverServer(ctx, server)
		}(i, server)
	}
	wg.Wait()

	cat := &Catalog{}
	for i, res := range results {
		server := c.servers[i]
		if res.err != nil {
			metricskey.StatsMCPDiscoveryFailed.IncrCounter(1, server.Name)
			logger.ContextKV(ctx, xlog.WARNING,
				"reason", "discover",
				"server", server.Name,
				"err", res.err.Error())
			cat.Failures = append(cat.Failures, &DiscoveryError{Server: server.Name, Cause: res.err})
			continue
		}
		metricskey.StatsMCPToolsDiscovered.IncrCounter(float64(len(res.descriptors)), server.Name)
		cat.sessions = append(cat.sessions, res.session)
		cat.Descriptors = append(cat.Descriptors, res.descriptors...)
	}
	return cat
}

func (c *Client) discoverServer(ctx context.Context, server *ServerConfig) (res serverCatalog) {
	started := time.Now()
	defer metricskey.PerfMCPDiscovery.MeasureSince(started, server.Name)

	ctx, cancel := context.WithTimeout(ctx, server.timeout())
	defer cancel()

	session, err := c.connect(ctx, server)
	if err != nil {
		res.err = err
		return
	}

	list, err := session.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		_ = session.Close()
		res.err = errors.Wrap(err, "failed to list tools")
		return
	}

	for _, tool := range list.Tools {
		params, err := schema.FromAny(tool.InputSchema)
		if err != nil {
			logger.ContextKV(ctx, xlog.WARNING,
				"reason", "schema",
				"server", server.Name,
				"tool", tool.Name,
				"err", err.Error())
			params = schema.Normalize(nil)
		}
		res.descriptors = append(res.descriptors, &tools.Descriptor{
			Name:        ToolName(server.ToolPrefix, tool.Name),
			Description: tool.Description,
			Parameters:  params,
			Origin:      tools.OriginRemote,
			Server:      server.Name,
			Callable:    NewRemoteCallable(server.Name, tool.Name, session, server.timeout()),
		})
	}
	res.session = session

	logger.ContextKV(ctx, xlog.DEBUG,
		"server", server.Name,
		"tools", len(res.descriptors),
		"elapsed", time.Since(started).String())
	return
}

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// ToolName returns the catalog name for a remote tool,
// with the prefix applied and characters not accepted by model APIs replaced.
func ToolName(prefix, name string) string {
	n := invalidNameChars.ReplaceAllString(prefix+name, "_")
	if len(n) > 64 {
		n = n[:64]
	}
	return n
}
