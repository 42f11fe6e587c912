// Package tavily provides the web_search local tool backed by the Tavily search API.
package tavily

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	tavilygo "github.com/diverged/tavily-go"
	tavilyModels "github.com/diverged/tavily-go/models"
	"github.com/effective-security/toolagent/tools"
	"github.com/effective-security/x/values"
)

// ToolName is the name of the tool in the catalog.
const ToolName = "web_search"

// APIKeyEnvVarName is the environment variable read when no key is configured.
const APIKeyEnvVarName = "TAVILY_API_KEY"

// DefaultMaxResults bounds the results returned to the model.
const DefaultMaxResults = 5

// SearchRequest is the web_search arguments object.
type SearchRequest struct {
	Query      string `json:"query" yaml:"query" jsonschema:"title=Search Query,description=The query to search web."`
	MaxResults int    `json:"max_results,omitempty" yaml:"max_results,omitempty" jsonschema:"description=Maximum number of results,minimum=1,maximum=20"`
}

// SearchResult is the web_search output.
type SearchResult struct {
	Results []tavilyModels.SearchResult `json:"results" yaml:"results"`
	Answer  string                      `json:"answer,omitempty" yaml:"answer,omitempty"`
}

// Tool searches the web through Tavily.
type Tool struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// New returns the Tool. The key falls back to TAVILY_API_KEY.
func New(apiKey string) (*Tool, error) {
	apiKey = values.StringsCoalesce(apiKey, os.Getenv(APIKeyEnvVarName))
	if apiKey == "" {
		return nil, errors.Wrapf(tools.ErrConfiguration, "%s is not set", APIKeyEnvVarName)
	}
	return &Tool{
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
	}, nil
}

// WithBaseURL sets the API endpoint.
func (t *Tool) WithBaseURL(baseURL string) *Tool {
	t.baseURL = baseURL
	return t
}

// WithHTTPClient sets the HTTP client.
func (t *Tool) WithHTTPClient(client *http.Client) *Tool {
	t.httpClient = client
	return t
}

func (t *Tool) Name() string {
	return ToolName
}

func (t *Tool) Description() string {
	return "Runs a web search and returns a short answer with the top results. Use it for facts newer than your training data."
}

// Run performs the search. The context is not propagated, the client has no context support.
func (t *Tool) Run(_ context.Context, req *SearchRequest) (*SearchResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, errors.New("invalid request: empty query")
	}
	limit := req.MaxResults
	if limit <= 0 {
		limit = DefaultMaxResults
	}

	client := tavilygo.NewClient(t.apiKey)
	if t.baseURL != "" {
		client.BaseURL = t.baseURL
	}
	if t.httpClient != nil {
		client.HTTPClient = t.httpClient
	}

	searchResp, err := tavilygo.Search(client, tavilyModels.SearchRequest{
		Query:         query,
		SearchDepth:   "basic",
		IncludeAnswer: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to perform search")
	}

	results := searchResp.Results
	if len(results) > limit {
		results = results[:limit]
	}
	return &SearchResult{
		Results: results,
		Answer:  searchResp.Answer,
	}, nil
}

// Descriptor returns the local tool descriptor.
func (t *Tool) Descriptor() (*tools.Descriptor, error) {
	return tools.FromTool[SearchRequest, SearchResult](t)
}

// String renders the result as numbered plain text.
func (r *SearchResult) String() string {
	var buf bytes.Buffer
	if r.Answer != "" {
		fmt.Fprintf(&buf, "Answer: %s\n", r.Answer)
	}
	for i, res := range r.Results {
		fmt.Fprintf(&buf, "%d. %s (%s) score=%.2f\n   %s\n", i+1, res.Title, res.URL, res.Score, res.Content)
	}
	return buf.String()
}
