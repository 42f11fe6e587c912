package openai

import (
	"github.com/openai/openai-go/v3/option"
)

const (
	tokenEnvVarName        = "OPENAI_API_KEY"      //nolint:gosec
	modelEnvVarName        = "OPENAI_MODEL"        //nolint:gosec
	baseURLEnvVarName      = "OPENAI_BASE_URL"     //nolint:gosec
	organizationEnvVarName = "OPENAI_ORGANIZATION" //nolint:gosec
)

// ProviderType is the OpenAI compatible API flavor.
type ProviderType string

const (
	ProviderOpenAI     ProviderType = "OPENAI"
	ProviderAzure      ProviderType = "AZURE"
	ProviderAzureAD    ProviderType = "AZURE_AD"
	ProviderPerplexity ProviderType = "PERPLEXITY"
)

const (
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultChatModel  = "gpt-4o-mini"
	DefaultAPIVersion = "2024-10-21"
)

type options struct {
	token        string
	model        string
	baseURL      string
	organization string
	provider     ProviderType
	maxRetries   int
	httpClient   option.HTTPClient

	// Azure only
	apiVersion string
}

// Option configures the client.
type Option func(*options)

// WithToken sets the API key, OPENAI_API_KEY is used otherwise.
func WithToken(token string) Option {
	return func(o *options) { o.token = token }
}

// WithModel sets the model, or the deployment name on Azure.
// OPENAI_MODEL is used otherwise.
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// WithBaseURL sets the endpoint, OPENAI_BASE_URL or DefaultBaseURL otherwise.
func WithBaseURL(baseURL string) Option {
	return func(o *options) { o.baseURL = baseURL }
}

func WithOrganization(org string) Option {
	return func(o *options) { o.organization = org }
}

// WithProvider selects the API flavor, ProviderOpenAI by default.
func WithProvider(p ProviderType) Option {
	return func(o *options) { o.provider = p }
}

// WithAPIVersion sets the Azure api-version, DefaultAPIVersion otherwise.
func WithAPIVersion(v string) Option {
	return func(o *options) { o.apiVersion = v }
}

// WithMaxRetries overrides the SDK retry count.
func WithMaxRetries(n int) Option {
	return func(o *options) { o.maxRetries = n }
}

func WithHTTPClient(client option.HTTPClient) Option {
	return func(o *options) { o.httpClient = client }
}
