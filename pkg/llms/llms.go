package llms

import (
	"context"
)

// ProviderType names the backend family serving a model.
type ProviderType string

// Supported backends.
const (
	ProviderAnthropic ProviderType = "ANTHROPIC"
	ProviderAzure     ProviderType = "AZURE"
	ProviderBedrock   ProviderType = "BEDROCK"
	ProviderGoogleAI  ProviderType = "GOOGLEAI"
	ProviderOpenAI    ProviderType = "OPENAI"
)

//go:generate mockgen -source=llms.go -destination=../../mocks/mockllms/llm_mock.gen.go -package mockllms

// Model is a chat model backend able to request tool calls.
type Model interface {
	GetName() string
	GetProviderType() ProviderType
	// GenerateContent sends the whole thread and returns the next assistant turn.
	// The tool catalog is passed with WithTools.
	GenerateContent(ctx context.Context, messages []Message, options ...CallOption) (*ContentResponse, error)
}
