// Package llmfactory creates model backends from a provider configuration,
// and selects the model used by an agent.
package llmfactory
