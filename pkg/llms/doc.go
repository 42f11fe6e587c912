// Package llms provides a provider-neutral model of a chat conversation with
// tool calling, and the Adapter that turns one backend call into either a
// final answer or a set of requested tool calls.
//
// Each subpackage implements Model for a specific provider.
//
// The `llms.go` file contains the Model interface and provider capabilities.
//
// The `options.go` file provides the call options and tool definitions sent to the model.
//
// The `adapter.go` file contains the Model Invocation Adapter used by the agent loop.
package llms
