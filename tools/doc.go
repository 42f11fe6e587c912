// Package tools defines the tool capability used by the agent loop.
//
// A Descriptor names a tool, describes its parameters with a JSON schema and
// carries a Callable that performs the invocation. Local tools are typed Go
// functions built with NewFunction, remote tools are provided by the mcpclient
// package. Both are held in a Registry that exposes a deterministic catalog
// to the model: locals in registration order, then remotes in discovery order.
package tools
