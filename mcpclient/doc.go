// Package mcpclient discovers tools on remote MCP servers and exposes them
// as remote tool descriptors.
//
// Discovery connects to every configured server concurrently. A server that
// cannot be reached is reported as a DiscoveryError and does not prevent the
// catalog of the other servers from being used. The Refresher re-runs
// discovery and atomically replaces the remote tools of a tools.Registry.
package mcpclient
