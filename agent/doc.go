// Package agent implements the tool-augmented answer loop.
//
// An Agent sends the thread and the tool catalog to the model, dispatches
// the requested tool calls, feeds the results back, and repeats until the
// model returns a final answer or the iteration cap is reached.
// Tool failures are returned to the model as tool results and never abort the loop.
package agent

import "github.com/effective-security/xlog"

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent", "agent")
