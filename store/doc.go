// Package store provides the conversation thread memory and per-thread locking.
//
// A Thread is an append-only message history. A ThreadStore keeps threads
// between requests according to its Policy, and a Locker serializes the
// requests of one thread, in process or across replicas with Redis.
package store

import "github.com/effective-security/xlog"

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent", "store")
