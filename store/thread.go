package store

import (
	"slices"
	"sync"
	"time"

	"github.com/effective-security/toolagent/pkg/llms"
)

// Thread is an ordered, append-only message history with an ID.
type Thread struct {
	id string

	lock      sync.RWMutex
	messages  []llms.Message
	updatedAt time.Time
}

// NewThread returns an empty Thread.
func NewThread(id string, messages ...llms.Message) *Thread {
	return &Thread{
		id:        id,
		messages:  slices.Clone(messages),
		updatedAt: time.Now(),
	}
}

// ID returns the thread ID.
func (t *Thread) ID() string {
	return t.id
}

// Append adds the messages to the end of the thread.
func (t *Thread) Append(msgs ...llms.Message) {
	if len(msgs) == 0 {
		return
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	t.messages = append(t.messages, msgs...)
	t.updatedAt = time.Now()
}

// Snapshot returns a copy of the messages.
func (t *Thread) Snapshot() []llms.Message {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return slices.Clone(t.messages)
}

// Len returns the number of messages.
func (t *Thread) Len() int {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return len(t.messages)
}

// UpdatedAt returns the time of the last append.
func (t *Thread) UpdatedAt() time.Time {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.updatedAt
}

// Fork returns a copy of the thread to work on.
func (t *Thread) Fork() *Thread {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return &Thread{
		id:        t.id,
		messages:  slices.Clone(t.messages),
		updatedAt: t.updatedAt,
	}
}

// Usage returns the sum of the usage reported on the messages.
func (t *Thread) Usage() llms.Usage {
	t.lock.RLock()
	defer t.lock.RUnlock()

	var u llms.Usage
	for _, m := range t.messages {
		if m.Usage != nil {
			u.InputTokens += m.Usage.InputTokens
			u.OutputTokens += m.Usage.OutputTokens
			u.TotalTokens += m.Usage.TotalTokens
		}
	}
	return u
}
