package agent

import (
	"sync"

	"github.com/effective-security/toolagent/pkg/llms"
)

// Accountant accumulates token usage of one answer.
type Accountant struct {
	lock    sync.Mutex
	total   llms.Usage
	records int
}

// NewAccountant returns an empty Accountant.
func NewAccountant() *Accountant {
	return &Accountant{}
}

// Record adds the usage. Missing usage and negative counts are counted as zero.
func (a *Accountant) Record(u *llms.Usage) {
	a.lock.Lock()
	defer a.lock.Unlock()

	a.records++
	if u == nil {
		return
	}
	a.total.InputTokens += max(u.InputTokens, 0)
	a.total.OutputTokens += max(u.OutputTokens, 0)
	a.total.TotalTokens = a.total.InputTokens + a.total.OutputTokens
}

// Total returns the accumulated usage.
func (a *Accountant) Total() llms.Usage {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.total
}

// Records returns the number of recorded responses.
func (a *Accountant) Records() int {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.records
}
