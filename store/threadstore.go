package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
)

// Policy defines whether threads are kept between requests.
type Policy string

const (
	// PolicyPerRequest starts every answer from an empty thread.
	PolicyPerRequest Policy = "per_request"
	// PolicyRetained keeps threads in memory for the process lifetime,
	// until reset or evicted as idle.
	PolicyRetained Policy = "retained"
)

// ThreadInfo describes a stored thread.
type ThreadInfo struct {
	ID        string    `json:"id" yaml:"id"`
	Messages  int       `json:"messages" yaml:"messages"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// ThreadStore keeps conversation threads.
type ThreadStore interface {
	// Policy returns the retention policy.
	Policy() Policy
	// Load returns a working copy of the thread, empty if not found.
	Load(ctx context.Context, id string) (*Thread, error)
	// Save stores the working copy.
	// The stored thread is only extended: messages already stored are never replaced.
	Save(ctx context.Context, thread *Thread) error
	// Reset removes the thread.
	Reset(ctx context.Context, id string) error
	// List returns the stored threads, most recently updated first.
	List(ctx context.Context) ([]ThreadInfo, error)
	// Cleanup removes whole threads not updated within idle, and returns the count.
	Cleanup(ctx context.Context, idle time.Duration) (int, error)
}

// NewThreadStore returns ThreadStore for the policy.
func NewThreadStore(policy Policy) (ThreadStore, error) {
	switch policy {
	case PolicyPerRequest:
		return perRequest{}, nil
	case PolicyRetained, "":
		return NewMemoryStore(), nil
	}
	return nil, errors.Errorf("unsupported memory policy: %s", policy)
}

type perRequest struct{}

func (perRequest) Policy() Policy { return PolicyPerRequest }

func (perRequest) Load(_ context.Context, id string) (*Thread, error) {
	return NewThread(id), nil
}

func (perRequest) Save(context.Context, *Thread) error { return nil }

func (perRequest) Reset(context.Context, string) error { return nil }

func (perRequest) List(context.Context) ([]ThreadInfo, error) { return nil, nil }

func (perRequest) Cleanup(context.Context, time.Duration) (int, error) { return 0, nil }

type memoryStore struct {
	lock    sync.RWMutex
	threads map[string]*Thread
}

// NewMemoryStore returns ThreadStore with PolicyRetained.
func NewMemoryStore() ThreadStore {
	return &memoryStore{
		threads: make(map[string]*Thread),
	}
}

func (m *memoryStore) Policy() Policy { return PolicyRetained }

func (m *memoryStore) Load(_ context.Context, id string) (*Thread, error) {
	if id == "" {
		return nil, errors.New("thread ID is required")
	}
	m.lock.RLock()
	t, ok := m.threads[id]
	m.lock.RUnlock()
	if !ok {
		return NewThread(id), nil
	}
	return t.Fork(), nil
}

func (m *memoryStore) Save(ctx context.Context, thread *Thread) error {
	if thread == nil || thread.ID() == "" {
		return errors.New("thread ID is required")
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	stored, ok := m.threads[thread.ID()]
	if !ok {
		m.threads[thread.ID()] = thread.Fork()
		return nil
	}

	n := stored.Len()
	msgs := thread.Snapshot()
	if len(msgs) < n {
		return errors.Errorf("thread %s: working copy has %d messages, stored %d", thread.ID(), len(msgs), n)
	}
	stored.Append(msgs[n:]...)

	logger.ContextKV(ctx, xlog.DEBUG,
		"thread_id", thread.ID(),
		"appended", len(msgs)-n,
		"messages", len(msgs))
	return nil
}

func (m *memoryStore) Reset(_ context.Context, id string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.threads, id)
	return nil
}

func (m *memoryStore) List(_ context.Context) ([]ThreadInfo, error) {
	m.lock.RLock()
	list := make([]ThreadInfo, 0, len(m.threads))
	for id, t := range m.threads {
		list = append(list, ThreadInfo{
			ID:        id,
			Messages:  t.Len(),
			UpdatedAt: t.UpdatedAt(),
		})
	}
	m.lock.RUnlock()

	slices.SortFunc(list, func(a, b ThreadInfo) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return list, nil
}

func (m *memoryStore) Cleanup(ctx context.Context, idle time.Duration) (int, error) {
	if idle <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-idle)

	m.lock.Lock()
	defer m.lock.Unlock()

	count := 0
	for id, t := range m.threads {
		if t.UpdatedAt().Before(cutoff) {
			delete(m.threads, id)
			count++
		}
	}
	if count > 0 {
		logger.ContextKV(ctx, xlog.DEBUG, "status", "evicted", "threads", count)
	}
	return count, nil
}
