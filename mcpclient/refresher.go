package mcpclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/tools"
	"github.com/effective-security/xlog"
)

// Refresher keeps the remote tools of a Registry in sync with the servers.
type Refresher struct {
	client     *Client
	registry   *tools.Registry
	requireAll bool

	lock        sync.Mutex
	current     *Catalog
	fingerprint uint64
	// grace delays closing a replaced catalog so calls already in flight can finish
	grace   time.Duration
	retired map[*Catalog]*time.Timer
}

// NewRefresher returns a Refresher.
// With requireAll, a discovery with any failed server is rejected
// and the Registry keeps the previous remote tools.
// A replaced catalog is closed after the longest server timeout,
// the bound of any call that started before the replacement.
func NewRefresher(client *Client, registry *tools.Registry, requireAll bool) *Refresher {
	return &Refresher{
		client:     client,
		registry:   registry,
		requireAll: requireAll,
		grace:      client.maxTimeout(),
		retired:    make(map[*Catalog]*time.Timer),
	}
}

// WithCloseGrace overrides the delay before a replaced catalog is closed.
// Zero closes it right after the replacement.
func (r *Refresher) WithCloseGrace(d time.Duration) *Refresher {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.grace = d
	return r
}

// retire closes the catalog after the grace period; r.lock must be held.
func (r *Refresher) retire(cat *Catalog) {
	if r.grace <= 0 {
		closeCatalog(cat)
		return
	}
	r.retired[cat] = time.AfterFunc(r.grace, func() {
		r.lock.Lock()
		_, pending := r.retired[cat]
		delete(r.retired, cat)
		r.lock.Unlock()
		if pending {
			closeCatalog(cat)
		}
	})
}

func closeCatalog(cat *Catalog) {
	if err := cat.Close(); err != nil {
		logger.KV(xlog.DEBUG, "reason", "close_sessions", "err", err.Error())
	}
}

// Refresh re-discovers the servers and replaces the remote tools of the Registry.
// The sessions of the previous catalog are closed once the grace period passes.
// The returned catalog reports the servers that failed.
func (r *Refresher) Refresh(ctx context.Context) (*Catalog, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	cat := r.client.Discover(ctx)
	if r.requireAll && len(cat.Failures) > 0 {
		_ = cat.Close()
		return cat, cat.Err()
	}

	if err := r.registry.SetRemote(cat.Descriptors); err != nil {
		_ = cat.Close()
		return cat, err
	}

	fp := cat.Fingerprint()
	logger.ContextKV(ctx, xlog.INFO,
		"status", "tools_refreshed",
		"tools", len(cat.Descriptors),
		"failed_servers", len(cat.Failures),
		"fingerprint", fmt.Sprintf("%016x", fp),
		"changed", fp != r.fingerprint)

	prev := r.current
	r.current = cat
	r.fingerprint = fp
	if prev != nil {
		r.retire(prev)
	}
	return cat, nil
}

// Fingerprint returns the fingerprint of the current catalog.
func (r *Refresher) Fingerprint() uint64 {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.fingerprint
}

// Run refreshes the catalog every interval until ctx is done.
func (r *Refresher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Refresh(ctx); err != nil {
				logger.KV(xlog.ERROR, "reason", "refresh", "err", err.Error())
			}
		}
	}
}

// Close closes the sessions of the current and the retired catalogs.
func (r *Refresher) Close() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	var err error
	for cat, t := range r.retired {
		t.Stop()
		err = errors.CombineErrors(err, cat.Close())
	}
	clear(r.retired)

	if r.current != nil {
		err = errors.CombineErrors(err, r.current.Close())
		r.current = nil
	}
	return err
}

// Retired returns the number of replaced catalogs not closed yet.
func (r *Refresher) Retired() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.retired)
}
