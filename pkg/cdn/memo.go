package cdn

import (
	"context"
	"sync"

	"github.com/fulmenhq/cdnimg/pkg/assets"
	"golang.org/x/sync/singleflight"
)

// AssetResolver is anything that can resolve one asset request.
type AssetResolver interface {
	Resolve(ctx context.Context, req Request) (assets.Record, error)
}

// Memo makes resolution idempotent for the lifetime of one build: a given
// (mode, folder, path) is resolved at most once, concurrent callers share the
// in-flight call, and later callers get the stored record. Failures are not
// stored so a later caller may retry.
type Memo struct {
	next  AssetResolver
	group singleflight.Group

	mu   sync.RWMutex
	done map[string]assets.Record
}

// NewMemo wraps next.
func NewMemo(next AssetResolver) *Memo {
	return &Memo{next: next, done: make(map[string]assets.Record)}
}

// Resolve implements AssetResolver.
func (m *Memo) Resolve(ctx context.Context, req Request) (assets.Record, error) {
	key := req.key()

	m.mu.RLock()
	rec, ok := m.done[key]
	m.mu.RUnlock()
	if ok {
		return rec, nil
	}

	v, err, _ := m.group.Do(key, func() (interface{}, error) {
		m.mu.RLock()
		rec, ok := m.done[key]
		m.mu.RUnlock()
		if ok {
			return rec, nil
		}

		rec, err := m.next.Resolve(ctx, req)
		if err != nil {
			return assets.Record{}, err
		}
		m.mu.Lock()
		m.done[key] = rec
		m.mu.Unlock()
		return rec, nil
	})
	if err != nil {
		return assets.Record{}, err
	}
	return v.(assets.Record), nil
}

// Seed records already-known results, e.g. from an asset manifest.
func (m *Memo) Seed(mode DeliveryMode, folder string, records []assets.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range records {
		key := Request{Mode: mode, Folder: folder, PublishPath: rec.PublishPath}.key()
		m.done[key] = rec
	}
}

// Len returns the number of stored results.
func (m *Memo) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.done)
}
