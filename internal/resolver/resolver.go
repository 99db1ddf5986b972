// Package resolver maps natural keys (base station names and the like) to
// surrogate ids, creating the referenced row on first sight.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/norm"
)

// Store performs an atomic get-or-create of value in table.column and
// returns the row id. The column must carry a UNIQUE constraint.
type Store interface {
	GetOrCreate(ctx context.Context, table, column string, value any) (int64, error)
}

// Resolver memoizes lookups for the lifetime of one session. Concurrent
// lookups of the same key share a single store round trip. It is safe for
// concurrent use.
type Resolver struct {
	store Store
	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]int64
	hits  int
	miss  int
}

// New returns a Resolver backed by store.
func New(store Store) *Resolver {
	return &Resolver{store: store, cache: make(map[string]int64)}
}

// Canonical returns the stored form of a natural key: surrounding quotes
// and whitespace removed, Unicode in NFC.
func Canonical(v any) string {
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	return norm.NFC.String(strings.TrimSpace(s))
}

// Resolve returns the id of value in table.column.
func (r *Resolver) Resolve(ctx context.Context, table, column string, value any) (int64, error) {
	key := Canonical(value)
	if key == "" {
		return 0, fmt.Errorf("resolver: empty key for %s.%s", table, column)
	}
	ck := table + "\x00" + column + "\x00" + key

	r.mu.RLock()
	id, ok := r.cache[ck]
	r.mu.RUnlock()
	if ok {
		r.count(true)
		return id, nil
	}

	v, err, _ := r.group.Do(ck, func() (any, error) {
		id, err := r.store.GetOrCreate(ctx, table, column, key)
		if err != nil {
			return int64(0), err
		}
		r.mu.Lock()
		r.cache[ck] = id
		r.mu.Unlock()
		return id, nil
	})
	if err != nil {
		return 0, err
	}
	r.count(false)
	return v.(int64), nil
}

func (r *Resolver) count(hit bool) {
	r.mu.Lock()
	if hit {
		r.hits++
	} else {
		r.miss++
	}
	r.mu.Unlock()
}

// Stats returns cache hits and misses since the last Reset.
func (r *Resolver) Stats() (hits, misses int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hits, r.miss
}

// Reset drops every memoized id. Call it between sessions.
func (r *Resolver) Reset() {
	r.mu.Lock()
	r.cache = make(map[string]int64)
	r.hits, r.miss = 0, 0
	r.mu.Unlock()
}
