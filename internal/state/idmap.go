// Package state holds the persistent migration state: the old-ID to new-ID
// map, the last run statistics and the deferred enrollment pool.
package state

import (
	"context"
	"sort"
	"strconv"

	"lms-migrate/internal/domain"
	"lms-migrate/internal/errors"
	"lms-migrate/internal/store"
)

// KV keys.
const (
	KeyIDMap       = "lmsmigrate_id_map"
	KeyRunStats    = "lmsmigrate_run_stats"
	KeyEnrollments = "lmsmigrate_deferred_enrollments"
)

// IDMapReader is the read-only view of the ID map given to reset and
// reporting.
type IDMapReader interface {
	Lookup(kind domain.Kind, oldID int64) (int64, bool)
	NewIDs(kind domain.Kind) []int64
	Len(kind domain.Kind) int
}

// IDMap maps old IDs to new IDs, one sub-map per kind. Keys are old IDs as
// decimal strings. Every mutation is persisted immediately so an
// interrupted run resumes from what it already created.
type IDMap struct {
	kv store.KV
	m  map[domain.Kind]map[string]int64
}

var _ IDMapReader = (*IDMap)(nil)

// LoadIDMap reads the map from kv; a missing key yields an empty map.
func LoadIDMap(ctx context.Context, kv store.KV) (*IDMap, error) {
	m := &IDMap{kv: kv, m: map[domain.Kind]map[string]int64{}}
	if _, err := kv.Get(ctx, KeyIDMap, &m.m); err != nil {
		return nil, errors.Wrap(err, "load id map")
	}
	if m.m == nil {
		m.m = map[domain.Kind]map[string]int64{}
	}
	return m, nil
}

func (m *IDMap) Lookup(kind domain.Kind, oldID int64) (int64, bool) {
	id, ok := m.m[kind][key(oldID)]
	return id, ok && id > 0
}

// Put records a mapping and persists the map. The in-memory map only
// changes once the save succeeded.
func (m *IDMap) Put(ctx context.Context, kind domain.Kind, oldID, newID int64) error {
	next := m.with(kind, func(sub map[string]int64) { sub[key(oldID)] = newID })
	return m.commit(ctx, next)
}

// Drop forgets one mapping, used when a mapped object turned out stale.
func (m *IDMap) Drop(ctx context.Context, kind domain.Kind, oldID int64) error {
	if _, ok := m.m[kind][key(oldID)]; !ok {
		return nil
	}
	next := m.with(kind, func(sub map[string]int64) { delete(sub, key(oldID)) })
	return m.commit(ctx, next)
}

// Clear empties the map. Only an explicit operator action should call it.
func (m *IDMap) Clear(ctx context.Context) error {
	return m.commit(ctx, map[domain.Kind]map[string]int64{})
}

// NewIDs returns every mapped new ID of kind, sorted.
func (m *IDMap) NewIDs(kind domain.Kind) []int64 {
	out := make([]int64, 0, len(m.m[kind]))
	for _, id := range m.m[kind] {
		if id > 0 {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *IDMap) Len(kind domain.Kind) int {
	return len(m.m[kind])
}

// with returns a copy of the map with the sub-map of kind changed by edit.
// Other kinds share their sub-maps with the current map.
func (m *IDMap) with(kind domain.Kind, edit func(map[string]int64)) map[domain.Kind]map[string]int64 {
	next := make(map[domain.Kind]map[string]int64, len(m.m)+1)
	for k, sub := range m.m {
		next[k] = sub
	}
	sub := make(map[string]int64, len(m.m[kind])+1)
	for k, v := range m.m[kind] {
		sub[k] = v
	}
	edit(sub)
	next[kind] = sub
	return next
}

func (m *IDMap) commit(ctx context.Context, next map[domain.Kind]map[string]int64) error {
	if err := m.kv.Set(ctx, KeyIDMap, next); err != nil {
		return errors.Wrap(err, "save id map")
	}
	m.m = next
	return nil
}

func key(id int64) string {
	return strconv.FormatInt(id, 10)
}
