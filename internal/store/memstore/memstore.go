// Package memstore is an in-memory implementation of the store capabilities.
// Tests use a Store as source, target and catalog, and a KV for state.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"lms-migrate/internal/domain"
	"lms-migrate/internal/errors"
	"lms-migrate/internal/store"
)

type term struct {
	domain.Term
}

type Store struct {
	mu     sync.Mutex
	nextID int64

	objects map[int64]*store.Object
	meta    map[int64]map[string]any
	terms   map[int64]*term
	// objTerms maps object -> taxonomy -> term ids
	objTerms map[int64]map[string][]int64

	// FailCreate, when set, is consulted before every Create.
	FailCreate func(objType string, f store.Fields) error
	// Creates counts successful Create calls per object type.
	Creates map[string]int
}

var (
	_ store.Content = (*Store)(nil)
	_ store.Catalog = (*Store)(nil)
)

func New() *Store {
	return &Store{
		nextID:   1,
		objects:  map[int64]*store.Object{},
		meta:     map[int64]map[string]any{},
		terms:    map[int64]*term{},
		objTerms: map[int64]map[string][]int64{},
		Creates:  map[string]int{},
	}
}

// Put inserts an object with a fixed ID, for building fixtures.
func (s *Store) Put(obj store.Object, meta map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := obj
	if o.Status == "" {
		o.Status = domain.StatusPublish
	}
	s.objects[o.ID] = &o
	if s.meta[o.ID] == nil {
		s.meta[o.ID] = map[string]any{}
	}
	for k, v := range meta {
		s.meta[o.ID][k] = v
	}
	if o.ID >= s.nextID {
		s.nextID = o.ID + 1
	}
}

// PutTerm inserts a taxonomy term with a fixed ID and attaches it to objects.
func (s *Store) PutTerm(t domain.Term, objectIDs ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terms[t.ID] = &term{Term: t}
	for _, id := range objectIDs {
		if s.objTerms[id] == nil {
			s.objTerms[id] = map[string][]int64{}
		}
		s.objTerms[id][t.Taxonomy] = append(s.objTerms[id][t.Taxonomy], t.ID)
	}
	if t.ID >= s.nextID {
		s.nextID = t.ID + 1
	}
}

func (s *Store) Create(ctx context.Context, objType string, f store.Fields) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCreate != nil {
		if err := s.FailCreate(objType, f); err != nil {
			return 0, err
		}
	}
	id := s.nextID
	s.nextID++
	status := f.Status
	if status == "" {
		status = domain.StatusDraft
	}
	s.objects[id] = &store.Object{
		ID:        id,
		Type:      objType,
		Title:     f.Title,
		Body:      f.Body,
		Status:    status,
		Slug:      f.Slug,
		ParentID:  f.ParentID,
		MenuOrder: f.MenuOrder,
		GUID:      f.GUID,
	}
	s.meta[id] = map[string]any{}
	for k, v := range f.Meta {
		s.meta[id][k] = v
	}
	s.Creates[objType]++
	return id, nil
}

func (s *Store) Get(ctx context.Context, id int64) (*store.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (s *Store) GetType(ctx context.Context, id int64) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[id]
	if !ok {
		return "", false, nil
	}
	return o.Type, true, nil
}

func (s *Store) Query(ctx context.Context, objType string, statuses []domain.Status, ids ...int64) ([]store.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var idSet map[int64]bool
	if len(ids) > 0 {
		idSet = make(map[int64]bool, len(ids))
		for _, id := range ids {
			idSet[id] = true
		}
	}
	var out []store.Object
	for _, o := range s.objects {
		if o.Type != objType {
			continue
		}
		if idSet != nil && !idSet[o.ID] {
			continue
		}
		if len(statuses) > 0 && !hasStatus(statuses, o.Status) {
			continue
		}
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) Count(ctx context.Context, objType string, statuses []domain.Status) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, o := range s.objects {
		if o.Type == objType && (len(statuses) == 0 || hasStatus(statuses, o.Status)) {
			n++
		}
	}
	return n, nil
}

func (s *Store) GetField(ctx context.Context, id int64, name string) (any, error) {
	o, err := s.Get(ctx, id)
	if err != nil || o == nil {
		return nil, err
	}
	switch name {
	case "title":
		return o.Title, nil
	case "body", "content":
		return o.Body, nil
	case "status":
		return string(o.Status), nil
	case "slug":
		return o.Slug, nil
	case "parent_id", "post_parent":
		return o.ParentID, nil
	case "menu_order":
		return o.MenuOrder, nil
	case "guid":
		return o.GUID, nil
	case "type":
		return o.Type, nil
	}
	return nil, errors.Newf("memstore: unknown field %q", name)
}

func (s *Store) SetParent(ctx context.Context, id, parentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[id]
	if !ok {
		return errors.Newf("memstore: object %d not found", id)
	}
	o.ParentID = parentID
	return nil
}

func (s *Store) Trash(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[id]
	if !ok {
		return errors.Newf("memstore: object %d not found", id)
	}
	o.Status = domain.StatusTrash
	return nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[id]; !ok {
		return errors.Newf("memstore: object %d not found", id)
	}
	delete(s.objects, id)
	delete(s.meta, id)
	delete(s.objTerms, id)
	return nil
}

func (s *Store) GetMeta(ctx context.Context, id int64, key string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta[id][key], nil
}

func (s *Store) GetAllMeta(ctx context.Context, id int64) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.meta[id]))
	for k, v := range s.meta[id] {
		out[k] = v
	}
	return out, nil
}

func (s *Store) SetMeta(ctx context.Context, id int64, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[id]; !ok {
		return errors.Newf("memstore: object %d not found", id)
	}
	if s.meta[id] == nil {
		s.meta[id] = map[string]any{}
	}
	s.meta[id][key] = value
	return nil
}

func (s *Store) DeleteMeta(ctx context.Context, id int64, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.meta[id], key)
	return nil
}

func (s *Store) Terms(ctx context.Context, id int64, taxonomy string) ([]domain.Term, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Term
	for _, tid := range s.objTerms[id][taxonomy] {
		t, ok := s.terms[tid]
		if !ok {
			continue
		}
		tt := t.Term
		tt.Depth = s.depth(tid)
		out = append(out, tt)
	}
	return out, nil
}

func (s *Store) depth(id int64) int {
	d := 0
	for seen := map[int64]bool{}; ; d++ {
		t, ok := s.terms[id]
		if !ok || t.ParentID == 0 || seen[id] {
			return d
		}
		seen[id] = true
		id = t.ParentID
	}
}

func (s *Store) EnsureTerm(ctx context.Context, taxonomy, slug, name string, parentID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.terms {
		if t.Taxonomy == taxonomy && t.Slug == slug {
			return t.ID, nil
		}
	}
	id := s.nextID
	s.nextID++
	s.terms[id] = &term{Term: domain.Term{ID: id, Taxonomy: taxonomy, Slug: slug, Name: name, ParentID: parentID}}
	return id, nil
}

func (s *Store) SetTerms(ctx context.Context, id int64, taxonomy string, termIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objTerms[id] == nil {
		s.objTerms[id] = map[string][]int64{}
	}
	s.objTerms[id][taxonomy] = append([]int64(nil), termIDs...)
	return nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (*store.Product, error) {
	o, err := s.Get(ctx, id)
	if err != nil || o == nil || o.Type != store.TypeProduct {
		return nil, err
	}
	return &store.Product{ID: o.ID, Title: o.Title, Status: string(o.Status)}, nil
}

func (s *Store) ReverseScan(ctx context.Context, pattern string) ([]store.ScanHit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.ScanHit
	for id, o := range s.objects {
		if o.Type != store.TypeProduct {
			continue
		}
		v, ok := s.meta[id][store.MetaProductCourses]
		if !ok {
			continue
		}
		if strings.Contains(text(v), pattern) {
			out = append(out, store.ScanHit{ID: id, Status: string(o.Status)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetPriceFields(ctx context.Context, id int64) (store.PriceFields, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.meta[id]
	return store.PriceFields{
		SKU:          text(m[store.MetaSKU]),
		Price:        text(m[store.MetaPrice]),
		RegularPrice: text(m[store.MetaRegularPrice]),
		SalePrice:    text(m[store.MetaSalePrice]),
		Visibility:   text(m[store.MetaVisibility]),
	}, nil
}

func hasStatus(statuses []domain.Status, st domain.Status) bool {
	for _, v := range statuses {
		if v == st {
			return true
		}
	}
	return false
}

// text renders a stored meta value the way a text column would hold it.
func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
