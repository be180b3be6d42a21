// Package store declares the storage capabilities the migration engines
// consume. The engines never see a concrete storage engine; sqlstore and
// memstore provide implementations.
package store

import (
	"context"

	"lms-migrate/internal/domain"
)

// Object is a content object as the object store sees it.
type Object struct {
	ID        int64
	Type      string
	Title     string
	Body      string
	Status    domain.Status
	Slug      string
	ParentID  int64
	MenuOrder int
	GUID      string
}

// Fields are the attributes of an object to create. Meta is written in the
// same unit of work as the object itself.
type Fields struct {
	Title     string
	Body      string
	Status    domain.Status
	Slug      string
	ParentID  int64
	MenuOrder int
	GUID      string
	Meta      map[string]any
}

// ObjectStore creates, reads and removes content objects.
// Get returns (nil, nil) for unknown IDs; GetType returns ok=false.
type ObjectStore interface {
	Create(ctx context.Context, objType string, f Fields) (int64, error)
	Get(ctx context.Context, id int64) (*Object, error)
	GetType(ctx context.Context, id int64) (objType string, ok bool, err error)
	// Query lists objects of objType whose status is in statuses (all
	// statuses when empty), optionally restricted to ids, ordered by ID.
	Query(ctx context.Context, objType string, statuses []domain.Status, ids ...int64) ([]Object, error)
	// Count returns how many objects of objType have a status in statuses.
	Count(ctx context.Context, objType string, statuses []domain.Status) (int, error)
	GetField(ctx context.Context, id int64, name string) (any, error)
	// SetParent moves an object under parentID (0 detaches it).
	SetParent(ctx context.Context, id, parentID int64) error
	Trash(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
}

// MetaStore is the key-value metadata attached to each object.
// GetMeta returns nil for absent keys.
type MetaStore interface {
	GetMeta(ctx context.Context, id int64, key string) (any, error)
	GetAllMeta(ctx context.Context, id int64) (map[string]any, error)
	SetMeta(ctx context.Context, id int64, key string, value any) error
	DeleteMeta(ctx context.Context, id int64, key string) error
}

// TermStore reads and writes taxonomy terms.
type TermStore interface {
	// Terms returns the terms of taxonomy attached to object id, with Depth filled in.
	Terms(ctx context.Context, id int64, taxonomy string) ([]domain.Term, error)
	// EnsureTerm returns the ID of the term with slug in taxonomy, creating it when missing.
	EnsureTerm(ctx context.Context, taxonomy, slug, name string, parentID int64) (int64, error)
	SetTerms(ctx context.Context, id int64, taxonomy string, termIDs []int64) error
}

// Content is the full content capability set of one LMS database.
type Content interface {
	ObjectStore
	MetaStore
	TermStore
}

// Product is a catalog item as returned by GetByID. Status is raw.
type Product struct {
	ID     int64
	Title  string
	Status string
}

// ScanHit is one result of a reverse scan over catalog back-references.
type ScanHit struct {
	ID     int64
	Status string
}

// PriceFields are the raw commerce fields of a product. Empty strings mean
// the field is not set.
type PriceFields struct {
	SKU          string
	Price        string
	RegularPrice string
	SalePrice    string
	Visibility   string
}

// Catalog is the external product catalog. It is read-only to the engines
// except for the back-reference link written at import time.
type Catalog interface {
	GetByID(ctx context.Context, id int64) (*Product, error)
	// ReverseScan returns products whose back-reference metadata contains
	// pattern as a plain substring.
	ReverseScan(ctx context.Context, pattern string) ([]ScanHit, error)
	GetPriceFields(ctx context.Context, id int64) (PriceFields, error)
}

// KV is the persistent key-value state used for the ID map and run stats.
type KV interface {
	// Get decodes the value stored under key into dst and reports whether it
	// existed; dst is left untouched (the default) otherwise.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}
