package sqlstore

import (
	"time"

	"gorm.io/datatypes"
)

type Post struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Type      string    `gorm:"column:post_type;not null;index" json:"type"`
	Title     string    `gorm:"column:title" json:"title"`
	Body      string    `gorm:"column:body;type:text" json:"body"`
	Status    string    `gorm:"column:status;not null;index;default:'draft'" json:"status"`
	Slug      string    `gorm:"column:slug;index" json:"slug"`
	ParentID  int64     `gorm:"column:parent_id;not null;default:0;index" json:"parent_id"`
	MenuOrder int       `gorm:"column:menu_order;not null;default:0" json:"menu_order"`
	GUID      string    `gorm:"column:guid" json:"guid"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Post) TableName() string {
	return "posts"
}

// PostMeta holds one metadata value. Strings are stored verbatim; any other
// value is JSON-encoded and Encoded is set.
type PostMeta struct {
	ID      int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	PostID  int64  `gorm:"column:post_id;not null;uniqueIndex:idx_post_meta_key" json:"post_id"`
	Key     string `gorm:"column:meta_key;not null;uniqueIndex:idx_post_meta_key;index" json:"meta_key"`
	Value   string `gorm:"column:meta_value;type:text" json:"meta_value"`
	Encoded bool   `gorm:"column:encoded;not null;default:false" json:"encoded"`
}

func (PostMeta) TableName() string {
	return "post_meta"
}

type Term struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Taxonomy string `gorm:"column:taxonomy;not null;uniqueIndex:idx_term_slug" json:"taxonomy"`
	Slug     string `gorm:"column:slug;not null;uniqueIndex:idx_term_slug" json:"slug"`
	Name     string `gorm:"column:name" json:"name"`
	ParentID int64  `gorm:"column:parent_id;not null;default:0" json:"parent_id"`
}

func (Term) TableName() string {
	return "terms"
}

type TermRelationship struct {
	PostID   int64  `gorm:"column:post_id;primaryKey" json:"post_id"`
	TermID   int64  `gorm:"column:term_id;primaryKey" json:"term_id"`
	Taxonomy string `gorm:"column:taxonomy;not null;index" json:"taxonomy"`
}

func (TermRelationship) TableName() string {
	return "term_relationships"
}

// Option is a persisted key-value entry: ID maps, run stats, deferred pools.
type Option struct {
	Key       string         `gorm:"column:option_key;primaryKey" json:"key"`
	Value     datatypes.JSON `gorm:"column:option_value" json:"value"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

func (Option) TableName() string {
	return "options"
}

func models() []any {
	return []any{&Post{}, &PostMeta{}, &Term{}, &TermRelationship{}, &Option{}}
}
