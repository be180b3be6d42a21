// Package sqlstore implements the store capabilities on a gorm-managed
// SQLite database laid out like a CMS: posts, post metadata, terms and an
// options table for persistent state.
package sqlstore

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"lms-migrate/internal/domain"
	"lms-migrate/internal/errors"
	"lms-migrate/internal/logger"
	"lms-migrate/internal/store"
)

type DB struct {
	db  *gorm.DB
	log *logger.Logger
}

var (
	_ store.Content = (*DB)(nil)
	_ store.Catalog = (*DB)(nil)
)

// Open opens (creating if needed) the SQLite database at path and migrates
// the schema.
func Open(path string, logg *logger.Logger) (*DB, error) {
	if logg == nil {
		logg = logger.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %s", path)
	}
	if err := db.AutoMigrate(models()...); err != nil {
		return nil, errors.Wrap(err, "migrate schema")
	}
	return &DB{db: db, log: logg.With("service", "sqlstore", "path", path)}, nil
}

func (s *DB) Gorm() *gorm.DB { return s.db }

func (s *DB) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// KV returns the options-table key-value store of this database.
func (s *DB) KV() *KV { return &KV{db: s.db} }

func (s *DB) Create(ctx context.Context, objType string, f store.Fields) (int64, error) {
	status := f.Status
	if status == "" {
		status = domain.StatusDraft
	}
	p := Post{
		Type:      objType,
		Title:     f.Title,
		Body:      f.Body,
		Status:    string(status),
		Slug:      f.Slug,
		ParentID:  f.ParentID,
		MenuOrder: f.MenuOrder,
		GUID:      f.GUID,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&p).Error; err != nil {
			return err
		}
		for k, v := range f.Meta {
			if err := upsertMeta(tx, p.ID, k, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrapf(err, "create %s %q", objType, f.Title)
	}
	return p.ID, nil
}

func (s *DB) Get(ctx context.Context, id int64) (*store.Object, error) {
	var p Post
	err := s.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get object %d", id)
	}
	o := toObject(p)
	return &o, nil
}

func (s *DB) GetType(ctx context.Context, id int64) (string, bool, error) {
	o, err := s.Get(ctx, id)
	if err != nil || o == nil {
		return "", false, err
	}
	return o.Type, true, nil
}

func (s *DB) Query(ctx context.Context, objType string, statuses []domain.Status, ids ...int64) ([]store.Object, error) {
	q := s.db.WithContext(ctx).Where("post_type = ?", objType)
	if len(statuses) > 0 {
		strs := make([]string, len(statuses))
		for i, st := range statuses {
			strs[i] = string(st)
		}
		q = q.Where("status IN ?", strs)
	}
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	var posts []Post
	if err := q.Order("id").Find(&posts).Error; err != nil {
		return nil, errors.Wrapf(err, "query %s", objType)
	}
	out := make([]store.Object, len(posts))
	for i, p := range posts {
		out[i] = toObject(p)
	}
	return out, nil
}

func (s *DB) Count(ctx context.Context, objType string, statuses []domain.Status) (int, error) {
	q := s.db.WithContext(ctx).Model(&Post{}).Where("post_type = ?", objType)
	if len(statuses) > 0 {
		strs := make([]string, len(statuses))
		for i, st := range statuses {
			strs[i] = string(st)
		}
		q = q.Where("status IN ?", strs)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, errors.Wrapf(err, "count %s", objType)
	}
	return int(n), nil
}

func (s *DB) GetField(ctx context.Context, id int64, name string) (any, error) {
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
	return nil, errors.Newf("unknown field %q", name)
}

func (s *DB) SetParent(ctx context.Context, id, parentID int64) error {
	res := s.db.WithContext(ctx).Model(&Post{}).Where("id = ?", id).
		Updates(map[string]any{"parent_id": parentID, "updated_at": time.Now()})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "set parent of %d", id)
	}
	if res.RowsAffected == 0 {
		return errors.Newf("set parent of %d: not found", id)
	}
	return nil
}

func (s *DB) Trash(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Model(&Post{}).Where("id = ?", id).
		Updates(map[string]any{"status": string(domain.StatusTrash), "updated_at": time.Now()})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "trash object %d", id)
	}
	if res.RowsAffected == 0 {
		return errors.Newf("trash object %d: not found", id)
	}
	return nil
}

func (s *DB) Delete(ctx context.Context, id int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&PostMeta{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", id).Delete(&TermRelationship{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&Post{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.New("not found")
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "delete object %d", id)
	}
	return nil
}

func (s *DB) GetMeta(ctx context.Context, id int64, key string) (any, error) {
	var m PostMeta
	err := s.db.WithContext(ctx).Where("post_id = ? AND meta_key = ?", id, key).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get meta %d/%s", id, key)
	}
	return decodeValue(m)
}

func (s *DB) GetAllMeta(ctx context.Context, id int64) (map[string]any, error) {
	var rows []PostMeta
	if err := s.db.WithContext(ctx).Where("post_id = ?", id).Find(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "get meta %d", id)
	}
	out := make(map[string]any, len(rows))
	for _, m := range rows {
		v, err := decodeValue(m)
		if err != nil {
			return nil, err
		}
		out[m.Key] = v
	}
	return out, nil
}

func (s *DB) SetMeta(ctx context.Context, id int64, key string, value any) error {
	if err := upsertMeta(s.db.WithContext(ctx), id, key, value); err != nil {
		return errors.Wrapf(err, "set meta %d/%s", id, key)
	}
	return nil
}

func (s *DB) DeleteMeta(ctx context.Context, id int64, key string) error {
	err := s.db.WithContext(ctx).Where("post_id = ? AND meta_key = ?", id, key).Delete(&PostMeta{}).Error
	if err != nil {
		return errors.Wrapf(err, "delete meta %d/%s", id, key)
	}
	return nil
}

func (s *DB) Terms(ctx context.Context, id int64, taxonomy string) ([]domain.Term, error) {
	var rows []Term
	err := s.db.WithContext(ctx).
		Joins("JOIN term_relationships tr ON tr.term_id = terms.id").
		Where("tr.post_id = ? AND terms.taxonomy = ?", id, taxonomy).
		Order("terms.id").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrapf(err, "terms of %d", id)
	}
	out := make([]domain.Term, len(rows))
	for i, t := range rows {
		depth, err := s.depth(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = domain.Term{ID: t.ID, Taxonomy: t.Taxonomy, Slug: t.Slug, Name: t.Name, ParentID: t.ParentID, Depth: depth}
	}
	return out, nil
}

func (s *DB) depth(ctx context.Context, t Term) (int, error) {
	d := 0
	seen := map[int64]bool{t.ID: true}
	for t.ParentID != 0 && !seen[t.ParentID] {
		seen[t.ParentID] = true
		var parent Term
		err := s.db.WithContext(ctx).First(&parent, t.ParentID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			break
		}
		if err != nil {
			return 0, errors.Wrapf(err, "term parent %d", t.ParentID)
		}
		d++
		t = parent
	}
	return d, nil
}

func (s *DB) EnsureTerm(ctx context.Context, taxonomy, slug, name string, parentID int64) (int64, error) {
	var t Term
	err := s.db.WithContext(ctx).Where("taxonomy = ? AND slug = ?", taxonomy, slug).First(&t).Error
	if err == nil {
		return t.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, errors.Wrapf(err, "find term %s/%s", taxonomy, slug)
	}
	t = Term{Taxonomy: taxonomy, Slug: slug, Name: name, ParentID: parentID}
	if err := s.db.WithContext(ctx).Create(&t).Error; err != nil {
		return 0, errors.Wrapf(err, "create term %s/%s", taxonomy, slug)
	}
	return t.ID, nil
}

func (s *DB) SetTerms(ctx context.Context, id int64, taxonomy string, termIDs []int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ? AND taxonomy = ?", id, taxonomy).Delete(&TermRelationship{}).Error; err != nil {
			return err
		}
		for _, tid := range termIDs {
			rel := TermRelationship{PostID: id, TermID: tid, Taxonomy: taxonomy}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rel).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "set %s terms of %d", taxonomy, id)
	}
	return nil
}

func (s *DB) GetByID(ctx context.Context, id int64) (*store.Product, error) {
	o, err := s.Get(ctx, id)
	if err != nil || o == nil || o.Type != store.TypeProduct {
		return nil, err
	}
	return &store.Product{ID: o.ID, Title: o.Title, Status: string(o.Status)}, nil
}

func (s *DB) ReverseScan(ctx context.Context, pattern string) ([]store.ScanHit, error) {
	var hits []store.ScanHit
	err := s.db.WithContext(ctx).
		Table("posts").
		Select("posts.id AS id, posts.status AS status").
		Joins("JOIN post_meta pm ON pm.post_id = posts.id").
		Where("posts.post_type = ? AND pm.meta_key = ? AND pm.meta_value LIKE ? ESCAPE '\\'",
			store.TypeProduct, store.MetaProductCourses, "%"+escapeLike(pattern)+"%").
		Order("posts.id").
		Scan(&hits).Error
	if err != nil {
		return nil, errors.Wrapf(err, "reverse scan %q", pattern)
	}
	return hits, nil
}

func (s *DB) GetPriceFields(ctx context.Context, id int64) (store.PriceFields, error) {
	var rows []PostMeta
	keys := []string{store.MetaSKU, store.MetaPrice, store.MetaRegularPrice, store.MetaSalePrice, store.MetaVisibility}
	if err := s.db.WithContext(ctx).Where("post_id = ? AND meta_key IN ?", id, keys).Find(&rows).Error; err != nil {
		return store.PriceFields{}, errors.Wrapf(err, "price fields of %d", id)
	}
	var pf store.PriceFields
	for _, m := range rows {
		v := m.Value
		if m.Encoded {
			v = strings.Trim(v, `"`)
		}
		switch m.Key {
		case store.MetaSKU:
			pf.SKU = v
		case store.MetaPrice:
			pf.Price = v
		case store.MetaRegularPrice:
			pf.RegularPrice = v
		case store.MetaSalePrice:
			pf.SalePrice = v
		case store.MetaVisibility:
			pf.Visibility = v
		}
	}
	return pf, nil
}

func toObject(p Post) store.Object {
	return store.Object{
		ID:        p.ID,
		Type:      p.Type,
		Title:     p.Title,
		Body:      p.Body,
		Status:    domain.Status(p.Status),
		Slug:      p.Slug,
		ParentID:  p.ParentID,
		MenuOrder: p.MenuOrder,
		GUID:      p.GUID,
	}
}

func upsertMeta(tx *gorm.DB, id int64, key string, value any) error {
	m, err := encodeValue(id, key, value)
	if err != nil {
		return err
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "post_id"}, {Name: "meta_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"meta_value", "encoded"}),
	}).Create(&m).Error
}

func encodeValue(id int64, key string, value any) (PostMeta, error) {
	m := PostMeta{PostID: id, Key: key}
	switch v := value.(type) {
	case string:
		m.Value = v
	case []byte:
		m.Value = string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return m, errors.Wrapf(err, "encode meta %s", key)
		}
		m.Value = string(b)
		m.Encoded = true
	}
	return m, nil
}

// decodeValue turns integral JSON numbers back into int64 so callers see the
// same value they stored.
func decodeValue(m PostMeta) (any, error) {
	if !m.Encoded {
		return m.Value, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(m.Value)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, errors.Wrapf(err, "decode meta %s", m.Key)
	}
	return fromNumbers(v), nil
}

func fromNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			if f == math.Trunc(f) && math.Abs(f) < math.MaxInt64 {
				return int64(f)
			}
			return f
		}
		return t.String()
	case []any:
		for i := range t {
			t[i] = fromNumbers(t[i])
		}
	case map[string]any:
		for k := range t {
			t[k] = fromNumbers(t[k])
		}
	}
	return v
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
