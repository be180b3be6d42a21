package sqlstore

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lms-migrate/internal/errors"
	"lms-migrate/internal/store"
)

// KV stores JSON values in the options table.
type KV struct {
	db *gorm.DB
}

var _ store.KV = (*KV)(nil)

func (k *KV) Get(ctx context.Context, key string, dst any) (bool, error) {
	var opt Option
	err := k.db.WithContext(ctx).Where("option_key = ?", key).First(&opt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "get option %s", key)
	}
	if err := json.Unmarshal(opt.Value, dst); err != nil {
		return true, errors.Wrapf(err, "decode option %s", key)
	}
	return true, nil
}

func (k *KV) Set(ctx context.Context, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encode option %s", key)
	}
	opt := Option{Key: key, Value: datatypes.JSON(b), UpdatedAt: time.Now()}
	err = k.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "option_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"option_value", "updated_at"}),
	}).Create(&opt).Error
	if err != nil {
		return errors.Wrapf(err, "set option %s", key)
	}
	return nil
}
