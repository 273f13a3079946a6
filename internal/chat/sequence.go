package chat

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrSequenceAllocationFailed = errors.New("could not allocate a sequence id")

// SequenceAllocator hands out monotonically increasing ids per logical table.
type SequenceAllocator interface {
	Next(ctx context.Context, table string) (int64, error)
}

// GormSequence keeps one counter row per table and bumps it inside a
// transaction. The UPDATE holds the row lock until commit, so concurrent
// allocations for the same table serialize.
type GormSequence struct {
	db *gorm.DB
}

func NewGormSequence(db *gorm.DB) *GormSequence {
	return &GormSequence{db: db}
}

func (s *GormSequence) Next(ctx context.Context, table string) (int64, error) {
	var next int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&TableSequence{TableKey: table, LastID: 0}).Error; err != nil {
			return err
		}
		res := tx.Model(&TableSequence{}).
			Where("table_key = ?", table).
			UpdateColumn("last_id", gorm.Expr("last_id + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("counter row for %s missing", table)
		}
		var seq TableSequence
		if err := tx.Where("table_key = ?", table).Take(&seq).Error; err != nil {
			return err
		}
		next = seq.LastID
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrSequenceAllocationFailed, table, err)
	}
	if next <= 0 {
		return 0, fmt.Errorf("%w: %s returned %d", ErrSequenceAllocationFailed, table, next)
	}
	return next, nil
}
