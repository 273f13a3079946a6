package chat

import (
	"context"
	"strings"

	"gorm.io/gorm"
)

const historyPageSize = 10

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) SaveMessage(ctx context.Context, msg *ChatMessage) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

// History returns up to one page of author's messages with ids below before
// (any id when before <= 0), oldest first.
func (r *Repository) History(ctx context.Context, author string, before int64) ([]ChatMessage, error) {
	q := r.db.WithContext(ctx).
		Where("LOWER(author) = ?", strings.ToLower(author))
	if before > 0 {
		q = q.Where("id < ?", before)
	}

	var msgs []ChatMessage
	if err := q.Order("id DESC").Limit(historyPageSize).Find(&msgs).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
