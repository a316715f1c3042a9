package repository

import (
	"context"
	"time"

	"shop/internal/domain/model"
	repo "shop/internal/repository"

	"gorm.io/gorm"
)

type OutboxGormRepository struct {
	db *gorm.DB
}

func NewOutboxGormRepository(db *gorm.DB) *OutboxGormRepository {
	return &OutboxGormRepository{db: db}
}

func (r *OutboxGormRepository) Enqueue(ctx context.Context, event model.OutboxEvent) error {
	return r.db.WithContext(ctx).Create(&event).Error
}

// 未配信のイベントを古い順に取る
func (r *OutboxGormRepository) ListUnpublished(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []model.OutboxEvent
	if err := r.db.WithContext(ctx).
		Where("published_at IS NULL").
		Order("id asc").
		Limit(limit).
		Find(&events).Error; err != nil {
		return []model.OutboxEvent{}, err
	}
	return events, nil
}

func (r *OutboxGormRepository) MarkPublished(ctx context.Context, eventID int64, publishedAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.OutboxEvent{}).
		Where("id = ? AND published_at IS NULL", eventID).
		Update("published_at", publishedAt)

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
