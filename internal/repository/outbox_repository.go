package repository

import (
	"context"
	"time"

	"shop/internal/domain/model"
)

// 通知outboxの保存・配信管理。
type OutboxRepository interface {
	Enqueue(ctx context.Context, event model.OutboxEvent) error
	ListUnpublished(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkPublished(ctx context.Context, eventID int64, publishedAt time.Time) error
}
