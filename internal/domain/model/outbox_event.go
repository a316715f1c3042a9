package model

import "time"

// 通知イベント種別
const (
	EventOrderCreated          = "order.created"
	EventOrderPaymentConfirmed = "order.payment_confirmed"
	EventOrderConfirmed        = "order.confirmed"
	EventOrderCancelled        = "order.cancelled"
	EventOrderShipped          = "order.shipped"
	EventOrderDelivered        = "order.delivered"
	EventUserRegistered        = "user.registered"
)

// 通知用のoutbox行。状態遷移と同じトランザクションで積み、
// pollerが後から配信する。配信失敗しても遷移は巻き戻らない。
type OutboxEvent struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	EventType   string     `gorm:"type:varchar(50);not null;index" json:"event_type"`
	AggregateID string     `gorm:"type:varchar(64);not null;index" json:"aggregate_id"`
	Payload     string     `gorm:"type:text;not null" json:"payload"`
	PublishedAt *time.Time `gorm:"index" json:"published_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null;autoCreateTime" json:"created_at"`
}
