package model

import "time"

type OrderStatus string

const (
	OrderStatusPending          OrderStatus = "PENDING"
	OrderStatusPaymentConfirmed OrderStatus = "PAYMENT_CONFIRMED"
	OrderStatusConfirmed        OrderStatus = "CONFIRMED"
	OrderStatusShipped          OrderStatus = "SHIPPED"
	OrderStatusDelivered        OrderStatus = "DELIVERED"
	OrderStatusCancelled        OrderStatus = "CANCELLED"
)

// 注文の遷移表。遷移の可否はここ以外で判断しない。
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:          {OrderStatusPaymentConfirmed, OrderStatusCancelled},
	OrderStatusPaymentConfirmed: {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:        {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:          {OrderStatusDelivered},
	OrderStatusDelivered:        {},
	OrderStatusCancelled:        {},
}

// 現在のステータスからnextへ進めるか
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// DELIVERED / CANCELLED は終端
func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

func IsValidOrderStatus(s string) bool {
	_, ok := orderTransitions[OrderStatus(s)]
	return ok
}

// 注文。作成後は status / tracking / 日時系以外は変更しない。
// 金額はすべて整数COP。
type Order struct {
	ID              int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          int64       `gorm:"not null;index" json:"user_id"`
	AddressID       int64       `gorm:"not null" json:"address_id"`
	ReferenceNumber string      `gorm:"type:varchar(64);not null;uniqueIndex" json:"reference_number"`
	Status          OrderStatus `gorm:"type:varchar(20);not null;index" json:"status"`

	Subtotal     int64 `gorm:"not null" json:"subtotal"`
	Tax          int64 `gorm:"not null" json:"tax"`
	ShippingCost int64 `gorm:"not null" json:"shipping_cost"`
	Total        int64 `gorm:"not null" json:"total"`

	PaymentMethod string `gorm:"type:varchar(30);not null" json:"payment_method"`
	Notes         string `gorm:"type:text" json:"notes"`

	//出荷時に採番される
	TrackingNumber string     `gorm:"type:varchar(64);index" json:"tracking_number,omitempty"`
	ShippedAt      *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
