package model

import "time"

// 配送情報。追跡番号の発行時に作られる（注文1件につき最大1件）。
type Shipment struct {
	ID      int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID int64 `gorm:"not null;uniqueIndex" json:"order_id"`

	Carrier     string `gorm:"type:varchar(100)" json:"carrier"`
	GuideNumber string `gorm:"type:varchar(64);not null;uniqueIndex" json:"guide_number"`
	Status      string `gorm:"type:varchar(30);not null" json:"status"`

	EstimatedDeliveryDate *time.Time `json:"estimated_delivery_date,omitempty"`
	TrackingURL           string     `gorm:"type:varchar(512)" json:"tracking_url,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
