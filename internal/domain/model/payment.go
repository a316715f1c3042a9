package model

import "time"

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusApproved PaymentStatus = "APPROVED"
	PaymentStatusDeclined PaymentStatus = "DECLINED"
)

// APPROVED / DECLINED は確定。以後の上書きは不可。
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusApproved || s == PaymentStatusDeclined
}

// 注文1件につき決済1件。注文作成時にPENDINGで作られ、
// ゲートウェイ確認で一度だけ確定する。
type Payment struct {
	ID      int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID int64 `gorm:"not null;uniqueIndex" json:"order_id"`

	//amountは注文のtotalと常に一致
	Amount   int64         `gorm:"not null" json:"amount"`
	Currency string        `gorm:"type:varchar(10);not null" json:"currency"`
	Status   PaymentStatus `gorm:"type:varchar(20);not null;index" json:"status"`

	//ゲートウェイ側のトランザクションID
	TransactionID string `gorm:"type:varchar(128)" json:"transaction_id,omitempty"`

	//監査・係争用に生ペイロードをそのまま保存
	GatewayPayload string `gorm:"type:text" json:"-"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
