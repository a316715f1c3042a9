package model

import "time"

// 確定済みの決済と食い違うWebhook再送などを運用者向けに記録する。
// 黙って上書きせず、必ずここに残す。
type PaymentAnomaly struct {
	ID        int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   int64 `gorm:"not null;index" json:"order_id"`
	PaymentID int64 `gorm:"not null;index" json:"payment_id"`

	//何が食い違ったか（CONFLICTING_RESULT / REFUND_REPORTED など）
	Reason string `gorm:"type:varchar(50);not null" json:"reason"`

	IncomingState         string `gorm:"type:varchar(20)" json:"incoming_state"`
	IncomingTransactionID string `gorm:"type:varchar(128)" json:"incoming_transaction_id"`
	PayloadJSON           string `gorm:"type:text" json:"payload_json"`

	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	CreatedAt  time.Time  `gorm:"not null;autoCreateTime" json:"created_at"`
}

const (
	AnomalyReasonConflictingResult = "CONFLICTING_RESULT"
	AnomalyReasonRefundReported    = "REFUND_REPORTED"
)
