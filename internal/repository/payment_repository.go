package repository

import (
	"context"

	"shop/internal/domain/model"
)

type AdminPaymentListFilter struct {
	Limit  int
	Offset int
	Status string
}

// 決済の集計（管理画面用）
type PaymentStats struct {
	TotalTransactions int64 `json:"total_transactions"`
	ApprovedCount     int64 `json:"approved_count"`
	DeclinedCount     int64 `json:"declined_count"`
	PendingCount      int64 `json:"pending_count"`
	TotalRevenue      int64 `json:"total_revenue"`
}

type PaymentRepository interface {
	Create(ctx context.Context, p model.Payment) (int64, error)
	FindByOrderID(ctx context.Context, orderID int64) (model.Payment, error)

	//PENDINGのときだけ確定させるCAS更新。確定できなければ false。
	MarkResultIf(ctx context.Context, paymentID int64, to model.PaymentStatus, transactionID string, gatewayPayload string) (bool, error)

	ListAdmin(ctx context.Context, f AdminPaymentListFilter) ([]model.Payment, int64, error)
	Stats(ctx context.Context) (PaymentStats, error)

	//食い違いの記録。解決は運用者の仕事。
	CreateAnomaly(ctx context.Context, a model.PaymentAnomaly) error
	ListAnomalies(ctx context.Context, limit int, offset int) ([]model.PaymentAnomaly, error)
}
