package repository

import (
	"context"
	"time"

	"shop/internal/domain/model"
)

type AdminOrderListFilter struct {
	Limit  int
	Offset int
	Status string
	UserID *int64
	From   *time.Time
	To     *time.Time
}

type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	FindByReference(ctx context.Context, referenceNumber string) (model.Order, error)
	FindByTrackingNumber(ctx context.Context, trackingNumber string) (model.Order, error)
	ListByUserID(ctx context.Context, userID int64, limit int, offset int) ([]model.Order, int64, error)
	Create(ctx context.Context, order model.Order) (int64, error)

	//ステータスのCAS更新。保存済みステータスがfromのときだけtoへ進める。
	//進めなかったら false（他の遷移が先に入った）。
	UpdateStatusIf(ctx context.Context, orderID int64, from model.OrderStatus, to model.OrderStatus) (bool, error)

	//出荷確定。CONFIRMEDのときだけtracking/shipped_atを書いてSHIPPEDへ。
	MarkShippedIf(ctx context.Context, orderID int64, trackingNumber string, shippedAt time.Time) (bool, error)

	//配達確定。SHIPPEDのときだけdelivered_atを書いてDELIVEREDへ。
	MarkDeliveredIf(ctx context.Context, orderID int64, deliveredAt time.Time) (bool, error)

	//管理者用の注文一覧
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)
}
