package repository

import (
	"context"

	"shop/internal/domain/model"
)

type InventoryRepository interface {
	// 在庫の現在値を設定（管理者の手動調整）
	SetStock(ctx context.Context, productID int64, newStock int64) error

	// 在庫が足りるときだけ減算。足りなければ false。
	DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error)

	// 在庫戻し（決済不成立・キャンセル時の補償）
	IncreaseStock(ctx context.Context, productID int64, qty int64) error

	// 調整履歴作成
	CreateAdjustment(ctx context.Context, adjustment model.InventoryAdjustment) error
}
