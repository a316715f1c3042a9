package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"shop/internal/domain/model"
	repo "shop/internal/repository"

	"github.com/rs/zerolog"
)

type AdminOrderUsecase struct {
	tx       repo.TransactionManager
	orders   repo.OrderRepository
	auditLog repo.AuditLogRepository
	clock    Clock
	logger   zerolog.Logger
}

func NewAdminOrderUsecase(
	tx repo.TransactionManager,
	orders repo.OrderRepository,
	auditLog repo.AuditLogRepository,
	clock Clock,
	logger zerolog.Logger,
) *AdminOrderUsecase {
	return &AdminOrderUsecase{
		tx:       tx,
		orders:   orders,
		auditLog: auditLog,
		clock:    clock,
		logger:   logger,
	}
}

type AdminOrderListOutput struct {
	Orders []model.Order `json:"orders"`
	Total  int64         `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

func (u *AdminOrderUsecase) List(ctx context.Context, f repo.AdminOrderListFilter) (AdminOrderListOutput, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Status != "" && !model.IsValidOrderStatus(f.Status) {
		return AdminOrderListOutput{}, NewHTTPError(http.StatusBadRequest, CodeInvalidInput, "invalid status filter")
	}

	orders, total, err := u.orders.ListAdmin(ctx, f)
	if err != nil {
		return AdminOrderListOutput{}, NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}

	return AdminOrderListOutput{
		Orders: orders,
		Total:  total,
		Limit:  f.Limit,
		Offset: f.Offset,
	}, nil
}

// AuditLogs は管理者操作の履歴を返す。
func (u *AdminOrderUsecase) AuditLogs(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	logs, err := u.auditLog.List(ctx, f)
	if err != nil {
		return []model.AuditLog{}, NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}
	return logs, nil
}

// UpdateStatus は管理者による注文ステータス変更。
// 遷移表にない変更は拒否。CANCELLEDへ進めるときは在庫を戻す。
func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, actorID int64, orderID int64, newStatus string) (model.Order, error) {
	if orderID <= 0 {
		return model.Order{}, NewHTTPError(http.StatusBadRequest, CodeInvalidInput, "invalid id")
	}
	if !model.IsValidOrderStatus(newStatus) {
		return model.Order{}, NewHTTPError(http.StatusBadRequest, CodeInvalidInput, "unknown status")
	}
	to := model.OrderStatus(newStatus)

	var updated model.Order
	var before model.OrderStatus

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		order, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, CodeNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}
		before = order.Status

		//同一ステータスへの変更は何もしない
		if order.Status == to {
			updated = order
			return nil
		}

		if !order.Status.CanTransitionTo(to) {
			return NewHTTPError(http.StatusConflict, CodeInvalidTransition,
				"cannot transition from "+string(order.Status)+" to "+string(to))
		}

		//キャンセルなら先に在庫を戻す（同一トランザクション内）
		if to == model.OrderStatusCancelled {
			items, err := r.OrderItems().ListByOrderID(ctx, orderID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
			}
			for _, it := range items {
				if err := r.Inventory().IncreaseStock(ctx, it.ProductID, it.Quantity); err != nil {
					return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
				}
			}
		}

		//読み取ったステータスからのCAS。負けたら誰かが先に変えている。
		ok, err := r.Orders().UpdateStatusIf(ctx, orderID, order.Status, to)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}
		if !ok {
			return NewHTTPError(http.StatusConflict, CodeConflict, "order status changed concurrently")
		}

		switch to {
		case model.OrderStatusConfirmed:
			if err := enqueueOrderEvent(ctx, r, model.EventOrderConfirmed, order.ReferenceNumber, map[string]interface{}{
				"order_id":  orderID,
				"reference": order.ReferenceNumber,
				"user_id":   order.UserID,
			}); err != nil {
				return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
			}
		case model.OrderStatusCancelled:
			if err := enqueueOrderEvent(ctx, r, model.EventOrderCancelled, order.ReferenceNumber, map[string]interface{}{
				"order_id":  orderID,
				"reference": order.ReferenceNumber,
				"user_id":   order.UserID,
				"reason":    "admin_cancelled",
			}); err != nil {
				return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
			}
		}

		order.Status = to
		updated = order
		return nil
	})

	if err != nil {
		return model.Order{}, err
	}

	//監査ログは遷移の成否に影響させない
	if before != to {
		beforeJSON, _ := json.Marshal(map[string]string{"status": string(before)})
		afterJSON, _ := json.Marshal(map[string]string{"status": string(to)})
		if err := u.auditLog.Create(ctx, model.AuditLog{
			ActorUserID:  actorID,
			Action:       model.AuditActionUpdateOrderStatus,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   orderID,
			BeforeJSON:   string(beforeJSON),
			AfterJSON:    string(afterJSON),
			CreatedAt:    u.clock.Now(),
		}); err != nil {
			u.logger.Error().Err(err).
				Int64("order_id", orderID).
				Msg("failed to write audit log")
		}
	}

	return updated, nil
}
