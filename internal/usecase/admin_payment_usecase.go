package usecase

import (
	"context"
	"net/http"

	"shop/internal/domain/model"
	repo "shop/internal/repository"
)

// 管理画面の決済一覧・集計・食い違い確認。
type AdminPaymentUsecase struct {
	payments repo.PaymentRepository
}

func NewAdminPaymentUsecase(payments repo.PaymentRepository) *AdminPaymentUsecase {
	return &AdminPaymentUsecase{payments: payments}
}

type AdminPaymentListOutput struct {
	Payments []model.Payment `json:"payments"`
	Total    int64           `json:"total"`
	Limit    int             `json:"limit"`
	Offset   int             `json:"offset"`
}

func (u *AdminPaymentUsecase) List(ctx context.Context, f repo.AdminPaymentListFilter) (AdminPaymentListOutput, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Status != "" {
		switch model.PaymentStatus(f.Status) {
		case model.PaymentStatusPending, model.PaymentStatusApproved, model.PaymentStatusDeclined:
		default:
			return AdminPaymentListOutput{}, NewHTTPError(http.StatusBadRequest, CodeInvalidInput, "invalid status filter")
		}
	}

	payments, total, err := u.payments.ListAdmin(ctx, f)
	if err != nil {
		return AdminPaymentListOutput{}, NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}

	return AdminPaymentListOutput{
		Payments: payments,
		Total:    total,
		Limit:    f.Limit,
		Offset:   f.Offset,
	}, nil
}

func (u *AdminPaymentUsecase) Stats(ctx context.Context) (repo.PaymentStats, error) {
	stats, err := u.payments.Stats(ctx)
	if err != nil {
		return repo.PaymentStats{}, NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}
	return stats, nil
}

func (u *AdminPaymentUsecase) Anomalies(ctx context.Context, limit int, offset int) ([]model.PaymentAnomaly, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	items, err := u.payments.ListAnomalies(ctx, limit, offset)
	if err != nil {
		return []model.PaymentAnomaly{}, NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}
	return items, nil
}
