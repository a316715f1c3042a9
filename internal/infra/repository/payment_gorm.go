package repository

import (
	"context"
	"errors"

	"shop/internal/domain/model"
	repo "shop/internal/repository"

	"gorm.io/gorm"
)

type PaymentGormRepository struct {
	db *gorm.DB
}

func NewPaymentGormRepository(db *gorm.DB) *PaymentGormRepository {
	return &PaymentGormRepository{db: db}
}

func (r *PaymentGormRepository) Create(ctx context.Context, p model.Payment) (int64, error) {
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		return 0, err
	}
	return p.ID, nil
}

func (r *PaymentGormRepository) FindByOrderID(ctx context.Context, orderID int64) (model.Payment, error) {
	var p model.Payment
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Payment{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Payment{}, err
	}
	return p, nil
}

// PENDINGの行だけ確定させる。確定済みなら RowsAffected=0。
func (r *PaymentGormRepository) MarkResultIf(ctx context.Context, paymentID int64, to model.PaymentStatus, transactionID string, gatewayPayload string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ? AND status = ?", paymentID, model.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":          to,
			"transaction_id":  transactionID,
			"gateway_payload": gatewayPayload,
		})

	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *PaymentGormRepository) ListAdmin(ctx context.Context, f repo.AdminPaymentListFilter) ([]model.Payment, int64, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	q := r.db.WithContext(ctx).Model(&model.Payment{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return []model.Payment{}, 0, err
	}

	var items []model.Payment
	if err := q.Order("id desc").Limit(f.Limit).Offset(f.Offset).Find(&items).Error; err != nil {
		return []model.Payment{}, 0, err
	}

	return items, total, nil
}

func (r *PaymentGormRepository) Stats(ctx context.Context) (repo.PaymentStats, error) {
	var s repo.PaymentStats
	err := r.db.WithContext(ctx).Model(&model.Payment{}).
		Select(`COUNT(*) as total_transactions,
			SUM(CASE WHEN status = 'APPROVED' THEN 1 ELSE 0 END) as approved_count,
			SUM(CASE WHEN status = 'DECLINED' THEN 1 ELSE 0 END) as declined_count,
			SUM(CASE WHEN status = 'PENDING' THEN 1 ELSE 0 END) as pending_count,
			COALESCE(SUM(CASE WHEN status = 'APPROVED' THEN amount ELSE 0 END), 0) as total_revenue`).
		Scan(&s).Error
	if err != nil {
		return repo.PaymentStats{}, err
	}
	return s, nil
}

func (r *PaymentGormRepository) CreateAnomaly(ctx context.Context, a model.PaymentAnomaly) error {
	return r.db.WithContext(ctx).Create(&a).Error
}

func (r *PaymentGormRepository) ListAnomalies(ctx context.Context, limit int, offset int) ([]model.PaymentAnomaly, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var items []model.PaymentAnomaly
	if err := r.db.WithContext(ctx).
		Order("id desc").
		Limit(limit).
		Offset(offset).
		Find(&items).Error; err != nil {
		return []model.PaymentAnomaly{}, err
	}
	return items, nil
}
