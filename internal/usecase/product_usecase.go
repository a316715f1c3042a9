package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"shop/internal/domain/model"
	repo "shop/internal/repository"

	"github.com/rs/zerolog"
)

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// 商品名からURLスラッグを作る
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = slugPattern.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

type ProductUsecase struct {
	products   repo.ProductRepository
	categories repo.CategoryRepository
	inventory  repo.InventoryRepository
	auditLog   repo.AuditLogRepository
	clock      Clock
	logger     zerolog.Logger
}

func NewProductUsecase(
	products repo.ProductRepository,
	categories repo.CategoryRepository,
	inventory repo.InventoryRepository,
	auditLog repo.AuditLogRepository,
	clock Clock,
	logger zerolog.Logger,
) *ProductUsecase {
	return &ProductUsecase{
		products:   products,
		categories: categories,
		inventory:  inventory,
		auditLog:   auditLog,
		clock:      clock,
		logger:     logger,
	}
}

type ProductListOutput struct {
	Products []model.Product `json:"products"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	Limit    int             `json:"limit"`
}

func (u *ProductUsecase) List(ctx context.Context, q repo.ProductListQuery) (ProductListOutput, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}

	products, total, err := u.products.ListPublic(ctx, q)
	if err != nil {
		return ProductListOutput{}, NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}

	return ProductListOutput{
		Products: products,
		Total:    total,
		Page:     q.Page,
		Limit:    q.Limit,
	}, nil
}

// GetBySlug は商品詳細。閲覧のたびにviewsを+1する。
func (u *ProductUsecase) GetBySlug(ctx context.Context, slug string) (model.Product, error) {
	p, err := u.products.FindBySlug(ctx, slug)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, NewHTTPError(http.StatusNotFound, CodeNotFound, "product not found")
	}
	if err != nil {
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}
	if !p.IsActive {
		return model.Product{}, NewHTTPError(http.StatusNotFound, CodeNotFound, "product not found")
	}

	//views更新の失敗で詳細表示は落とさない
	if err := u.products.IncrementViews(ctx, p.ID); err != nil {
		u.logger.Warn().Err(err).Int64("product_id", p.ID).Msg("failed to increment views")
	}
	return p, nil
}

func (u *ProductUsecase) GetByID(ctx context.Context, id int64) (model.Product, error) {
	p, err := u.products.FindByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, NewHTTPError(http.StatusNotFound, CodeNotFound, "product not found")
	}
	if err != nil {
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}
	return p, nil
}

type CreateProductInput struct {
	CategoryID  int64  `json:"category_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Stock       int64  `json:"stock"`
	IsActive    bool   `json:"is_active"`
}

func (u *ProductUsecase) Create(ctx context.Context, in CreateProductInput) (model.Product, error) {
	if strings.TrimSpace(in.Name) == "" {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, CodeInvalidInput, "name is required")
	}
	if in.Price < 0 || in.Stock < 0 {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, CodeInvalidInput, "price and stock must be non-negative")
	}

	if _, err := u.categories.FindByID(ctx, in.CategoryID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Product{}, NewHTTPError(http.StatusBadRequest, CodeInvalidInput, "unknown category")
		}
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}

	p, err := u.products.Create(ctx, model.Product{
		CategoryID:  in.CategoryID,
		Name:        in.Name,
		Slug:        Slugify(in.Name),
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		IsActive:    in.IsActive,
	})
	if err != nil {
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}
	return p, nil
}

type UpdateProductInput struct {
	CategoryID  *int64  `json:"category_id"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Price       *int64  `json:"price"`
	IsActive    *bool   `json:"is_active"`
}

func (u *ProductUsecase) Update(ctx context.Context, id int64, in UpdateProductInput) (model.Product, error) {
	p, err := u.products.FindByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, NewHTTPError(http.StatusNotFound, CodeNotFound, "product not found")
	}
	if err != nil {
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}

	if in.CategoryID != nil {
		if _, err := u.categories.FindByID(ctx, *in.CategoryID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return model.Product{}, NewHTTPError(http.StatusBadRequest, CodeInvalidInput, "unknown category")
			}
			return model.Product{}, NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}
		p.CategoryID = *in.CategoryID
	}
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return model.Product{}, NewHTTPError(http.StatusBadRequest, CodeInvalidInput, "name is required")
		}
		p.Name = *in.Name
		p.Slug = Slugify(*in.Name)
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Price != nil {
		if *in.Price < 0 {
			return model.Product{}, NewHTTPError(http.StatusBadRequest, CodeInvalidInput, "price must be non-negative")
		}
		p.Price = *in.Price
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}

	if err := u.products.Update(ctx, p); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Product{}, NewHTTPError(http.StatusNotFound, CodeNotFound, "product not found")
		}
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}
	return p, nil
}

func (u *ProductUsecase) Delete(ctx context.Context, id int64) error {
	err := u.products.SoftDelete(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return NewHTTPError(http.StatusNotFound, CodeNotFound, "product not found")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}
	return nil
}

// SetStock は管理者の在庫手動調整。調整履歴と監査ログを残す。
func (u *ProductUsecase) SetStock(ctx context.Context, actorID int64, productID int64, newStock int64, reason string) (model.Product, error) {
	if newStock < 0 {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, CodeInvalidInput, "stock must be non-negative")
	}

	p, err := u.products.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, NewHTTPError(http.StatusNotFound, CodeNotFound, "product not found")
	}
	if err != nil {
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}

	before := p.Stock
	if err := u.inventory.SetStock(ctx, productID, newStock); err != nil {
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}

	if err := u.inventory.CreateAdjustment(ctx, model.InventoryAdjustment{
		ProductID:   productID,
		AdminUserID: actorID,
		Delta:       newStock - before,
		Reason:      reason,
	}); err != nil {
		u.logger.Error().Err(err).Int64("product_id", productID).Msg("failed to record inventory adjustment")
	}

	beforeJSON, _ := json.Marshal(map[string]int64{"stock": before})
	afterJSON, _ := json.Marshal(map[string]int64{"stock": newStock})
	if err := u.auditLog.Create(ctx, model.AuditLog{
		ActorUserID:  actorID,
		Action:       model.AuditActionUpdateStock,
		ResourceType: model.AuditResourceProduct,
		ResourceID:   productID,
		BeforeJSON:   string(beforeJSON),
		AfterJSON:    string(afterJSON),
		CreatedAt:    u.clock.Now(),
	}); err != nil {
		u.logger.Error().Err(err).Int64("product_id", productID).Msg("failed to write audit log")
	}

	p.Stock = newStock
	return p, nil
}
