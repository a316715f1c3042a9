package usecase_test

import (
	"context"
	"testing"
	"time"

	"shop/internal/domain/model"
	repo "shop/internal/repository"
	"shop/internal/usecase"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Camiseta Estampada", "camiseta-estampada"},
		{"  Jean Slim 2024  ", "jean-slim-2024"},
		{"Gorra/NY (azul)", "gorra-ny-azul"},
		{"---", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, usecase.Slugify(c.in), "input %q", c.in)
	}
}

func newProductUsecaseForTest(
	products *productRepoMock,
	categories *categoryRepoMock,
	inventory *inventoryRepoMock,
	audit *auditLogRepoMock,
) *usecase.ProductUsecase {
	clock := &fixedClock{t: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)}
	return usecase.NewProductUsecase(products, categories, inventory, audit, clock, zerolog.Nop())
}

func TestGetBySlug_IncrementsViews(t *testing.T) {
	ctx := context.Background()

	products := new(productRepoMock)
	products.On("FindBySlug", mock.Anything, "camiseta-estampada").
		Return(model.Product{ID: 100, Slug: "camiseta-estampada", IsActive: true}, nil)
	products.On("IncrementViews", mock.Anything, int64(100)).Return(nil)

	uc := newProductUsecaseForTest(products, new(categoryRepoMock), new(inventoryRepoMock), new(auditLogRepoMock))

	p, err := uc.GetBySlug(ctx, "camiseta-estampada")
	assert.NoError(t, err)
	assert.Equal(t, int64(100), p.ID)
	products.AssertCalled(t, "IncrementViews", mock.Anything, int64(100))
}

func TestGetBySlug_InactiveLooksAbsent(t *testing.T) {
	products := new(productRepoMock)
	products.On("FindBySlug", mock.Anything, "retirado").
		Return(model.Product{ID: 100, Slug: "retirado", IsActive: false}, nil)

	uc := newProductUsecaseForTest(products, new(categoryRepoMock), new(inventoryRepoMock), new(auditLogRepoMock))

	_, err := uc.GetBySlug(context.Background(), "retirado")
	assertHTTPCode(t, err, 404, usecase.CodeNotFound)
	products.AssertNotCalled(t, "IncrementViews", mock.Anything, mock.Anything)
}

func TestCreateProduct_RejectsUnknownCategory(t *testing.T) {
	products := new(productRepoMock)
	categories := new(categoryRepoMock)
	categories.On("FindByID", mock.Anything, int64(9)).
		Return(model.Category{}, repo.ErrNotFound)

	uc := newProductUsecaseForTest(products, categories, new(inventoryRepoMock), new(auditLogRepoMock))

	_, err := uc.Create(context.Background(), usecase.CreateProductInput{
		CategoryID: 9,
		Name:       "Camiseta",
		Price:      45000,
		Stock:      10,
		IsActive:   true,
	})
	assertHTTPCode(t, err, 400, usecase.CodeInvalidInput)
	products.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSetStock_RecordsAdjustmentAndAudit(t *testing.T) {
	ctx := context.Background()

	products := new(productRepoMock)
	inventory := new(inventoryRepoMock)
	audit := new(auditLogRepoMock)

	products.On("FindByID", mock.Anything, int64(100)).
		Return(model.Product{ID: 100, Name: "Camiseta", Stock: 3}, nil)
	inventory.On("SetStock", mock.Anything, int64(100), int64(20)).Return(nil)
	inventory.On("CreateAdjustment", mock.Anything, mock.MatchedBy(func(a model.InventoryAdjustment) bool {
		return a.ProductID == 100 && a.AdminUserID == 1 && a.Delta == 17 && a.Reason == "restock"
	})).Return(nil)
	audit.On("Create", mock.Anything, mock.MatchedBy(func(l model.AuditLog) bool {
		return l.Action == model.AuditActionUpdateStock && l.ResourceID == 100
	})).Return(nil)

	uc := newProductUsecaseForTest(products, new(categoryRepoMock), inventory, audit)

	p, err := uc.SetStock(ctx, 1, 100, 20, "restock")
	assert.NoError(t, err)
	assert.Equal(t, int64(20), p.Stock)

	inventory.AssertExpectations(t)
	audit.AssertExpectations(t)
}

func TestSetStock_RejectsNegative(t *testing.T) {
	uc := newProductUsecaseForTest(new(productRepoMock), new(categoryRepoMock), new(inventoryRepoMock), new(auditLogRepoMock))

	_, err := uc.SetStock(context.Background(), 1, 100, -1, "typo")
	assertHTTPCode(t, err, 400, usecase.CodeInvalidInput)
}
