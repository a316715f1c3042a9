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

func newShippingUsecaseForTest(tx *txManagerMock) *usecase.ShippingUsecase {
	clock := &fixedClock{t: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)}
	gen := &fixedTrackingGen{number: "LSH-1768471200000-AB12CD34"}
	return usecase.NewShippingUsecase(tx, gen, clock, zerolog.Nop(), "Servientrega", 5)
}

func TestIssueTracking_FromConfirmed(t *testing.T) {
	ctx := context.Background()

	tx := new(txManagerMock)
	ordersRepo := new(orderRepoMock)
	shipmentsRepo := new(shipmentRepoMock)
	outboxRepo := new(outboxRepoMock)

	tx.Repos = &txReposMock{orders: ordersRepo, shipments: shipmentsRepo, outbox: outboxRepo}
	tx.On("WithinTx", mock.Anything).Return(nil)

	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	ordersRepo.On("FindByID", mock.Anything, int64(55)).
		Return(model.Order{ID: 55, ReferenceNumber: "LS-1-1", Status: model.OrderStatusConfirmed}, nil)
	ordersRepo.On("MarkShippedIf", mock.Anything, int64(55), "LSH-1768471200000-AB12CD34", now).
		Return(true, nil)
	shipmentsRepo.On("Create", mock.Anything, mock.MatchedBy(func(s model.Shipment) bool {
		return s.OrderID == 55 &&
			s.GuideNumber == "LSH-1768471200000-AB12CD34" &&
			s.Status == usecase.ShipmentStatusInTransit &&
			s.EstimatedDeliveryDate != nil &&
			s.EstimatedDeliveryDate.Equal(now.AddDate(0, 0, 5))
	})).Return(int64(1), nil)
	outboxRepo.On("Enqueue", mock.Anything, mock.MatchedBy(func(ev model.OutboxEvent) bool {
		return ev.EventType == model.EventOrderShipped
	})).Return(nil)

	uc := newShippingUsecaseForTest(tx)

	out, err := uc.IssueTracking(ctx, 55)
	assert.NoError(t, err)
	assert.Equal(t, "LSH-1768471200000-AB12CD34", out.TrackingNumber)
	assert.Equal(t, usecase.ShipmentStatusInTransit, out.Status)

	ordersRepo.AssertExpectations(t)
	shipmentsRepo.AssertExpectations(t)
}

func TestIssueTracking_AlreadyShippedReturnsExistingNumber(t *testing.T) {
	ctx := context.Background()

	tx := new(txManagerMock)
	ordersRepo := new(orderRepoMock)
	shipmentsRepo := new(shipmentRepoMock)

	tx.Repos = &txReposMock{orders: ordersRepo, shipments: shipmentsRepo}
	tx.On("WithinTx", mock.Anything).Return(nil)

	shippedAt := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

	ordersRepo.On("FindByID", mock.Anything, int64(55)).
		Return(model.Order{
			ID:             55,
			Status:         model.OrderStatusShipped,
			TrackingNumber: "LSH-OLD-NUMBER",
			ShippedAt:      &shippedAt,
		}, nil)
	shipmentsRepo.On("FindByOrderID", mock.Anything, int64(55)).
		Return(model.Shipment{OrderID: 55, Carrier: "Servientrega", Status: usecase.ShipmentStatusInTransit}, nil)

	uc := newShippingUsecaseForTest(tx)

	//再実行は新しい番号を振らず既存を返す
	out, err := uc.IssueTracking(ctx, 55)
	assert.NoError(t, err)
	assert.Equal(t, "LSH-OLD-NUMBER", out.TrackingNumber)

	ordersRepo.AssertNotCalled(t, "MarkShippedIf", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	shipmentsRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestIssueTracking_RejectsPendingOrder(t *testing.T) {
	ctx := context.Background()

	tx := new(txManagerMock)
	ordersRepo := new(orderRepoMock)

	tx.Repos = &txReposMock{orders: ordersRepo}
	tx.On("WithinTx", mock.Anything).Return(nil)

	ordersRepo.On("FindByID", mock.Anything, int64(55)).
		Return(model.Order{ID: 55, Status: model.OrderStatusPending}, nil)

	uc := newShippingUsecaseForTest(tx)

	_, err := uc.IssueTracking(ctx, 55)
	assertHTTPCode(t, err, 409, usecase.CodeInvalidTransition)
}

func TestMarkDelivered_OnlyFromShipped(t *testing.T) {
	ctx := context.Background()

	tx := new(txManagerMock)
	ordersRepo := new(orderRepoMock)

	tx.Repos = &txReposMock{orders: ordersRepo}
	tx.On("WithinTx", mock.Anything).Return(nil)

	ordersRepo.On("FindByID", mock.Anything, int64(55)).
		Return(model.Order{ID: 55, Status: model.OrderStatusConfirmed}, nil)
	ordersRepo.On("MarkDeliveredIf", mock.Anything, int64(55), mock.Anything).
		Return(false, nil)

	uc := newShippingUsecaseForTest(tx)

	err := uc.MarkDelivered(ctx, 55)
	assertHTTPCode(t, err, 409, usecase.CodeInvalidTransition)
}

func TestMarkDelivered_UpdatesShipmentAndNotifies(t *testing.T) {
	ctx := context.Background()

	tx := new(txManagerMock)
	ordersRepo := new(orderRepoMock)
	shipmentsRepo := new(shipmentRepoMock)
	outboxRepo := new(outboxRepoMock)

	tx.Repos = &txReposMock{orders: ordersRepo, shipments: shipmentsRepo, outbox: outboxRepo}
	tx.On("WithinTx", mock.Anything).Return(nil)

	ordersRepo.On("FindByID", mock.Anything, int64(55)).
		Return(model.Order{ID: 55, ReferenceNumber: "LS-1-1", Status: model.OrderStatusShipped}, nil)
	ordersRepo.On("MarkDeliveredIf", mock.Anything, int64(55), mock.Anything).
		Return(true, nil)
	shipmentsRepo.On("FindByOrderID", mock.Anything, int64(55)).
		Return(model.Shipment{ID: 1, OrderID: 55, Status: usecase.ShipmentStatusInTransit}, nil)
	shipmentsRepo.On("UpdateStatus", mock.Anything, int64(1), usecase.ShipmentStatusDelivered).Return(nil)
	outboxRepo.On("Enqueue", mock.Anything, mock.MatchedBy(func(ev model.OutboxEvent) bool {
		return ev.EventType == model.EventOrderDelivered
	})).Return(nil)

	uc := newShippingUsecaseForTest(tx)

	assert.NoError(t, uc.MarkDelivered(ctx, 55))
	shipmentsRepo.AssertExpectations(t)
	outboxRepo.AssertExpectations(t)
}

func TestTrackByReference_ReturnsNoPersonalData(t *testing.T) {
	ctx := context.Background()

	tx := new(txManagerMock)
	ordersRepo := new(orderRepoMock)
	shipmentsRepo := new(shipmentRepoMock)
	itemsRepo := new(orderItemRepoMock)

	tx.Repos = &txReposMock{orders: ordersRepo, shipments: shipmentsRepo, orderItems: itemsRepo}
	tx.On("WithinTx", mock.Anything).Return(nil)

	shippedAt := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

	ordersRepo.On("FindByTrackingNumber", mock.Anything, "LSH-1-AB").
		Return(model.Order{
			ID:             55,
			UserID:         42,
			TrackingNumber: "LSH-1-AB",
			Status:         model.OrderStatusShipped,
			ShippedAt:      &shippedAt,
		}, nil)
	shipmentsRepo.On("FindByOrderID", mock.Anything, int64(55)).
		Return(model.Shipment{OrderID: 55, Carrier: "Servientrega", Status: usecase.ShipmentStatusInTransit}, nil)
	itemsRepo.On("ListByOrderID", mock.Anything, int64(55)).
		Return([]model.OrderItem{{ProductNameSnapshot: "Camiseta", Quantity: 2}}, nil)

	uc := newShippingUsecaseForTest(tx)

	out, err := uc.TrackByReference(ctx, "LSH-1-AB")
	assert.NoError(t, err)
	assert.Equal(t, "LSH-1-AB", out.TrackingNumber)
	assert.Len(t, out.Items, 1)
	assert.Equal(t, "Camiseta", out.Items[0].Name)
}

func TestTrackByReference_UnknownNumber(t *testing.T) {
	ctx := context.Background()

	tx := new(txManagerMock)
	ordersRepo := new(orderRepoMock)

	tx.Repos = &txReposMock{orders: ordersRepo}
	tx.On("WithinTx", mock.Anything).Return(nil)

	ordersRepo.On("FindByTrackingNumber", mock.Anything, "LSH-NOPE").
		Return(model.Order{}, repo.ErrNotFound)

	uc := newShippingUsecaseForTest(tx)

	_, err := uc.TrackByReference(ctx, "LSH-NOPE")
	assertHTTPCode(t, err, 404, usecase.CodeNotFound)
}
