package repository

import (
	"context"

	"shop/internal/domain/model"
)

type ShipmentRepository interface {
	Create(ctx context.Context, s model.Shipment) (int64, error)
	FindByOrderID(ctx context.Context, orderID int64) (model.Shipment, error)
	FindByGuideNumber(ctx context.Context, guideNumber string) (model.Shipment, error)
	UpdateStatus(ctx context.Context, shipmentID int64, status string) error
}
