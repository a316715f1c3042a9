package usecase

import (
	"context"
	"errors"
	"net/http"
	"time"

	"shop/internal/domain/model"
	repo "shop/internal/repository"

	"github.com/rs/zerolog"
)

// 追跡番号の採番
type TrackingNumberGenerator interface {
	NewTrackingNumber() string
}

type ShippingUsecase struct {
	tx          repo.TransactionManager
	trackingGen TrackingNumberGenerator
	clock       Clock
	logger      zerolog.Logger

	carrier      string
	deliveryDays int
}

func NewShippingUsecase(
	tx repo.TransactionManager,
	trackingGen TrackingNumberGenerator,
	clock Clock,
	logger zerolog.Logger,
	carrier string,
	deliveryDays int,
) *ShippingUsecase {
	if deliveryDays <= 0 {
		deliveryDays = 5
	}
	return &ShippingUsecase{
		tx:           tx,
		trackingGen:  trackingGen,
		clock:        clock,
		logger:       logger,
		carrier:      carrier,
		deliveryDays: deliveryDays,
	}
}

const (
	ShipmentStatusInTransit = "IN_TRANSIT"
	ShipmentStatusDelivered = "DELIVERED"
)

type TrackingOutput struct {
	TrackingNumber        string               `json:"tracking_number"`
	Carrier               string               `json:"carrier"`
	Status                string               `json:"status"`
	EstimatedDeliveryDate *time.Time           `json:"estimated_delivery_date,omitempty"`
	ShippedAt             *time.Time           `json:"shipped_at,omitempty"`
	DeliveredAt           *time.Time           `json:"delivered_at,omitempty"`
	Items                 []TrackingItemOutput `json:"items"`
}

type TrackingItemOutput struct {
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
}

// IssueTracking は追跡番号を発行して注文をSHIPPEDへ進める。
// 発行済みなら既存の番号を返す（番号は注文につき1つ）。
func (u *ShippingUsecase) IssueTracking(ctx context.Context, orderID int64) (TrackingOutput, error) {
	if orderID <= 0 {
		return TrackingOutput{}, NewHTTPError(http.StatusBadRequest, CodeInvalidInput, "invalid id")
	}

	var out TrackingOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		order, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, CodeNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}

		//発行済み → 既存を返すだけ
		if order.Status == model.OrderStatusShipped || order.Status == model.OrderStatusDelivered {
			s, err := r.Shipments().FindByOrderID(ctx, orderID)
			if err != nil && !errors.Is(err, repo.ErrNotFound) {
				return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
			}
			out = TrackingOutput{
				TrackingNumber:        order.TrackingNumber,
				Carrier:               s.Carrier,
				Status:                s.Status,
				EstimatedDeliveryDate: s.EstimatedDeliveryDate,
				ShippedAt:             order.ShippedAt,
				DeliveredAt:           order.DeliveredAt,
			}
			return nil
		}

		if order.Status != model.OrderStatusConfirmed {
			return NewHTTPError(http.StatusConflict, CodeInvalidTransition,
				"order must be CONFIRMED before shipping")
		}

		tracking := u.trackingGen.NewTrackingNumber()
		now := u.clock.Now()

		//CONFIRMEDのときだけ進める。負けたら同時実行の発行が勝っている。
		ok, err := r.Orders().MarkShippedIf(ctx, orderID, tracking, now)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}
		if !ok {
			return NewHTTPError(http.StatusConflict, CodeConflict, "order status changed concurrently")
		}

		eta := now.AddDate(0, 0, u.deliveryDays)
		if _, err := r.Shipments().Create(ctx, model.Shipment{
			OrderID:               orderID,
			Carrier:               u.carrier,
			GuideNumber:           tracking,
			Status:                ShipmentStatusInTransit,
			EstimatedDeliveryDate: &eta,
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}

		if err := enqueueOrderEvent(ctx, r, model.EventOrderShipped, order.ReferenceNumber, map[string]interface{}{
			"order_id":        orderID,
			"reference":       order.ReferenceNumber,
			"user_id":         order.UserID,
			"tracking_number": tracking,
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}

		u.logger.Info().
			Str("reference", order.ReferenceNumber).
			Str("tracking_number", tracking).
			Msg("tracking issued")

		out = TrackingOutput{
			TrackingNumber:        tracking,
			Carrier:               u.carrier,
			Status:                ShipmentStatusInTransit,
			EstimatedDeliveryDate: &eta,
			ShippedAt:             &now,
		}
		return nil
	})

	if err != nil {
		return TrackingOutput{}, err
	}
	return out, nil
}

// MarkDelivered は配達完了にする。SHIPPED以外からは進めない。
func (u *ShippingUsecase) MarkDelivered(ctx context.Context, orderID int64) error {
	if orderID <= 0 {
		return NewHTTPError(http.StatusBadRequest, CodeInvalidInput, "invalid id")
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		order, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, CodeNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}

		now := u.clock.Now()
		ok, err := r.Orders().MarkDeliveredIf(ctx, orderID, now)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}
		if !ok {
			return NewHTTPError(http.StatusConflict, CodeInvalidTransition,
				"order must be SHIPPED before delivery")
		}

		if s, err := r.Shipments().FindByOrderID(ctx, orderID); err == nil {
			if err := r.Shipments().UpdateStatus(ctx, s.ID, ShipmentStatusDelivered); err != nil {
				return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
			}
		} else if !errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}

		if err := enqueueOrderEvent(ctx, r, model.EventOrderDelivered, order.ReferenceNumber, map[string]interface{}{
			"order_id":  orderID,
			"reference": order.ReferenceNumber,
			"user_id":   order.UserID,
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}

		u.logger.Info().
			Str("reference", order.ReferenceNumber).
			Msg("order delivered")
		return nil
	})
}

// TrackByReference は追跡番号から配送状況を返す（公開・認証なし）。
// 個人情報は一切含めない。
func (u *ShippingUsecase) TrackByReference(ctx context.Context, trackingNumber string) (TrackingOutput, error) {
	if trackingNumber == "" {
		return TrackingOutput{}, NewHTTPError(http.StatusBadRequest, CodeInvalidInput, "tracking number required")
	}

	var out TrackingOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		order, err := r.Orders().FindByTrackingNumber(ctx, trackingNumber)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, CodeNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}

		s, err := r.Shipments().FindByOrderID(ctx, order.ID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}

		items, err := r.OrderItems().ListByOrderID(ctx, order.ID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}

		trackItems := make([]TrackingItemOutput, 0, len(items))
		for _, it := range items {
			trackItems = append(trackItems, TrackingItemOutput{
				Name:     it.ProductNameSnapshot,
				Quantity: it.Quantity,
			})
		}

		out = TrackingOutput{
			TrackingNumber:        order.TrackingNumber,
			Carrier:               s.Carrier,
			Status:                s.Status,
			EstimatedDeliveryDate: s.EstimatedDeliveryDate,
			ShippedAt:             order.ShippedAt,
			DeliveredAt:           order.DeliveredAt,
			Items:                 trackItems,
		}
		return nil
	})

	if err != nil {
		return TrackingOutput{}, err
	}
	return out, nil
}
