package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"shop/internal/domain/model"
	repo "shop/internal/repository"
)

// 現在の時間
type Clock interface {
	Now() time.Time
}

// 注文参照番号の採番（衝突しないこと）
type ReferenceGenerator interface {
	NewOrderReference() string
}

// 利用できる決済方法
var validPaymentMethods = map[string]struct{}{
	"PAYU":             {},
	"CASH_ON_DELIVERY": {},
}

type OrderUsecase struct {
	tx        repo.TransactionManager
	addresses repo.AddressRepository
	refGen    ReferenceGenerator
	clock     Clock

	//税率（%）・送料・通貨はデプロイ設定から渡す
	taxRatePercent int64
	shippingCost   int64
	currency       string
}

func NewOrderUsecase(
	tx repo.TransactionManager,
	addresses repo.AddressRepository,
	refGen ReferenceGenerator,
	clock Clock,
	taxRatePercent int64,
	shippingCost int64,
	currency string,
) *OrderUsecase {
	return &OrderUsecase{
		tx:             tx,
		addresses:      addresses,
		refGen:         refGen,
		clock:          clock,
		taxRatePercent: taxRatePercent,
		shippingCost:   shippingCost,
		currency:       currency,
	}
}

type PlaceOrderInput struct {
	AddressID     int64
	PaymentMethod string
	Notes         string
}

type OrderItemOutput struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int64  `json:"quantity"`
	Subtotal  int64  `json:"subtotal"`
}

type OrderOutput struct {
	ID              int64             `json:"id"`
	UserID          int64             `json:"user_id"`
	ReferenceNumber string            `json:"reference_number"`
	Status          string            `json:"status"`
	Subtotal        int64             `json:"subtotal"`
	Tax             int64             `json:"tax"`
	ShippingCost    int64             `json:"shipping_cost"`
	Total           int64             `json:"total"`
	PaymentMethod   string            `json:"payment_method"`
	TrackingNumber  string            `json:"tracking_number,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	Items           []OrderItemOutput `json:"items"`
}

// 詳細（明細・決済・配送・住所付き）
type OrderDetailOutput struct {
	OrderOutput
	Payment  *model.Payment  `json:"payment,omitempty"`
	Shipment *model.Shipment `json:"shipment,omitempty"`
	Address  *model.Address  `json:"shipping_address,omitempty"`
}

// PlaceOrder はカートから注文を作る。
// 注文行・明細・在庫減算・決済行・カートクリアは1トランザクションで、
// どれか1つでも失敗したら全部巻き戻す。
func (u *OrderUsecase) PlaceOrder(ctx context.Context, userID int64, in PlaceOrderInput) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
	}
	if in.AddressID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, CodeInvalidAddress, "invalid address_id")
	}

	method := strings.ToUpper(strings.TrimSpace(in.PaymentMethod))
	if _, ok := validPaymentMethods[method]; !ok {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, CodeInvalidPaymentMethod, "invalid payment method")
	}

	//address_idの存在確認＋所有チェック。他人の住所は「無効な住所」として扱う。
	addr, err := u.addresses.FindByID(ctx, in.AddressID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return OrderOutput{}, NewHTTPError(http.StatusBadRequest, CodeInvalidAddress, "invalid address")
		}
		return OrderOutput{}, NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}
	if addr.UserID != userID {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, CodeInvalidAddress, "invalid address")
	}

	var out OrderOutput

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//ACTIVEカート取得
		cart, err := r.Carts().FindActiveByUserID(ctx, userID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusBadRequest, CodeEmptyCart, "cart is empty")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}

		cartItems, err := r.CartItems().ListByCartID(ctx, cart.ID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}
		if len(cartItems) == 0 {
			return NewHTTPError(http.StatusBadRequest, CodeEmptyCart, "cart is empty")
		}

		//在庫を確定時に再チェックして減らす。
		//単価は「今の商品価格」。カート追加時の価格は使わない。
		orderItems := make([]model.OrderItem, 0, len(cartItems))
		var subtotal int64 = 0
		now := u.clock.Now()

		for _, ci := range cartItems {
			p, err := r.Products().FindByID(ctx, ci.ProductID)
			if errors.Is(err, repo.ErrNotFound) {
				return NewHTTPError(http.StatusBadRequest, CodeInvalidInput, "product unavailable")
			}
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
			}
			if !p.IsActive {
				return NewHTTPError(http.StatusBadRequest, CodeInvalidInput, "product unavailable")
			}

			//在庫減算（足りないなら false）。減算自体が条件付きUPDATEなので
			//同時checkoutと競合しても在庫は負にならない。
			ok, err := r.Inventory().DecreaseStockIfEnough(ctx, ci.ProductID, ci.Quantity)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
			}
			if !ok {
				return NewHTTPError(http.StatusConflict, CodeOutOfStock,
					fmt.Sprintf("insufficient stock for product %d", ci.ProductID))
			}

			lineSubtotal := p.Price * ci.Quantity
			orderItems = append(orderItems, model.OrderItem{
				ProductID:           ci.ProductID,
				ProductNameSnapshot: p.Name,
				UnitPriceSnapshot:   p.Price,
				Quantity:            ci.Quantity,
				Subtotal:            lineSubtotal,
				CreatedAt:           now,
			})

			subtotal += lineSubtotal
		}

		tax := subtotal * u.taxRatePercent / 100
		total := subtotal + tax + u.shippingCost
		reference := u.refGen.NewOrderReference()

		orderID, err := r.Orders().Create(ctx, model.Order{
			UserID:          userID,
			AddressID:       in.AddressID,
			ReferenceNumber: reference,
			Status:          model.OrderStatusPending,
			Subtotal:        subtotal,
			Tax:             tax,
			ShippingCost:    u.shippingCost,
			Total:           total,
			PaymentMethod:   method,
			Notes:           in.Notes,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}

		if err := r.OrderItems().CreateBulk(ctx, orderID, orderItems); err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}

		//決済行はPENDINGで作成。金額は注文totalと一致させる。
		if _, err := r.Payments().Create(ctx, model.Payment{
			OrderID:  orderID,
			Amount:   total,
			Currency: u.currency,
			Status:   model.PaymentStatusPending,
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}

		//カートをCHECKED_OUTにして明細をクリア（再注文防止）
		if err := r.Carts().UpdateStatus(ctx, cart.ID, model.CartStatusCheckedOut); err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}
		if err := r.Carts().Clear(ctx, cart.ID); err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}

		//通知は同一トランザクションのoutboxに積むだけ
		if err := enqueueOrderEvent(ctx, r, model.EventOrderCreated, reference, map[string]interface{}{
			"order_id":  orderID,
			"reference": reference,
			"user_id":   userID,
			"total":     total,
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}

		created := model.Order{
			ID:              orderID,
			UserID:          userID,
			AddressID:       in.AddressID,
			ReferenceNumber: reference,
			Status:          model.OrderStatusPending,
			Subtotal:        subtotal,
			Tax:             tax,
			ShippingCost:    u.shippingCost,
			Total:           total,
			PaymentMethod:   method,
			CreatedAt:       now,
		}
		out = toOrderOutput(created, orderItems)
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID int64, limit int, offset int) ([]OrderOutput, error) {
	if userID <= 0 {
		return []OrderOutput{}, NewHTTPError(http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var outs []OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, _, err := r.Orders().ListByUserID(ctx, userID, limit, offset)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}

		outs = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
			}
			outs = append(outs, toOrderOutput(o, items))
		}
		return nil
	})

	if err != nil {
		return []OrderOutput{}, err
	}
	return outs, nil
}

// GetOrderDetail は注文詳細を返す。
// 本人か管理者だけ。他人の注文は「存在しない扱い」にする。
func (u *OrderUsecase) GetOrderDetail(ctx context.Context, requesterID int64, requesterRole model.Role, orderID int64) (OrderDetailOutput, error) {
	if requesterID <= 0 {
		return OrderDetailOutput{}, NewHTTPError(http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderDetailOutput{}, NewHTTPError(http.StatusBadRequest, CodeInvalidInput, "invalid id")
	}

	var out OrderDetailOutput
	var addressID int64

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, CodeNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}
		if o.UserID != requesterID && requesterRole != model.RoleAdmin {
			return NewHTTPError(http.StatusNotFound, CodeNotFound, "not found")
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}

		out = OrderDetailOutput{OrderOutput: toOrderOutput(o, items)}
		addressID = o.AddressID

		//決済・配送はあれば添える
		if p, err := r.Payments().FindByOrderID(ctx, orderID); err == nil {
			out.Payment = &p
		} else if !errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}

		if s, err := r.Shipments().FindByOrderID(ctx, orderID); err == nil {
			out.Shipment = &s
		} else if !errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}

		return nil
	})

	if err != nil {
		return OrderDetailOutput{}, err
	}

	//配送先住所は本人（または管理者）確認済みなのでそのまま添える
	if addressID > 0 {
		if a, err := u.addresses.FindByID(ctx, addressID); err == nil {
			out.Address = &a
		}
	}

	return out, nil
}

// GetOrderPayment は本人の注文の決済情報を返す。
func (u *OrderUsecase) GetOrderPayment(ctx context.Context, requesterID int64, requesterRole model.Role, orderID int64) (model.Payment, error) {
	if requesterID <= 0 {
		return model.Payment{}, NewHTTPError(http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
	}

	var payment model.Payment

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, CodeNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}
		if o.UserID != requesterID && requesterRole != model.RoleAdmin {
			return NewHTTPError(http.StatusNotFound, CodeNotFound, "not found")
		}

		p, err := r.Payments().FindByOrderID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, CodeNotFound, "payment not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}

		payment = p
		return nil
	})

	if err != nil {
		return model.Payment{}, err
	}
	return payment, nil
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID: it.ProductID,
			Name:      it.ProductNameSnapshot,
			UnitPrice: it.UnitPriceSnapshot,
			Quantity:  it.Quantity,
			Subtotal:  it.Subtotal,
		})
	}

	return OrderOutput{
		ID:              o.ID,
		UserID:          o.UserID,
		ReferenceNumber: o.ReferenceNumber,
		Status:          string(o.Status),
		Subtotal:        o.Subtotal,
		Tax:             o.Tax,
		ShippingCost:    o.ShippingCost,
		Total:           o.Total,
		PaymentMethod:   o.PaymentMethod,
		TrackingNumber:  o.TrackingNumber,
		CreatedAt:       o.CreatedAt,
		Items:           outItems,
	}
}

// outboxへのイベント追加（遷移と同じトランザクション内で呼ぶ）
func enqueueOrderEvent(ctx context.Context, r repo.TxRepos, eventType string, aggregateID string, payload map[string]interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return r.Outbox().Enqueue(ctx, model.OutboxEvent{
		EventType:   eventType,
		AggregateID: aggregateID,
		Payload:     string(b),
	})
}
