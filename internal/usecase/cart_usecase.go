package usecase

import (
	"context"
	"errors"
	"net/http"

	repo "shop/internal/repository"
)

type CartUsecase struct {
	tx repo.TransactionManager
}

func NewCartUsecase(tx repo.TransactionManager) *CartUsecase {
	return &CartUsecase{tx: tx}
}

type CartItemOutput struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int64  `json:"quantity"`
	Subtotal  int64  `json:"subtotal"`
}

type CartOutput struct {
	CartID   int64            `json:"cart_id"`
	Items    []CartItemOutput `json:"items"`
	Subtotal int64            `json:"subtotal"`
}

// GetCart はACTIVEカートの中身を返す（なければ空のカートを作る）。
// 表示価格は常に現在の商品価格。
func (u *CartUsecase) GetCart(ctx context.Context, userID int64) (CartOutput, error) {
	if userID <= 0 {
		return CartOutput{}, NewHTTPError(http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
	}

	var out CartOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().GetOrCreateActiveByUserID(ctx, userID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}

		items, err := r.CartItems().ListByCartID(ctx, cart.ID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}

		outItems := make([]CartItemOutput, 0, len(items))
		var subtotal int64 = 0
		for _, it := range items {
			p, err := r.Products().FindByID(ctx, it.ProductID)
			if errors.Is(err, repo.ErrNotFound) {
				//削除済み商品は表示しない
				continue
			}
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
			}

			line := p.Price * it.Quantity
			outItems = append(outItems, CartItemOutput{
				ID:        it.ID,
				ProductID: it.ProductID,
				Name:      p.Name,
				UnitPrice: p.Price,
				Quantity:  it.Quantity,
				Subtotal:  line,
			})
			subtotal += line
		}

		out = CartOutput{
			CartID:   cart.ID,
			Items:    outItems,
			Subtotal: subtotal,
		}
		return nil
	})

	if err != nil {
		return CartOutput{}, err
	}
	return out, nil
}

// AddItem は商品をカートへ入れる。同じ商品なら数量加算。
// 在庫はここでは確保しない（確保は注文確定時）。表示用の上限チェックだけ。
func (u *CartUsecase) AddItem(ctx context.Context, userID int64, productID int64, qty int64) (CartOutput, error) {
	if userID <= 0 {
		return CartOutput{}, NewHTTPError(http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
	}
	if productID <= 0 || qty <= 0 {
		return CartOutput{}, NewHTTPError(http.StatusBadRequest, CodeInvalidInput, "invalid product or quantity")
	}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		p, err := r.Products().FindByID(ctx, productID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, CodeNotFound, "product not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}
		if !p.IsActive {
			return NewHTTPError(http.StatusNotFound, CodeNotFound, "product not found")
		}

		cart, err := r.Carts().GetOrCreateActiveByUserID(ctx, userID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}

		//加算後の数量が在庫を超えないか
		items, err := r.CartItems().ListByCartID(ctx, cart.ID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}
		var existing int64 = 0
		for _, it := range items {
			if it.ProductID == productID {
				existing = it.Quantity
				break
			}
		}
		if existing+qty > p.Stock {
			return NewHTTPError(http.StatusConflict, CodeStockExceeded, "requested quantity exceeds stock")
		}

		if err := r.CartItems().UpsertByCartAndProduct(ctx, cart.ID, productID, qty); err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}
		return nil
	})

	if err != nil {
		return CartOutput{}, err
	}
	return u.GetCart(ctx, userID)
}

// UpdateItemQuantity は明細の数量を変更する。0なら削除。
func (u *CartUsecase) UpdateItemQuantity(ctx context.Context, userID int64, cartItemID int64, qty int64) (CartOutput, error) {
	if userID <= 0 {
		return CartOutput{}, NewHTTPError(http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
	}
	if cartItemID <= 0 || qty < 0 {
		return CartOutput{}, NewHTTPError(http.StatusBadRequest, CodeInvalidInput, "invalid item or quantity")
	}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		owned, err := r.CartItems().IsOwnedByUser(ctx, cartItemID, userID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}
		if !owned {
			return NewHTTPError(http.StatusNotFound, CodeNotFound, "cart item not found")
		}

		if qty == 0 {
			if err := r.CartItems().DeleteByID(ctx, cartItemID); err != nil {
				return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
			}
			return nil
		}

		item, err := r.CartItems().FindByID(ctx, cartItemID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, CodeNotFound, "cart item not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}

		p, err := r.Products().FindByID(ctx, item.ProductID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, CodeNotFound, "product not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}
		if qty > p.Stock {
			return NewHTTPError(http.StatusConflict, CodeStockExceeded, "requested quantity exceeds stock")
		}

		if err := r.CartItems().UpdateQuantity(ctx, cartItemID, qty); err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}
		return nil
	})

	if err != nil {
		return CartOutput{}, err
	}
	return u.GetCart(ctx, userID)
}

// RemoveItem は明細をカートから外す。
func (u *CartUsecase) RemoveItem(ctx context.Context, userID int64, cartItemID int64) (CartOutput, error) {
	return u.UpdateItemQuantity(ctx, userID, cartItemID, 0)
}

// Clear はACTIVEカートを空にする。
func (u *CartUsecase) Clear(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().FindActiveByUserID(ctx, userID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}

		if err := r.Carts().Clear(ctx, cart.ID); err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}
		return nil
	})
}

// CartItemCount はヘッダー表示用の点数合計。
func (u *CartUsecase) CartItemCount(ctx context.Context, userID int64) (int64, error) {
	out, err := u.GetCart(ctx, userID)
	if err != nil {
		return 0, err
	}
	var count int64 = 0
	for _, it := range out.Items {
		count += it.Quantity
	}
	return count, nil
}
