package usecase

import (
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"shop/internal/domain/model"
	repo "shop/internal/repository"

	"github.com/rs/zerolog"
)

// PayUのstate_pol
const (
	statePolApproved  = "4"
	statePolDeclined  = "5"
	statePolPending   = "6"
	statePolExpired   = "7"
	statePolAbandoned = "8"
	statePolRefunded  = "14"
)

//署名は正しいのに該当注文がない通知。エラーで返すとゲートウェイが
//永遠に再送してくるので、呼び出し側で受理に変換する。
var errUnknownReference = errors.New("unknown reference")

type PaymentWebhookUsecase struct {
	tx     repo.TransactionManager
	logger zerolog.Logger

	apiKey     string
	merchantID string

	//trueならEXPIRED/ABANDONEDもDECLINED扱いでキャンセルする
	cancelUnapproved bool
}

func NewPaymentWebhookUsecase(
	tx repo.TransactionManager,
	logger zerolog.Logger,
	apiKey string,
	merchantID string,
	cancelUnapproved bool,
) *PaymentWebhookUsecase {
	return &PaymentWebhookUsecase{
		tx:               tx,
		logger:           logger,
		apiKey:           apiKey,
		merchantID:       merchantID,
		cancelUnapproved: cancelUnapproved,
	}
}

type WebhookInput struct {
	ReferenceCode string
	StatePol      string
	Value         string
	Currency      string
	TransactionID string
	Sign          string
	RawPayload    string
}

// verifySignature はゲートウェイの署名を検証する。
// sign = MD5(apiKey~merchantId~referenceCode~value~currency~statePol)
func (u *PaymentWebhookUsecase) verifySignature(in WebhookInput) bool {
	base := fmt.Sprintf("%s~%s~%s~%s~%s~%s",
		u.apiKey, u.merchantID, in.ReferenceCode, in.Value, in.Currency, in.StatePol)
	sum := md5.Sum([]byte(base))
	expected := hex.EncodeToString(sum[:])
	got := strings.ToLower(strings.TrimSpace(in.Sign))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

// HandleWebhook はゲートウェイ確認を処理する。
// 同じ通知が何度来ても結果は一度しか適用されない。
// 成功（受理）ならnil。ゲートウェイは2xx以外を再送するので、
// 「処理済み」「様子見」はエラーにしない。
func (u *PaymentWebhookUsecase) HandleWebhook(ctx context.Context, in WebhookInput) error {
	//署名検証はどのDB読み書きよりも先
	if !u.verifySignature(in) {
		u.logger.Warn().
			Str("reference", in.ReferenceCode).
			Msg("webhook signature mismatch")
		return NewHTTPError(http.StatusBadRequest, CodeInvalidSignature, "invalid signature")
	}

	var err error
	switch in.StatePol {
	case statePolApproved:
		err = u.applyApproved(ctx, in)
	case statePolDeclined:
		err = u.applyDeclined(ctx, in)
	case statePolExpired, statePolAbandoned:
		if !u.cancelUnapproved {
			//設定で無効なら記録だけして受理
			u.logger.Info().
				Str("reference", in.ReferenceCode).
				Str("state_pol", in.StatePol).
				Msg("unapproved state acknowledged without cancellation")
			return nil
		}
		err = u.applyDeclined(ctx, in)
	case statePolPending:
		//まだ確定していない。受理して次の通知を待つ。
		return nil
	case statePolRefunded:
		err = u.recordRefundAnomaly(ctx, in)
	default:
		return NewHTTPError(http.StatusBadRequest, CodeInvalidInput,
			fmt.Sprintf("unknown state_pol %q", in.StatePol))
	}

	if errors.Is(err, errUnknownReference) {
		//検証済みの通知はここで終わらせる。4xxを返すと再送が止まらない。
		u.logger.Warn().
			Str("reference", in.ReferenceCode).
			Str("state_pol", in.StatePol).
			Msg("verified webhook for unknown reference acknowledged")
		return nil
	}
	return err
}

func (u *PaymentWebhookUsecase) applyApproved(ctx context.Context, in WebhookInput) error {
	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		order, payment, err := u.loadByReference(ctx, r, in.ReferenceCode)
		if err != nil {
			return err
		}

		//決済の確定はCASで一度だけ。falseなら誰かが先に確定させている。
		ok, err := r.Payments().MarkResultIf(ctx, payment.ID, model.PaymentStatusApproved, in.TransactionID, in.RawPayload)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}
		if !ok {
			return u.handleAlreadySettled(ctx, r, order, payment, in, model.PaymentStatusApproved)
		}

		//注文もCASで進める。PENDING以外になっていたら遷移不能 → 記録して受理。
		moved, err := r.Orders().UpdateStatusIf(ctx, order.ID, model.OrderStatusPending, model.OrderStatusPaymentConfirmed)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}
		if !moved {
			u.logger.Warn().
				Str("reference", order.ReferenceNumber).
				Str("order_status", string(order.Status)).
				Msg("payment approved but order not in PENDING")
			if err := r.Payments().CreateAnomaly(ctx, model.PaymentAnomaly{
				OrderID:               order.ID,
				PaymentID:             payment.ID,
				Reason:                model.AnomalyReasonConflictingResult,
				IncomingState:         string(model.PaymentStatusApproved),
				IncomingTransactionID: in.TransactionID,
				PayloadJSON:           in.RawPayload,
			}); err != nil {
				return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
			}
			return nil
		}

		//売れた分を転換数に反映
		items, err := r.OrderItems().ListByOrderID(ctx, order.ID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}
		for _, it := range items {
			if err := r.Products().IncrementConversions(ctx, it.ProductID); err != nil {
				return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
			}
		}

		if err := enqueueOrderEvent(ctx, r, model.EventOrderPaymentConfirmed, order.ReferenceNumber, map[string]interface{}{
			"order_id":       order.ID,
			"reference":      order.ReferenceNumber,
			"user_id":        order.UserID,
			"transaction_id": in.TransactionID,
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}

		u.logger.Info().
			Str("reference", order.ReferenceNumber).
			Str("transaction_id", in.TransactionID).
			Msg("payment approved")
		return nil
	})
}

func (u *PaymentWebhookUsecase) applyDeclined(ctx context.Context, in WebhookInput) error {
	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		order, payment, err := u.loadByReference(ctx, r, in.ReferenceCode)
		if err != nil {
			return err
		}

		ok, err := r.Payments().MarkResultIf(ctx, payment.ID, model.PaymentStatusDeclined, in.TransactionID, in.RawPayload)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}
		if !ok {
			return u.handleAlreadySettled(ctx, r, order, payment, in, model.PaymentStatusDeclined)
		}

		//先に注文のCAS。勝った側だけが在庫を戻す。
		//管理者が先にキャンセルしていれば既に戻っているので、ここで戻すと二重になる。
		moved, err := r.Orders().UpdateStatusIf(ctx, order.ID, model.OrderStatusPending, model.OrderStatusCancelled)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}
		if !moved {
			//承認済みの後に不成立が来たような稀なケース
			moved, err = r.Orders().UpdateStatusIf(ctx, order.ID, model.OrderStatusPaymentConfirmed, model.OrderStatusCancelled)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
			}
		}
		if !moved {
			u.logger.Warn().
				Str("reference", order.ReferenceNumber).
				Str("order_status", string(order.Status)).
				Msg("payment declined but order not cancellable")
			if err := r.Payments().CreateAnomaly(ctx, model.PaymentAnomaly{
				OrderID:               order.ID,
				PaymentID:             payment.ID,
				Reason:                model.AnomalyReasonConflictingResult,
				IncomingState:         string(model.PaymentStatusDeclined),
				IncomingTransactionID: in.TransactionID,
				PayloadJSON:           in.RawPayload,
			}); err != nil {
				return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
			}
			return nil
		}

		items, err := r.OrderItems().ListByOrderID(ctx, order.ID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}
		for _, it := range items {
			if err := r.Inventory().IncreaseStock(ctx, it.ProductID, it.Quantity); err != nil {
				return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
			}
		}

		if err := enqueueOrderEvent(ctx, r, model.EventOrderCancelled, order.ReferenceNumber, map[string]interface{}{
			"order_id":  order.ID,
			"reference": order.ReferenceNumber,
			"user_id":   order.UserID,
			"reason":    "payment_declined",
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}

		u.logger.Info().
			Str("reference", order.ReferenceNumber).
			Str("state_pol", in.StatePol).
			Msg("payment declined, order cancelled and stock restored")
		return nil
	})
}

// recordRefundAnomaly は返金通知を記録だけする。自動処理はしない。
func (u *PaymentWebhookUsecase) recordRefundAnomaly(ctx context.Context, in WebhookInput) error {
	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		order, payment, err := u.loadByReference(ctx, r, in.ReferenceCode)
		if err != nil {
			return err
		}

		if err := r.Payments().CreateAnomaly(ctx, model.PaymentAnomaly{
			OrderID:               order.ID,
			PaymentID:             payment.ID,
			Reason:                model.AnomalyReasonRefundReported,
			IncomingState:         "REFUNDED",
			IncomingTransactionID: in.TransactionID,
			PayloadJSON:           in.RawPayload,
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
		}

		u.logger.Warn().
			Str("reference", order.ReferenceNumber).
			Msg("refund reported by gateway, recorded for manual review")
		return nil
	})
}

// handleAlreadySettled は確定済み決済への再通知。
// 同じ結果なら黙って受理、違う結果なら記録して受理。
func (u *PaymentWebhookUsecase) handleAlreadySettled(
	ctx context.Context,
	r repo.TxRepos,
	order model.Order,
	stale model.Payment,
	in WebhookInput,
	incoming model.PaymentStatus,
) error {
	//CASに負けた後の値を読み直す
	current, err := r.Payments().FindByOrderID(ctx, order.ID)
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}

	if current.Status == incoming {
		//再送。副作用なしで受理。
		u.logger.Debug().
			Str("reference", order.ReferenceNumber).
			Str("status", string(incoming)).
			Msg("duplicate webhook ignored")
		return nil
	}

	if err := r.Payments().CreateAnomaly(ctx, model.PaymentAnomaly{
		OrderID:               order.ID,
		PaymentID:             current.ID,
		Reason:                model.AnomalyReasonConflictingResult,
		IncomingState:         string(incoming),
		IncomingTransactionID: in.TransactionID,
		PayloadJSON:           in.RawPayload,
	}); err != nil {
		return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}

	u.logger.Warn().
		Str("reference", order.ReferenceNumber).
		Str("settled", string(current.Status)).
		Str("incoming", string(incoming)).
		Msg("conflicting webhook result recorded")
	return nil
}

func (u *PaymentWebhookUsecase) loadByReference(ctx context.Context, r repo.TxRepos, reference string) (model.Order, model.Payment, error) {
	order, err := r.Orders().FindByReference(ctx, reference)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Order{}, model.Payment{}, errUnknownReference
	}
	if err != nil {
		return model.Order{}, model.Payment{}, NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}

	payment, err := r.Payments().FindByOrderID(ctx, order.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Order{}, model.Payment{}, errUnknownReference
	}
	if err != nil {
		return model.Order{}, model.Payment{}, NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
	}

	return order, payment, nil
}
