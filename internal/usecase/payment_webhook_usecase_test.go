package usecase_test

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"testing"

	"shop/internal/domain/model"
	repo "shop/internal/repository"
	"shop/internal/usecase"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

const (
	testAPIKey     = "test-api-key"
	testMerchantID = "508029"
)

func signWebhook(refCode, value, currency, statePol string) string {
	base := fmt.Sprintf("%s~%s~%s~%s~%s~%s", testAPIKey, testMerchantID, refCode, value, currency, statePol)
	sum := md5.Sum([]byte(base))
	return hex.EncodeToString(sum[:])
}

func validWebhook(refCode, statePol string) usecase.WebhookInput {
	return usecase.WebhookInput{
		ReferenceCode: refCode,
		StatePol:      statePol,
		Value:         "122100",
		Currency:      "COP",
		TransactionID: "txn-001",
		Sign:          signWebhook(refCode, "122100", "COP", statePol),
		RawPayload:    `{"state_pol":"` + statePol + `"}`,
	}
}

func newWebhookUsecaseForTest(tx *txManagerMock, cancelUnapproved bool) *usecase.PaymentWebhookUsecase {
	return usecase.NewPaymentWebhookUsecase(tx, zerolog.Nop(), testAPIKey, testMerchantID, cancelUnapproved)
}

func TestHandleWebhook_RejectsBadSignatureBeforeAnyWrite(t *testing.T) {
	tx := new(txManagerMock)
	uc := newWebhookUsecaseForTest(tx, false)

	in := validWebhook("LS-1-1", "4")
	in.Sign = "deadbeefdeadbeefdeadbeefdeadbeef"

	err := uc.HandleWebhook(context.Background(), in)
	assertHTTPCode(t, err, 400, usecase.CodeInvalidSignature)

	//署名が不正ならトランザクションすら開かない
	tx.AssertNotCalled(t, "WithinTx", mock.Anything)
}

func TestHandleWebhook_ApprovedConfirmsOrderOnce(t *testing.T) {
	ctx := context.Background()

	tx := new(txManagerMock)
	ordersRepo := new(orderRepoMock)
	itemsRepo := new(orderItemRepoMock)
	paymentsRepo := new(paymentRepoMock)
	productsRepo := new(productRepoMock)
	outboxRepo := new(outboxRepoMock)

	tx.Repos = &txReposMock{
		orders:     ordersRepo,
		orderItems: itemsRepo,
		payments:   paymentsRepo,
		products:   productsRepo,
		outbox:     outboxRepo,
	}
	tx.On("WithinTx", mock.Anything).Return(nil)

	order := model.Order{ID: 55, UserID: 42, ReferenceNumber: "LS-1-1", Status: model.OrderStatusPending}
	payment := model.Payment{ID: 9, OrderID: 55, Status: model.PaymentStatusPending}

	ordersRepo.On("FindByReference", mock.Anything, "LS-1-1").Return(order, nil)
	paymentsRepo.On("FindByOrderID", mock.Anything, int64(55)).Return(payment, nil)
	paymentsRepo.On("MarkResultIf", mock.Anything, int64(9), model.PaymentStatusApproved, "txn-001", mock.Anything).
		Return(true, nil)
	ordersRepo.On("UpdateStatusIf", mock.Anything, int64(55), model.OrderStatusPending, model.OrderStatusPaymentConfirmed).
		Return(true, nil)
	itemsRepo.On("ListByOrderID", mock.Anything, int64(55)).
		Return([]model.OrderItem{{ProductID: 100, Quantity: 2}}, nil)
	productsRepo.On("IncrementConversions", mock.Anything, int64(100)).Return(nil)
	outboxRepo.On("Enqueue", mock.Anything, mock.MatchedBy(func(ev model.OutboxEvent) bool {
		return ev.EventType == model.EventOrderPaymentConfirmed && ev.AggregateID == "LS-1-1"
	})).Return(nil)

	uc := newWebhookUsecaseForTest(tx, false)

	err := uc.HandleWebhook(ctx, validWebhook("LS-1-1", "4"))
	assert.NoError(t, err)

	ordersRepo.AssertExpectations(t)
	paymentsRepo.AssertExpectations(t)
	outboxRepo.AssertExpectations(t)
}

func TestHandleWebhook_DuplicateApprovedIsNoOp(t *testing.T) {
	ctx := context.Background()

	tx := new(txManagerMock)
	ordersRepo := new(orderRepoMock)
	paymentsRepo := new(paymentRepoMock)

	tx.Repos = &txReposMock{orders: ordersRepo, payments: paymentsRepo}
	tx.On("WithinTx", mock.Anything).Return(nil)

	order := model.Order{ID: 55, ReferenceNumber: "LS-1-1", Status: model.OrderStatusPaymentConfirmed}
	settled := model.Payment{ID: 9, OrderID: 55, Status: model.PaymentStatusApproved}

	ordersRepo.On("FindByReference", mock.Anything, "LS-1-1").Return(order, nil)
	paymentsRepo.On("FindByOrderID", mock.Anything, int64(55)).Return(settled, nil)
	//CASは負ける（確定済み）
	paymentsRepo.On("MarkResultIf", mock.Anything, int64(9), model.PaymentStatusApproved, "txn-001", mock.Anything).
		Return(false, nil)

	uc := newWebhookUsecaseForTest(tx, false)

	//同じ結果の再送は何度来ても受理・副作用なし
	for i := 0; i < 3; i++ {
		err := uc.HandleWebhook(ctx, validWebhook("LS-1-1", "4"))
		assert.NoError(t, err)
	}

	paymentsRepo.AssertNotCalled(t, "CreateAnomaly", mock.Anything, mock.Anything)
	ordersRepo.AssertNotCalled(t, "UpdateStatusIf", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleWebhook_DeclinedRestocksExactlyOnce(t *testing.T) {
	ctx := context.Background()

	tx := new(txManagerMock)
	ordersRepo := new(orderRepoMock)
	itemsRepo := new(orderItemRepoMock)
	paymentsRepo := new(paymentRepoMock)
	invRepo := new(inventoryRepoMock)
	outboxRepo := new(outboxRepoMock)

	tx.Repos = &txReposMock{
		orders:     ordersRepo,
		orderItems: itemsRepo,
		payments:   paymentsRepo,
		inventory:  invRepo,
		outbox:     outboxRepo,
	}
	tx.On("WithinTx", mock.Anything).Return(nil)

	order := model.Order{ID: 55, ReferenceNumber: "LS-1-1", Status: model.OrderStatusPending}
	payment := model.Payment{ID: 9, OrderID: 55, Status: model.PaymentStatusPending}

	ordersRepo.On("FindByReference", mock.Anything, "LS-1-1").Return(order, nil)

	//1回目の読み取りはPENDING、確定後はDECLINED
	paymentsRepo.On("FindByOrderID", mock.Anything, int64(55)).Return(payment, nil).Once()
	settled := payment
	settled.Status = model.PaymentStatusDeclined
	paymentsRepo.On("FindByOrderID", mock.Anything, int64(55)).Return(settled, nil)

	//1回目だけCASに勝つ
	paymentsRepo.On("MarkResultIf", mock.Anything, int64(9), model.PaymentStatusDeclined, "txn-001", mock.Anything).
		Return(true, nil).Once()
	paymentsRepo.On("MarkResultIf", mock.Anything, int64(9), model.PaymentStatusDeclined, "txn-001", mock.Anything).
		Return(false, nil)

	itemsRepo.On("ListByOrderID", mock.Anything, int64(55)).
		Return([]model.OrderItem{{ProductID: 100, Quantity: 2}}, nil)
	invRepo.On("IncreaseStock", mock.Anything, int64(100), int64(2)).Return(nil)
	ordersRepo.On("UpdateStatusIf", mock.Anything, int64(55), model.OrderStatusPending, model.OrderStatusCancelled).
		Return(true, nil)
	outboxRepo.On("Enqueue", mock.Anything, mock.Anything).Return(nil)

	uc := newWebhookUsecaseForTest(tx, false)

	//再送しても在庫戻しは1回だけ
	assert.NoError(t, uc.HandleWebhook(ctx, validWebhook("LS-1-1", "5")))
	assert.NoError(t, uc.HandleWebhook(ctx, validWebhook("LS-1-1", "5")))

	invRepo.AssertNumberOfCalls(t, "IncreaseStock", 1)
}

func TestHandleWebhook_ConflictingResultRecordsAnomaly(t *testing.T) {
	ctx := context.Background()

	tx := new(txManagerMock)
	ordersRepo := new(orderRepoMock)
	paymentsRepo := new(paymentRepoMock)

	tx.Repos = &txReposMock{orders: ordersRepo, payments: paymentsRepo}
	tx.On("WithinTx", mock.Anything).Return(nil)

	order := model.Order{ID: 55, ReferenceNumber: "LS-1-1", Status: model.OrderStatusPaymentConfirmed}
	settled := model.Payment{ID: 9, OrderID: 55, Status: model.PaymentStatusApproved}

	ordersRepo.On("FindByReference", mock.Anything, "LS-1-1").Return(order, nil)
	paymentsRepo.On("FindByOrderID", mock.Anything, int64(55)).Return(settled, nil)
	paymentsRepo.On("MarkResultIf", mock.Anything, int64(9), model.PaymentStatusDeclined, "txn-001", mock.Anything).
		Return(false, nil)

	//承認済みに不成立が届いた → 食い違いを記録して受理
	paymentsRepo.On("CreateAnomaly", mock.Anything, mock.MatchedBy(func(a model.PaymentAnomaly) bool {
		return a.Reason == model.AnomalyReasonConflictingResult && a.OrderID == 55
	})).Return(nil)

	uc := newWebhookUsecaseForTest(tx, false)

	err := uc.HandleWebhook(ctx, validWebhook("LS-1-1", "5"))
	assert.NoError(t, err)

	paymentsRepo.AssertExpectations(t)
}

func TestHandleWebhook_PendingIsAcknowledgedWithoutWrites(t *testing.T) {
	tx := new(txManagerMock)
	uc := newWebhookUsecaseForTest(tx, false)

	err := uc.HandleWebhook(context.Background(), validWebhook("LS-1-1", "6"))
	assert.NoError(t, err)

	tx.AssertNotCalled(t, "WithinTx", mock.Anything)
}

func TestHandleWebhook_ExpiredIgnoredWhenCancelDisabled(t *testing.T) {
	tx := new(txManagerMock)
	uc := newWebhookUsecaseForTest(tx, false)

	//キャンセル無効の設定なら記録だけして受理
	err := uc.HandleWebhook(context.Background(), validWebhook("LS-1-1", "7"))
	assert.NoError(t, err)
	tx.AssertNotCalled(t, "WithinTx", mock.Anything)
}

func TestHandleWebhook_ExpiredCancelsWhenConfigured(t *testing.T) {
	ctx := context.Background()

	tx := new(txManagerMock)
	ordersRepo := new(orderRepoMock)
	itemsRepo := new(orderItemRepoMock)
	paymentsRepo := new(paymentRepoMock)
	invRepo := new(inventoryRepoMock)
	outboxRepo := new(outboxRepoMock)

	tx.Repos = &txReposMock{
		orders:     ordersRepo,
		orderItems: itemsRepo,
		payments:   paymentsRepo,
		inventory:  invRepo,
		outbox:     outboxRepo,
	}
	tx.On("WithinTx", mock.Anything).Return(nil)

	order := model.Order{ID: 55, ReferenceNumber: "LS-1-1", Status: model.OrderStatusPending}
	payment := model.Payment{ID: 9, OrderID: 55, Status: model.PaymentStatusPending}

	ordersRepo.On("FindByReference", mock.Anything, "LS-1-1").Return(order, nil)
	paymentsRepo.On("FindByOrderID", mock.Anything, int64(55)).Return(payment, nil)
	paymentsRepo.On("MarkResultIf", mock.Anything, int64(9), model.PaymentStatusDeclined, "txn-001", mock.Anything).
		Return(true, nil)
	ordersRepo.On("UpdateStatusIf", mock.Anything, int64(55), model.OrderStatusPending, model.OrderStatusCancelled).
		Return(true, nil)
	itemsRepo.On("ListByOrderID", mock.Anything, int64(55)).
		Return([]model.OrderItem{{ProductID: 100, Quantity: 2}}, nil)
	invRepo.On("IncreaseStock", mock.Anything, int64(100), int64(2)).Return(nil)
	outboxRepo.On("Enqueue", mock.Anything, mock.Anything).Return(nil)

	uc := newWebhookUsecaseForTest(tx, true)

	err := uc.HandleWebhook(ctx, validWebhook("LS-1-1", "7"))
	assert.NoError(t, err)
	invRepo.AssertExpectations(t)
}

func TestHandleWebhook_RefundRecordsAnomaly(t *testing.T) {
	ctx := context.Background()

	tx := new(txManagerMock)
	ordersRepo := new(orderRepoMock)
	paymentsRepo := new(paymentRepoMock)

	tx.Repos = &txReposMock{orders: ordersRepo, payments: paymentsRepo}
	tx.On("WithinTx", mock.Anything).Return(nil)

	order := model.Order{ID: 55, ReferenceNumber: "LS-1-1", Status: model.OrderStatusDelivered}
	settled := model.Payment{ID: 9, OrderID: 55, Status: model.PaymentStatusApproved}

	ordersRepo.On("FindByReference", mock.Anything, "LS-1-1").Return(order, nil)
	paymentsRepo.On("FindByOrderID", mock.Anything, int64(55)).Return(settled, nil)
	paymentsRepo.On("CreateAnomaly", mock.Anything, mock.MatchedBy(func(a model.PaymentAnomaly) bool {
		return a.Reason == model.AnomalyReasonRefundReported
	})).Return(nil)

	uc := newWebhookUsecaseForTest(tx, false)

	err := uc.HandleWebhook(ctx, validWebhook("LS-1-1", "14"))
	assert.NoError(t, err)

	paymentsRepo.AssertExpectations(t)
}

func TestHandleWebhook_DeclinedAfterAdminCancelDoesNotRestock(t *testing.T) {
	ctx := context.Background()

	tx := new(txManagerMock)
	ordersRepo := new(orderRepoMock)
	itemsRepo := new(orderItemRepoMock)
	paymentsRepo := new(paymentRepoMock)
	invRepo := new(inventoryRepoMock)
	outboxRepo := new(outboxRepoMock)

	tx.Repos = &txReposMock{
		orders:     ordersRepo,
		orderItems: itemsRepo,
		payments:   paymentsRepo,
		inventory:  invRepo,
		outbox:     outboxRepo,
	}
	tx.On("WithinTx", mock.Anything).Return(nil)

	//管理者が先にキャンセル済み（在庫はその時に戻っている）。決済はまだPENDING。
	order := model.Order{ID: 55, ReferenceNumber: "LS-1-1", Status: model.OrderStatusCancelled}
	payment := model.Payment{ID: 9, OrderID: 55, Status: model.PaymentStatusPending}

	ordersRepo.On("FindByReference", mock.Anything, "LS-1-1").Return(order, nil)
	paymentsRepo.On("FindByOrderID", mock.Anything, int64(55)).Return(payment, nil)
	paymentsRepo.On("MarkResultIf", mock.Anything, int64(9), model.PaymentStatusDeclined, "txn-001", mock.Anything).
		Return(true, nil)
	//CANCELLEDからはどちらのCASも負ける
	ordersRepo.On("UpdateStatusIf", mock.Anything, int64(55), model.OrderStatusPending, model.OrderStatusCancelled).
		Return(false, nil)
	ordersRepo.On("UpdateStatusIf", mock.Anything, int64(55), model.OrderStatusPaymentConfirmed, model.OrderStatusCancelled).
		Return(false, nil)
	paymentsRepo.On("CreateAnomaly", mock.Anything, mock.MatchedBy(func(a model.PaymentAnomaly) bool {
		return a.Reason == model.AnomalyReasonConflictingResult && a.OrderID == 55
	})).Return(nil)

	uc := newWebhookUsecaseForTest(tx, false)

	err := uc.HandleWebhook(ctx, validWebhook("LS-1-1", "5"))
	assert.NoError(t, err)

	//在庫もイベントも二重にしない
	invRepo.AssertNotCalled(t, "IncreaseStock", mock.Anything, mock.Anything, mock.Anything)
	outboxRepo.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
	paymentsRepo.AssertExpectations(t)
}

func TestHandleWebhook_UnknownReferenceIsAcknowledged(t *testing.T) {
	ctx := context.Background()

	tx := new(txManagerMock)
	ordersRepo := new(orderRepoMock)

	tx.Repos = &txReposMock{orders: ordersRepo}
	tx.On("WithinTx", mock.Anything).Return(nil)

	ordersRepo.On("FindByReference", mock.Anything, "LS-0-0").
		Return(model.Order{}, repo.ErrNotFound)

	uc := newWebhookUsecaseForTest(tx, false)

	//署名が正しければ該当注文が無くても受理（再送を止める）
	err := uc.HandleWebhook(ctx, validWebhook("LS-0-0", "4"))
	assert.NoError(t, err)
}

func TestHandleWebhook_UnknownStatePol(t *testing.T) {
	tx := new(txManagerMock)
	uc := newWebhookUsecaseForTest(tx, false)

	err := uc.HandleWebhook(context.Background(), validWebhook("LS-1-1", "99"))
	assertHTTPCode(t, err, 400, usecase.CodeInvalidInput)
}
