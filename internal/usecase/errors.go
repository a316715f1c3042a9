package usecase

import (
	"errors"
	"fmt"
)

// 機械可読のエラーコード。handlerはこれをそのままクライアントへ返す。
const (
	CodeInvalidInput         = "INVALID_INPUT"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeNotFound             = "NOT_FOUND"
	CodeEmptyCart            = "EMPTY_CART"
	CodeOutOfStock           = "OUT_OF_STOCK"
	CodeStockExceeded        = "STOCK_EXCEEDED"
	CodeInvalidAddress       = "INVALID_ADDRESS"
	CodeInvalidPaymentMethod = "INVALID_PAYMENT_METHOD"
	CodeInvalidTransition    = "INVALID_TRANSITION"
	CodeInvalidSignature     = "INVALID_SIGNATURE"
	CodeConflict             = "CONFLICT"
	CodeEmailTaken           = "EMAIL_TAKEN"
	CodeInternal             = "INTERNAL"
)

// usecase層のエラー。Statusはhandlerがそのまま使うHTTPステータス。
type HTTPError struct {
	Status  int
	Code    string
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

func NewHTTPError(status int, code string, message string) error {
	return &HTTPError{
		Status:  status,
		Code:    code,
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}
