package handler

import (
	"net/http"

	"shop/internal/usecase"

	"github.com/labstack/echo/v4"
)

// 公開の配送追跡API（認証なし）
type ShippingHandler struct {
	uc *usecase.ShippingUsecase
}

func NewShippingHandler(uc *usecase.ShippingUsecase) *ShippingHandler {
	return &ShippingHandler{uc: uc}
}

func (h *ShippingHandler) RegisterRoutes(public *echo.Group) {
	public.GET("/tracking/:number", h.track)
}

func (h *ShippingHandler) track(c echo.Context) error {
	number := c.Param("number")
	if number == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "tracking number required", Code: usecase.CodeInvalidInput})
	}

	out, err := h.uc.TrackByReference(c.Request().Context(), number)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
