package handler

import (
	"net/http"
	"strconv"
	"time"

	"shop/internal/config"
	"shop/internal/middleware"
	"shop/internal/repository"
	"shop/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /admin/orders のHTTP
type AdminOrderHandler struct {
	ordersUC   *usecase.AdminOrderUsecase
	shippingUC *usecase.ShippingUsecase
}

func NewAdminOrderHandler(ordersUC *usecase.AdminOrderUsecase, shippingUC *usecase.ShippingUsecase) *AdminOrderHandler {
	return &AdminOrderHandler{ordersUC: ordersUC, shippingUC: shippingUC}
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status"`
}

func (h *AdminOrderHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	g := e.Group("/admin/orders")
	g.Use(middleware.AuthJWT(cfg))
	g.Use(middleware.TokenVersionGuard(userRepo))
	g.Use(middleware.AdminRoleGuard())

	g.GET("", h.list)
	g.PATCH("/:id/status", h.updateStatus)
	g.POST("/:id/tracking", h.issueTracking)
	g.POST("/:id/delivered", h.markDelivered)

	a := e.Group("/admin/audit-logs")
	a.Use(middleware.AuthJWT(cfg))
	a.Use(middleware.TokenVersionGuard(userRepo))
	a.Use(middleware.AdminRoleGuard())
	a.GET("", h.auditLogs)
}

func (h *AdminOrderHandler) auditLogs(c echo.Context) error {
	limit, offset := parsePagination(c)

	out, err := h.ordersUC.AuditLogs(c.Request().Context(), repository.AuditLogFilter{
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) list(c echo.Context) error {
	limit, offset := parsePagination(c)

	f := repository.AdminOrderListFilter{
		Limit:  limit,
		Offset: offset,
		Status: c.QueryParam("status"),
	}

	if v := c.QueryParam("user_id"); v != "" {
		x, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user_id", Code: usecase.CodeInvalidInput})
		}
		f.UserID = &x
	}
	if v := c.QueryParam("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid from", Code: usecase.CodeInvalidInput})
		}
		f.From = &t
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid to", Code: usecase.CodeInvalidInput})
		}
		f.To = &t
	}

	out, err := h.ordersUC.List(c.Request().Context(), f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) updateStatus(c echo.Context) error {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: usecase.CodeUnauthorized})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id", Code: usecase.CodeInvalidInput})
	}

	var req UpdateOrderStatusRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body", Code: usecase.CodeInvalidInput})
	}

	out, err := h.ordersUC.UpdateStatus(c.Request().Context(), adminID, id, req.Status)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) issueTracking(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id", Code: usecase.CodeInvalidInput})
	}

	out, err := h.shippingUC.IssueTracking(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}

	//再実行で既存番号を返すときも200
	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) markDelivered(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id", Code: usecase.CodeInvalidInput})
	}

	if err := h.shippingUC.MarkDelivered(c.Request().Context(), id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
