package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"shop/internal/config"
	"shop/internal/middleware"
	"shop/internal/repository"
	"shop/internal/usecase"

	"github.com/labstack/echo/v4"
)

// 決済Webhook（公開）と管理画面の決済API
type PaymentHandler struct {
	webhookUC *usecase.PaymentWebhookUsecase
	adminUC   *usecase.AdminPaymentUsecase
}

func NewPaymentHandler(webhookUC *usecase.PaymentWebhookUsecase, adminUC *usecase.AdminPaymentUsecase) *PaymentHandler {
	return &PaymentHandler{webhookUC: webhookUC, adminUC: adminUC}
}

// ゲートウェイからの確認通知。form-urlencodedでもJSONでも受ける。
type WebhookRequest struct {
	ReferenceCode string `json:"reference_code" form:"reference_code"`
	StatePol      string `json:"state_pol" form:"state_pol"`
	Value         string `json:"value" form:"value"`
	Currency      string `json:"currency" form:"currency"`
	ReferencePol  string `json:"reference_pol" form:"reference_pol"`
	Sign          string `json:"sign" form:"sign"`
}

// public はレート制限付きの公開グループ。
func (h *PaymentHandler) RegisterRoutes(e *echo.Echo, public *echo.Group, cfg config.Config, userRepo repository.UserRepository) {
	public.POST("/payments/webhook", h.webhook)

	g := e.Group("/admin/payments")
	g.Use(middleware.AuthJWT(cfg))
	g.Use(middleware.TokenVersionGuard(userRepo))
	g.Use(middleware.AdminRoleGuard())

	g.GET("", h.list)
	g.GET("/stats", h.stats)
	g.GET("/anomalies", h.anomalies)
}

func (h *PaymentHandler) webhook(c echo.Context) error {
	var req WebhookRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body", Code: usecase.CodeInvalidInput})
	}

	//監査用に受信内容をそのまま残す
	raw, _ := json.Marshal(req)

	err := h.webhookUC.HandleWebhook(c.Request().Context(), usecase.WebhookInput{
		ReferenceCode: req.ReferenceCode,
		StatePol:      req.StatePol,
		Value:         req.Value,
		Currency:      req.Currency,
		TransactionID: req.ReferencePol,
		Sign:          req.Sign,
		RawPayload:    string(raw),
	})
	if err != nil {
		return writeError(c, err)
	}

	//2xx以外はゲートウェイが再送してくるので受理は必ず200
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *PaymentHandler) list(c echo.Context) error {
	limit, offset := parsePagination(c)

	out, err := h.adminUC.List(c.Request().Context(), repository.AdminPaymentListFilter{
		Limit:  limit,
		Offset: offset,
		Status: c.QueryParam("status"),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *PaymentHandler) stats(c echo.Context) error {
	out, err := h.adminUC.Stats(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *PaymentHandler) anomalies(c echo.Context) error {
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}
	offset := 0
	if v := c.QueryParam("offset"); v != "" {
		if o, err := strconv.Atoi(v); err == nil {
			offset = o
		}
	}

	out, err := h.adminUC.Anomalies(c.Request().Context(), limit, offset)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
