package handler

import (
	"io"
	"net/http"

	paymentapp "github.com/bizbook/backend/internal/application/payment"
	"github.com/bizbook/backend/internal/infrastructure/logger"
	"github.com/bizbook/backend/internal/infrastructure/payment/waafipay"
	"github.com/bizbook/backend/internal/interfaces/http/dto"
	"github.com/bizbook/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WebhookHandler receives WaafiPay callbacks. The route is public; when a
// secret is configured every body must carry a valid signature.
type WebhookHandler struct {
	BaseHandler
	service *paymentapp.GatewayPaymentService
	secret  string
}

// NewWebhookHandler creates a new WebhookHandler. An empty secret disables
// signature verification.
func NewWebhookHandler(service *paymentapp.GatewayPaymentService, secret string) *WebhookHandler {
	return &WebhookHandler{service: service, secret: secret}
}

// Handle godoc
//
//	@Summary	Receive a WaafiPay callback
//	@Tags		webhooks
//	@Accept		json
//	@Produce	json
//	@Param		X-Waafi-Signature	header		string	false	"Hex HMAC-SHA256 of the body"
//	@Success	200					{object}	dto.Response{data=dto.WebhookResponse}
//	@Failure	400					{object}	dto.Response	"Missing referenceId"
//	@Failure	401					{object}	dto.Response	"Bad signature"
//	@Failure	404					{object}	dto.Response	"Unknown transaction"
//	@Failure	413					{object}	dto.Response	"Body over 64 KiB"
//	@Router		/waafipay/webhook [post]
func (h *WebhookHandler) Handle(c *gin.Context) {
	log := logger.FromContext(c.Request.Context())

	body, err := io.ReadAll(c.Request.Body)
	if middleware.IsBodyTooLarge(err) {
		log.Warn("Webhook body over limit", zap.String("client_ip", c.ClientIP()))
		h.Error(c, dto.ErrCodeRequestTooLarge, "Callback body is too large")
		return
	}
	if err != nil {
		h.Error(c, dto.ErrCodeBadRequest, "Could not read request body")
		return
	}
	if err := waafipay.VerifySignature(h.secret, body, c.GetHeader(waafipay.SignatureHeader)); err != nil {
		log.Warn("Webhook signature rejected", zap.String("client_ip", c.ClientIP()))
		h.HandleDomainError(c, err)
		return
	}

	cb, err := waafipay.ParseCallback(body)
	if err != nil {
		h.Error(c, dto.ErrCodeInvalidJSON, "Callback body is not valid JSON")
		return
	}
	if cb.ReferenceID == "" {
		h.Error(c, dto.ErrCodeBadRequest, "referenceId is required")
		return
	}

	result, err := h.service.HandleWebhook(c.Request.Context(), paymentapp.WebhookPayload{
		ReferenceID:   cb.ReferenceID,
		TransactionID: cb.TransactionID,
		ResponseCode:  cb.ResponseCode,
		State:         cb.State,
		ResponseMsg:   cb.ResponseMsg,
		Raw:           cb.Raw,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	log.Info("Webhook handled",
		zap.String("reference_id", result.ReferenceID),
		zap.String("status", string(result.Status)),
		zap.Bool("applied", result.Applied))
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.NewWebhookResponse(result)))
}
