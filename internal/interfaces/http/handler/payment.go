package handler

import (
	paymentapp "github.com/bizbook/backend/internal/application/payment"
	"github.com/bizbook/backend/internal/domain/shared"
	"github.com/bizbook/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// PaymentHandler serves the mobile-wallet payment endpoints
type PaymentHandler struct {
	BaseHandler
	service *paymentapp.GatewayPaymentService
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(service *paymentapp.GatewayPaymentService) *PaymentHandler {
	return &PaymentHandler{service: service}
}

// Methods godoc
//
//	@Summary	List payment methods
//	@Tags		payments
//	@Produce	json
//	@Success	200	{object}	dto.Response{data=dto.PaymentMethodsResponse}
//	@Failure	503	{object}	dto.Response
//	@Router		/payment/methods [get]
func (h *PaymentHandler) Methods(c *gin.Context) {
	methods, err := h.service.Methods()
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, dto.PaymentMethodsResponse{Methods: methods})
}

// Initiate godoc
//
//	@Summary	Charge a mobile wallet
//	@Tags		payments
//	@Accept		json
//	@Produce	json
//	@Param		request	body		dto.InitiatePaymentRequest	true	"Payment request"
//	@Success	200		{object}	dto.Response{data=dto.InitiatePaymentResponse}
//	@Failure	400		{object}	dto.Response	"Declined by the gateway"
//	@Failure	422		{object}	dto.Response
//	@Failure	503		{object}	dto.Response
//	@Router		/payment/initiate [post]
func (h *PaymentHandler) Initiate(c *gin.Context) {
	subject, ok := h.subject(c)
	if !ok {
		return
	}
	var req dto.InitiatePaymentRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.service.Initiate(c.Request.Context(), paymentapp.InitiateInput{
		UserID:       subject.UserID,
		BusinessID:   subject.BusinessID,
		PlanID:       parseUUID(req.PlanID),
		Amount:       req.Amount,
		PhoneNumber:  req.PhoneNumber,
		WalletType:   req.WalletType,
		CustomerName: req.CustomerName,
		Description:  req.Description,
		InvoiceID:    req.InvoiceID,
	})
	if err != nil {
		if de, declined := shared.GetDomainError(err); declined && result != nil {
			// the client still needs the reference the decline was recorded under
			h.ErrorWithDetails(c, dto.ErrCodeGateway, de.Message, dto.NewInitiatePaymentResponse(result))
			return
		}
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, dto.NewInitiatePaymentResponse(result))
}

// Status godoc
//
//	@Summary	Get mobile-wallet payment status
//	@Tags		payments
//	@Accept		json
//	@Produce	json
//	@Param		request	body		dto.ReferenceRequest	true	"Reference"
//	@Success	200		{object}	dto.Response{data=dto.PaymentStatusResponse}
//	@Failure	404		{object}	dto.Response
//	@Router		/payment/status [post]
func (h *PaymentHandler) Status(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	var req dto.ReferenceRequest
	if !h.BindJSON(c, &req) {
		return
	}
	result, err := h.service.CheckStatus(c.Request.Context(), req.ReferenceID, userID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, dto.NewPaymentStatusResponse(result))
}
