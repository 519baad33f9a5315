package handler

import (
	paymentapp "github.com/bizbook/backend/internal/application/payment"
	"github.com/bizbook/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OfflinePaymentHandler serves the bank transfer endpoints of payers
type OfflinePaymentHandler struct {
	BaseHandler
	service *paymentapp.OfflinePaymentService
}

// NewOfflinePaymentHandler creates a new OfflinePaymentHandler
func NewOfflinePaymentHandler(service *paymentapp.OfflinePaymentService) *OfflinePaymentHandler {
	return &OfflinePaymentHandler{service: service}
}

// Instructions godoc
//
//	@Summary	Get bank transfer instructions
//	@Tags		offline-payments
//	@Produce	json
//	@Success	200	{object}	dto.Response{data=dto.InstructionsResponse}
//	@Failure	503	{object}	dto.Response
//	@Router		/payment/offline/instructions [get]
func (h *OfflinePaymentHandler) Instructions(c *gin.Context) {
	text, err := h.service.Instructions()
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, dto.InstructionsResponse{Instructions: text})
}

// Initiate godoc
//
//	@Summary	Submit an offline payment for review
//	@Tags		offline-payments
//	@Accept		json
//	@Produce	json
//	@Param		request	body		dto.OfflinePaymentRequest	true	"Submission"
//	@Success	200		{object}	dto.Response{data=dto.OfflinePaymentResponse}
//	@Failure	403		{object}	dto.Response	"Not a business account"
//	@Failure	422		{object}	dto.Response
//	@Failure	429		{object}	dto.Response
//	@Failure	503		{object}	dto.Response
//	@Router		/payment/offline [post]
func (h *OfflinePaymentHandler) Initiate(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	var req dto.OfflinePaymentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	result, err := h.service.Initiate(c.Request.Context(), paymentapp.OfflineInitiateInput{
		UserID:         userID,
		PlanID:         uuid.MustParse(req.PlanID),
		ProofOfPayment: req.ProofOfPayment,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, dto.NewOfflinePaymentResponse(result))
}

// Status godoc
//
//	@Summary	Get offline payment status
//	@Tags		offline-payments
//	@Accept		json
//	@Produce	json
//	@Param		request	body		dto.ReferenceRequest	true	"Reference"
//	@Success	200		{object}	dto.Response{data=dto.PaymentStatusResponse}
//	@Failure	404		{object}	dto.Response
//	@Router		/payment/offline/status [post]
func (h *OfflinePaymentHandler) Status(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	var req dto.ReferenceRequest
	if !h.BindJSON(c, &req) {
		return
	}
	result, err := h.service.Status(c.Request.Context(), req.ReferenceID, userID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, dto.NewPaymentStatusResponse(result))
}

// ProofUpload godoc
//
//	@Summary	Get a presigned proof upload URL
//	@Tags		offline-payments
//	@Accept		json
//	@Produce	json
//	@Param		request	body		dto.ProofUploadRequest	true	"File type"
//	@Success	200		{object}	dto.Response{data=dto.PresignedURLResponse}
//	@Failure	422		{object}	dto.Response
//	@Failure	503		{object}	dto.Response
//	@Router		/payment/offline/proof-upload [post]
func (h *OfflinePaymentHandler) ProofUpload(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	var req dto.ProofUploadRequest
	if !h.BindJSON(c, &req) {
		return
	}
	upload, err := h.service.ProofUploadURL(c.Request.Context(), userID, req.ContentType)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, dto.PresignedURLResponse{
		URL:        upload.UploadURL,
		StorageKey: upload.StorageKey,
		ExpiresAt:  upload.ExpiresAt,
	})
}
