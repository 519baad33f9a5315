package handler

import (
	paymentapp "github.com/bizbook/backend/internal/application/payment"
	"github.com/bizbook/backend/internal/domain/payment"
	"github.com/bizbook/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// OfflineReviewHandler serves the admin review queue for offline payments.
// Routes are mounted behind the payments:approve permission.
type OfflineReviewHandler struct {
	BaseHandler
	service *paymentapp.OfflinePaymentService
}

// NewOfflineReviewHandler creates a new OfflineReviewHandler
func NewOfflineReviewHandler(service *paymentapp.OfflinePaymentService) *OfflineReviewHandler {
	return &OfflineReviewHandler{service: service}
}

// List godoc
//
//	@Summary	List offline payments
//	@Tags		admin
//	@Produce	json
//	@Param		status		query		string	false	"pending_approval, approved or rejected"
//	@Param		page		query		int		false	"Page"
//	@Param		page_size	query		int		false	"Page size"
//	@Success	200			{object}	dto.Response{data=[]dto.OfflineTransactionResponse}
//	@Router		/admin/payments/offline [get]
func (h *OfflineReviewHandler) List(c *gin.Context) {
	req := dto.OfflineListRequest{ListRequest: dto.DefaultListRequest()}
	if !h.BindQuery(c, &req) {
		return
	}
	rows, total, err := h.service.List(c.Request.Context(), payment.Status(req.Status), req.Page, req.PageSize)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	items := make([]dto.OfflineTransactionResponse, len(rows))
	for i := range rows {
		items[i] = dto.NewOfflineTransactionResponse(&rows[i])
	}
	h.SuccessWithMeta(c, items, total, req.Page, req.PageSize)
}

// Approve godoc
//
//	@Summary	Approve an offline payment
//	@Tags		admin
//	@Accept		json
//	@Produce	json
//	@Param		reference_id	path		string				true	"Reference"
//	@Param		request			body		dto.ApproveRequest	false	"Notes"
//	@Success	200				{object}	dto.Response{data=dto.ReviewResponse}
//	@Failure	404				{object}	dto.Response
//	@Router		/admin/payments/offline/{reference_id}/approve [post]
func (h *OfflineReviewHandler) Approve(c *gin.Context) {
	adminID, ok := h.userID(c)
	if !ok {
		return
	}
	var req dto.ApproveRequest
	if c.Request.ContentLength != 0 && !h.BindJSON(c, &req) {
		return
	}
	result, err := h.service.Approve(c.Request.Context(), c.Param("reference_id"), adminID, req.Notes)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, dto.NewReviewResponse(result))
}

// Reject godoc
//
//	@Summary	Reject an offline payment
//	@Tags		admin
//	@Accept		json
//	@Produce	json
//	@Param		reference_id	path		string				true	"Reference"
//	@Param		request			body		dto.RejectRequest	true	"Reason"
//	@Success	200				{object}	dto.Response{data=dto.ReviewResponse}
//	@Failure	404				{object}	dto.Response
//	@Failure	422				{object}	dto.Response
//	@Router		/admin/payments/offline/{reference_id}/reject [post]
func (h *OfflineReviewHandler) Reject(c *gin.Context) {
	adminID, ok := h.userID(c)
	if !ok {
		return
	}
	var req dto.RejectRequest
	if !h.BindJSON(c, &req) {
		return
	}
	result, err := h.service.Reject(c.Request.Context(), c.Param("reference_id"), req.Reason, adminID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, dto.NewReviewResponse(result))
}

// Proof godoc
//
//	@Summary	Get a presigned download URL for a payment proof
//	@Tags		admin
//	@Produce	json
//	@Param		reference_id	path		string	true	"Reference"
//	@Success	200				{object}	dto.Response{data=dto.PresignedURLResponse}
//	@Failure	404				{object}	dto.Response
//	@Failure	503				{object}	dto.Response
//	@Router		/admin/payments/offline/{reference_id}/proof [get]
func (h *OfflineReviewHandler) Proof(c *gin.Context) {
	url, expiresAt, err := h.service.ProofDownloadURL(c.Request.Context(), c.Param("reference_id"))
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, dto.PresignedURLResponse{URL: url, ExpiresAt: expiresAt})
}
