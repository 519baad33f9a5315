package handler

import (
	subscriptionapp "github.com/bizbook/backend/internal/application/subscription"
	"github.com/bizbook/backend/internal/domain/access"
	"github.com/bizbook/backend/internal/domain/plan"
	"github.com/bizbook/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SubscriptionHandler serves the caller's entitlement and the plan catalog
type SubscriptionHandler struct {
	BaseHandler
	ledger *subscriptionapp.LedgerService
	plans  plan.Repository
}

// NewSubscriptionHandler creates a new SubscriptionHandler
func NewSubscriptionHandler(ledger *subscriptionapp.LedgerService, plans plan.Repository) *SubscriptionHandler {
	return &SubscriptionHandler{ledger: ledger, plans: plans}
}

// Current godoc
//
//	@Summary	Get the current subscription
//	@Tags		subscription
//	@Produce	json
//	@Success	200	{object}	dto.Response{data=dto.SubscriptionResponse}
//	@Failure	404	{object}	dto.Response	"Business has no subscription"
//	@Router		/subscription [get]
func (h *SubscriptionHandler) Current(c *gin.Context) {
	subject, ok := h.subject(c)
	if !ok {
		return
	}
	if subject.IsIndividual() {
		h.Success(c, dto.SubscriptionResponse{Status: dto.SubscriptionStatusNotApplicable})
		return
	}
	view, err := h.ledger.CurrentEntitlement(c.Request.Context(), *subject.BusinessID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, dto.NewSubscriptionResponse(view))
}

// StartTrial godoc
//
//	@Summary	Start the trial of a business
//	@Tags		subscription
//	@Accept		json
//	@Produce	json
//	@Param		request	body		dto.StartTrialRequest	true	"Trial plan"
//	@Success	200		{object}	dto.Response{data=dto.SubscriptionResponse}
//	@Failure	403		{object}	dto.Response
//	@Failure	409		{object}	dto.Response	"Subscription already exists"
//	@Router		/subscription/trial [post]
func (h *SubscriptionHandler) StartTrial(c *gin.Context) {
	subject, ok := h.subject(c)
	if !ok {
		return
	}
	if subject.IsIndividual() {
		h.HandleDomainError(c, access.Deny(access.ReasonWrongAccountType).Err())
		return
	}
	var req dto.StartTrialRequest
	if !h.BindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	if _, err := h.ledger.StartTrial(ctx, *subject.BusinessID, uuid.MustParse(req.PlanID)); err != nil {
		h.HandleDomainError(c, err)
		return
	}
	view, err := h.ledger.CurrentEntitlement(ctx, *subject.BusinessID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, dto.NewSubscriptionResponse(view))
}

// Plans godoc
//
//	@Summary	List purchasable plans
//	@Tags		subscription
//	@Produce	json
//	@Success	200	{object}	dto.Response{data=[]dto.PlanResponse}
//	@Router		/plans [get]
func (h *SubscriptionHandler) Plans(c *gin.Context) {
	plans, err := h.plans.FindActive(c.Request.Context())
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	items := make([]dto.PlanResponse, len(plans))
	for i := range plans {
		items[i] = dto.NewPlanResponse(&plans[i])
	}
	h.Success(c, items)
}
