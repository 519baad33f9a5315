package handler

import (
	appaccess "github.com/bizbook/backend/internal/application/access"
	"github.com/gin-gonic/gin"
)

// AccessHandler lets clients ask the feature gate ahead of time, so a UI can
// hide what the caller's plan does not include
type AccessHandler struct {
	BaseHandler
	gate *appaccess.FeatureGate
}

// NewAccessHandler creates a new AccessHandler
func NewAccessHandler(gate *appaccess.FeatureGate) *AccessHandler {
	return &AccessHandler{gate: gate}
}

// AccessResponse reports an allowed check
type AccessResponse struct {
	Allowed bool   `json:"allowed"`
	Feature string `json:"feature,omitempty"`
}

// Write godoc
//
//	@Summary	Check whether the caller may write
//	@Tags		access
//	@Produce	json
//	@Success	200	{object}	dto.Response{data=AccessResponse}
//	@Failure	403	{object}	dto.Response{error=dto.ErrorInfo{details=dto.ForbiddenDetail}}
//	@Router		/access/write [get]
func (h *AccessHandler) Write(c *gin.Context) {
	subject, ok := h.subject(c)
	if !ok {
		return
	}
	d, err := h.gate.AuthorizeWrite(c.Request.Context(), subject)
	if err == nil {
		err = d.Err()
	}
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, AccessResponse{Allowed: true})
}

// Feature godoc
//
//	@Summary	Check whether the caller's plan includes a feature
//	@Tags		access
//	@Produce	json
//	@Param		feature	path		string	true	"Feature name"
//	@Success	200		{object}	dto.Response{data=AccessResponse}
//	@Failure	403		{object}	dto.Response{error=dto.ErrorInfo{details=dto.ForbiddenDetail}}
//	@Router		/access/features/{feature} [get]
func (h *AccessHandler) Feature(c *gin.Context) {
	subject, ok := h.subject(c)
	if !ok {
		return
	}
	feature := c.Param("feature")
	d, err := h.gate.AuthorizeFeature(c.Request.Context(), subject, feature)
	if err == nil {
		err = d.Err()
	}
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}
	h.Success(c, AccessResponse{Allowed: true, Feature: feature})
}
