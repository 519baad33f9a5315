// Package handler implements the billing API endpoints.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/bizbook/backend/internal/domain/access"
	"github.com/bizbook/backend/internal/domain/payment"
	"github.com/bizbook/backend/internal/domain/shared"
	"github.com/bizbook/backend/internal/infrastructure/logger"
	"github.com/bizbook/backend/internal/interfaces/http/dto"
	"github.com/bizbook/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Error sends an error response, deriving the status from the code
func (h *BaseHandler) Error(c *gin.Context, code, message string) {
	c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// ErrorWithDetails sends an error response with a details payload
func (h *BaseHandler) ErrorWithDetails(c *gin.Context, code, message string, details any) {
	c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponseWithDetails(code, message, middleware.GetRequestID(c), details))
}

// Unauthorized sends a 401 response
func (h *BaseHandler) Unauthorized(c *gin.Context) {
	h.Error(c, dto.ErrCodeUnauthorized, "Authentication required")
}

// BindJSON binds the body into req. Malformed JSON is a 400; a body that
// parses but fails validation is a 422 with per-field details. It reports
// whether the handler should continue.
func (h *BaseHandler) BindJSON(c *gin.Context, req any) bool {
	return h.bind(c, c.ShouldBindJSON(req))
}

// BindQuery binds query parameters into req
func (h *BaseHandler) BindQuery(c *gin.Context, req any) bool {
	return h.bind(c, c.ShouldBindQuery(req))
}

func (h *BaseHandler) bind(c *gin.Context, err error) bool {
	if err == nil {
		return true
	}
	if details := middleware.ValidationDetails(err); details != nil {
		c.JSON(http.StatusUnprocessableEntity, dto.NewValidationErrorResponse(
			"Request validation failed", middleware.GetRequestID(c), details))
		return false
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		h.Error(c, dto.ErrCodeInvalidJSON, "Request body is not valid JSON")
	case errors.As(err, &typeErr):
		h.ErrorWithDetails(c, dto.ErrCodeValidation, "Request validation failed", []dto.ValidationDetail{
			{Field: typeErr.Field, Message: "has the wrong type"},
		})
	case errors.Is(err, io.EOF):
		h.Error(c, dto.ErrCodeValidation, "Request body is required")
	default:
		h.Error(c, dto.ErrCodeValidation, err.Error())
	}
	return false
}

// HandleDomainError converts service errors to HTTP responses
func (h *BaseHandler) HandleDomainError(c *gin.Context, err error) {
	var forbidden *shared.ForbiddenError
	if errors.As(err, &forbidden) {
		h.ErrorWithDetails(c, dto.ErrCodeForbidden, forbidden.Message, dto.ForbiddenDetail{
			Reason:           forbidden.Reason,
			Feature:          forbidden.Feature,
			CurrentPlan:      forbidden.CurrentPlan,
			UpgradeAvailable: forbidden.UpgradeAvailable,
		})
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		h.Error(c, dto.NormalizeErrorCode(domainErr.Code), domainErr.Message)
		return
	}

	switch {
	case errors.Is(err, payment.ErrGatewayNotConfigured):
		h.Error(c, dto.ErrCodeNotConfigured, "Payment gateway is not configured")
	case errors.Is(err, payment.ErrGatewayInvalidCallback):
		h.Error(c, dto.ErrCodeInvalidSignature, "Invalid callback signature")
	default:
		logger.FromContext(c.Request.Context()).Error("Unhandled request error",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		h.Error(c, dto.ErrCodeInternal, "An unexpected error occurred")
	}
}

// subject returns the authenticated caller or writes a 401
func (h *BaseHandler) subject(c *gin.Context) (access.Subject, bool) {
	s, ok := middleware.SubjectFromContext(c)
	if !ok {
		h.Unauthorized(c)
	}
	return s, ok
}

// userID returns the authenticated user or writes a 401
func (h *BaseHandler) userID(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.UserUUID(c)
	if !ok {
		h.Unauthorized(c)
	}
	return id, ok
}

// parseUUID parses an optional UUID field already checked by binding
func parseUUID(s string) *uuid.UUID {
	if s == "" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}
