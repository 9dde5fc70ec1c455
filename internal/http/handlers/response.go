// Package handlers implements the public HTTP API: batch reconciliation,
// cache validation, and order reads.
//
// This file holds the response helpers every endpoint goes through. Errors
// always use the ErrorResponse envelope with a stable machine-readable code
// so callers can branch on `code` instead of parsing prose; 5xx failures are
// additionally logged with the request-scoped logger.
//
// Error shape:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "order not found"
//	}
//
// Success bodies are endpoint-specific, e.g. a reconcile summary:
//
//	HTTP/1.1 200 OK
//	{ "created": 1, "updated": 1, "skipped": 1, "errors": 0, ... }
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orderdesk/go-orders-backend/internal/http/middleware"
)

// ErrorResponse is the error envelope shared by every endpoint. RequestID
// echoes X-Request-ID so a client-reported failure can be matched to server
// logs; Code is one of the errors.go constants and is part of the API
// contract, Message is not.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code      string `json:"code" example:"not_found"`
	Message   string `json:"message" example:"order not found"`
}

// fail aborts the request with a structured error envelope. Server-side
// failures (>= 500) are logged here so handlers do not have to remember to.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}

	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail for code outside this package, such
// as the router's NoRoute and NoMethod fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes a success JSON response with the given status.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes 204 for operations that succeed without a body.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
