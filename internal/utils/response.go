package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vouh/Course-corner-sub000/internal/reconcile"
)

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type AppError struct {
	Status  int
	Code    string
	Message string
	Details interface{}
}

func (e *AppError) Error() string {
	return e.Message
}

func NewAppError(status int, code, message string, details interface{}) *AppError {
	return &AppError{Status: status, Code: code, Message: message, Details: details}
}

// FromError maps domain errors onto the HTTP error envelope. Anything it
// does not recognise is an internal error and its text is not exposed.
func FromError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, reconcile.ErrInvalidInput):
		return NewAppError(http.StatusBadRequest, "VALIDATION_ERROR", "invalid request", err.Error())
	case errors.Is(err, reconcile.ErrSessionNotFound):
		return NewAppError(http.StatusNotFound, "NOT_FOUND", "payment session not found", nil)
	case errors.Is(err, reconcile.ErrProviderRejected):
		return NewAppError(http.StatusBadGateway, "PROVIDER_REJECTED", "payment provider rejected the request", nil)
	case errors.Is(err, reconcile.ErrProviderUnavailable):
		return NewAppError(http.StatusServiceUnavailable, "PROVIDER_UNAVAILABLE", "payment provider unavailable, try again", nil)
	case errors.Is(err, reconcile.ErrReceiptAlreadyUsed):
		return NewAppError(http.StatusConflict, "CONFLICT", "receipt already redeemed", nil)
	default:
		return NewAppError(http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error", nil)
	}
}

func RespondError(c *gin.Context, err error) {
	appErr := FromError(err)
	c.JSON(appErr.Status, ErrorResponse{Error: ErrorBody{
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	}})
}

func RespondValidationError(c *gin.Context, details interface{}) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: ErrorBody{
		Code:    "VALIDATION_ERROR",
		Message: "invalid request",
		Details: details,
	}})
}

func RespondOK(c *gin.Context, payload interface{}) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload interface{}) {
	c.JSON(http.StatusCreated, payload)
}
