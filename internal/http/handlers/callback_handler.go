package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vouh/Course-corner-sub000/internal/services"
)

const maxCallbackBody = 64 << 10

type CallbackHandler struct {
	callbacks *services.CallbackService
	logger    *slog.Logger
}

func NewCallbackHandler(callbacks *services.CallbackService, logger *slog.Logger) *CallbackHandler {
	return &CallbackHandler{callbacks: callbacks, logger: logger}
}

// STK acknowledges every delivery. The provider retries anything else, and
// a retry can never change the outcome.
func (h *CallbackHandler) STK(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
	if err != nil {
		h.logger.Warn("read callback body failed", "error", err)
	} else if err := h.callbacks.Handle(c.Request.Context(), body); err != nil {
		h.logger.Warn("callback not applied", "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
}
