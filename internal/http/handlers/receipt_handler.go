package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/vouh/Course-corner-sub000/internal/services"
	"github.com/vouh/Course-corner-sub000/internal/utils"
)

type ReceiptHandler struct {
	redemption *services.RedemptionService
}

type RedeemRequest struct {
	ReceiptCode string `json:"receipt_code" binding:"required"`
	Phone       string `json:"phone"`
}

func NewReceiptHandler(redemption *services.RedemptionService) *ReceiptHandler {
	return &ReceiptHandler{redemption: redemption}
}

func (h *ReceiptHandler) Redeem(c *gin.Context) {
	var req RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidationError(c, err.Error())
		return
	}

	tx, err := h.redemption.Redeem(c.Request.Context(), req.ReceiptCode, req.Phone)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.RespondOK(c, gin.H{
		"session_id":   tx.SessionID,
		"receipt_code": tx.ReceiptCode,
		"category":     tx.Category,
		"amount":       tx.Amount,
		"used":         tx.Used,
	})
}
