package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/vouh/Course-corner-sub000/internal/realtime"
	"github.com/vouh/Course-corner-sub000/internal/services"
	"github.com/vouh/Course-corner-sub000/internal/utils"
)

type PaymentHandler struct {
	intake   *services.IntakeService
	status   *services.StatusService
	hub      *realtime.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

type PaymentCreateRequest struct {
	Phone        string          `json:"phone" binding:"required"`
	Amount       decimal.Decimal `json:"amount"`
	Category     string          `json:"category" binding:"required"`
	ReferralCode string          `json:"referral_code"`
}

func NewPaymentHandler(
	intake *services.IntakeService,
	status *services.StatusService,
	hub *realtime.Hub,
	checkOrigin func(r *http.Request) bool,
	logger *slog.Logger,
) *PaymentHandler {
	return &PaymentHandler{
		intake: intake,
		status: status,
		hub:    hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
	}
}

func (h *PaymentHandler) Create(c *gin.Context) {
	var req PaymentCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidationError(c, err.Error())
		return
	}

	res, err := h.intake.Initiate(c.Request.Context(), services.InitiateRequest{
		Phone:        req.Phone,
		Amount:       req.Amount,
		Category:     req.Category,
		ReferralCode: req.ReferralCode,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.RespondCreated(c, res)
}

func (h *PaymentHandler) Get(c *gin.Context) {
	view, err := h.status.Status(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondOK(c, view)
}

// Stream upgrades to a websocket that receives the session's status as it
// changes. The first message is the status as stored once the subscription
// is in place.
func (h *PaymentHandler) Stream(c *gin.Context) {
	view, err := h.status.Status(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "session_id", view.SessionID, "error", err)
		return
	}
	sessionID := view.SessionID
	h.hub.Serve(conn, sessionID, func() (*services.PaymentView, error) {
		return h.status.Snapshot(context.WithoutCancel(c.Request.Context()), sessionID)
	})
}
