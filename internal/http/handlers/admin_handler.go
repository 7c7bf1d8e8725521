package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vouh/Course-corner-sub000/internal/models"
	"github.com/vouh/Course-corner-sub000/internal/repo"
	"github.com/vouh/Course-corner-sub000/internal/services"
	"github.com/vouh/Course-corner-sub000/internal/utils"
)

type AdminHandler struct {
	transactions services.TransactionStore
	sweeper      *services.Sweeper
	queryAfter   time.Duration
}

func NewAdminHandler(transactions services.TransactionStore, sweeper *services.Sweeper, queryAfter time.Duration) *AdminHandler {
	return &AdminHandler{transactions: transactions, sweeper: sweeper, queryAfter: queryAfter}
}

type AdminTransaction struct {
	services.PaymentView
	Phone         string  `json:"phone"`
	ReferralCode  *string `json:"referral_code,omitempty"`
	CreditApplied bool    `json:"credit_applied"`
}

func (h *AdminHandler) List(c *gin.Context) {
	page, perPage := utils.PageParams(c)
	filters := repo.TransactionFilters{
		Status:  c.Query("status"),
		Page:    page,
		PerPage: perPage,
	}
	if filters.Status != "" && !models.Status(filters.Status).Valid() {
		utils.RespondValidationError(c, "unknown status")
		return
	}
	if phone := c.Query("phone"); phone != "" {
		normalized, err := services.NormalizePhone(phone)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		filters.Phone = normalized
	}

	items, total, err := h.transactions.List(c.Request.Context(), filters)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	now := time.Now()
	data := make([]AdminTransaction, 0, len(items))
	for _, item := range items {
		data = append(data, AdminTransaction{
			PaymentView:   services.NewPaymentView(item, now, h.queryAfter),
			Phone:         item.Phone,
			ReferralCode:  item.ReferralCode,
			CreditApplied: item.CreditApplied,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"data": data,
		"meta": utils.NewPagination(filters.Page, filters.PerPage, total),
	})
}

// Sweep runs one sweep pass inline and returns its report.
func (h *AdminHandler) Sweep(c *gin.Context) {
	report, err := h.sweeper.Run(c.Request.Context())
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondOK(c, report)
}
