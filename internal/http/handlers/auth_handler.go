package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vouh/Course-corner-sub000/internal/services"
	"github.com/vouh/Course-corner-sub000/internal/utils"
)

type AuthHandler struct {
	auth *services.AuthService
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func NewAuthHandler(auth *services.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidationError(c, err.Error())
		return
	}

	resp, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
