package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acrespo/splitledger/internal/ledger"
	"github.com/acrespo/splitledger/internal/models"
	"github.com/acrespo/splitledger/internal/service"
)

// Handler holds the API handlers and their dependencies
type Handler struct {
	svc service.Service
}

// NewHandler creates a new API handler
func NewHandler(svc service.Service) *Handler {
	return &Handler{svc: svc}
}

// SetupRoutes registers all API routes on the router
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(MetricsMiddleware())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")

	auth := api.Group("/auth")
	{
		auth.POST("/signup", h.SignUp)
		auth.POST("/login", h.Login)
	}

	authorized := api.Group("")
	authorized.Use(AuthMiddleware())
	{
		authorized.POST("/groups", h.CreateGroup)
		authorized.GET("/groups", h.ListGroups)
		authorized.GET("/groups/:id", h.GetGroup)
		authorized.POST("/groups/:id/members", h.AddGroupMember)
		authorized.GET("/groups/:id/balances", h.GetGroupBalances)
		authorized.POST("/groups/:id/settlements", h.CreateSettlement)
		authorized.GET("/groups/:id/settlements", h.ListSettlements)

		authorized.POST("/transactions", h.CreateTransaction)
		authorized.GET("/transactions/:id", h.GetTransaction)
		authorized.POST("/transactions/:id/split", h.SplitTransaction)

		authorized.POST("/settlements/:id/pay", h.MarkSettlementPaid)
		authorized.POST("/settlements/:id/cancel", h.CancelSettlement)

		authorized.GET("/notifications", h.ListNotifications)
	}
}

// Authentication handlers
func (h *Handler) SignUp(c *gin.Context) {
	var req models.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.svc.SignUp(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.svc.Login(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, ledger.ErrUnauthorized) {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{
				Status:  "error",
				Code:    "UNAUTHORIZED",
				Message: err.Error(),
			})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Group handlers
func (h *Handler) CreateGroup(c *gin.Context) {
	var req models.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.svc.CreateGroup(c.Request.Context(), userID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) ListGroups(c *gin.Context) {
	resp, err := h.svc.ListGroups(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetGroup(c *gin.Context) {
	resp, err := h.svc.GetGroup(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) AddGroupMember(c *gin.Context) {
	var req models.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.svc.AddGroupMember(c.Request.Context(), userID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetGroupBalances(c *gin.Context) {
	resp, err := h.svc.ComputeBalances(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Transaction handlers
func (h *Handler) CreateTransaction(c *gin.Context) {
	var req models.CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.svc.CreateTransaction(c.Request.Context(), userID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) GetTransaction(c *gin.Context) {
	resp, err := h.svc.GetTransaction(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) SplitTransaction(c *gin.Context) {
	var req models.SplitTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.svc.ApplySplit(c.Request.Context(), userID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Settlement handlers
func (h *Handler) CreateSettlement(c *gin.Context) {
	var req models.CreateSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := h.svc.CreateSettlement(c.Request.Context(), userID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) ListSettlements(c *gin.Context) {
	resp, err := h.svc.ListSettlements(c.Request.Context(), userID(c), c.Param("id"), c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) MarkSettlementPaid(c *gin.Context) {
	resp, err := h.svc.MarkSettlementPaid(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) CancelSettlement(c *gin.Context) {
	resp, err := h.svc.CancelSettlement(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Notification handlers
func (h *Handler) ListNotifications(c *gin.Context) {
	resp, err := h.svc.ListNotifications(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Helpers
func userID(c *gin.Context) string {
	return c.GetString("userId")
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Status:  "error",
		Code:    "VALIDATION_ERROR",
		Message: err.Error(),
	})
}

// respondError maps the ledger error kinds onto HTTP status codes.
// Everything unrecognized is a 500 with a generic message.
func respondError(c *gin.Context, err error) {
	var status int
	var code string

	switch {
	case errors.Is(err, ledger.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, ledger.ErrValidation):
		status, code = http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, ledger.ErrDataIntegrity):
		status, code = http.StatusBadRequest, "DATA_INTEGRITY"
	case errors.Is(err, ledger.ErrUnauthorized):
		status, code = http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, ledger.ErrInvalidStateTransition):
		status, code = http.StatusConflict, "INVALID_STATE_TRANSITION"
	case errors.Is(err, ledger.ErrConflict):
		status, code = http.StatusConflict, "CONFLICT"
	default:
		slog.Error("Request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Status:  "error",
			Code:    "INTERNAL",
			Message: "Internal server error",
		})
		return
	}

	c.JSON(status, models.ErrorResponse{
		Status:  "error",
		Code:    code,
		Message: err.Error(),
	})
}
