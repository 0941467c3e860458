package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/prawira/gotix/internal/coordinator"
	"github.com/prawira/gotix/internal/helpers"
	"github.com/prawira/gotix/internal/inventory"
	"github.com/prawira/gotix/internal/middleware"
	"github.com/prawira/gotix/internal/models"
)

type PurchaseRequest struct {
	EventID  uuid.UUID `json:"event_id" binding:"required"`
	Quantity int       `json:"quantity" binding:"required,min=1,max=5"`
	Provider string    `json:"provider" binding:"required"`
}

func CreatePurchase(c *gin.Context) {
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	userID, exists := middleware.GetUserID(c)
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	co := middleware.GetCoordinator(c)
	if co == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Purchase engine not available.")
		return
	}

	result, err := co.Purchase(c.Request.Context(), coordinator.PurchaseInput{
		UserID:   userID,
		EventID:  req.EventID,
		Quantity: req.Quantity,
		Provider: req.Provider,
	})
	if err != nil {
		switch {
		case errors.Is(err, inventory.ErrOutOfStock):
			helpers.RespondWithError(c, http.StatusConflict, "Not enough seats available.")
		case errors.Is(err, coordinator.ErrQuantityRange):
			helpers.RespondWithError(c, http.StatusBadRequest, "Quantity must be between 1 and 5.")
		case errors.Is(err, coordinator.ErrTicketLimit):
			helpers.RespondWithError(c, http.StatusConflict, "Ticket limit for this event reached.")
		case errors.Is(err, coordinator.ErrUnknownProvider):
			helpers.RespondWithError(c, http.StatusBadRequest, "Unknown payment provider.")
		case errors.Is(err, coordinator.ErrPaymentUnavailable):
			helpers.RespondWithError(c, http.StatusBadGateway, "Payment provider is unavailable. Please try again later.")
		case errors.Is(err, coordinator.ErrPurchaseExpired):
			helpers.RespondWithError(c, http.StatusConflict, "Purchase expired before payment could be started. Please try again.")
		default:
			helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to create purchase.")
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"order_id":     result.Order.PublicID,
		"status":       result.Order.Status,
		"amount":       result.Order.Amount,
		"redirect_url": result.RedirectURL,
	})
}

func GetPurchase(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid order ID.")
		return
	}

	userID, exists := middleware.GetUserID(c)
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	gormDB := middleware.GetDB(c)
	if gormDB == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}

	var order models.Order
	if err := gormDB.First(&order, "id = ?", orderID).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Order not found.")
		return
	}
	if order.UserID != userID {
		helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to view this order.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":           order.ID,
		"order_id":     order.PublicID,
		"event_id":     order.EventID,
		"quantity":     order.Quantity,
		"amount":       order.Amount,
		"provider":     order.Provider,
		"status":       order.Status,
		"redirect_url": order.RedirectURL,
	})
}

// SyncPurchase polls the payment provider for the order's status, a
// fallback for callbacks that never arrived.
func SyncPurchase(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid order ID.")
		return
	}

	userID, exists := middleware.GetUserID(c)
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	gormDB := middleware.GetDB(c)
	co := middleware.GetCoordinator(c)
	if gormDB == nil || co == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Purchase engine not available.")
		return
	}

	var order models.Order
	if err := gormDB.First(&order, "id = ?", orderID).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Order not found.")
		return
	}
	if order.UserID != userID {
		helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to sync this order.")
		return
	}

	outcome, err := co.SyncOrder(c.Request.Context(), order.ID)
	if err != nil && !errors.Is(err, coordinator.ErrNotAwaitingPayment) {
		helpers.RespondWithError(c, http.StatusBadGateway, "Failed to sync order with payment provider.")
		return
	}
	if errors.Is(err, coordinator.ErrNotAwaitingPayment) {
		helpers.RespondWithError(c, http.StatusConflict, "Order has no pending payment to sync.")
		return
	}

	if err := gormDB.First(&order, "id = ?", order.ID).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to reload order.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id": order.PublicID,
		"status":   order.Status,
		"outcome":  outcome,
	})
}
