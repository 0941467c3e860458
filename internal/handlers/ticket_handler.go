package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prawira/gotix/internal/coordinator"
	"github.com/prawira/gotix/internal/helpers"
	"github.com/prawira/gotix/internal/middleware"
	"github.com/prawira/gotix/internal/models"
)

type ticketResponse struct {
	ID         uuid.UUID `json:"id"`
	Code       string    `json:"code"`
	EventID    uuid.UUID `json:"event_id"`
	EventTitle string    `json:"event_title"`
	OrderID    uuid.UUID `json:"order_id"`
}

// ListMyTickets returns the caller's issued tickets. The code field is the
// redemption token an external renderer turns into a QR payload.
func ListMyTickets(c *gin.Context) {
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

	var tickets []models.Ticket
	if err := gormDB.Preload("Event").Where("user_id = ?", userID).Find(&tickets).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving tickets.")
		return
	}

	responses := make([]ticketResponse, 0, len(tickets))
	for _, ticket := range tickets {
		responses = append(responses, ticketResponse{
			ID:         ticket.ID,
			Code:       ticket.Code,
			EventID:    ticket.EventID,
			EventTitle: ticket.Event.Title,
			OrderID:    ticket.OrderID,
		})
	}

	c.JSON(http.StatusOK, gin.H{"tickets": responses})
}

func GetTicket(c *gin.Context) {
	ticketID := c.Param("id")

	userID, exists := middleware.GetUserID(c)
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}
	role, _ := c.Get("role")

	gormDB := middleware.GetDB(c)
	if gormDB == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}

	var ticket models.Ticket
	if err := gormDB.Preload("Event").Where("id = ?", ticketID).First(&ticket).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			helpers.RespondWithError(c, http.StatusNotFound, "Ticket not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving ticket.")
		return
	}

	if ticket.UserID != userID && role != "admin" {
		helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to view this ticket.")
		return
	}

	c.JSON(http.StatusOK, ticketResponse{
		ID:         ticket.ID,
		Code:       ticket.Code,
		EventID:    ticket.EventID,
		EventTitle: ticket.Event.Title,
		OrderID:    ticket.OrderID,
	})
}

// CancelTicket is the administrative cancellation path. The delete and the
// seat return run in one transaction inside the coordinator.
func CancelTicket(c *gin.Context) {
	ticketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid ticket ID.")
		return
	}

	co := middleware.GetCoordinator(c)
	if co == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Purchase engine not available.")
		return
	}

	if err := co.CancelTicket(c.Request.Context(), ticketID); err != nil {
		if errors.Is(err, coordinator.ErrTicketNotFound) {
			helpers.RespondWithError(c, http.StatusNotFound, "Ticket not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to cancel ticket.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Ticket cancelled and seat released.",
	})
}
