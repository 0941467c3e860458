package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/prawira/gotix/internal/helpers"
	"github.com/prawira/gotix/internal/middleware"
	"github.com/prawira/gotix/internal/models"
)

type EventRequest struct {
	Title       string    `json:"title" binding:"required"`
	Description string    `json:"description" binding:"required"`
	Artist      string    `json:"artist" binding:"required"`
	Location    string    `json:"location" binding:"required"`
	StartTime   time.Time `json:"start_time" binding:"required"`
	Price       int       `json:"price" binding:"required,min=0"`
	TotalSeats  int       `json:"total_seats" binding:"required,min=1"`
}

type eventResponse struct {
	ID             uuid.UUID `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Artist         string    `json:"artist"`
	Location       string    `json:"location"`
	StartTime      time.Time `json:"start_time"`
	Price          int       `json:"price"`
	TotalSeats     int       `json:"total_seats"`
	AvailableSeats int       `json:"available_seats"`
	SoldOut        bool      `json:"sold_out"`
}

func toEventResponse(event *models.Event) eventResponse {
	available := event.AvailableSeats()
	return eventResponse{
		ID:             event.ID,
		Title:          event.Title,
		Description:    event.Description,
		Artist:         event.Artist,
		Location:       event.Location,
		StartTime:      event.StartTime,
		Price:          event.Price,
		TotalSeats:     event.TotalSeats,
		AvailableSeats: available,
		SoldOut:        available <= 0,
	}
}

func CreateEvent(c *gin.Context) {
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
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

	event := models.Event{
		ID:          uuid.New(),
		Title:       req.Title,
		Description: req.Description,
		Artist:      req.Artist,
		Location:    req.Location,
		StartTime:   req.StartTime,
		Price:       req.Price,
		TotalSeats:  req.TotalSeats,
		UserID:      userID,
	}

	if err := gormDB.Create(&event).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to create event.")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  "Event created successfully.",
		"event_id": event.ID,
	})
}

func ListEvents(c *gin.Context) {
	gormDB := middleware.GetDB(c)
	if gormDB == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}

	var events []models.Event
	if err := gormDB.Order("start_time").Find(&events).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving events.")
		return
	}

	responses := make([]eventResponse, 0, len(events))
	for i := range events {
		responses = append(responses, toEventResponse(&events[i]))
	}

	c.JSON(http.StatusOK, gin.H{"events": responses})
}

func GetEvent(c *gin.Context) {
	eventID := c.Param("id")

	gormDB := middleware.GetDB(c)
	if gormDB == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}

	var event models.Event
	if err := gormDB.Where("id = ?", eventID).First(&event).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			helpers.RespondWithError(c, http.StatusNotFound, "Event not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving event.")
		return
	}

	c.JSON(http.StatusOK, toEventResponse(&event))
}

func UpdateEvent(c *gin.Context) {
	eventID := c.Param("id")
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

	gormDB := middleware.GetDB(c)
	if gormDB == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}

	var event models.Event
	if err := gormDB.Where("id = ?", eventID).First(&event).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Event not found.")
		return
	}

	if req.TotalSeats < event.IssuedCount {
		helpers.RespondWithError(c, http.StatusConflict, "Total seats cannot be lower than tickets already issued.")
		return
	}

	event.Title = req.Title
	event.Description = req.Description
	event.Artist = req.Artist
	event.Location = req.Location
	event.StartTime = req.StartTime
	event.Price = req.Price
	event.TotalSeats = req.TotalSeats

	if err := gormDB.Save(&event).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to update event.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Event updated successfully.",
		"event":   toEventResponse(&event),
	})
}

func DeleteEvent(c *gin.Context) {
	eventID := c.Param("id")

	gormDB := middleware.GetDB(c)
	if gormDB == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}

	var event models.Event
	if err := gormDB.Where("id = ?", eventID).First(&event).Error; err != nil {
		helpers.RespondWithError(c, http.StatusNotFound, "Event not found.")
		return
	}

	var ticketCount int64
	if err := gormDB.Model(&models.Ticket{}).Where("event_id = ?", event.ID).Count(&ticketCount).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error checking event tickets.")
		return
	}
	if ticketCount > 0 {
		helpers.RespondWithError(c, http.StatusConflict, "Cannot delete an event with issued tickets.")
		return
	}

	if err := gormDB.Delete(&event).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to delete event.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Event deleted successfully.",
	})
}
