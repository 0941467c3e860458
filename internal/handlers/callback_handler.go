package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prawira/gotix/internal/helpers"
	"github.com/prawira/gotix/internal/middleware"
	"github.com/prawira/gotix/internal/provider"
	"github.com/prawira/gotix/internal/reconcile"
)

// HandleProviderCallback receives asynchronous payment notifications.
// Deliveries are at-least-once and unordered; everything downstream of the
// signature check is idempotent, so duplicates and replays are acknowledged
// without re-executing their effects.
func HandleProviderCallback(c *gin.Context) {
	providerName := c.Param("provider")

	co := middleware.GetCoordinator(c)
	if co == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Purchase engine not available.")
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Failed to read callback body.")
		return
	}

	outcome, err := co.HandleCallback(c.Request.Context(), providerName, c.Request.Header, body)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true, "outcome": outcome})

	case errors.Is(err, provider.ErrBadSignature):
		// Potential tampering; log and reject without detail.
		log.Printf("callback: rejected %s notification: %v", providerName, err)
		helpers.RespondWithError(c, http.StatusForbidden, "Callback authentication failed.")

	case errors.Is(err, reconcile.ErrInconsistentState):
		// Flagged for manual review; acknowledge so the provider stops
		// retrying a delivery we will never auto-apply.
		c.JSON(http.StatusOK, gin.H{"success": true, "outcome": reconcile.OutcomeFlagged})

	case errors.Is(err, reconcile.ErrUnknownReference):
		helpers.RespondWithError(c, http.StatusNotFound, "No order matches this notification.")

	default:
		log.Printf("callback: processing %s notification: %v", providerName, err)
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to process callback.")
	}
}
