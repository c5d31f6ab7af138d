package api

import (
	"net/http"

	"edumaster/media-api/internal/service"

	"github.com/gin-gonic/gin"
)

type completeRequest struct {
	FinalHash string `json:"final_hash" binding:"required"`
	Title     string `json:"title"`
}

// UploadComplete assembles the uploaded chunks, registers a media item
// against the result and queues it for transcoding. The response returns
// right away, processing state is polled separately.
func (a *API) UploadComplete(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)
	sessionID := c.Param("id")

	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Malformed request body",
			"requestID": requestID,
		})
		return
	}

	item, err := a.Deps.Uploads.Complete(userID, sessionID, req.FinalHash, req.Title)
	if err != nil {
		respondError(c, requestID, err)
		return
	}

	err = a.Deps.Coordinator.Enqueue(&service.Job{
		Kind:       service.JobUploadComplete,
		MediaID:    item.ID,
		SourcePath: item.SourcePath,
	})
	if err != nil {
		respondError(c, requestID, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"media_id":          item.ID,
		"processing_status": item.ProcessingStatus,
	})
}
