package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (a *API) UploadCancel(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)

	if err := a.Deps.Uploads.Cancel(userID, c.Param("id")); err != nil {
		respondError(c, requestID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": c.Param("id"),
		"status":     "failed",
	})
}
