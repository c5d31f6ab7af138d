package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (a *API) UploadStatus(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)

	res, err := a.Deps.Uploads.Status(userID, c.Param("id"))
	if err != nil {
		respondError(c, requestID, err)
		return
	}

	c.JSON(http.StatusOK, res)
}
