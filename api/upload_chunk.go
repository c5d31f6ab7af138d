package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (a *API) UploadChunk(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)
	sessionID := c.Param("id")

	index, err := strconv.Atoi(c.PostForm("chunk_index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "chunk_index must be a number",
			"requestID": requestID,
		})
		return
	}

	hash := c.PostForm("chunk_hash")
	if hash == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "No chunk_hash provided",
			"requestID": requestID,
		})
		return
	}

	fh, err := c.FormFile("chunk")
	if err != nil || fh == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "No chunk provided",
			"requestID": requestID,
		})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to open multipart file", zap.String("requestID", requestID), zap.Error(err))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to read chunk body", zap.String("requestID", requestID), zap.Error(err))
		return
	}

	res, err := a.Deps.Uploads.SubmitChunk(userID, sessionID, index, data, hash)
	if err != nil {
		respondError(c, requestID, err)
		return
	}

	c.JSON(http.StatusOK, res)
}
