package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type initiateRequest struct {
	FileName    string   `json:"file_name" binding:"required"`
	FileSize    int64    `json:"file_size" binding:"required"`
	MimeType    string   `json:"mime_type" binding:"required"`
	TotalChunks int      `json:"total_chunks" binding:"required"`
	ChunkHashes []string `json:"chunk_hashes" binding:"required"`
}

func (a *API) UploadInitiate(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)

	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Malformed request body",
			"requestID": requestID,
		})
		return
	}

	res, err := a.Deps.Uploads.Initiate(userID, req.FileName, req.FileSize, req.MimeType, req.TotalChunks, req.ChunkHashes)
	if err != nil {
		respondError(c, requestID, err)
		return
	}

	c.JSON(http.StatusCreated, res)
}
