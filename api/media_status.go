package api

import (
	"net/http"

	"edumaster/media-api/internal/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (a *API) MediaStatus(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)

	var item model.MediaItem
	err := a.Deps.DB.Where("id = ?", c.Param("id")).First(&item).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{
				"error":     "Media item not found",
				"requestID": requestID,
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to fetch media item", zap.String("requestID", requestID), zap.Error(err))
		return
	}

	if item.OwnerID != userID {
		c.JSON(http.StatusForbidden, gin.H{
			"error":     "You don't own this resource",
			"requestID": requestID,
		})
		return
	}

	c.JSON(http.StatusOK, item)
}
