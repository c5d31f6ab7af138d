package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// MediaProgress streams processing progress as server-sent events until
// the job finishes or the client goes away
func (a *API) MediaProgress(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)
	mediaID := c.Param("id")

	if _, ok := a.Deps.Progress.Get(mediaID); !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error":     "No running jobs found",
			"requestID": requestID,
		})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ticker := time.NewTicker(time.Millisecond * 200)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			p, ok := a.Deps.Progress.Get(mediaID)
			if !ok {
				continue
			}

			fmt.Fprintf(c.Writer, "data: {\"step\":%q,\"progress\":%.2f}\n\n", p.Step, p.Progress)
			c.Writer.Flush()

			if p.Progress >= 100 || p.Step == "failed" {
				return
			}
		}
	}
}
