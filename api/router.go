// Package api contains all endpoints available
package api

import (
	"edumaster/media-api/aws"
	"edumaster/media-api/db"
	"edumaster/media-api/internal"
	"edumaster/media-api/internal/service"
	"edumaster/media-api/pkg/middleware"
	"fmt"
	"time"

	ginzap "github.com/gin-contrib/zap"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	gray  = "\x1b[90m"
	reset = "\x1b[0m"
)

type API struct {
	Router *gin.Engine
	Deps   *internal.Deps
}

func NewRouter() (*API, error) {
	makeLogger()

	d := &internal.Deps{}

	database, err := db.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite database, %w", err)
	}
	d.DB = database

	store, err := service.NewChunkStore(viper.GetString("upload.temp_dir"))
	if err != nil {
		return nil, err
	}

	s3, err := aws.NewS3()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize S3 client, %w", err)
	}

	d.Uploads = service.NewUploads(database, store)
	d.Progress = service.NewProgressTracker(time.Hour)
	d.Coordinator = service.NewCoordinator(database, service.NewTranscoder(), d.Progress, service.NewPublisher(s3))
	d.GC = service.NewGarbageCollector(database, store)

	a := &API{Deps: d}

	router := gin.New()
	a.Router = router

	router.Use(
		cors.New(cors.Config{
			AllowOrigins:     viper.GetStringSlice("host.cors_origins"),
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		gin.Recovery(),
		middleware.NewRequestIDMiddleware(),
		ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
			TimeFormat: "15:04:05.000",
			UTC:        true,
			Skipper: func(c *gin.Context) bool {
				return c.Request.Method == "HEAD"
			},
			Context: func(c *gin.Context) []zapcore.Field {
				fields := []zapcore.Field{}

				if v := c.GetString("requestID"); v != "" {
					fields = append(fields, zap.String("request_id", v))
				}

				if v := c.GetString("userID"); v != "" {
					fields = append(fields, zap.String("userID", v))
				}

				return fields
			},
		}),
	)

	router.HandleMethodNotAllowed = true
	router.RedirectFixedPath = true

	jwt := middleware.NewJWTMiddleware()
	chunkBodyLimit := viper.GetInt64("upload.chunk_size") + 1<<20

	main := router.Group("/api")
	{
		// HEAD /api/heartbeat 			-> Used to check if the server is alive
		main.HEAD("/heartbeat", a.Heartbeat)
	}

	uploads := main.Group("/uploads", jwt)
	{
		// POST /api/uploads			-> Initiates a resumable upload session
		uploads.POST("", middleware.BodySizeLimiter(1<<20), a.UploadInitiate)

		// POST /api/uploads/:id/chunks		-> Submits one chunk of a session
		uploads.POST("/:id/chunks", middleware.BodySizeLimiter(chunkBodyLimit), a.UploadChunk)

		// POST /api/uploads/:id/complete	-> Assembles the upload and queues processing
		uploads.POST("/:id/complete", middleware.BodySizeLimiter(1<<20), a.UploadComplete)

		// GET /api/uploads/:id			-> Returns a session's progress
		uploads.GET("/:id", a.UploadStatus)

		// DELETE /api/uploads/:id		-> Cancels a session and frees its storage
		uploads.DELETE("/:id", a.UploadCancel)
	}

	media := main.Group("/media", jwt)
	{
		// GET /api/media/:id/status		-> Returns a media item's processing state
		media.GET("/:id/status", a.MediaStatus)

		// GET /api/media/:id/progress		-> Streams processing progress over SSE
		media.GET("/:id/progress", a.MediaProgress)
	}

	a.Deps.Coordinator.StartWorkerPool()
	a.Deps.Coordinator.RequeuePending()

	if err := a.Deps.GC.Start(); err != nil {
		return nil, fmt.Errorf("failed to schedule garbage collector, %w", err)
	}

	return a, nil
}

func makeLogger() {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = func(t time.Time, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + t.Format("15:04:05.000") + reset)
	}
	cfg.EncoderConfig.EncodeCaller = func(ec zapcore.EntryCaller, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + ec.TrimmedPath() + reset)
	}

	cfg.DisableStacktrace = true

	if lvl, err := zapcore.ParseLevel(viper.GetString("app.log_level")); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	log, _ := cfg.Build()
	zap.ReplaceGlobals(log)
}
