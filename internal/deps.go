package internal

import (
	"edumaster/media-api/internal/service"

	"gorm.io/gorm"
)

type Deps struct {
	DB          *gorm.DB
	Uploads     *service.Uploads
	Coordinator *service.Coordinator
	Progress    *service.ProgressTracker
	GC          *service.GarbageCollector
}
