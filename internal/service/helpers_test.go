package service

import (
	"path/filepath"
	"testing"
	"time"

	"edumaster/media-api/internal/model"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.UploadSession{}, model.MediaItem{}))

	return db
}

func newTestStore(t *testing.T) *ChunkStore {
	t.Helper()

	store, err := NewChunkStore(t.TempDir())
	require.NoError(t, err)
	return store
}

// newTestUploads wires an Uploads service against a throwaway database
// and chunk store. The allow-list is left empty so random test bytes
// survive the content sniff on complete.
func newTestUploads(t *testing.T) *Uploads {
	t.Helper()

	viper.Set("upload.max_size", int64(64<<20))
	viper.Set("upload.chunk_size", int64(4))
	viper.Set("upload.session_ttl", time.Hour)
	viper.Set("upload.allowed_types", []string{})

	return NewUploads(newTestDB(t), newTestStore(t))
}

func mustSession(t *testing.T, db *gorm.DB, id string) *model.UploadSession {
	t.Helper()

	var s model.UploadSession
	require.NoError(t, db.Where("id = ?", id).First(&s).Error)
	return &s
}
