package assetstore

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"

	"scenegen/internal/config"
	"scenegen/internal/services"
	"scenegen/internal/textutil"
)

// Location describes where an artifact was archived.
type Location struct {
	Backend     string
	Key         string
	URI         string
	ContentType string
	Size        int64
}

// Store archives local files under a key.
type Store interface {
	Put(ctx context.Context, localPath, key string) (Location, error)
	Backend() string
}

// New builds the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.Storage) (Store, error) {
	switch cfg.Backend {
	case config.StorageLocal, "":
		return NewLocal(cfg.LocalDir), nil
	case config.StorageS3:
		return NewS3(ctx, cfg.Bucket, cfg.Prefix, cfg.Region)
	case config.StorageGCS:
		return NewGCS(ctx, cfg.Bucket, cfg.Prefix)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "assetstore", "new",
			fmt.Sprintf("unsupported backend %q", cfg.Backend), nil)
	}
}

// SceneKey returns the archive key for an artifact of a scene.
func SceneKey(sceneID int64, sceneName, localPath string) string {
	return path.Join(fmt.Sprintf("scene-%d-%s", sceneID, textutil.Slug(sceneName)), filepath.Base(localPath))
}

func joinKey(prefix, key string) string {
	prefix = strings.Trim(prefix, "/")
	key = strings.TrimLeft(key, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

// ContentType sniffs a file's MIME type, defaulting to octet-stream.
func ContentType(localPath string) string {
	kind, err := filetype.MatchFile(localPath)
	if err != nil || kind == filetype.Unknown || kind.MIME.Value == "" {
		return "application/octet-stream"
	}
	return kind.MIME.Value
}
