package assetstore

import (
	"context"
	"os"
	"path/filepath"

	"scenegen/internal/config"
	"scenegen/internal/fileutil"
	"scenegen/internal/services"
)

// Local copies artifacts into a directory tree.
type Local struct {
	root string
}

// NewLocal constructs a Local store rooted at dir.
func NewLocal(dir string) *Local {
	return &Local{root: dir}
}

// Backend implements Store.
func (l *Local) Backend() string { return config.StorageLocal }

// Put implements Store.
func (l *Local) Put(ctx context.Context, localPath, key string) (Location, error) {
	if err := ctx.Err(); err != nil {
		return Location{}, services.Wrap(services.ErrCanceled, "assetstore", "local put", "canceled", err)
	}
	dest := filepath.Join(l.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return Location{}, services.Wrap(services.ErrConfiguration, "assetstore", "local put", "create directory", err)
	}
	if err := fileutil.CopyFileVerified(localPath, dest); err != nil {
		return Location{}, services.Wrap(services.ErrExternalTool, "assetstore", "local put", "copy artifact", err)
	}
	info, err := os.Stat(dest)
	if err != nil {
		return Location{}, services.Wrap(services.ErrExternalTool, "assetstore", "local put", "stat artifact", err)
	}
	return Location{
		Backend:     config.StorageLocal,
		Key:         key,
		URI:         "file://" + dest,
		ContentType: ContentType(dest),
		Size:        info.Size(),
	}, nil
}
