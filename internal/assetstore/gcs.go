package assetstore

import (
	"context"
	"io"
	"os"

	"cloud.google.com/go/storage"

	"scenegen/internal/config"
	"scenegen/internal/services"
)

// WriterFactory opens a writer for bucket/object with the given content type.
type WriterFactory func(ctx context.Context, bucket, object, contentType string) io.WriteCloser

// GCS uploads artifacts to a Cloud Storage bucket.
type GCS struct {
	open   WriterFactory
	bucket string
	prefix string
}

// NewGCS creates a storage client from application default credentials.
func NewGCS(ctx context.Context, bucket, prefix string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "assetstore", "gcs", "create storage client", err)
	}
	open := func(ctx context.Context, bucket, object, contentType string) io.WriteCloser {
		w := client.Bucket(bucket).Object(object).NewWriter(ctx)
		w.ContentType = contentType
		return w
	}
	return NewGCSWithWriter(open, bucket, prefix), nil
}

// NewGCSWithWriter builds a GCS store over a custom writer factory.
func NewGCSWithWriter(open WriterFactory, bucket, prefix string) *GCS {
	return &GCS{open: open, bucket: bucket, prefix: prefix}
}

// Backend implements Store.
func (g *GCS) Backend() string { return config.StorageGCS }

// Put implements Store. The object is only finalized when the writer closes
// cleanly.
func (g *GCS) Put(ctx context.Context, localPath, key string) (Location, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return Location{}, services.Wrap(services.ErrValidation, "assetstore", "gcs put", "open artifact", err)
	}
	defer file.Close()

	object := joinKey(g.prefix, key)
	contentType := ContentType(localPath)
	writer := g.open(ctx, g.bucket, object, contentType)
	written, err := io.Copy(writer, file)
	if err != nil {
		_ = writer.Close()
		return Location{}, services.Wrap(services.ErrTransient, "assetstore", "gcs put", "upload "+object, err)
	}
	if err := writer.Close(); err != nil {
		return Location{}, services.Wrap(services.ErrTransient, "assetstore", "gcs put", "finalize "+object, err)
	}
	return Location{
		Backend:     config.StorageGCS,
		Key:         object,
		URI:         "gs://" + g.bucket + "/" + object,
		ContentType: contentType,
		Size:        written,
	}, nil
}
