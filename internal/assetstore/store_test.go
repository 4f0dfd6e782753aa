package assetstore_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"scenegen/internal/assetstore"
	"scenegen/internal/config"
	"scenegen/internal/services"
	"scenegen/internal/testsupport"
)

func TestSceneKeyUsesSlug(t *testing.T) {
	got := assetstore.SceneKey(12, "Rooftop Chase!", "/tmp/out/scene.mp4")
	if got != "scene-12-rooftop-chase/scene.mp4" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestLocalPutCopiesArtifact(t *testing.T) {
	src := filepath.Join(t.TempDir(), "frame.png")
	testsupport.WritePNG(t, src)
	root := t.TempDir()

	loc, err := assetstore.NewLocal(root).Put(context.Background(), src, "scene-1-x/frame.png")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	dest := filepath.Join(root, "scene-1-x", "frame.png")
	if loc.URI != "file://"+dest || loc.ContentType != "image/png" || loc.Size == 0 {
		t.Fatalf("unexpected location %+v", loc)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("local store must keep the source: %v", err)
	}
}

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	data, _ := io.ReadAll(in.Body)
	f.body = data
	return &s3.PutObjectOutput{}, f.err
}

func TestS3PutUploadsWithPrefix(t *testing.T) {
	src := filepath.Join(t.TempDir(), "scene.mp4")
	testsupport.WriteFile(t, src, 100)
	client := &fakeS3{}

	loc, err := assetstore.NewS3WithClient(client, "bucket", "/renders/").Put(context.Background(), src, "scene-1-a/scene.mp4")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if *client.input.Bucket != "bucket" || *client.input.Key != "renders/scene-1-a/scene.mp4" {
		t.Fatalf("unexpected input bucket=%s key=%s", *client.input.Bucket, *client.input.Key)
	}
	if len(client.body) != 100 || loc.Size != 100 {
		t.Fatalf("unexpected upload size body=%d loc=%d", len(client.body), loc.Size)
	}
	if loc.URI != "s3://bucket/renders/scene-1-a/scene.mp4" {
		t.Fatalf("unexpected uri %q", loc.URI)
	}

	client.err = errors.New("throttled")
	if _, err := assetstore.NewS3WithClient(client, "bucket", "").Put(context.Background(), src, "k"); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

type memWriter struct {
	bytes.Buffer
	closed   bool
	closeErr error
}

func (w *memWriter) Close() error {
	w.closed = true
	return w.closeErr
}

func TestGCSPutStreamsAndFinalizes(t *testing.T) {
	src := filepath.Join(t.TempDir(), "frame.png")
	testsupport.WritePNG(t, src)
	writer := &memWriter{}
	var gotBucket, gotObject, gotType string
	open := func(_ context.Context, bucket, object, contentType string) io.WriteCloser {
		gotBucket, gotObject, gotType = bucket, object, contentType
		return writer
	}

	loc, err := assetstore.NewGCSWithWriter(open, "media", "scenes").Put(context.Background(), src, "scene-2-b/frame.png")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if gotBucket != "media" || gotObject != "scenes/scene-2-b/frame.png" || gotType != "image/png" {
		t.Fatalf("unexpected writer args %s %s %s", gotBucket, gotObject, gotType)
	}
	if !writer.closed || writer.Len() == 0 || loc.URI != "gs://media/scenes/scene-2-b/frame.png" {
		t.Fatalf("unexpected upload state closed=%v len=%d loc=%+v", writer.closed, writer.Len(), loc)
	}

	failing := &memWriter{closeErr: errors.New("precondition failed")}
	open = func(context.Context, string, string, string) io.WriteCloser { return failing }
	if _, err := assetstore.NewGCSWithWriter(open, "media", "").Put(context.Background(), src, "k"); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected finalize error, got %v", err)
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	if _, err := assetstore.New(context.Background(), config.Storage{Backend: "ftp"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	store, err := assetstore.New(context.Background(), config.Storage{Backend: config.StorageLocal, LocalDir: t.TempDir()})
	if err != nil || store.Backend() != config.StorageLocal {
		t.Fatalf("expected local store, got %v err=%v", store, err)
	}
}
