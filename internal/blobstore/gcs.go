package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCS stores blobs as objects in a Google Cloud Storage bucket.
type GCS struct {
	cfg Config

	mu     sync.Mutex
	client *storage.Client
}

// NewGCS validates cfg. The storage client is created on first use.
func NewGCS(cfg Config) (*GCS, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("gcs bucket required")
	}
	return &GCS{cfg: cfg}, nil
}

func (g *GCS) storageClient(ctx context.Context) (*storage.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}

	var opts []option.ClientOption
	switch {
	case g.cfg.EmulatorHost != "":
		_ = os.Setenv("STORAGE_EMULATOR_HOST", strings.TrimRight(g.cfg.EmulatorHost, "/"))
		opts = append(opts, option.WithoutAuthentication())
	case g.cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(g.cfg.CredentialsFile))
	}
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	g.client = client
	return g.client, nil
}

func (g *GCS) object(ctx context.Context, locator string) (*storage.ObjectHandle, error) {
	client, err := g.storageClient(ctx)
	if err != nil {
		return nil, err
	}
	return client.Bucket(g.cfg.Bucket).Object(strings.TrimLeft(locator, "/")), nil
}

func (g *GCS) Put(ctx context.Context, locator string, r io.Reader, contentType string) error {
	obj, err := g.object(ctx, locator)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := obj.NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

func (g *GCS) Download(ctx context.Context, locator string) ([]byte, error) {
	obj, err := g.object(ctx, locator)
	if err != nil {
		return nil, err
	}
	rc, err := obj.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%s: %w", locator, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open gcs object: %w", err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (g *GCS) Delete(ctx context.Context, locator string) error {
	obj, err := g.object(ctx, locator)
	if err != nil {
		return err
	}
	if err := obj.Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete gcs object: %w", err)
	}
	return nil
}

// Close releases the storage client, if one was created.
func (g *GCS) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client == nil {
		return nil
	}
	err := g.client.Close()
	g.client = nil
	return err
}
