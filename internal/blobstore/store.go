// Package blobstore keeps the raw bytes of uploaded documents.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNotFound is returned when no object exists at a locator.
var ErrNotFound = errors.New("blob not found")

// Store reads and writes document files by locator.
type Store interface {
	Put(ctx context.Context, locator string, r io.Reader, contentType string) error
	Download(ctx context.Context, locator string) ([]byte, error)
	Delete(ctx context.Context, locator string) error
}

const (
	DriverLocal = "local"
	DriverGCS   = "gcs"
)

// Config selects and configures a store.
type Config struct {
	Driver          string
	Directory       string
	Bucket          string
	CredentialsFile string
	EmulatorHost    string
}

// New builds the configured store.
func New(cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverLocal, "":
		return NewLocal(cfg.Directory)
	case DriverGCS:
		return NewGCS(cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
