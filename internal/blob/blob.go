// Package blob is the entry point for artifact storage. Callers depend on the
// Store interface; only this package wires the backends in internal/infra/blob.
package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"refinerycore/internal/blob/core"
	fsstore "refinerycore/internal/infra/blob/fs"
	memorystore "refinerycore/internal/infra/blob/memory"
	s3store "refinerycore/internal/infra/blob/s3"
)

type (
	Driver     = core.Driver
	PutOptions = core.PutOptions
	Info       = core.Info
	Store      = core.Store
	// S3Config configures the S3 backend.
	S3Config = s3store.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrExists   = core.ErrExists
	ErrNotFound = core.ErrNotFound
)

// Config selects and configures a backend.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// Open returns the configured store. An empty driver means the filesystem.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}

// NewFilesystem returns a store rooted at dir.
func NewFilesystem(dir string) (Store, error) { return fsstore.New(dir) }

// NewMemory returns a process-local store.
func NewMemory() Store { return memorystore.New() }

// NewS3 returns an S3-backed store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) { return s3store.New(ctx, cfg) }

// NewMockS3ForTests returns an S3 store speaking to an in-memory HTTP fake.
func NewMockS3ForTests() Store { return s3store.NewMockForTests() }

// Key joins key segments with slashes.
func Key(parts ...string) string { return path.Join(parts...) }

// PutJSON writes v as an indented JSON object.
func PutJSON(ctx context.Context, s Store, key string, v any, meta map[string]string) (Info, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return Info{}, fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Put(ctx, key, bytes.NewReader(append(raw, '\n')), PutOptions{ContentType: "application/json", Metadata: meta})
}

// GetJSON decodes the object at key into v.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	_, rc, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()
	if err := json.NewDecoder(rc).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
