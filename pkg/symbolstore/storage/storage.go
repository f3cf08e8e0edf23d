// Package storage persists encoded symbol data containers so a restarted
// process does not have to refetch every artifact.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"strconv"

	"github.com/thanos-io/objstore"
	"github.com/thanos-io/objstore/providers/filesystem"
)

const (
	BackendNone       = "none"
	BackendMemory     = "memory"
	BackendFilesystem = "filesystem"
	BackendBolt       = "bolt"
)

// ErrNotFound is returned by Get when no object is stored under the name.
var ErrNotFound = errors.New("symbol data not found")

// Store is a byte store for encoded containers.
type Store interface {
	Get(ctx context.Context, name string) ([]byte, error)
	Put(ctx context.Context, name string, data []byte) error
	Close() error
}

// ObjectName returns the storage name for ref under teamID. References are
// hashed because they are arbitrary client-provided URLs.
func ObjectName(teamID int, ref string) string {
	sum := sha256.Sum256([]byte(ref))
	return strconv.Itoa(teamID) + "/" + hex.EncodeToString(sum[:]) + ".jsdata"
}

type Config struct {
	Backend    string           `yaml:"backend"`
	Filesystem FilesystemConfig `yaml:"filesystem"`
	Bolt       BoltConfig       `yaml:"bolt"`
}

type FilesystemConfig struct {
	Directory string `yaml:"directory"`
}

type BoltConfig struct {
	Path string `yaml:"path"`
}

func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	f.StringVar(&cfg.Backend, "storage.backend", BackendNone, fmt.Sprintf("Backend storing fetched symbol data. Supported values: %s, %s, %s, %s.", BackendNone, BackendMemory, BackendFilesystem, BackendBolt))
	f.StringVar(&cfg.Filesystem.Directory, "storage.filesystem.directory", "./data/symbols", "Directory used by the filesystem backend.")
	f.StringVar(&cfg.Bolt.Path, "storage.bolt.path", "./data/symbols.db", "Database file used by the bolt backend.")
}

func (cfg *Config) Validate() error {
	switch cfg.Backend {
	case BackendNone, BackendMemory:
	case BackendFilesystem:
		if cfg.Filesystem.Directory == "" {
			return errors.New("storage.filesystem.directory is required for the filesystem backend")
		}
	case BackendBolt:
		if cfg.Bolt.Path == "" {
			return errors.New("storage.bolt.path is required for the bolt backend")
		}
	default:
		return fmt.Errorf("unsupported storage backend: %q", cfg.Backend)
	}
	return nil
}

// NewFromConfig opens the backend selected by cfg.
func NewFromConfig(cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendNone, "":
		return NewNullStore(), nil
	case BackendMemory:
		return NewBucketStore(objstore.NewInMemBucket()), nil
	case BackendFilesystem:
		bucket, err := filesystem.NewBucket(cfg.Filesystem.Directory)
		if err != nil {
			return nil, fmt.Errorf("create filesystem bucket: %w", err)
		}
		return NewBucketStore(bucket), nil
	case BackendBolt:
		return NewBoltStore(cfg.Bolt.Path)
	}
	return nil, fmt.Errorf("unsupported storage backend: %q", cfg.Backend)
}

// NullStore stores nothing.
type NullStore struct{}

func NewNullStore() *NullStore { return &NullStore{} }

func (NullStore) Get(context.Context, string) ([]byte, error) { return nil, ErrNotFound }

func (NullStore) Put(context.Context, string, []byte) error { return nil }

func (NullStore) Close() error { return nil }
