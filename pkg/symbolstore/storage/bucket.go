package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/thanos-io/objstore"
)

// BucketStore keeps zstd compressed containers in an object storage bucket.
type BucketStore struct {
	bucket objstore.Bucket
}

func NewBucketStore(bucket objstore.Bucket) *BucketStore {
	return &BucketStore{bucket: bucket}
}

func (s *BucketStore) Get(ctx context.Context, name string) ([]byte, error) {
	reader, err := s.bucket.Get(ctx, name)
	if err != nil {
		if s.bucket.IsObjNotFoundErr(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", name, err)
	}
	defer reader.Close()

	data, err := decompress(reader)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func (s *BucketStore) Put(ctx context.Context, name string, data []byte) error {
	if err := s.bucket.Upload(ctx, name, bytes.NewReader(compress(data))); err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	return nil
}

func (s *BucketStore) Close() error {
	return s.bucket.Close()
}
