package store

import (
	"context"
	"encoding/base64"
	stderrors "errors"

	"github.com/c360/fedgraph/entity"
	"github.com/c360/fedgraph/errors"
	"github.com/c360/fedgraph/natsclient"
	"github.com/c360/fedgraph/registry"
)

// Bucket is the part of natsclient.KVStore the KV store uses.
type Bucket interface {
	Get(ctx context.Context, key string) (*natsclient.KVEntry, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
}

// KV stores JSON records in a NATS JetStream key-value bucket.
type KV struct {
	catalog registry.Catalog
	bucket  Bucket
}

// NewKV returns a store backed by bucket.
func NewKV(catalog registry.Catalog, bucket Bucket) *KV {
	return &KV{catalog: catalog, bucket: bucket}
}

// BucketKey returns the bucket key for a type and canonical key. The
// canonical key is base64url encoded because bucket keys only allow a
// restricted character set.
func BucketKey(typeName, canonical string) string {
	return typeName + "." + base64.RawURLEncoding.EncodeToString([]byte(canonical))
}

// LookupByKey implements entity.Lookup. The lookup honours ctx's deadline.
func (s *KV) LookupByKey(ctx context.Context, typeName string, key entity.Key) (entity.Record, bool, error) {
	canonical, err := canonicalKey(s.catalog, typeName, key)
	if err != nil {
		return nil, false, err
	}
	entry, err := s.bucket.Get(ctx, BucketKey(typeName, canonical))
	if err != nil {
		if stderrors.Is(err, errors.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, errors.WrapTransient(err, "KV", "LookupByKey", "get "+typeName)
	}
	rec, err := decodeRecord("KV", entry.Value)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// Put writes rec under the key read from its key fields.
func (s *KV) Put(ctx context.Context, typeName string, rec entity.Record) error {
	canonical, err := canonicalOf(s.catalog, typeName, rec)
	if err != nil {
		return err
	}
	data, err := encodeRecord("KV", rec)
	if err != nil {
		return err
	}
	if _, err := s.bucket.Put(ctx, BucketKey(typeName, canonical), data); err != nil {
		return errors.WrapTransient(err, "KV", "Put", "put "+typeName)
	}
	return nil
}
