package store

import (
	"context"
	stderrors "errors"

	"github.com/redis/go-redis/v9"

	"github.com/c360/fedgraph/entity"
	"github.com/c360/fedgraph/errors"
	"github.com/c360/fedgraph/registry"
)

// DefaultRedisPrefix prefixes every Redis key written by the store.
const DefaultRedisPrefix = "fedgraph:"

// Redis stores JSON records in Redis strings.
type Redis struct {
	catalog registry.Catalog
	client  redis.UniversalClient
	prefix  string
}

// NewRedis returns a store using client. An empty prefix selects
// DefaultRedisPrefix.
func NewRedis(catalog registry.Catalog, client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{catalog: catalog, client: client, prefix: prefix}
}

// RedisKey returns the Redis key for a type and canonical key.
func (s *Redis) RedisKey(typeName, canonical string) string {
	return s.prefix + typeName + ":" + canonical
}

// Ping checks that Redis is reachable.
func (s *Redis) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return errors.WrapTransient(err, "Redis", "Ping", "ping")
	}
	return nil
}

// LookupByKey implements entity.Lookup.
func (s *Redis) LookupByKey(ctx context.Context, typeName string, key entity.Key) (entity.Record, bool, error) {
	canonical, err := canonicalKey(s.catalog, typeName, key)
	if err != nil {
		return nil, false, err
	}
	data, err := s.client.Get(ctx, s.RedisKey(typeName, canonical)).Bytes()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, errors.WrapTransient(err, "Redis", "LookupByKey", "get "+typeName)
	}
	rec, err := decodeRecord("Redis", data)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// Put writes rec under the key read from its key fields.
func (s *Redis) Put(ctx context.Context, typeName string, rec entity.Record) error {
	canonical, err := canonicalOf(s.catalog, typeName, rec)
	if err != nil {
		return err
	}
	data, err := encodeRecord("Redis", rec)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.RedisKey(typeName, canonical), data, 0).Err(); err != nil {
		return errors.WrapTransient(err, "Redis", "Put", "set "+typeName)
	}
	return nil
}

// Close closes the Redis client.
func (s *Redis) Close() error {
	return s.client.Close()
}
