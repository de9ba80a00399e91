package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/kubesentry/kubesentry/internal/types"
)

const defaultRedisPrefix = "kubesentry:"

// RedisOptions configures a RedisStore
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisStore persists alerts in Redis.
//
// Layout (all keys carry the configured prefix):
//
//	alert:<id>                 JSON record
//	alerts                     sorted set of ids scored by creation time
//	active:<alert key>         id of the unresolved record for that key
//	resource:<type>:<identity> set of unresolved ids for one resource
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
	}

	return NewRedisStoreWithClient(client, opts.Prefix), nil
}

// NewRedisStoreWithClient wraps an existing client
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Close releases the underlying client
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) alertKey(id string) string { return r.prefix + "alert:" + id }
func (r *RedisStore) indexKey() string { return r.prefix + "alerts" }
func (r *RedisStore) activeKey(key string) string { return r.prefix + "active:" + key }

func (r *RedisStore) resourceKey(resourceType, name, namespace string) string {
	identity := name
	if namespace != "" {
		identity = namespace + "/" + name
	}
	return r.prefix + "resource:" + resourceType + ":" + identity
}

func (r *RedisStore) get(ctx context.Context, id string) (*types.Alert, error) {
	raw, err := r.client.Get(ctx, r.alertKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var a types.Alert
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decoding alert %s: %w", id, err)
	}
	return &a, nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*types.Alert, error) {
	a, err := r.get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	return a, nil
}

func (r *RedisStore) FindActive(ctx context.Context, key string) (*types.Alert, error) {
	id, err := r.client.Get(ctx, r.activeKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active %s: %w", key, err)
	}

	a, err := r.get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		// index points at a deleted record
		r.client.Del(ctx, r.activeKey(key))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active %s: %w", key, err)
	}
	if a.IsResolved {
		return nil, nil
	}
	return a, nil
}

func (r *RedisStore) FindActiveByResource(ctx context.Context, resourceType, name, namespace string) ([]types.Alert, error) {
	ids, err := r.client.SMembers(ctx, r.resourceKey(resourceType, name, namespace)).Result()
	if err != nil {
		return nil, fmt.Errorf("find active for %s %s: %w", resourceType, name, err)
	}

	alerts, err := r.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := alerts[:0]
	for _, a := range alerts {
		if !a.IsResolved {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *RedisStore) Create(ctx context.Context, alert *types.Alert) error {
	if alert.AlertKey == "" {
		return fmt.Errorf("create alert: empty alert key")
	}
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encoding alert %s: %w", alert.ID, err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.alertKey(alert.ID), data, 0)
		pipe.ZAdd(ctx, r.indexKey(), &redis.Z{
			Score:  float64(alert.CreatedAt.UnixNano()),
			Member: alert.ID,
		})
		if !alert.IsResolved {
			pipe.Set(ctx, r.activeKey(alert.AlertKey), alert.ID, 0)
			pipe.SAdd(ctx, r.resourceKey(alert.ResourceType, alert.ResourceName, alert.ResourceNamespace), alert.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("create alert %s: %w", alert.AlertKey, err)
	}
	return nil
}

func (r *RedisStore) Resolve(ctx context.Context, id string, at time.Time) error {
	a, err := r.get(ctx, id)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", id, err)
	}
	if a.IsResolved {
		return nil
	}

	resolvedAt := at.UTC()
	a.IsResolved = true
	a.ResolvedAt = &resolvedAt
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding alert %s: %w", id, err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.alertKey(id), data, 0)
		pipe.Del(ctx, r.activeKey(a.AlertKey))
		pipe.SRem(ctx, r.resourceKey(a.ResourceType, a.ResourceName, a.ResourceNamespace), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("resolve %s: %w", id, err)
	}
	return nil
}

func (r *RedisStore) List(ctx context.Context, filter types.AlertFilter) ([]types.Alert, error) {
	ids, err := r.client.ZRevRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	alerts, err := r.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]types.Alert, 0, len(alerts))
	for _, a := range alerts {
		if filter.Matches(a) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	a, err := r.get(ctx, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.alertKey(id))
		pipe.ZRem(ctx, r.indexKey(), id)
		pipe.SRem(ctx, r.resourceKey(a.ResourceType, a.ResourceName, a.ResourceNamespace), id)
		if !a.IsResolved {
			pipe.Del(ctx, r.activeKey(a.AlertKey))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

// load fetches records in the order of ids, skipping ids whose record has gone
func (r *RedisStore) load(ctx context.Context, ids []string) ([]types.Alert, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.alertKey(id)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("loading alerts: %w", err)
	}

	out := make([]types.Alert, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var a types.Alert
		if err := json.Unmarshal([]byte(s), &a); err != nil {
			return nil, fmt.Errorf("decoding alert %s: %w", ids[i], err)
		}
		out = append(out, a)
	}
	return out, nil
}
