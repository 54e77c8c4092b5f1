package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	siteKeyPrefix     = "snack:site:"
	shareKeyPrefix    = "snack:share:"
	activityKeyPrefix = "snack:activity:"
	versionKeyPrefix  = "snack:versions:"

	// consumeRetries bounds optimistic-transaction retries on
	// concurrent guest uploads against the same share.
	consumeRetries = 5
)

// RedisConfig defines Redis connection settings.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	Database int
}

type redisStore struct {
	client *redis.Client
	clock  func() time.Time
}

// NewRedisStore initializes a Store backed by Redis.
func NewRedisStore(cfg RedisConfig) (Store, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.Database,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &redisStore{client: client, clock: time.Now}, nil
}

func (s *redisStore) getJSON(ctx context.Context, key, resource, id string, v any) error {
	raw, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return &NotFoundError{Resource: resource, Key: id}
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), v)
}

func (s *redisStore) setJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, raw, 0).Err()
}

func (s *redisStore) GetSite(ctx context.Context, id string) (Site, error) {
	var site Site
	if err := s.getJSON(ctx, siteKeyPrefix+id, "site", id, &site); err != nil {
		return Site{}, err
	}
	return site, nil
}

func (s *redisStore) PutSite(ctx context.Context, site Site) error {
	if site.CreatedAt.IsZero() {
		site.CreatedAt = s.clock()
	}
	return s.setJSON(ctx, siteKeyPrefix+site.ID, site)
}

func (s *redisStore) CreateShare(ctx context.Context, share AssetShare) error {
	if share.CreatedAt.IsZero() {
		share.CreatedAt = s.clock()
	}
	return s.setJSON(ctx, shareKeyPrefix+share.ID, share)
}

func (s *redisStore) GetShare(ctx context.Context, id string) (AssetShare, error) {
	var share AssetShare
	if err := s.getJSON(ctx, shareKeyPrefix+id, "share", id, &share); err != nil {
		return AssetShare{}, err
	}
	return share, nil
}

// ConsumeShareUpload runs the increment-if-below-limit as a WATCH/MULTI
// transaction so concurrent uploads near the limit cannot overshoot.
func (s *redisStore) ConsumeShareUpload(ctx context.Context, id string) (AssetShare, error) {
	key := shareKeyPrefix + id
	var consumed AssetShare

	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return &NotFoundError{Resource: "share", Key: id}
		}
		if err != nil {
			return err
		}
		var share AssetShare
		if err := json.Unmarshal([]byte(raw), &share); err != nil {
			return err
		}
		if err := shareLive(share, s.clock()); err != nil {
			return err
		}
		share.UploadCount++
		updated, err := json.Marshal(share)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		if err != nil {
			return err
		}
		consumed = share
		return nil
	}

	for i := 0; i < consumeRetries; i++ {
		err := s.client.Watch(ctx, txn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return AssetShare{}, err
		}
		return consumed, nil
	}
	return AssetShare{}, fmt.Errorf("consume share %s: transaction contention", id)
}

func (s *redisStore) RevokeShare(ctx context.Context, id string) error {
	share, err := s.GetShare(ctx, id)
	if err != nil {
		return err
	}
	share.Revoked = true
	return s.setJSON(ctx, shareKeyPrefix+id, share)
}

func (s *redisStore) AppendActivity(ctx context.Context, entry ActivityLogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.clock()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.client.LPush(ctx, activityKeyPrefix+entry.SiteID, raw).Err()
}

func (s *redisStore) ListActivity(ctx context.Context, siteID string, limit int) ([]ActivityLogEntry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	raws, err := s.client.LRange(ctx, activityKeyPrefix+siteID, 0, stop).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]ActivityLogEntry, 0, len(raws))
	for _, raw := range raws {
		var entry ActivityLogEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *redisStore) PutAssetVersion(ctx context.Context, v AssetVersion) error {
	if v.CreatedAt.IsZero() {
		v.CreatedAt = s.clock()
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.LPush(ctx, versionKey(v.SiteID, v.Path), raw).Err()
}

func (s *redisStore) ListAssetVersions(ctx context.Context, siteID, path string) ([]AssetVersion, error) {
	raws, err := s.client.LRange(ctx, versionKey(siteID, path), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	versions := make([]AssetVersion, 0, len(raws))
	for _, raw := range raws {
		var v AssetVersion
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, nil
}

func versionKey(siteID, path string) string {
	return versionKeyPrefix + siteID + ":" + path
}
