package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kavelin/labelforge-backend/internal/logger"
	"github.com/kavelin/labelforge-backend/internal/types"
)

// ManifestCache is a read-through cache for per-file manifests. Entries are
// invalidated before every manifest rebuild so readers never see a manifest
// older than the one in the object store.
type ManifestCache interface {
	Get(ctx context.Context, jobID, fileID uuid.UUID) (*types.Manifest, error)
	Set(ctx context.Context, m *types.Manifest) error
	Invalidate(ctx context.Context, jobID, fileID uuid.UUID) error
	Close() error
}

type manifestCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewManifestCache(log *logger.Logger) (ManifestCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &manifestCache{
		log: log.With("service", "ManifestCache"),
		rdb: rdb,
		ttl: time.Hour,
	}, nil
}

func manifestKey(jobID, fileID uuid.UUID) string {
	return fmt.Sprintf("manifest:%s:%s", jobID, fileID)
}

func (c *manifestCache) Get(ctx context.Context, jobID, fileID uuid.UUID) (*types.Manifest, error) {
	raw, err := c.rdb.Get(ctx, manifestKey(jobID, fileID)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m types.Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *manifestCache) Set(ctx context.Context, m *types.Manifest) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, manifestKey(m.JobID, m.FileID), raw, c.ttl).Err()
}

func (c *manifestCache) Invalidate(ctx context.Context, jobID, fileID uuid.UUID) error {
	return c.rdb.Del(ctx, manifestKey(jobID, fileID)).Err()
}

func (c *manifestCache) Close() error {
	return c.rdb.Close()
}
