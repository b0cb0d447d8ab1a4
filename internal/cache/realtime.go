package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wisefido-vision/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RealtimeCache 摄像头实时检测快照缓存
// 每处理一帧写入最新快照（带 TTL），供看板等读侧消费
type RealtimeCache struct {
	redisClient *redis.Client
	keyPrefix   string
	keySuffix   string
	ttl         time.Duration
	logger      *zap.Logger
}

// NewRealtimeCache 创建实时快照缓存
func NewRealtimeCache(redisClient *redis.Client, keyPrefix, keySuffix string, ttlSeconds int, logger *zap.Logger) *RealtimeCache {
	return &RealtimeCache{
		redisClient: redisClient,
		keyPrefix:   keyPrefix,
		keySuffix:   keySuffix,
		ttl:         time.Duration(ttlSeconds) * time.Second,
		logger:      logger,
	}
}

// key 构建快照键，如 "vision:camera:cam-1:realtime"
func (c *RealtimeCache) key(cameraID string) string {
	return c.keyPrefix + cameraID + c.keySuffix
}

// SetSnapshot 写入摄像头最新检测快照
func (c *RealtimeCache) SetSnapshot(ctx context.Context, snapshot *models.RealtimeSnapshot) error {
	if snapshot == nil || snapshot.CameraID == "" {
		return fmt.Errorf("snapshot with camera_id is required")
	}

	jsonData, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := c.redisClient.Set(ctx, c.key(snapshot.CameraID), jsonData, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set snapshot: %w", err)
	}

	return nil
}

// GetSnapshot 读取摄像头最新检测快照
func (c *RealtimeCache) GetSnapshot(ctx context.Context, cameraID string) (*models.RealtimeSnapshot, error) {
	val, err := c.redisClient.Get(ctx, c.key(cameraID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("realtime snapshot not found: %s", cameraID)
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var snapshot models.RealtimeSnapshot
	if err := json.Unmarshal([]byte(val), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &snapshot, nil
}
