package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mindhaven/immerse/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Device registrations are small and re-created lazily, so a generous TTL is
// enough; there is no index to maintain.
const deviceTTL = 30 * 24 * time.Hour

func deviceKey(id string) string {
	return "device:" + id
}

// DeviceStore is the Redis-backed domain.DeviceStore.
type DeviceStore struct {
	rdb *redis.Client
}

func NewDeviceStore(client *Client) *DeviceStore {
	return &DeviceStore{rdb: client.rdb}
}

func (s *DeviceStore) Get(ctx context.Context, id string) (*domain.Device, error) {
	raw, err := s.rdb.Get(ctx, deviceKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read device: %w", err)
	}

	var device domain.Device
	if err := json.Unmarshal([]byte(raw), &device); err != nil {
		return nil, fmt.Errorf("failed to decode device %s: %w", id, err)
	}
	return &device, nil
}

func (s *DeviceStore) Put(ctx context.Context, device *domain.Device) error {
	raw, err := json.Marshal(device)
	if err != nil {
		return fmt.Errorf("failed to encode device: %w", err)
	}
	return s.rdb.Set(ctx, deviceKey(device.ID), raw, deviceTTL).Err()
}
