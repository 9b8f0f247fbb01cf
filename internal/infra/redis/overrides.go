package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kursadbilgin/hrp-console/internal/domain"
	"github.com/kursadbilgin/hrp-console/internal/override"
)

const defaultOverridesKey = "hrp:status-overrides"

var _ override.Persistence = (*OverridePersistence)(nil)

// OverridePersistence keeps overrides in one redis hash, field per record
// id, value the persisted override record shape.
type OverridePersistence struct {
	client *goredis.Client
	key    string
}

func NewOverridePersistence(client *goredis.Client) (*OverridePersistence, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &OverridePersistence{client: client, key: defaultOverridesKey}, nil
}

func (p *OverridePersistence) Load(ctx context.Context) (map[int64]domain.StatusOverride, error) {
	entries, err := p.client.HGetAll(ctx, p.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load overrides: %w", err)
	}

	loaded := make(map[int64]domain.StatusOverride, len(entries))
	for field, raw := range entries {
		recordID, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			continue
		}
		var o domain.StatusOverride
		if err := json.Unmarshal([]byte(raw), &o); err != nil {
			continue
		}
		o.RecordID = recordID
		loaded[recordID] = o
	}
	return loaded, nil
}

func (p *OverridePersistence) Save(ctx context.Context, o domain.StatusOverride) error {
	raw, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to encode override: %w", err)
	}

	field := strconv.FormatInt(o.RecordID, 10)
	if err := p.client.HSet(ctx, p.key, field, raw).Err(); err != nil {
		return fmt.Errorf("failed to save override: %w", err)
	}
	return nil
}

func (p *OverridePersistence) Clear(ctx context.Context) error {
	if err := p.client.Del(ctx, p.key).Err(); err != nil {
		return fmt.Errorf("failed to clear overrides: %w", err)
	}
	return nil
}
