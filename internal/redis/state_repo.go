package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mediacastd/playout-server/internal/domain/channel"
)

var (
	channelKeyPrefix = "playout:channel:"
	channelIDsKey    = "playout:channels" // SET of string IDs: {"0", "1", ...}
	globalKey        = "playout:global"
)

// StateRepository provides Redis-backed persistence for channel
// snapshots and the global settings blob. It implements the engine's
// Store interface.
type StateRepository struct {
	client *Client
	log    *zap.Logger
}

// NewStateRepository initializes a new StateRepository instance.
func NewStateRepository(log *zap.Logger, client *Client) *StateRepository {
	return &StateRepository{
		log:    log.Named("state_repo"),
		client: client,
	}
}

// globalRecord is the persisted shape of the server-wide settings.
type globalRecord struct {
	Settings  channel.GlobalSettings `json:"settings"`
	Transcode channel.Settings       `json:"transcode"`
}

// SaveChannel persists a snapshot and adds its ID to the index set.
func (r *StateRepository) SaveChannel(ctx context.Context, snap *channel.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, channelKey(snap.ID), payload, 0)
	pipe.SAdd(ctx, channelIDsKey, strconv.Itoa(snap.ID))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

// DeleteChannel removes a persisted snapshot and its index entry.
// A missing key is not an error: removal is idempotent.
func (r *StateRepository) DeleteChannel(ctx context.Context, id int) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, channelKey(id))
	pipe.SRem(ctx, channelIDsKey, strconv.Itoa(id))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

// LoadChannels returns every persisted channel snapshot. Entries whose
// payload vanished or fails to decode are skipped with a warning so one
// corrupt record never blocks a boot restore.
func (r *StateRepository) LoadChannels(ctx context.Context) ([]*channel.Snapshot, error) {
	ids, err := r.client.SMembers(ctx, channelIDsKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("set members: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = channelKeyPrefix + id
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget: %w", err)
	}

	out := make([]*channel.Snapshot, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			r.log.Warn("missing or malformed channel record", zap.String("key", keys[i]))
			continue
		}
		var snap channel.Snapshot
		if err := json.Unmarshal([]byte(s), &snap); err != nil {
			r.log.Warn("undecodable channel record", zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		out = append(out, &snap)
	}
	return out, nil
}

// SaveGlobal persists the server-wide settings blob.
func (r *StateRepository) SaveGlobal(ctx context.Context, gs channel.GlobalSettings, tc channel.Settings) error {
	payload, err := json.Marshal(globalRecord{Settings: gs, Transcode: tc})
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err := r.client.Set(ctx, globalKey, payload, 0).Err(); err != nil {
		return fmt.Errorf("set: %w", err)
	}
	return nil
}

// LoadGlobal fetches the server-wide settings blob. Both results are
// nil when nothing was ever persisted.
func (r *StateRepository) LoadGlobal(ctx context.Context) (*channel.GlobalSettings, *channel.Settings, error) {
	value, err := r.client.Get(ctx, globalKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("get: %w", err)
	}

	var rec globalRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return nil, nil, fmt.Errorf("decode: %w", err)
	}
	return &rec.Settings, &rec.Transcode, nil
}

func channelKey(id int) string {
	return channelKeyPrefix + strconv.Itoa(id)
}
