package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tailored-agentic-units/monologue/core/protocol"
)

// RedisJournal keeps the turn log in a Redis list and digests in a hash
// keyed by ordinal range.
type RedisJournal struct {
	client *redis.Client
	prefix string
}

// NewRedisJournal connects to the Redis server in cfg and verifies it with a
// ping.
func NewRedisJournal(cfg JournalConfig) (*RedisJournal, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis journal: addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return NewRedisJournalFromClient(client, cfg.Prefix), nil
}

// NewRedisJournalFromClient wraps an existing client.
func NewRedisJournalFromClient(client *redis.Client, prefix string) *RedisJournal {
	if prefix == "" {
		prefix = "monologue"
	}
	return &RedisJournal{client: client, prefix: prefix}
}

func (j *RedisJournal) turnsKey(id string) string   { return j.prefix + ":" + id + ":turns" }
func (j *RedisJournal) digestsKey(id string) string { return j.prefix + ":" + id + ":digests" }

func (j *RedisJournal) Append(ctx context.Context, sessionID string, turn protocol.Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("encode turn %d: %w", turn.Ordinal, err)
	}
	if err := j.client.RPush(ctx, j.turnsKey(sessionID), data).Err(); err != nil {
		return fmt.Errorf("redis append: %w", err)
	}
	return nil
}

func (j *RedisJournal) SaveDigest(ctx context.Context, sessionID string, digest protocol.Turn) error {
	if digest.Digest == nil {
		return fmt.Errorf("turn %d is not a digest", digest.Ordinal)
	}
	data, err := json.Marshal(digest)
	if err != nil {
		return fmt.Errorf("encode digest %s: %w", digest.Digest.Key(), err)
	}
	if err := j.client.HSet(ctx, j.digestsKey(sessionID), digest.Digest.Key(), data).Err(); err != nil {
		return fmt.Errorf("redis save digest: %w", err)
	}
	return nil
}

func (j *RedisJournal) Load(ctx context.Context, sessionID string) (Record, error) {
	var rec Record

	lines, err := j.client.LRange(ctx, j.turnsKey(sessionID), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return rec, fmt.Errorf("redis load turns: %w", err)
	}
	for i, line := range lines {
		var t protocol.Turn
		if err := json.Unmarshal([]byte(line), &t); err != nil {
			return rec, fmt.Errorf("%w: turn %d: %v", ErrCorruptRecord, i, err)
		}
		rec.Turns = append(rec.Turns, t)
	}

	fields, err := j.client.HGetAll(ctx, j.digestsKey(sessionID)).Result()
	if err != nil && err != redis.Nil {
		return rec, fmt.Errorf("redis load digests: %w", err)
	}
	for key, raw := range fields {
		var d protocol.Turn
		if err := json.Unmarshal([]byte(raw), &d); err != nil || d.Digest == nil {
			return rec, fmt.Errorf("%w: digest %s", ErrCorruptRecord, key)
		}
		rec.Digests = append(rec.Digests, d)
	}

	sortRecord(&rec)
	return rec, nil
}

func (j *RedisJournal) Delete(ctx context.Context, sessionID string) error {
	return j.client.Del(ctx, j.turnsKey(sessionID), j.digestsKey(sessionID)).Err()
}

// Close releases the underlying client.
func (j *RedisJournal) Close() error {
	return j.client.Close()
}
