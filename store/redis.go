package store

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces every key this engine writes.
const keyPrefix = "guardrail:"

// RedisStore is the remote backend. It implements the full contract,
// including sorted sets, so the event log gets true time-windowed storage
// and range queries. Multi-command writes go through MULTI/EXEC pipelines
// and are all-or-nothing per network call.
type RedisStore struct {
	client *redis.Client
}

// Ensure RedisStore implements Store interface
var _ Store = (*RedisStore)(nil)

// RedisConfig for creating a Redis store
type RedisConfig struct {
	Addr     string // Redis address (e.g., "localhost:6379")
	Password string // Redis password (empty for no auth)
	DB       int    // Redis database number
}

// NewRedisStore creates a new Redis-backed store
func NewRedisStore(config RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	return &RedisStore{client: client}
}

func (s *RedisStore) err(op string, err error) error {
	return &StoreError{Backend: "redis", Op: op, Err: err}
}

func prefixed(key string) string { return keyPrefix + key }

// Get retrieves the value for key. A missing key is not an error.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, prefixed(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, s.err("get", err)
	}
	return val, true, nil
}

// Set stores value under key. A zero ttl means no expiry.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, prefixed(key), value, ttl).Err(); err != nil {
		return s.err("set", err)
	}
	return nil
}

// Delete removes the given keys and reports how many existed.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) (int64, error) {
	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = prefixed(key)
	}
	removed, err := s.client.Del(ctx, full...).Result()
	if err != nil {
		return 0, s.err("del", err)
	}
	return removed, nil
}

// Increment atomically increments the integer at key, creating it at 1.
func (s *RedisStore) Increment(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Incr(ctx, prefixed(key)).Result()
	if err != nil {
		return 0, s.err("incr", err)
	}
	return n, nil
}

// Expire sets a ttl on an existing key. Returns false when the key is absent.
func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.Expire(ctx, prefixed(key), ttl).Result()
	if err != nil {
		return false, s.err("expire", err)
	}
	return ok, nil
}

// TTL reports the remaining lifetime of key, TTLNone for no expiry and
// TTLMissing for an absent key.
func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.client.TTL(ctx, prefixed(key)).Result()
	if err != nil {
		return 0, s.err("ttl", err)
	}
	// go-redis reports the Redis sentinels as raw -1/-2 durations
	switch d {
	case -1:
		return TTLNone, nil
	case -2:
		return TTLMissing, nil
	}
	return d, nil
}

// SortedSetAdd adds member with score to the sorted set at key.
func (s *RedisStore) SortedSetAdd(ctx context.Context, key string, score float64, member string) error {
	err := s.client.ZAdd(ctx, prefixed(key), redis.Z{Score: score, Member: member}).Err()
	if err != nil {
		return s.err("zadd", err)
	}
	return nil
}

// SortedSetRange returns members by rank, lowest score first. Negative
// ranks count from the end, so (-n, -1) is the n highest-scored members.
func (s *RedisStore) SortedSetRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	members, err := s.client.ZRange(ctx, prefixed(key), start, stop).Result()
	if err != nil {
		return nil, s.err("zrange", err)
	}
	return members, nil
}

// SortedSetRangeByScore returns members whose score falls in [min, max].
func (s *RedisStore) SortedSetRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	members, err := s.client.ZRangeByScore(ctx, prefixed(key), &redis.ZRangeBy{
		Min: strconv.FormatFloat(min, 'f', -1, 64),
		Max: strconv.FormatFloat(max, 'f', -1, 64),
	}).Result()
	if err != nil {
		return nil, s.err("zrangebyscore", err)
	}
	return members, nil
}

// SortedSetTrimByRank removes members in the rank range and reports the
// removed count.
func (s *RedisStore) SortedSetTrimByRank(ctx context.Context, key string, start, stop int64) (int64, error) {
	removed, err := s.client.ZRemRangeByRank(ctx, prefixed(key), start, stop).Result()
	if err != nil {
		return 0, s.err("zremrangebyrank", err)
	}
	return removed, nil
}

// SortedSetRemoveByScore removes members scored in [min, max].
func (s *RedisStore) SortedSetRemoveByScore(ctx context.Context, key string, min, max float64) (int64, error) {
	removed, err := s.client.ZRemRangeByScore(ctx, prefixed(key),
		strconv.FormatFloat(min, 'f', -1, 64),
		strconv.FormatFloat(max, 'f', -1, 64)).Result()
	if err != nil {
		return 0, s.err("zremrangebyscore", err)
	}
	return removed, nil
}

// HashIncrement increments field in the hash at key, creating both as needed.
func (s *RedisStore) HashIncrement(ctx context.Context, key, field string, delta int64) (int64, error) {
	n, err := s.client.HIncrBy(ctx, prefixed(key), field, delta).Result()
	if err != nil {
		return 0, s.err("hincrby", err)
	}
	return n, nil
}

// HashGetAll returns every field of the hash at key; an absent key reads
// as an empty map.
func (s *RedisStore) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := s.client.HGetAll(ctx, prefixed(key)).Result()
	if err != nil {
		return nil, s.err("hgetall", err)
	}
	return fields, nil
}

// Keys scans for keys matching the glob pattern, with the engine prefix
// stripped from the results.
func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	var matched []string
	iter := s.client.Scan(ctx, 0, keyPrefix+pattern, 0).Iterator()
	for iter.Next(ctx) {
		matched = append(matched, iter.Val()[len(keyPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, s.err("keys", err)
	}
	return matched, nil
}

// redisPipe adapts a go-redis pipeliner to the Pipe interface.
type redisPipe struct {
	ctx  context.Context
	pipe redis.Pipeliner
}

func (p *redisPipe) Set(key, value string, ttl time.Duration) {
	p.pipe.Set(p.ctx, prefixed(key), value, ttl)
}

func (p *redisPipe) Expire(key string, ttl time.Duration) {
	p.pipe.Expire(p.ctx, prefixed(key), ttl)
}

func (p *redisPipe) SortedSetAdd(key string, score float64, member string) {
	p.pipe.ZAdd(p.ctx, prefixed(key), redis.Z{Score: score, Member: member})
}

func (p *redisPipe) SortedSetTrimByRank(key string, start, stop int64) {
	p.pipe.ZRemRangeByRank(p.ctx, prefixed(key), start, stop)
}

func (p *redisPipe) HashIncrement(key, field string, delta int64) {
	p.pipe.HIncrBy(p.ctx, prefixed(key), field, delta)
}

// Pipeline sends the queued commands as one MULTI/EXEC transaction.
// A transport failure fails the whole batch; nothing is applied on error.
func (s *RedisStore) Pipeline(ctx context.Context, fn func(Pipe) error) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return fn(&redisPipe{ctx: ctx, pipe: pipe})
	})
	if err != nil {
		return s.err("pipeline", err)
	}
	return nil
}

// Ping checks if the Redis connection is alive.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return s.err("ping", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
