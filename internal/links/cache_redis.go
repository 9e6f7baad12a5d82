package links

import (
	"context"
	"math"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix names the hash and sorted set used by RedisCache.
const DefaultKeyPrefix = "links"

// conditionalUpsertScript updates an existing record and its index score
// and returns 1. An absent record, or an index entry that is already newer,
// is left alone and returns 0.
//
// KEYS[1] hash, KEYS[2] sorted set; ARGV[1] id, ARGV[2] record, ARGV[3] score.
var conditionalUpsertScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 0 then
  return 0
end
local current = redis.call('ZSCORE', KEYS[2], ARGV[1])
if current and tonumber(current) > tonumber(ARGV[3]) then
  return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
return 1
`)

// upsertScript writes a record and its index score unless the index already
// holds a newer score for the id.
var upsertScript = redis.NewScript(`
local current = redis.call('ZSCORE', KEYS[2], ARGV[1])
if current and tonumber(current) > tonumber(ARGV[3]) then
  return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
return 1
`)

// RedisCache implements Cache with a Redis hash and sorted set.
type RedisCache struct {
	client  redis.Cmdable
	hashKey string
	zsetKey string
}

// NewRedisCache returns a Cache storing records under "<prefix>:hash" and
// the index under "<prefix>:sorted".
func NewRedisCache(client redis.Cmdable, prefix string) *RedisCache {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisCache{
		client:  client,
		hashKey: prefix + ":hash",
		zsetKey: prefix + ":sorted",
	}
}

func formatScore(score float64) string {
	if math.IsInf(score, 1) {
		return "+inf"
	}
	if math.IsInf(score, -1) {
		return "-inf"
	}
	return strconv.FormatFloat(score, 'f', -1, 64)
}

func (c *RedisCache) RangeByScore(ctx context.Context, maxScore float64, offset, count int64) ([]string, error) {
	const op = "links.cache.RangeByScore"

	if count <= 0 {
		return nil, nil
	}
	keys, err := c.client.ZRevRangeByScore(ctx, c.zsetKey, &redis.ZRangeBy{
		Max:    formatScore(maxScore),
		Min:    "-inf",
		Offset: offset,
		Count:  count,
	}).Result()
	if err != nil {
		return nil, cacheError(op, err)
	}
	return keys, nil
}

func (c *RedisCache) MultiGetFields(ctx context.Context, keys []string) (map[string]string, error) {
	const op = "links.cache.MultiGetFields"

	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	vals, err := c.client.HMGet(ctx, c.hashKey, keys...).Result()
	if err != nil {
		return nil, cacheError(op, err)
	}
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[keys[i]] = s
		}
	}
	return out, nil
}

func (c *RedisCache) ConditionalUpsert(ctx context.Context, key, record string, score float64) (bool, error) {
	const op = "links.cache.ConditionalUpsert"

	n, err := conditionalUpsertScript.Run(ctx, c.client, []string{c.hashKey, c.zsetKey}, key, record, formatScore(score)).Int()
	if err != nil {
		return false, cacheError(op, err)
	}
	return n == 1, nil
}

func (c *RedisCache) UnconditionalUpsert(ctx context.Context, key, record string, score float64) error {
	const op = "links.cache.UnconditionalUpsert"

	if err := upsertScript.Run(ctx, c.client, []string{c.hashKey, c.zsetKey}, key, record, formatScore(score)).Err(); err != nil {
		return cacheError(op, err)
	}
	return nil
}

func (c *RedisCache) Size(ctx context.Context) (int64, error) {
	const op = "links.cache.Size"

	n, err := c.client.ZCard(ctx, c.zsetKey).Result()
	if err != nil {
		return 0, cacheError(op, err)
	}
	return n, nil
}

// Remove deletes ids from both the field map and the index in one
// transaction.
func (c *RedisCache) Remove(ctx context.Context, ids ...string) error {
	const op = "links.cache.Remove"

	if len(ids) == 0 {
		return nil
	}
	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, c.hashKey, ids...)
		pipe.ZRem(ctx, c.zsetKey, members...)
		return nil
	})
	if err != nil {
		return cacheError(op, err)
	}
	return nil
}

var _ Cache = (*RedisCache)(nil)
