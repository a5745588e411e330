package redis

import (
	"context"
	"strconv"

	"github.com/redis/rueidis"
)

// Generation tracks a monotonically increasing counter used to invalidate
// cached policy documents across instances. Every save bumps the counter;
// readers compare their cached generation against the current value.
type Generation struct {
	client rueidis.Client
	key    string
}

// NewGeneration creates a generation counter stored under the given key.
func NewGeneration(client rueidis.Client, key string) *Generation {
	return &Generation{client: client, key: key}
}

// Bump increments the counter and returns the new value.
func (g *Generation) Bump(ctx context.Context) (int64, error) {
	return g.client.Do(ctx, g.client.B().Incr().Key(g.key).Build()).AsInt64()
}

// Current returns the counter value, or 0 when the key does not exist.
func (g *Generation) Current(ctx context.Context) (int64, error) {
	resp := g.client.Do(ctx, g.client.B().Get().Key(g.key).Build())
	if err := resp.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return 0, nil
		}

		return 0, err
	}

	val, err := resp.ToString()
	if err != nil {
		return 0, err
	}

	return strconv.ParseInt(val, 10, 64)
}

// Counters accumulates per-situation feedback tallies in a Redis hash.
type Counters struct {
	client rueidis.Client
	key    string
}

// NewCounters creates a counter hash stored under the given key.
func NewCounters(client rueidis.Client, key string) *Counters {
	return &Counters{client: client, key: key}
}

// Incr adds delta to the named field.
func (c *Counters) Incr(ctx context.Context, field string, delta int64) error {
	return c.client.Do(ctx,
		c.client.B().Hincrby().Key(c.key).Field(field).Increment(delta).Build(),
	).Error()
}

// All returns the current tallies.
func (c *Counters) All(ctx context.Context) (map[string]int64, error) {
	raw, err := c.client.Do(ctx, c.client.B().Hgetall().Key(c.key).Build()).AsStrMap()
	if err != nil {
		return nil, err
	}

	result := make(map[string]int64, len(raw))

	for field, val := range raw {
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			continue
		}

		result[field] = n
	}

	return result, nil
}
