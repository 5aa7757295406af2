package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slideScript trims events older than the window and records a new one only when the budget
// allows it. Returns {allowed, count, oldest score}.
var slideScript = redis.NewScript(`
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[2])
local count = redis.call("ZCARD", KEYS[1])
local allowed = 0
if count < tonumber(ARGV[3]) then
  redis.call("ZADD", KEYS[1], ARGV[1], ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call("PEXPIRE", KEYS[1], ARGV[5])
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
local first = ARGV[1]
if oldest[2] then
  first = oldest[2]
end
return {allowed, count, first}`)

// SlidingWindow counts events in a Redis sorted set per key, so every API instance sharing the
// Redis enforces one budget. Rejected events are not recorded.
type SlidingWindow struct {
	Client redis.UniversalClient
	Prefix string
	Now    func() time.Time
}

// Allow records an event for key if it fits in rule.
func (l SlidingWindow) Allow(ctx context.Context, key string, rule Rule) (Decision, error) {
	now := time.Now()
	if l.Now != nil {
		now = l.Now()
	}
	if l.Client == nil || rule.disabled() {
		return Decision{Allowed: true, Remaining: rule.Max, ResetAt: now.Add(rule.Window)}, nil
	}

	res, err := slideScript.Run(ctx, l.Client, []string{l.Prefix + key},
		now.UnixMilli(),
		now.Add(-rule.Window).UnixMilli(),
		rule.Max,
		uuid.NewString(),
		rule.Window.Milliseconds(),
	).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("ratelimit: unexpected script reply %v", res)
	}
	allowed, _ := res[0].(int64)
	count, _ := res[1].(int64)
	oldest := now.UnixMilli()
	if s, ok := res[2].(string); ok {
		if score, parseErr := strconv.ParseFloat(s, 64); parseErr == nil {
			oldest = int64(score)
		}
	}
	return Decision{
		Allowed:   allowed == 1,
		Remaining: max(rule.Max-int(count), 0),
		ResetAt:   time.UnixMilli(oldest).In(now.Location()).Add(rule.Window),
	}, nil
}
