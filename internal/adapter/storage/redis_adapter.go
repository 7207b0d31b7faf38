package storage

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/restaurant/internal/core/domain"
)

const (
	stockKeyPrefix    = "stock:"
	statusKeyPrefix   = "order:status:"
	StatusChannel     = "order-status"
	idempotencyKeyTTL = 24 * time.Hour
	statusKeyTTL      = 7 * 24 * time.Hour
	statusFeedBuffer  = 64
)

// cacheStatusScript stores the latest status of an order and publishes the
// change in one round trip. Older changes never overwrite newer ones.
var cacheStatusScript = redis.NewScript(`
local key = KEYS[1]
local at = tonumber(ARGV[2])

local current = redis.call('HGET', key, 'at')
if current and tonumber(current) > at then
	return 0
end

redis.call('HSET', key, 'status', ARGV[1], 'at', ARGV[2], 'reason', ARGV[3], 'user_id', ARGV[4])
redis.call('EXPIRE', key, ARGV[5])
redis.call('PUBLISH', ARGV[6], ARGV[7])
return 1
`)

// RedisAdapter implements port.IdempotencyStore, port.StockMirror,
// port.StatusCache and port.StatusFeed.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ClearIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisAdapter) SetStock(ctx context.Context, dish string, amount int) error {
	key := stockKeyPrefix + dish
	return r.client.Set(ctx, key, amount, 0).Err()
}

func (r *RedisAdapter) GetStock(ctx context.Context, dish string) (int, bool, error) {
	amount, err := r.client.Get(ctx, stockKeyPrefix+dish).Int()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return amount, true, nil
}

func (r *RedisAdapter) CacheStatus(ctx context.Context, change domain.StatusChange) error {
	key := statusKeyPrefix + change.OrderID
	payload := change.OrderID + ":" + string(change.To)

	_, err := cacheStatusScript.Run(ctx, r.client, []string{key},
		string(change.To),
		change.At.UnixNano(),
		change.Reason,
		change.UserID,
		int(statusKeyTTL.Seconds()),
		StatusChannel,
		payload,
	).Int()
	return err
}

// SubscribeStatus listens on StatusChannel and delivers the order id of
// every "<orderID>:<status>" payload until ctx is done. The subscription is
// confirmed before it returns.
func (r *RedisAdapter) SubscribeStatus(ctx context.Context) (<-chan string, error) {
	sub := r.client.Subscribe(ctx, StatusChannel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, err
	}

	ids := make(chan string, statusFeedBuffer)
	go func() {
		defer close(ids)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				i := strings.LastIndexByte(msg.Payload, ':')
				if i <= 0 {
					continue
				}
				select {
				case ids <- msg.Payload[:i]:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ids, nil
}
