package storage

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/restaurant/internal/core/domain"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestSetStock(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	client.Del(ctx, "stock:test-dish")

	if err := adapter.SetStock(ctx, "test-dish", 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stock, ok, err := adapter.GetStock(ctx, "test-dish")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || stock != 7 {
		t.Errorf("expected stock 7, got %d", stock)
	}
}

func TestCacheStatus_KeepsNewest(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	client.Del(ctx, "order:status:test-order")

	now := time.Now()
	newer := domain.StatusChange{OrderID: "test-order", UserID: 1, From: domain.OrderStatusAccepted, To: domain.OrderStatusPreparing, At: now}
	older := domain.StatusChange{OrderID: "test-order", UserID: 1, From: domain.OrderStatusPlaced, To: domain.OrderStatusAccepted, At: now.Add(-time.Second)}

	if err := adapter.CacheStatus(ctx, newer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := adapter.CacheStatus(ctx, older); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	status, err := client.HGet(ctx, "order:status:test-order", "status").Result()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != string(domain.OrderStatusPreparing) {
		t.Errorf("expected preparing, got %s", status)
	}
}

func TestCacheStatus_Publishes(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	adapter := NewRedisAdapter(client)

	ids, err := adapter.SubscribeStatus(ctx)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	client.Del(ctx, "order:status:pub-order")
	change := domain.StatusChange{OrderID: "pub-order", To: domain.OrderStatusReady, At: time.Now()}
	if err := adapter.CacheStatus(ctx, change); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case id := <-ids:
		if id != "pub-order" {
			t.Errorf("unexpected order id %q", id)
		}
	case <-ctx.Done():
		t.Fatal("no status announcement received")
	}

	cancel()
	for range ids {
	}
}

func TestGetStock_Missing(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	client.Del(ctx, "stock:nonexistent")

	_, ok, err := adapter.GetStock(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected no mirrored stock")
	}
}

func TestClearIdempotency(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)
	client.Del(ctx, "clear-idem-key")

	if ok, _ := adapter.SetIdempotency(ctx, "clear-idem-key"); !ok {
		t.Fatal("expected first call to succeed")
	}
	if err := adapter.ClearIdempotency(ctx, "clear-idem-key"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok, _ := adapter.SetIdempotency(ctx, "clear-idem-key"); !ok {
		t.Error("expected key to be reusable after clear")
	}
}

func TestSetIdempotency_Success(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	// Setup
	client.Del(ctx, "test-idem-key")

	// First call should succeed
	ok, err := adapter.SetIdempotency(ctx, "test-idem-key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected first call to succeed")
	}

	// Second call should fail (key exists)
	ok, err = adapter.SetIdempotency(ctx, "test-idem-key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected second call to fail")
	}
}

func TestSetIdempotency_Concurrent(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	adapter := NewRedisAdapter(client)

	client.Del(ctx, "concurrent-idem-key")

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := adapter.SetIdempotency(ctx, "concurrent-idem-key")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				successCount.Add(1)
			}
		}()
	}

	wg.Wait()

	// Only one should succeed
	if successCount.Load() != 1 {
		t.Errorf("expected exactly 1 success, got %d", successCount.Load())
	}
}
