package service_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/restaurant/internal/adapter/memory"
	"github.com/rl1809/restaurant/internal/adapter/notify"
	"github.com/rl1809/restaurant/internal/adapter/storage"
	"github.com/rl1809/restaurant/internal/core/domain"
	"github.com/rl1809/restaurant/internal/core/service"
	"github.com/rl1809/restaurant/internal/observable"
	"github.com/rl1809/restaurant/internal/port"
)

type testEnv struct {
	redis   *redis.Client
	mysql   *sql.DB
	cache   *storage.RedisAdapter
	db      *storage.MySQLAdapter
	cleanup func()
}

func setupTestEnv(t *testing.T) *testEnv {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/restaurant?parseTime=true&multiStatements=true"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	mysqlAdapter := storage.NewMySQLAdapter(db)
	if err := mysqlAdapter.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	return &testEnv{
		redis: rdb,
		mysql: db,
		cache: storage.NewRedisAdapter(rdb),
		db:    mysqlAdapter,
		cleanup: func() {
			rdb.Close()
			db.Close()
		},
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before timeout")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestIntegration_FullOrderFlow(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dishName := "integration-" + uuid.NewString()
	initialStock := 10
	totalClients := 20

	menu := memory.NewMenuRepository(observable.New([]domain.MenuItem{{
		Dish:   domain.Dish{Name: dishName, Price: decimal.NewFromInt(3)},
		Amount: initialStock,
	}}))
	orders := memory.NewOrderRepository(observable.New[domain.Order](nil))
	queue := service.NewOrderQueue()

	dispatcher := notify.NewDispatcher([]port.StatusSink{
		notify.NewCacheSink(env.cache),
		notify.NewArchiveSink(env.db),
	})
	defer dispatcher.Close()

	stock := service.NewMenuStock(menu, env.cache, nil)
	engine := service.NewEngine(stock, orders, queue, dispatcher, service.WithTick(5*time.Millisecond))
	go engine.Run(ctx)

	sessions := service.NewSessionManager(menu, orders, queue, env.cache, engine, service.SessionConfig{})
	defer sessions.Shutdown()

	var placed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < totalClients; i++ {
		wg.Add(1)
		go func(userID int) {
			defer wg.Done()
			s, err := sessions.Open(domain.User{ID: int64(userID + 1), Login: fmt.Sprintf("user-%d", userID)})
			if err != nil {
				t.Errorf("open: %v", err)
				return
			}
			defer s.Close()
			if _, err := s.Submit(ctx, uuid.NewString(), []domain.OrderLine{{Dish: dishName, Quantity: 1}}); err != nil {
				t.Errorf("submit: %v", err)
				return
			}
			placed.Add(1)
		}(i)
	}
	wg.Wait()

	waitUntil(t, 5*time.Second, func() bool {
		return len(orders.ListByStatus(domain.OrderStatusReady, domain.OrderStatusRejected)) == int(placed.Load())
	})

	ready := orders.ListByStatus(domain.OrderStatusReady)
	if len(ready) != initialStock {
		t.Fatalf("expected %d ready orders, got %d", initialStock, len(ready))
	}
	for _, o := range ready {
		if err := engine.ConfirmPickup(ctx, o.ID); err != nil {
			t.Fatalf("pickup %s: %v", o.ID, err)
		}
	}
	waitUntil(t, 5*time.Second, func() bool {
		return len(orders.ListByStatus(domain.OrderStatusServed)) == initialStock
	})
	dispatcher.Close()

	// Verify Redis stock mirror
	redisStock, found, _ := env.cache.GetStock(ctx, dishName)
	if !found || redisStock != 0 {
		t.Errorf("expected Redis stock 0, got %d (found=%v)", redisStock, found)
	}

	// Verify cached status and MySQL archive for every order
	for _, o := range orders.ListByStatus(domain.OrderStatusServed, domain.OrderStatusRejected) {
		status, err := env.redis.HGet(ctx, "order:status:"+o.ID, "status").Result()
		if err != nil || status != string(o.Status) {
			t.Errorf("order %s: cached status %q (%v), expected %s", o.ID, status, err, o.Status)
		}

		archived, err := env.db.ArchivedOrder(ctx, o.ID)
		if err != nil {
			t.Errorf("order %s not archived: %v", o.ID, err)
			continue
		}
		if archived.Status != o.Status {
			t.Errorf("order %s: archived %s, expected %s", o.ID, archived.Status, o.Status)
		}

		env.mysql.ExecContext(ctx, `DELETE FROM order_lines WHERE order_id = ?`, o.ID)
		env.mysql.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, o.ID)
	}
}

func TestIntegration_IdempotencyPreventsDoubleOrder(t *testing.T) {
	env := setupTestEnv(t)
	defer env.cleanup()

	ctx := context.Background()
	dishName := "idempotency-" + uuid.NewString()
	requestID := "same-request-id-" + uuid.NewString()

	menu := memory.NewMenuRepository(observable.New([]domain.MenuItem{{
		Dish:   domain.Dish{Name: dishName, Price: decimal.NewFromInt(3)},
		Amount: 10,
	}}))
	orders := memory.NewOrderRepository(observable.New[domain.Order](nil))
	queue := service.NewOrderQueue()

	sessions := service.NewSessionManager(menu, orders, queue, env.cache, nil, service.SessionConfig{})
	defer sessions.Shutdown()

	s, err := sessions.Open(domain.User{ID: 1, Login: "alice"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	// First call
	if _, err := s.Submit(ctx, requestID, []domain.OrderLine{{Dish: dishName, Quantity: 1}}); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}

	// Second call with same requestID
	_, err = s.Submit(ctx, requestID, []domain.OrderLine{{Dish: dishName, Quantity: 1}})
	if err != service.ErrDuplicateRequest {
		t.Errorf("expected ErrDuplicateRequest, got: %v", err)
	}

	if queue.Len() != 1 {
		t.Errorf("expected 1 queued order, got %d", queue.Len())
	}
}
