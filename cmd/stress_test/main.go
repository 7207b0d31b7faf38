package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/restaurant/internal/adapter/memory"
	"github.com/rl1809/restaurant/internal/adapter/notify"
	"github.com/rl1809/restaurant/internal/core/domain"
	"github.com/rl1809/restaurant/internal/core/service"
	"github.com/rl1809/restaurant/internal/logging"
	"github.com/rl1809/restaurant/internal/observable"
	"github.com/rl1809/restaurant/internal/port"
)

const dishName = "stress-test-dish"

func main() {
	initialStock := flag.Int("stock", 20, "initial amount of the dish")
	totalClients := flag.Int("clients", 50, "concurrent client sessions")
	tick := flag.Duration("tick", 10*time.Millisecond, "engine tick")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := logging.New("stress-test", "warn")

	menu := memory.NewMenuRepository(observable.New([]domain.MenuItem{{
		Dish:   domain.Dish{Name: dishName, Price: decimal.NewFromInt(5)},
		Amount: *initialStock,
	}}))
	orders := memory.NewOrderRepository(observable.New[domain.Order](nil))
	queue := service.NewOrderQueue()

	dispatcher := notify.NewDispatcher([]port.StatusSink{notify.NewLogSink(log)}, notify.WithLogger(log))
	defer dispatcher.Close()

	stock := service.NewMenuStock(menu, nil, log)
	engine := service.NewEngine(stock, orders, queue, dispatcher, service.WithTick(*tick), service.WithLogger(log))
	go engine.Run(ctx)

	sessions := service.NewSessionManager(menu, orders, queue, memory.NewIdempotencyStore(time.Hour), engine,
		service.SessionConfig{Logger: log})
	defer sessions.Shutdown()

	// Counters
	var submitted atomic.Int32
	var submitFailed atomic.Int32

	// Spawn concurrent clients
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *totalClients; i++ {
		wg.Add(1)
		go func(userID int) {
			defer wg.Done()

			s, err := sessions.Open(domain.User{ID: int64(userID + 1), Login: fmt.Sprintf("user-%d", userID)})
			if err != nil {
				submitFailed.Add(1)
				return
			}
			defer s.Close()

			_, err = s.Submit(ctx, fmt.Sprintf("req-%d", userID), []domain.OrderLine{{Dish: dishName, Quantity: 1}})
			if err == nil {
				submitted.Add(1)
			} else {
				submitFailed.Add(1)
			}
		}(i)
	}

	wg.Wait()

	// Wait for the engine to decide every order
	deadline := time.Now().Add(30 * time.Second)
	for len(orders.ListByStatus(domain.OrderStatusPlaced)) > 0 && time.Now().Before(deadline) {
		time.Sleep(*tick)
	}
	elapsed := time.Since(start)

	// Results
	rejected := len(orders.ListByStatus(domain.OrderStatusRejected))
	accepted := len(orders.ListByStatus(
		domain.OrderStatusAccepted, domain.OrderStatusPreparing,
		domain.OrderStatusReady, domain.OrderStatusServed,
	))
	pending := len(orders.ListByStatus(domain.OrderStatusPlaced))

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", *initialStock)
	fmt.Printf("Total Clients:    %d\n", *totalClients)
	fmt.Printf("Submitted:        %d\n", submitted.Load())
	fmt.Printf("Submit Failed:    %d\n", submitFailed.Load())
	fmt.Printf("Accepted:         %d\n", accepted)
	fmt.Printf("Rejected:         %d\n", rejected)
	fmt.Printf("Still Placed:     %d\n", pending)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	failed := false
	wantAccepted := min(*initialStock, int(submitted.Load()))

	// Assertions
	if accepted == wantAccepted && pending == 0 {
		fmt.Printf("PASS: Exactly %d orders accepted, %d rejected\n", accepted, rejected)
	} else {
		fmt.Printf("FAIL: Expected %d accepted and none pending, got %d/%d\n", wantAccepted, accepted, pending)
		failed = true
	}

	item, _ := menu.Get(dishName)
	fmt.Printf("Final Stock: %d\n", item.Amount)

	if item.Amount == *initialStock-wantAccepted {
		fmt.Printf("PASS: Stock left at %d\n", item.Amount)
	} else {
		fmt.Printf("FAIL: Expected stock %d, got %d\n", *initialStock-wantAccepted, item.Amount)
		failed = true
	}

	if failed {
		os.Exit(1)
	}
}
