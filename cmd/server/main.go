package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/rl1809/restaurant/internal/adapter/handler"
	"github.com/rl1809/restaurant/internal/adapter/memory"
	"github.com/rl1809/restaurant/internal/adapter/notify"
	"github.com/rl1809/restaurant/internal/adapter/storage"
	"github.com/rl1809/restaurant/internal/config"
	"github.com/rl1809/restaurant/internal/core/domain"
	"github.com/rl1809/restaurant/internal/core/service"
	"github.com/rl1809/restaurant/internal/logging"
	"github.com/rl1809/restaurant/internal/metrics"
	"github.com/rl1809/restaurant/internal/observable"
	"github.com/rl1809/restaurant/internal/port"
)

const (
	menuSnapshot   = "menu"
	ordersSnapshot = "orders"
	idempotencyTTL = 24 * time.Hour
)

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logging.New("restaurant", cfg.Log.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load snapshots and persist every change
	store, err := storage.NewFileStore(cfg.Storage.DataDir)
	if err != nil {
		fatal(log, "failed to open data dir", err)
	}
	var (
		menuItems []domain.MenuItem
		orderList []domain.Order
	)
	if err := store.Load(menuSnapshot, &menuItems); err != nil {
		fatal(log, "failed to load menu", err)
	}
	if err := store.Load(ordersSnapshot, &orderList); err != nil {
		fatal(log, "failed to load orders", err)
	}
	log.Info("snapshots loaded", "dishes", len(menuItems), "orders", len(orderList))

	menuObs := observable.New(menuItems)
	menuObs.AddObserver(persist[domain.MenuItem](log, store, menuSnapshot))
	ordersObs := observable.New(orderList)
	ordersObs.AddObserver(persist[domain.Order](log, store, ordersSnapshot))

	menuRepo := memory.NewMenuRepository(menuObs)
	orderRepo := memory.NewOrderRepository(ordersObs)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var (
		mirror   port.StockMirror
		feed     port.StatusFeed
		idem     port.IdempotencyStore = memory.NewIdempotencyStore(idempotencyTTL)
		archives []port.OrderArchive
		sinks    = []port.StatusSink{notify.NewLogSink(log)}
		closers  []func()
	)

	// Initialize Redis
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			fatal(log, "failed to connect redis", err)
		}
		log.Info("connected to redis", "addr", cfg.Redis.Addr)

		redisAdapter := storage.NewRedisAdapter(rdb)
		mirror, idem, feed = redisAdapter, redisAdapter, redisAdapter
		sinks = append(sinks, notify.NewCacheSink(redisAdapter))
		closers = append(closers, func() { rdb.Close() })
	}

	// Initialize MySQL
	if cfg.Archive.MySQLDSN != "" {
		db, err := sql.Open("mysql", cfg.Archive.MySQLDSN)
		if err != nil {
			fatal(log, "failed to connect mysql", err)
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			fatal(log, "failed to ping mysql", err)
		}
		mysqlAdapter := storage.NewMySQLAdapter(db)
		if err := mysqlAdapter.Migrate(ctx); err != nil {
			fatal(log, "failed to migrate mysql", err)
		}
		log.Info("connected to mysql")
		archives = append(archives, mysqlAdapter)
		closers = append(closers, func() { db.Close() })
	}

	// Initialize Postgres
	if cfg.Archive.PostgresDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.Archive.PostgresDSN)
		if err != nil {
			fatal(log, "failed to connect postgres", err)
		}
		if err := pool.Ping(ctx); err != nil {
			fatal(log, "failed to ping postgres", err)
		}
		pgAdapter := storage.NewPostgresAdapter(pool)
		if err := pgAdapter.Migrate(ctx); err != nil {
			fatal(log, "failed to migrate postgres", err)
		}
		log.Info("connected to postgres")
		archives = append(archives, pgAdapter)
		closers = append(closers, pool.Close)
	}
	if len(archives) > 0 {
		sinks = append(sinks, notify.NewArchiveSink(archives...))
	}

	// Initialize brokers
	if cfg.Notify.RabbitURL != "" {
		rabbit, err := notify.DialRabbit(notify.RabbitConfig{URL: cfg.Notify.RabbitURL, Exchange: cfg.Notify.Exchange})
		if err != nil {
			fatal(log, "failed to connect rabbitmq", err)
		}
		log.Info("connected to rabbitmq")
		sinks = append(sinks, rabbit)
		closers = append(closers, rabbit.Close)
	}
	if brokers := notify.ParseBrokers(cfg.Notify.KafkaBrokers); len(brokers) > 0 {
		kafkaPub := notify.NewKafkaPublisher(brokers, cfg.Notify.KafkaTopic)
		sinks = append(sinks, kafkaPub)
		closers = append(closers, func() { kafkaPub.Close() })
		log.Info("kafka publisher enabled", "brokers", brokers)
	}

	dispatcher := notify.NewDispatcher(sinks,
		notify.WithBuffer(cfg.Notify.Buffer),
		notify.WithTimeout(cfg.Notify.Timeout),
		notify.WithLogger(log),
		notify.WithMetrics(m),
	)

	// Initialize service
	stock := service.NewMenuStock(menuRepo, mirror, log)
	if err := stock.SyncMirror(ctx); err != nil {
		fatal(log, "failed to sync stock", err)
	}

	queue := service.NewOrderQueue()
	engine := service.NewEngine(stock, orderRepo, queue, dispatcher,
		service.WithTick(cfg.Engine.Tick),
		service.WithLogger(log),
		service.WithMetrics(m),
	)

	engineCtx, stopEngine := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Go(func() {
		engine.Run(engineCtx)
	})

	sessions := service.NewSessionManager(menuRepo, orderRepo, queue, idem, engine, service.SessionConfig{
		PollInterval: cfg.Engine.PollInterval,
		Feed:         feed,
		Logger:       log,
		Metrics:      m,
	})

	// Initialize gRPC server
	grpcServer := grpc.NewServer(handler.ServerCodec())
	handler.RegisterOrderServiceServer(grpcServer, handler.NewGRPCHandler(sessions, log))

	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			fatal(log, "failed to listen", err)
		}

		go func() {
			log.Info("gRPC server listening", "addr", cfg.Server.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				log.Error("gRPC server error", "error", err)
			}
		}()
	}

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(sessions, stock, engine, log, m)
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           httpHandler.Routes(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("HTTP server listening", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	log.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Info("gRPC server stopped")

	sessions.Shutdown()
	log.Info("sessions closed")

	stopEngine()
	wg.Wait()
	dispatcher.Close()
	log.Info("engine stopped", "queued", queue.Len(), "notifications_dropped", dispatcher.Dropped())

	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	log.Info("connections closed")
}

func persist[T any](log *slog.Logger, store port.SnapshotStore, name string) observable.Observer[T] {
	return func(_, next []T) {
		if err := store.Save(name, next); err != nil {
			log.Error("snapshot save failed", "snapshot", name, "error", err)
		}
	}
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}
