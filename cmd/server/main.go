package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	_ "modernc.org/sqlite"

	"github.com/rl1809/stock-manager/internal/adapter/handler"
	"github.com/rl1809/stock-manager/internal/adapter/storage"
	"github.com/rl1809/stock-manager/internal/config"
	"github.com/rl1809/stock-manager/internal/core/service"
	"github.com/rl1809/stock-manager/internal/port"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Sugar()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the ledger memory
	mem, err := storage.OpenFileMemory(cfg.Storage.Path, cfg.Storage.MaxPages)
	if err != nil {
		log.Fatalw("failed to open ledger memory", "path", cfg.Storage.Path, "error", err)
	}
	st, err := service.OpenStorage(mem, cfg.Storage.BucketSizePages)
	if err != nil {
		log.Fatalw("failed to open ledger storage", "path", cfg.Storage.Path, "error", err)
	}
	log.Infow("opened ledger", "path", cfg.Storage.Path,
		"pages", mem.Size(), "bucket_size_pages", st.Manager.BucketSizePages())

	// Initialize Redis
	var rdb *redis.Client
	var cache port.IdempotencyCache
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalw("failed to connect redis", "addr", cfg.Redis.Addr, "error", err)
		}
		cache = storage.NewRedisAdapter(rdb)
		log.Infow("connected to redis", "addr", cfg.Redis.Addr)
	}

	// Initialize the mirror
	var db *sql.DB
	var mirror port.MirrorRepository
	switch cfg.Mirror.Backend {
	case config.MirrorSQL:
		db, mirror, err = openSQLMirror(ctx, cfg.Mirror)
		if err != nil {
			log.Fatalw("failed to open sql mirror", "driver", cfg.Mirror.Driver, "error", err)
		}
		log.Infow("connected to sql mirror", "driver", cfg.Mirror.Driver)
	case config.MirrorRedis:
		mirror = storage.NewRedisAdapter(rdb)
	}

	queueSize := 0
	if mirror != nil {
		queueSize = cfg.Mirror.QueueSize
	}
	ledger := service.NewLedger(st, queueSize)

	var wg sync.WaitGroup
	if mirror != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			service.RunMirror(ledger.Changes(), mirror, cfg.Mirror.Workers, log)
		}()
		log.Infow("started mirror workers", "backend", cfg.Mirror.Backend, "workers", cfg.Mirror.Workers)
	}

	// Initialize gRPC server
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.LoggingInterceptor(log)))
	handler.RegisterLedgerServer(grpcServer, handler.NewGRPCHandler(ledger))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalw("failed to listen", "addr", cfg.GRPCAddr, "error", err)
	}

	go func() {
		log.Infow("gRPC server listening", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Errorw("gRPC server error", "error", err)
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(ledger, cache, log)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpHandler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infow("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Errorw("HTTP server error", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	log.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Info("gRPC server stopped")

	// No mutation can run now; drain the change feed
	ledger.Close()
	wg.Wait()
	log.Info("mirror workers stopped")

	if err := mem.Close(); err != nil {
		log.Errorw("failed to close ledger memory", "error", err)
	}
	if rdb != nil {
		rdb.Close()
	}
	if db != nil {
		db.Close()
	}
	log.Info("connections closed")
}

func loadConfig(path string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = lvl
	return zc.Build()
}

func openSQLMirror(ctx context.Context, mc config.MirrorConfig) (*sql.DB, *storage.SQLMirror, error) {
	db, err := sql.Open(mc.Driver, mc.DSN)
	if err != nil {
		return nil, nil, err
	}
	if mc.Driver == storage.DialectSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}

	mirror, err := storage.NewSQLMirror(db, mc.Driver)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	if err := mirror.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, mirror, nil
}
