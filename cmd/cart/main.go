package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"RocketShoes/internal/cart"
	"RocketShoes/pkg/kit"
)

func main() {
	service := "cart"
	log := kit.NewLogger(service)
	defer func() { _ = log.Sync() }()

	port := kit.Getenv("PORT", "8084")
	catalogURL := kit.Getenv("CATALOG_URL", "http://localhost:8082")

	reg := prometheus.NewRegistry()
	metrics := cart.NewMetrics(reg)

	slots, closeSlots := openSlots(log)
	defer closeSlots()

	carts := cart.NewRegistry(cart.RegistryDeps{
		Catalog: cart.NewCatalogClient(catalogURL, log, metrics),
		Slots:   slots,
		Log:     log,
		Metrics: metrics,
		IdleTTL: kit.GetenvDuration("SESSION_TTL", 24*time.Hour),
	})
	go carts.RunSweeper(context.Background(), kit.GetenvDuration("CART_SWEEP_INTERVAL", 10*time.Minute))

	h := cart.NewHandler(&cart.Server{Carts: carts, Log: log}, cart.HTTPDeps{
		Log:            log,
		Service:        service,
		Registry:       reg,
		MetricsEnabled: true,
		MetricsToken:   kit.Getenv("METRICS_TOKEN", ""),
	})

	if err := kit.RunHTTPServer(":"+port, h, log); err != nil {
		log.Fatal("http server stopped", zap.Error(err))
	}
}

func openSlots(log *zap.Logger) (cart.SlotProvider, func()) {
	backend := kit.Getenv("SLOT_BACKEND", "memory")

	switch backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     kit.Getenv("REDIS_ADDR", "localhost:6379"),
			PoolSize: kit.GetenvInt("REDIS_POOL_SIZE", 20),
		})

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("connect redis failed", zap.Error(err))
		}
		log.Info("cart slots in redis")
		return cart.RedisSlots{Client: rdb}, func() { _ = rdb.Close() }

	case "postgres":
		db, err := kit.OpenPostgres(kit.Getenv("DATABASE_URL", ""))
		if err != nil {
			log.Fatal("open database failed", zap.Error(err))
		}
		if err := kit.RunMigrations(db, kit.Getenv("MIGRATIONS_DIR", "migrations")); err != nil {
			log.Fatal("migrations failed", zap.Error(err))
		}
		log.Info("cart slots in postgres")
		return cart.PostgresSlots{DB: db}, func() { _ = db.Close() }

	default:
		log.Info("cart slots in memory", zap.String("backend", backend))
		return cart.NewMemSlots(), func() {}
	}
}
