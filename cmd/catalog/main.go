package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"RocketShoes/internal/catalog"
	"RocketShoes/pkg/kit"
)

func main() {
	service := "catalog"
	log := kit.NewLogger(service)
	defer func() { _ = log.Sync() }()

	port := kit.Getenv("PORT", "8082")

	store := catalog.NewStore()
	if dsn := kit.Getenv("DATABASE_URL", ""); dsn != "" {
		db, err := kit.OpenPostgres(dsn)
		if err != nil {
			log.Fatal("open database failed", zap.Error(err))
		}
		defer db.Close()

		if err := kit.RunMigrations(db, kit.Getenv("MIGRATIONS_DIR", "migrations")); err != nil {
			log.Fatal("migrations failed", zap.Error(err))
		}
		store = catalog.NewPostgresStore(db)
		log.Info("using postgres catalog")
	}

	reg := prometheus.NewRegistry()
	h := catalog.NewHandler(&catalog.Server{Store: store, Log: log}, catalog.HTTPDeps{
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
