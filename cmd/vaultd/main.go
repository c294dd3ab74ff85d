// Package main implements vaultd, the custodial vault daemon. It serves
// the vault REST API over a single upgradeable storage instance, settling
// value movement against a Neo N3 gateway contract or an in-memory ledger
// for local development.
package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/R3E-Network/vault_layer/internal/app"
	"github.com/R3E-Network/vault_layer/internal/app/storage"
	"github.com/R3E-Network/vault_layer/internal/app/storage/postgres"
	"github.com/R3E-Network/vault_layer/internal/cache"
	"github.com/R3E-Network/vault_layer/internal/chain"
	"github.com/R3E-Network/vault_layer/internal/config"
	"github.com/R3E-Network/vault_layer/internal/httpapi"
	"github.com/R3E-Network/vault_layer/internal/ledger"
	"github.com/R3E-Network/vault_layer/internal/metrics"
	"github.com/R3E-Network/vault_layer/internal/middleware"
	"github.com/R3E-Network/vault_layer/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/vaultd.yaml", "Path to configuration file")
	envFile := flag.String("env", "", "Optional .env file to load")
	flag.Parse()

	log := logger.NewDefault("vaultd")

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.WithError(err).Errorf("load env file %s", *envFile)
			os.Exit(1)
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Errorf("load configuration")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var journals storage.JournalStore
	var snapshots storage.SnapshotStore
	if cfg.Database.URL != "" {
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			log.WithError(err).Errorf("open database")
			os.Exit(1)
		}
		defer db.Close()

		store := postgres.New(db)
		if err := store.EnsureSchema(ctx); err != nil {
			log.WithError(err).Errorf("ensure database schema")
			os.Exit(1)
		}
		journals, snapshots = store, store
		log.Infof("using postgres persistence")
	} else {
		log.Warnf("no database configured, state is in-memory only")
	}

	var readCache *cache.ReadCache
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		readCache = cache.New(client, cfg.Redis.TTL)
		log.Infof("read cache enabled at %s", cfg.Redis.Addr)
	}

	var assets ledger.AssetLedger
	if cfg.Chain.RPCURL != "" {
		client, err := chain.NewClient(chain.Config{
			RPCURL:    cfg.Chain.RPCURL,
			NetworkID: cfg.Chain.NetworkID,
		})
		if err != nil {
			log.WithError(err).Errorf("create chain client")
			os.Exit(1)
		}
		assets, err = chain.NewGatewayLedger(client, chain.GatewayConfig{
			GatewayHash:    cfg.Chain.GatewayHash,
			ServiceAccount: cfg.Chain.ServiceAccount,
			Log:            logger.NewDefault("chain.ledger"),
		})
		if err != nil {
			log.WithError(err).Errorf("create gateway ledger")
			os.Exit(1)
		}
		log.Infof("settling against gateway %s", cfg.Chain.GatewayHash)
	} else {
		assets = ledger.NewMemory(cfg.Vault.Account)
		log.Warnf("no chain configured, using in-memory asset ledger")
	}

	m := metrics.New("vault")

	application, err := app.New(ctx, app.Options{
		Assets:       assets,
		VaultAccount: cfg.Vault.Account,
		Journal:      journals,
		Snapshots:    snapshots,
		Cache:        readCache,
		Metrics:      m,
		Log:          log,
		SnapshotSpec: cfg.Vault.SnapshotSpec,
	})
	if err != nil {
		log.WithError(err).Errorf("build application")
		os.Exit(1)
	}

	router := httpapi.NewHandler(application, log)
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	router.Use(middleware.Metrics(m))
	router.Use(middleware.Logging(log))

	auth := middleware.NewAuth([]byte(cfg.Auth.JWTSecret), log, []string{"/health", "/metrics"})
	limiter := middleware.NewRateLimiter(cfg.Server.RatePerSecond, cfg.Server.RateBurst, log)
	limiter.StartCleanup(time.Minute, ctx.Done())
	cors := middleware.NewCORS(cfg.Server.AllowedOrigins)

	handler := cors.Handler(auth.Handler(limiter.Handler(router)))

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", cfg.Server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Infof("shutting down")
	case err := <-errCh:
		log.WithError(err).Errorf("server stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Errorf("shutdown")
	}
	if err := application.Close(shutdownCtx); err != nil {
		log.WithError(err).Errorf("final snapshot")
	}
}
