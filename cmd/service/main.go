package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/afp-labs/mailgrant/internal/audit"
	"github.com/afp-labs/mailgrant/internal/cache"
	"github.com/afp-labs/mailgrant/internal/config"
	"github.com/afp-labs/mailgrant/internal/credentials"
	"github.com/afp-labs/mailgrant/internal/email"
	httpx "github.com/afp-labs/mailgrant/internal/http"
	authctrl "github.com/afp-labs/mailgrant/internal/http/controllers/auth"
	connectctrl "github.com/afp-labs/mailgrant/internal/http/controllers/connect"
	healthctrl "github.com/afp-labs/mailgrant/internal/http/controllers/health"
	"github.com/afp-labs/mailgrant/internal/http/middlewares"
	"github.com/afp-labs/mailgrant/internal/http/router"
	authsvc "github.com/afp-labs/mailgrant/internal/http/services/auth"
	connectsvc "github.com/afp-labs/mailgrant/internal/http/services/connect"
	jwtx "github.com/afp-labs/mailgrant/internal/jwt"
	"github.com/afp-labs/mailgrant/internal/oauth"
	"github.com/afp-labs/mailgrant/internal/oauth/google"
	"github.com/afp-labs/mailgrant/internal/oauth/state"
	"github.com/afp-labs/mailgrant/internal/observability/logger"
	"github.com/afp-labs/mailgrant/internal/security/secretbox"
	"github.com/afp-labs/mailgrant/internal/store/adapters/memory"
	"github.com/afp-labs/mailgrant/internal/store/adapters/pg"
	"github.com/afp-labs/mailgrant/internal/store/core"
	"github.com/afp-labs/mailgrant/internal/worker"
)

func main() {
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to YAML config")
		envFile    = flag.String("env-file", ".env", "path to .env file (optional)")
	)
	flag.Parse()

	if *envFile != "" {
		_ = godotenv.Load(*envFile)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel, ServiceName: "mailgrant"})
	defer func() { _ = logger.Sync() }()
	lg := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cipher, err := secretbox.New(cfg.Security.MasterKey)
	if err != nil {
		lg.Fatal("master key", logger.Err(err))
	}

	// Store
	var repo core.Repository
	switch cfg.Storage.Driver {
	case "memory":
		repo = memory.New()
		lg.Warn("using in-memory store; data is lost on restart")
	default:
		connMaxLifetime, _ := time.ParseDuration(cfg.Storage.Postgres.ConnMaxLifetime)
		repo, err = pg.New(ctx, pg.Config{
			DSN:             cfg.Storage.DSN,
			MaxConns:        cfg.Storage.Postgres.MaxConns,
			ConnMaxLifetime: connMaxLifetime,
		})
		if err != nil {
			lg.Fatal("store", logger.Err(err))
		}
	}
	defer repo.Close()

	// Cache
	memTTL, _ := time.ParseDuration(cfg.Cache.Memory.DefaultTTL)
	cacheClient, err := cache.New(cache.Config{
		Kind:       cfg.Cache.Kind,
		Addr:       cfg.Cache.Redis.Addr,
		Password:   cfg.Cache.Redis.Password,
		DB:         cfg.Cache.Redis.DB,
		Prefix:     cfg.Cache.Redis.Prefix,
		DefaultTTL: memTTL,
	})
	if err != nil {
		lg.Fatal("cache", logger.Err(err))
	}
	defer func() { _ = cacheClient.Close() }()

	// Providers
	providers := map[string]oauth.Provider{}
	if cfg.Providers.Gmail.Enabled {
		gmail := google.New(google.Config{
			ClientID:      cfg.Providers.Gmail.ClientID,
			ClientSecret:  cfg.Providers.Gmail.ClientSecret,
			RedirectURL:   cfg.Providers.Gmail.RedirectURL,
			Scopes:        cfg.Providers.Gmail.Scopes,
			AuthEndpoint:  cfg.Providers.Gmail.AuthURL,
			TokenEndpoint: cfg.Providers.Gmail.TokenURL,
			Timeout:       cfg.Guard.ProviderTimeout,
		})
		providers[gmail.Name()] = gmail
	}

	// Domain wiring
	recorder := audit.NewRecorder(repo.AccessLog())
	credStore := credentials.NewStore(repo.Credentials(), cipher)
	guard := credentials.NewGuard(credStore, providers, recorder, cfg.Guard.RefreshSkew)

	issuer := jwtx.NewIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer, cfg.Auth.AccessTTL)
	signer := state.NewSigner(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Providers.StateTTL)

	connectService := connectsvc.NewService(credStore, providers, signer, cacheClient, recorder)
	authService := authsvc.NewService(repo.Users(), issuer)

	// Metrics
	registry := prometheus.NewRegistry()
	metricsHandler, metricsMW := httpx.RegisterMetrics(registry)

	// Background sweeper
	if cfg.Sweep.Enabled {
		var sender email.Sender
		if cfg.SMTP.Host != "" {
			smtp := email.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.TLS)
			smtp.InsecureSkipVerify = cfg.SMTP.InsecureSkipVerify
			sender = smtp
		}
		sweeper := worker.New(worker.Config{
			Store:      credStore,
			Guard:      guard,
			Users:      repo.Users(),
			Notifier:   email.NewNotifier(sender),
			Interval:   cfg.Sweep.Interval,
			Lookahead:  cfg.Sweep.Lookahead,
			Registerer: registry,
		})
		go sweeper.Run(ctx)
	}

	// HTTP surface
	handler := router.New(router.Deps{
		Connect:           connectctrl.NewController(connectService, cfg.Providers.PopupOrigin),
		Auth:              authctrl.NewController(authService),
		Health:            healthctrl.NewController(repo, cacheClient),
		AuthMiddleware:    middlewares.RequireAuth(issuer),
		MetricsMiddleware: metricsMW,
		MetricsHandler:    metricsHandler,
		CORSOrigins:       cfg.Server.CORSAllowedOrigins,
	})

	server := httpx.NewServer(cfg.Server.Addr, handler)
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			lg.Fatal("http server", logger.Err(err))
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		lg.Error("shutdown", logger.Err(err))
	}
}
