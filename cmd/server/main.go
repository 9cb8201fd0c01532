package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tipjar/slack-tip-server/internal/config"
	"github.com/tipjar/slack-tip-server/internal/database"
	"github.com/tipjar/slack-tip-server/internal/handler"
	"github.com/tipjar/slack-tip-server/internal/jobs"
	"github.com/tipjar/slack-tip-server/internal/metrics"
	"github.com/tipjar/slack-tip-server/internal/middleware"
	"github.com/tipjar/slack-tip-server/internal/qr"
	"github.com/tipjar/slack-tip-server/internal/redis"
	"github.com/tipjar/slack-tip-server/internal/repository"
	"github.com/tipjar/slack-tip-server/internal/service"
	"github.com/tipjar/slack-tip-server/internal/slackclient"
	"github.com/tipjar/slack-tip-server/migrations"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("APP_ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("database connected")

	if err := db.Migrate(context.Background(), migrations.Files); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	m := metrics.Registry(cfg.MetricsNamespace)

	configRepo := repository.NewUserConfigurationRepository(db.DB)
	installRepo := repository.NewInstallationRepository(db.DB)

	exchanger := slackclient.NewOAuthExchanger(cfg.SlackClientID, cfg.SlackClientSecret)
	installService, err := service.NewInstallationService(cfg, installRepo, exchanger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise installation service")
	}
	clients := slackclient.NewFactory(installService, cfg.SlackBotToken, m)

	qrCache := qr.NewCache(redisClient.Client, qr.NewRenderer(), cfg.QRCacheTTL(), m)
	dedup := service.NewActionDeduplicator(redisClient.Client, cfg.ActionDedupTTL())
	rateLimiter := service.NewRateLimiter(redisClient.Client)

	configService := service.NewConfigurationService(configRepo, m)
	tipService := service.NewTipService(configService, qrCache, dedup, cfg.TipImageURL, m)
	router := service.NewCommandRouter(configService, tipService, m)

	dispatcher := jobs.NewDispatcher(config.HandlerTimeout, config.DispatcherMaxConcurrent, m)
	dispatcher.Start()

	slackHandler := handler.NewSlackHandler(clients, router, dispatcher)
	oauthHandler := handler.NewOAuthHandler(installService)
	apiHandler := handler.NewAPIHandler(configService, qrCache, map[string]handler.Pinger{
		"database": db,
		"redis":    redisClient,
	}).WithTotals(map[string]handler.Counter{
		"installations":  installRepo,
		"configurations": configRepo,
	})

	signatureMiddleware := middleware.NewSlackSignatureMiddleware(cfg.SlackSigningSecret)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(cfg.IsProduction())
	tipRateLimit := middleware.NewIPRateLimitMiddleware(
		rateLimiter, config.TipImageRateLimit, config.TipImageRateLimitSpan, "tip",
	)

	slackRouter := newRouter("slack", m, bodyLimitMiddleware, securityHeadersMiddleware)
	slackRouter.Get("/health", handler.Health)
	slackRouter.Route("/slack", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(signatureMiddleware.Handler)
			slackHandler.Register(r)
		})
		oauthHandler.Register(r)
	})

	apiRouter := newRouter("api", m, bodyLimitMiddleware, securityHeadersMiddleware)
	apiRouter.Get("/health", handler.Health)
	apiRouter.Handle("/metrics", promhttp.Handler())
	apiRouter.Mount("/api", apiHandler.Routes(tipRateLimit.Handler))

	servers := []*http.Server{
		newServer(cfg.SlackAddr(), slackRouter),
		newServer(cfg.APIAddr(), apiRouter),
	}

	for _, server := range servers {
		go func(server *http.Server) {
			log.Info().Str("addr", server.Addr).Msg("starting server")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Str("addr", server.Addr).Msg("server error")
			}
		}(server)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down servers")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	var wg sync.WaitGroup
	for _, server := range servers {
		wg.Add(1)
		go func(server *http.Server) {
			defer wg.Done()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Str("addr", server.Addr).Msg("server forced to shutdown")
			}
		}(server)
	}
	wg.Wait()

	// Acknowledged Slack events may still be running.
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("dispatcher did not drain before shutdown")
	}

	log.Info().Msg("servers stopped")
}

func newRouter(name string, m *metrics.Metrics, bodyLimit *middleware.BodyLimitMiddleware, headers *middleware.SecurityHeadersMiddleware) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(name, m))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(headers.Handler)
	r.Use(bodyLimit.Handler)

	return r
}

func newServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
