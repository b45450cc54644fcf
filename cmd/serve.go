package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"roomrelay/internal/config"
	"roomrelay/internal/database/db_client"
	"roomrelay/internal/http/http_server"
	"roomrelay/internal/redis/announcer"
	"roomrelay/internal/redis/presence"
	"roomrelay/internal/redis/redis_client"
	"roomrelay/internal/services/relay"
	"roomrelay/internal/sessionlog"
	"roomrelay/internal/ws"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func serve() error {
	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	zap.L().Debug("Configuration loaded successfully", zap.Any("config", redacted(*cfg)))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	opts := []relay.Option{relay.WithKeepEmptyRooms(cfg.RelayKeepEmptyRooms)}

	// 3. Redis presence mirror, optional
	var redisClient *redis.Client
	var mirror *presence.Mirror
	if cfg.RedisEnabled {
		redisClient, err = redis_client.NewRedisClient(cfg.RedisHost, int(cfg.RedisPort), cfg.RedisPassword, cfg.RedisDb)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		zap.L().Debug("Redis client created successfully")

		mirror = presence.NewMirror(redisClient, cfg.PresenceSyncInterval)
		opts = append(opts, relay.WithObserver(mirror))
	}

	// 4. Postgres session log, optional
	if cfg.PostgresEnabled {
		pgDb, err := db_client.Open(cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser,
			cfg.PostgresPassword, cfg.PostgresDb, cfg.PostgresSslMode)
		if err != nil {
			return err
		}
		defer pgDb.Close()

		if err := sessionlog.EnsureSchema(ctx, pgDb); err != nil {
			return err
		}
		// The recorder outlives ctx so the leaves produced by Dispose are
		// recorded; the database closes only after its final flush.
		recCtx, recCancel := context.WithCancel(context.Background())
		recorder := sessionlog.NewRecorder(pgDb, cfg.AuditBatchSize, cfg.AuditFlushInterval)
		recDone := recorder.Run(recCtx)
		defer func() {
			recCancel()
			<-recDone
		}()
		opts = append(opts, relay.WithObserver(recorder))
	}

	// 5. Relay
	relayService := relay.NewRelayService(opts...)

	// 6. Background: presence sync + operator announcements
	if redisClient != nil {
		mirror.Attach(relayService)
		mirror.Run(ctx)
		go announcer.Run(ctx, redisClient, relayService)
	}

	// 7. WS server
	wsSrv := ws.NewWsServer(relayService, ws.Options{
		AllowedOrigins: cfg.CorsAllowedOrigins,
		SendBuffer:     cfg.WsSendBuffer,
		MaxMessageSize: cfg.WsMaxMessageSize,
	})

	// 8. HTTP + WS server
	httpServer := http_server.NewHttpServer(ctx, http_server.Options{
		ListenPort:     cfg.HttpServerPort,
		AllowedOrigins: cfg.CorsAllowedOrigins,
		StaticDir:      cfg.StaticDir,
	}, wsSrv, relayService)

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		zap.L().Info("shutting down")
		return httpServer.Dispose()
	}
}

// redacted hides secrets before the config is logged.
func redacted(cfg config.Config) config.Config {
	if cfg.RedisPassword != "" {
		cfg.RedisPassword = "***"
	}
	cfg.PostgresPassword = "***"
	return cfg
}
