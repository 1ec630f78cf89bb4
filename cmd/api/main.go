package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/safechat/backend/internal/analysis/toxicity"
	"github.com/zhouzirui/safechat/backend/internal/config"
	"github.com/zhouzirui/safechat/backend/internal/handler"
	"github.com/zhouzirui/safechat/backend/internal/logging"
	"github.com/zhouzirui/safechat/backend/internal/mq"
	"github.com/zhouzirui/safechat/backend/internal/realtime"
	"github.com/zhouzirui/safechat/backend/internal/service/auth"
	"github.com/zhouzirui/safechat/backend/internal/service/chat"
	"github.com/zhouzirui/safechat/backend/internal/service/moderation"
	"github.com/zhouzirui/safechat/backend/internal/service/presence"
	"github.com/zhouzirui/safechat/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Init(cfg.Log, "safechat-api")
	if envErr != nil {
		log.Warn().Err(envErr).Msg("failed to load .env file, continuing with system environment variables only")
	}

	db, err := store.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	if err := store.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	tokens := auth.NewTokenManager(cfg.Auth)
	authService := auth.NewService(auth.NewUserRepository(db), auth.NewPasswordHasher(0), tokens)
	chatService := chat.NewService(db)

	// Redis 可选：未配置时在线列表与风险值只保存在本进程内，也不做跨实例转发。
	var (
		presenceStore presence.Store
		riskStore     moderation.RiskStore
		broker        realtime.Broker
	)
	if cfg.Redis.Enabled() {
		var rdb *redis.Client
		rdb, err = store.NewRedis(ctx, cfg.Redis.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()
		presenceStore = presence.NewRedisStore(rdb)
		riskStore = moderation.NewRedisRiskStore(rdb)
		broker = realtime.NewRedisBroker(rdb, "")
		log.Info().Msg("redis enabled for presence, risk and cross-instance fan-out")
	} else {
		log.Info().Msg("REDIS_URL 未配置，使用进程内存储")
	}

	moderationOpts := []moderation.Option{moderation.WithRiskStore(riskStore)}

	var scorers []moderation.Scorer
	if cfg.Moderation.MLURL != "" {
		scorers = append(scorers, moderation.NewHTTPScorer(cfg.Moderation.MLURL, cfg.Moderation.MLTimeout))
		log.Info().Str("url", cfg.Moderation.MLURL).Msg("ml toxicity service configured")
	}
	if cfg.Moderation.LLMEnabled {
		if llm, err := newLLMScorer(ctx, cfg.AI); err != nil {
			log.Warn().Err(err).Msg("LLM moderation requested but unavailable, continuing without it")
		} else {
			scorers = append(scorers, llm)
			log.Info().Msg("LLM moderation scorer enabled")
		}
	}
	if len(scorers) == 0 {
		log.Warn().Msg("no toxicity scorer configured, using keyword heuristics only")
	}
	moderationOpts = append(moderationOpts, moderation.WithScorers(scorers...))

	if cfg.AMQP.Enabled() {
		rabbit, err := mq.Connect(cfg.AMQP.URL)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to RabbitMQ, moderation events will not be published")
		} else {
			defer rabbit.Close()
			if err := mq.SetupModerationExchange(rabbit, cfg.AMQP.Exchange); err != nil {
				log.Warn().Err(err).Msg("failed to declare moderation exchange")
			} else {
				moderationOpts = append(moderationOpts, moderation.WithEmitter(mq.NewEmitter(rabbit, cfg.AMQP.Exchange)))
				log.Info().Str("exchange", cfg.AMQP.Exchange).Msg("publishing moderation events")
			}
		}
	}

	policy := toxicity.Policy{
		CensorThreshold: cfg.Moderation.CensorThreshold,
		BlockThreshold:  cfg.Moderation.BlockThreshold,
		CensorText:      toxicity.DefaultCensorText,
	}
	moderator := moderation.NewService(policy, moderationOpts...)

	hub := realtime.NewHub(realtime.Config{
		DefaultRoom:    cfg.Server.DefaultRoom,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, realtime.Deps{
		Auth:      tokens,
		Moderator: moderator,
		Messages:  chatService,
		Presence:  presenceStore,
		Broker:    broker,
	})
	if err := hub.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start realtime hub")
	}

	router := handler.NewRouter(handler.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Auth:           authService,
		Chat:           chatService,
		Hub:            hub,
	})

	startServer(ctx, cfg.Server, router, hub)
}

func newLLMScorer(ctx context.Context, aiCfg config.AIConfig) (*moderation.LLMScorer, error) {
	chatModel, err := aiCfg.NewChatModel(ctx)
	if err != nil {
		return nil, err
	}
	return moderation.NewLLMScorer(ctx, chatModel)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, hub *realtime.Hub) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	srv.RegisterOnShutdown(hub.Shutdown)

	log.Info().Str("addr", addr).Str("default_room", hub.DefaultRoom()).Msg("safechat backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
