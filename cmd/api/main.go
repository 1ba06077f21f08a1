package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"

	"voicebot/internal/analysis"
	"voicebot/internal/audit"
	"voicebot/internal/auth"
	"voicebot/internal/calls"
	"voicebot/internal/config"
	"voicebot/internal/dialout"
	"voicebot/internal/httpapi"
	"voicebot/internal/llm"
	"voicebot/internal/migrations"
	"voicebot/internal/recording"
	"voicebot/internal/reporting"
	"voicebot/internal/scheduler"
	"voicebot/internal/storage"
	"voicebot/internal/telephony"
	"voicebot/internal/voice"
	"voicebot/pkg/logger"
	"voicebot/pkg/utils"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := utils.OpenPostgres(rootCtx, cfg.PostgresDSN(), utils.PostgresPoolConfig{
		MaxOpenConns: cfg.DB.MaxOpenConns,
		MaxIdleConns: cfg.DB.MaxIdleConns,
	})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	applied, err := migrations.Up(db)
	if err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}
	log.Info("migrations applied", "count", applied)

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	store := calls.NewPostgresRepo(db)

	var eventRepo audit.Repository = audit.NewPostgresRepo(db)
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("voicebot-api"))
		if err != nil {
			log.Error("nats connect failed", "err", err)
			os.Exit(1)
		}
		defer nc.Drain()
		eventRepo = audit.NewNatsPublisher(eventRepo, nc)
	}
	events := audit.NewService(eventRepo)

	llmClient, err := llm.New(cfg.LLM)
	if err != nil {
		log.Error("llm init failed", "err", err)
		os.Exit(1)
	}
	analyzer := analysis.NewAnalyzer(llmClient, analysis.Options{
		Timeout:   cfg.App.AnalysisTimeout,
		Retryable: llm.IsRetryable,
	})

	callSystem, err := telephony.NewTwilioCallSystem(cfg)
	if err != nil {
		log.Error("twilio call system init failed", "err", err)
		os.Exit(1)
	}
	dialer := telephony.NewTwilioDialer(callSystem, cfg.StatusCallbackURL())
	dial := dialout.NewService(dialer, store, events, dialout.Config{
		FromNumber:  cfg.Twilio.FromNumber,
		CountryCode: cfg.App.DefaultCountryCode,
	})

	// Media streams share the call system's transport so dialed calls and their streams meet.
	media := callSystem.Transport()
	speech, err := voice.NewOmnivoiceSpeech(cfg.Speech)
	if err != nil {
		log.Error("speech init failed", "err", err)
		os.Exit(1)
	}

	claimer := utils.RedisClaimer{Client: rdb, Prefix: "voicebot:"}
	voiceDeps := voice.Deps{
		Transport: media,
		Speech:    speech,
		Model:     llmClient,
		Store:     store,
		Analyzer:  analyzer,
		Claimer:   claimer,
		Events:    events,
		Slots:     utils.RedisSlots{Client: rdb, Key: "voicebot:live_sessions", Limit: cfg.App.MaxActiveCalls},
	}
	if cfg.RecordingEnabled() {
		objects, err := storage.NewMinIOStore(cfg.Storage)
		if err != nil {
			log.Error("minio init failed", "err", err)
			os.Exit(1)
		}
		if err := objects.EnsureBucket(rootCtx); err != nil {
			log.Error("minio bucket setup failed", "err", err)
			os.Exit(1)
		}
		voiceDeps.NewRecorder = func() voice.CallRecorder { return recording.NewRecorder(objects) }
	} else {
		log.Info("call recording disabled; MINIO_ENDPOINT not set")
	}
	voiceSrv := voice.NewServer(voiceDeps, voice.Options{
		BotSpeaksFirst:  cfg.App.BotSpeaksFirst,
		AnalysisTimeout: cfg.App.AnalysisTimeout,
	})
	callbacks := scheduler.NewWorker(store, dial, claimer, cfg.App.CallbackPollInterval)

	var authManager *auth.Manager
	if cfg.AuthEnabled() {
		if authManager, err = auth.NewManager(cfg.Auth); err != nil {
			log.Error("auth init failed", "err", err)
			os.Exit(1)
		}
	} else {
		log.Warn("JWT_SECRET not set; operator endpoints are unauthenticated")
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization", "X-Request-Id"},
		MaxAge:          12 * time.Hour,
	}))

	h := httpapi.Handlers{
		Auth:    authManager,
		Calls:   store,
		Dialout: dial,
		Events:  events,
		Reports: reporting.NewService(store),
		Ping:    func(ctx context.Context) error { return utils.HealthCheck(ctx, db, 2*time.Second) },
	}
	webhooks := telephony.TwilioWebhookHandler{
		Store:           store,
		Events:          events,
		StreamURL:       cfg.StreamURL(),
		StatusForwarder: dialer,
	}

	// Route groups
	registerPublicRoutes(r, h, webhooks, voiceSrv)
	var authMW gin.HandlerFunc
	if authManager != nil {
		registerAuthRoutes(r, h)
		authMW = auth.RequireAccessToken(authManager)
	}
	registerOperatorRoutes(r, h, authMW)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		if err := voiceSrv.Run(rootCtx); err != nil {
			log.Error("voice server failed", "err", err)
			stop()
		}
	}()
	go func() {
		defer workers.Done()
		callbacks.Run(rootCtx)
	}()

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "stream_url", cfg.StreamURL())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	// Live calls finish teardown (analysis and record write) before exit.
	done := make(chan struct{})
	go func() {
		workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warn("shutdown timed out waiting for call teardown")
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
