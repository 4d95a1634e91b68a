package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sales-dialer/internal/audit"
	"sales-dialer/internal/auth"
	"sales-dialer/internal/calls"
	"sales-dialer/internal/callsession"
	"sales-dialer/internal/config"
	"sales-dialer/internal/httpapi"
	"sales-dialer/internal/leads"
	"sales-dialer/internal/phone"
	"sales-dialer/internal/reporting"
	"sales-dialer/internal/session"
	"sales-dialer/internal/telephony"
	"sales-dialer/internal/timer"
	"sales-dialer/pkg/logger"
	"sales-dialer/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.LoadEnvFile(); err != nil {
		slog.Error("env file load failed", "err", err)
		os.Exit(1)
	}
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

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	var guard callsession.Guard = callsession.NopGuard{}
	if cfg.RedisEnabled() {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer func(rdb *redis.Client) { _ = rdb.Close() }(rdb)
		guard = callsession.NewLeaseGuard(rdb, cfg.Dialer.CallGuardTTL)
	} else {
		log.Warn("redis not configured; call guard is process-local")
	}

	tel, err := newTelephony(cfg, log)
	if err != nil {
		log.Error("telephony init failed", "err", err)
		os.Exit(1)
	}

	callRepo := calls.NewPostgresRepo(db)
	auditRepo := audit.NewPostgresRepo(db)
	sessions := session.NewRegistry(session.Env{
		Provider: tel.provider,
		Tokens:   tel.tokens,
		Leads:    leads.NewPostgresRepo(db),
		Calls:    callRepo,
		Audit:    audit.NewService(auditRepo),
		Guard:    guard,
		Normalizer: phone.Normalizer{
			CountryCode: cfg.Dialer.CountryCode,
			TrunkPrefix: cfg.Dialer.TrunkPrefix,
		},
		Clock:            timer.RealClock{},
		SettleDelay:      cfg.Dialer.SettleDelay,
		TokenRefreshLead: cfg.Dialer.TokenRefreshLead,
		QueuePageSize:    cfg.Dialer.QueuePageSize,
		CallbackPageSize: cfg.Dialer.CallbackPageSize,
		Log:              log,
	})

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerPublicRoutes(r, cfg, tel, db)
	httpapi.Mount(r, httpapi.Handlers{
		Auth:        authManager,
		Sessions:    sessions,
		Reports:     reporting.NewService(callRepo, auditRepo),
		VoiceTokens: tel.tokens,
	}, auth.RequireAccessToken(authManager))

	// WriteTimeout stays off: the session stream is long-lived and manages
	// its own write deadlines.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "provider", tel.provider.Name())
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
	// Live calls are hung up and still logged before the pool closes.
	if err := sessions.CloseAll(shutdownCtx); err != nil {
		log.Error("session shutdown failed", "err", err)
	}
}

type telephonyStack struct {
	provider telephony.Provider
	tokens   telephony.TokenSource
	twilio   *telephony.TwilioProvider
}

func newTelephony(cfg config.Config, log *slog.Logger) (telephonyStack, error) {
	switch cfg.Dialer.Provider {
	case config.ProviderTwilio:
		p, err := telephony.NewTwilioProvider(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, telephony.TwilioConfig{
			CallerID:          cfg.Twilio.CallerID,
			AnswerURL:         cfg.WebhookURL(answerPath),
			StatusCallbackURL: cfg.WebhookURL(statusPath),
			RingTimeout:       cfg.Twilio.RingTimeout,
		}, log)
		if err != nil {
			return telephonyStack{}, err
		}
		issuer, err := telephony.NewVoiceTokenIssuer(telephony.VoiceTokenConfig{
			AccountSID:   cfg.Twilio.AccountSID,
			APIKeySID:    cfg.Twilio.APIKeySID,
			APIKeySecret: cfg.Twilio.APIKeySecret,
			TwiMLAppSID:  cfg.Twilio.TwiMLAppSID,
			TTL:          cfg.Twilio.VoiceTokenTTL,
		})
		if err != nil {
			return telephonyStack{}, err
		}
		return telephonyStack{provider: p, tokens: issuer, twilio: p}, nil

	case config.ProviderSim:
		sim := telephony.NewSimProvider(timer.RealClock{}, telephony.SimConfig{
			RingAfter:   2 * time.Second,
			AnswerAfter: 5 * time.Second,
		})
		return telephonyStack{
			provider: sim,
			tokens:   telephony.SimTokenSource{Key: []byte(cfg.Auth.JWTSecret)},
		}, nil

	default:
		return telephonyStack{}, fmt.Errorf("unknown telephony provider %q", cfg.Dialer.Provider)
	}
}
