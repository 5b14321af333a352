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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/antidoom/internal/api"
	"github.com/ashureev/antidoom/internal/chatlog"
	"github.com/ashureev/antidoom/internal/chatsocket"
	"github.com/ashureev/antidoom/internal/config"
	"github.com/ashureev/antidoom/internal/conversation"
	"github.com/ashureev/antidoom/internal/identity"
	"github.com/ashureev/antidoom/internal/middleware"
	"github.com/ashureev/antidoom/internal/otp"
	"github.com/ashureev/antidoom/internal/provider"
	"github.com/ashureev/antidoom/internal/quota"
	"github.com/ashureev/antidoom/internal/store"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "db_driver", cfg.DBDriver)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	redisCounters, redisClient, err := openOTPCounters(ctx, cfg)
	if err != nil {
		return err
	}
	var otpCounters store.CounterStore = repo
	if redisCounters != nil {
		otpCounters = redisCounters
		defer func() { _ = redisClient.Close() }()
	}

	chatLog, err := chatlog.New(chatlog.Config{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, slog.Default())
	if err != nil {
		return fmt.Errorf("initialize conversation logger: %w", err)
	}
	defer func() {
		if closeErr := chatLog.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	// Providers.
	if cfg.Gemini.APIKey == "" {
		slog.Warn("GEMINI_API_KEY not set, chat and transcript evaluation will fail")
	}
	gemini := provider.NewGemini(cfg.Gemini.APIKey, provider.WithModel(cfg.Gemini.Model))
	hume := provider.NewHume(cfg.Hume.APIKey, cfg.Hume.SecretKey, cfg.Hume.ConfigID)
	twilio := otp.NewTwilio(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.VerifySID)

	// Services.
	tokens := otp.NewTokenIssuer(cfg.SecretKey)
	otpService := otp.NewService(twilio, quota.NewPolicy(quota.OTPSends, otpCounters), tokens)

	engine := quota.NewDailyEngine(repo)
	chatPolicy, err := engine.Policy(quota.ChatMessages.Kind)
	if err != nil {
		return err
	}
	conversations := conversation.NewStore()
	chat := conversation.NewManager(conversations, gemini, chatPolicy, conversation.WithChatLog(chatLog))

	sockets := chatsocket.NewRegistry()
	evictor := conversation.NewEvictor(conversations, cfg.ConversationTTL, chatLog, sockets.CloseUser)

	// Initialize handlers.
	deps := api.Deps{
		Repo:      repo,
		Quota:     engine,
		Chat:      chat,
		OTP:       otpService,
		Voice:     hume,
		Evaluator: provider.NewEvaluator(gemini),
		ChatLog:   chatLog,
		Sockets:   sockets,
	}
	if redisCounters != nil {
		deps.OTPCounters = redisCounters
	}
	handler := api.NewHandler(deps)
	wsHandler := chatsocket.NewHandler(chat, sockets)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(cfg, tokens, handler, wsHandler),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // websocket connections are long-lived
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return evictor.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("Server stopped successfully")
	return nil
}

func newRouter(cfg *config.Config, tokens identity.TokenParser, h *api.Handler, ws http.Handler) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(identity.Middleware(tokens, cfg.AllowPhoneHeader))

	h.RegisterRoutes(r)

	// WebSocket endpoint.
	r.With(identity.Require).Get("/chat/ws", ws.ServeHTTP)
	return r
}
