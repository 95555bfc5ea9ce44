package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/chikezeogu/fundflow/internal/api"
	"github.com/chikezeogu/fundflow/internal/auth"
	"github.com/chikezeogu/fundflow/internal/config"
	"github.com/chikezeogu/fundflow/internal/files"
	"github.com/chikezeogu/fundflow/internal/ratelimit"
	"github.com/chikezeogu/fundflow/internal/service"
	"github.com/chikezeogu/fundflow/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on system env vars")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	st, err := store.NewStore(cfg.DBSource)
	if err != nil {
		logger.Fatal("unable to connect to database", zap.Error(err))
	}
	defer st.Close()

	if err := st.EnsureSchema(context.Background()); err != nil {
		logger.Fatal("schema bootstrap failed", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
	})

	attachments, err := files.NewDiskStorage(cfg.AttachmentDir)
	if err != nil {
		logger.Fatal("attachment storage init failed", zap.Error(err))
	}

	tokens := auth.NewManager(cfg.JWTSecret, cfg.JWTIssuer)
	svc := service.NewService(st.Pool, logger, service.Policy{
		WithdrawalMin:    cfg.WithdrawalMin,
		WithdrawalMax:    cfg.WithdrawalMax,
		TopUpMin:         cfg.TopUpMin,
		TopUpMax:         cfg.TopUpMax,
		WithdrawalFeeBps: cfg.WithdrawalFeeBps,
	})
	handler := api.NewHandler(st, svc, attachments, logger)

	limiter := mux.MiddlewareFunc(ratelimit.Middleware(
		rdb, cfg.RateLimit, cfg.RateWindow, cfg.RateBlock, cfg.RateKeyPrefix))

	r := api.NewRouter(handler, tokens, limiter)
	r.Use(mux.MiddlewareFunc(api.RequestLogger(logger)))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("shutdown failed", zap.Error(err))
	}
}
