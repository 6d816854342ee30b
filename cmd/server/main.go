// Package main はAPIサーバーのエントリポイント。
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"vault-store/config"
	"vault-store/internal/app"
	"vault-store/internal/domain"
	"vault-store/internal/handler"
	"vault-store/internal/infra"
)

func main() {
	ctx := context.Background()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	cfg := config.Load()

	// トレーサー初期化（ロガー設定の前に実行）
	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(ctx); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	infra.SetupLogger(cfg, infra.ParseLogLevel(cfg.LogLevel))

	w, err := app.NewWire(ctx, cfg)
	if err != nil {
		slog.Error("failed to init application", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := w.Close(); err != nil {
			slog.Error("failed to close resources", "error", err)
		}
	}()

	// 起動時に保存済みドキュメントを現在のバージョンへ移行する
	if _, err := w.Documents.Load(ctx, func(p domain.MigrationProgress) {
		slog.Info("migrating document",
			"step", p.CurrentStep,
			"total", p.TotalSteps,
			"description", p.StepDescription,
		)
	}); err != nil {
		slog.Warn("stored document could not be loaded",
			"error", err,
			"message", domain.UserMessage(err),
		)
	}

	h := handler.NewVaultHandler(w.Documents, w.Registry, w.Protection)
	router := handler.NewRouter(h)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		<-sigCh

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting server",
		"port", cfg.Port,
		"protection", w.Protection,
		"schema_version", domain.CurrentSchemaVersion.Number,
	)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
