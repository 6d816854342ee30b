// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// AuditLog は監査ログの構造体。
type AuditLog struct {
	Operation     string `json:"operation"`
	SchemaVersion int    `json:"schema_version,omitempty"`
	Result        string `json:"result"`
	Timestamp     string `json:"timestamp"`
}

// NewAuditLog は現在時刻の監査ログを生成する。
func NewAuditLog(operation string, schemaVersion int, result string) AuditLog {
	return AuditLog{
		Operation:     operation,
		SchemaVersion: schemaVersion,
		Result:        result,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}
}

// WriteAuditLog は監査ログを出力する。
func WriteAuditLog(ctx context.Context, operation string, schemaVersion int, result string) {
	entry := NewAuditLog(operation, schemaVersion, result)
	slog.InfoContext(ctx, "vault operation completed",
		"operation", entry.Operation,
		"schema_version", entry.SchemaVersion,
		"result", entry.Result,
		"timestamp", entry.Timestamp,
	)
}

// RequestLogger はリクエストごとにアクセスログをslogで出力する。
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		slog.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}
