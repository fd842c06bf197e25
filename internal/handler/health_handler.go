package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HealthChecker はデータベース疎通確認のインターフェース。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

const healthCheckTimeout = 2 * time.Second

type healthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// NewHealthHandler はヘルスチェックハンドラーを返す。
// checkerがnilの場合はプロセスの生存のみを報告する。
func NewHealthHandler(checker HealthChecker, now func() time.Time) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ts := now().UTC().Format(time.RFC3339)

		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Time: ts})
				return
			}
		}

		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Time: ts})
	}
}
