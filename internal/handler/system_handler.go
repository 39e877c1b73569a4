package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/linkpulse/internal/database"
	"github.com/hitoshi/linkpulse/internal/middleware"
)

// HealthChecker はDB疎通確認のインターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// MigrationStatusFunc は現在のマイグレーション状態を返す関数。
type MigrationStatusFunc func() (database.MigrationStatus, error)

// SystemHandler はヘルスチェックなど運用向けのHTTPハンドラー。
type SystemHandler struct {
	health          HealthChecker
	migrationStatus MigrationStatusFunc
	version         string
}

// NewSystemHandler はSystemHandlerを生成する。
func NewSystemHandler(health HealthChecker, migrationStatus MigrationStatusFunc, version string) *SystemHandler {
	return &SystemHandler{
		health:          health,
		migrationStatus: migrationStatus,
		version:         version,
	}
}

// Health はDBに疎通できれば200 OK、できなければ503を返す。
// GET /health
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := h.health.PingContext(ctx); err != nil {
			slog.Warn("health check failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("database unavailable"))
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// Version はビルド時に埋め込まれたバージョンを返す。
// GET /api/version
func (h *SystemHandler) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": h.version})
}

// Migration は適用済みマイグレーションのバージョンを返す。
// GET /api/migration
func (h *SystemHandler) Migration(w http.ResponseWriter, r *http.Request) {
	if h.migrationStatus == nil {
		writeJSON(w, http.StatusOK, database.MigrationStatus{})
		return
	}

	status, err := h.migrationStatus()
	if err != nil {
		slog.Error("failed to read migration status", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
