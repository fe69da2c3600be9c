// AngelaMos | 2026
// handler.go

package admin

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/auth"
	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/core"
	"github.com/Stoyan-Iliev/task-manager-be-sub003/internal/keys"
)

type KeyAdmin interface {
	Keys() []keys.SigningKey
	Rotate(ctx context.Context) (keys.SigningKey, error)
}

type SessionSweeper interface {
	SweepOnce(ctx context.Context) (auth.SweepResult, error)
}

type Handler struct {
	keys       KeyAdmin
	sweeper    SessionSweeper
	dbStats    func() sql.DBStats
	redisStats func() *redis.PoolStats
}

type HandlerConfig struct {
	Keys       KeyAdmin
	Sweeper    SessionSweeper
	DBStats    func() sql.DBStats
	RedisStats func() *redis.PoolStats
}

func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		keys:       cfg.Keys,
		sweeper:    cfg.Sweeper,
		dbStats:    cfg.DBStats,
		redisStats: cfg.RedisStats,
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator, adminOnly func(http.Handler) http.Handler,
) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(authenticator)
		r.Use(adminOnly)

		r.Get("/keys", h.ListKeys)
		r.Post("/keys/rotate", h.RotateKey)
		r.Post("/sessions/sweep", h.Sweep)
		r.Get("/stats", h.GetSystemStats)
	})
}

func (h *Handler) ListKeys(w http.ResponseWriter, r *http.Request) {
	all := h.keys.Keys()

	out := make([]KeyResponse, 0, len(all))
	for _, k := range all {
		out = append(out, toKeyResponse(k))
	}

	core.OK(w, KeysResponse{Keys: out})
}

// RotateKey activates a fresh key. The previous one keeps verifying for
// jwt.rotation_grace; it is not persisted across restarts.
func (h *Handler) RotateKey(w http.ResponseWriter, r *http.Request) {
	key, err := h.keys.Rotate(r.Context())
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.Created(w, toKeyResponse(key))
}

func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	res, err := h.sweeper.SweepOnce(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, res)
}

func (h *Handler) GetSystemStats(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	response := SystemStatsResponse{
		Database: h.getDBStats(),
		Redis:    h.getRedisStats(),
		Runtime: RuntimeStats{
			GoVersion:    runtime.Version(),
			NumGoroutine: runtime.NumGoroutine(),
			NumCPU:       runtime.NumCPU(),
			MemAlloc:     memStats.Alloc,
			MemSys:       memStats.Sys,
			NumGC:        memStats.NumGC,
		},
	}

	for _, k := range h.keys.Keys() {
		if k.Status == keys.StatusActive {
			response.ActiveKeyID = k.ID
		}
	}

	core.OK(w, response)
}

func (h *Handler) getDBStats() *DBPoolStats {
	if h.dbStats == nil {
		return nil
	}

	stats := h.dbStats()
	return &DBPoolStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration.String(),
	}
}

func (h *Handler) getRedisStats() *RedisPoolStats {
	if h.redisStats == nil {
		return nil
	}

	stats := h.redisStats()
	return &RedisPoolStats{
		Hits:       stats.Hits,
		Misses:     stats.Misses,
		Timeouts:   stats.Timeouts,
		TotalConns: stats.TotalConns,
		IdleConns:  stats.IdleConns,
	}
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, core.ErrStoreUnavailable) {
		core.JSONError(w, core.StoreUnavailableError(err))
		return
	}
	core.InternalServerError(w, err)
}

type KeyResponse struct {
	ID        string     `json:"kid"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	RetiresAt *time.Time `json:"retires_at,omitempty"`
}

type KeysResponse struct {
	Keys []KeyResponse `json:"keys"`
}

func toKeyResponse(k keys.SigningKey) KeyResponse {
	resp := KeyResponse{
		ID:        k.ID,
		Status:    string(k.Status),
		CreatedAt: k.CreatedAt,
	}
	if !k.RetiresAt.IsZero() {
		retires := k.RetiresAt
		resp.RetiresAt = &retires
	}
	return resp
}

type SystemStatsResponse struct {
	ActiveKeyID string          `json:"active_kid"`
	Database    *DBPoolStats    `json:"database,omitempty"`
	Redis       *RedisPoolStats `json:"redis,omitempty"`
	Runtime     RuntimeStats    `json:"runtime"`
}

type DBPoolStats struct {
	MaxOpenConnections int    `json:"max_open_connections"`
	OpenConnections    int    `json:"open_connections"`
	InUse              int    `json:"in_use"`
	Idle               int    `json:"idle"`
	WaitCount          int64  `json:"wait_count"`
	WaitDuration       string `json:"wait_duration"`
}

type RedisPoolStats struct {
	Hits       uint32 `json:"hits"`
	Misses     uint32 `json:"misses"`
	Timeouts   uint32 `json:"timeouts"`
	TotalConns uint32 `json:"total_conns"`
	IdleConns  uint32 `json:"idle_conns"`
}

type RuntimeStats struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemAlloc     uint64 `json:"mem_alloc_bytes"`
	MemSys       uint64 `json:"mem_sys_bytes"`
	NumGC        uint32 `json:"num_gc"`
}
