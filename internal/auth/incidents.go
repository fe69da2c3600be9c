// AngelaMos | 2026
// incidents.go

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	IncidentRefreshTokenReuse = "refresh_token_reuse"

	DefaultIncidentStream = "security:incidents"
	incidentStreamMaxLen  = 10000
	incidentWriteTimeout  = 2 * time.Second
)

type SecurityIncident struct {
	Kind       string
	UserID     string
	TokenID    string
	Revoked    int64
	UserAgent  string
	IPAddress  string
	DetectedAt time.Time
}

type IncidentReporter interface {
	Report(ctx context.Context, incident SecurityIncident)
}

// RedisIncidentReporter logs each incident and appends it to a capped
// Redis stream for the alerting pipeline.
type RedisIncidentReporter struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisIncidentReporter(client *redis.Client, stream string, logger *slog.Logger) *RedisIncidentReporter {
	if stream == "" {
		stream = DefaultIncidentStream
	}
	return &RedisIncidentReporter{client: client, stream: stream, logger: logger}
}

func (r *RedisIncidentReporter) Report(ctx context.Context, incident SecurityIncident) {
	logIncident(ctx, r.logger, incident)

	// The revocation has already committed; publish even if the caller
	// has gone away.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), incidentWriteTimeout)
	defer cancel()

	err := r.client.XAdd(writeCtx, &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: incidentStreamMaxLen,
		Approx: true,
		Values: map[string]any{
			"kind":        incident.Kind,
			"user_id":     incident.UserID,
			"token_id":    incident.TokenID,
			"revoked":     incident.Revoked,
			"user_agent":  incident.UserAgent,
			"ip_address":  incident.IPAddress,
			"detected_at": incident.DetectedAt.UTC().Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		r.logger.WarnContext(ctx, "publish security incident",
			"stream", r.stream,
			"error", err,
		)
	}
}

func logIncident(ctx context.Context, logger *slog.Logger, incident SecurityIncident) {
	logger.ErrorContext(ctx, "security incident",
		"kind", incident.Kind,
		"user_id", incident.UserID,
		"token_id", incident.TokenID,
		"revoked", incident.Revoked,
		"ip_address", incident.IPAddress,
		"user_agent", incident.UserAgent,
	)
}
