package app

import (
	"strings"
	"time"

	"github.com/yungbote/docsync-backend/internal/jobs"
	"github.com/yungbote/docsync-backend/internal/modules/reconcile"
	"github.com/yungbote/docsync-backend/internal/platform/envutil"
)

type Config struct {
	Port        string
	ServiceName string
	Environment string
	Version     string
	CORSOrigins []string

	ClientState     string
	ThrottleWindow  time.Duration
	DispatchTimeout time.Duration
	ShutdownTimeout time.Duration
	EmbedCacheSize  int

	JobsEnabled bool
	Jobs        jobs.Config
	Reconcile   reconcile.Config
}

func LoadConfig() Config {
	return Config{
		Port:        envutil.String("PORT", "8080"),
		ServiceName: envutil.String("OTEL_SERVICE_NAME", "docsync"),
		Environment: envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", "dev"),
		CORSOrigins: splitList(envutil.String("CORS_ALLOWED_ORIGINS", "")),

		ClientState:     envutil.String("GRAPH_CLIENT_STATE", ""),
		ThrottleWindow:  envutil.Duration("REALTIME_THROTTLE_WINDOW", 150*time.Millisecond),
		DispatchTimeout: envutil.Duration("NOTIFICATION_TIMEOUT", 10*time.Minute),
		ShutdownTimeout: envutil.Duration("SHUTDOWN_TIMEOUT", 30*time.Second),
		EmbedCacheSize:  envutil.Int("EMBED_CACHE_SIZE", 1024),

		JobsEnabled: envutil.Bool("JOBS_ENABLED", true),
		Jobs:        jobs.ConfigFromEnv(),
		Reconcile:   reconcile.ConfigFromEnv(),
	}
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
