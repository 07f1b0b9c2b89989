package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/yungbote/docsync-backend/internal/data/db"
	apphttp "github.com/yungbote/docsync-backend/internal/http"
	"github.com/yungbote/docsync-backend/internal/observability"
	"github.com/yungbote/docsync-backend/internal/platform/envutil"
	"github.com/yungbote/docsync-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Server   *apphttp.Server
	Cfg      Config
	Repos    Repos
	Clients  Clients
	Services Services

	pg           *db.PostgresService
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New(ctx context.Context) (*App, error) {
	envErr := godotenv.Load()

	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		log.Warn("Failed to load .env", "error", envErr)
	}

	log.Info("Loading configuration...")
	cfg := LoadConfig()
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	pg, err := db.NewPostgresService(log, db.DSNFromEnv())
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrate(); err != nil {
		_ = pg.Close()
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	reposet := wireRepos(theDB, log)
	clientset, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = pg.Close()
		log.Sync()
		return nil, err
	}
	serviceset, err := wireServices(log, cfg, reposet, clientset)
	if err != nil {
		_ = pg.Close()
		log.Sync()
		return nil, err
	}
	handlerset := wireHandlers(log, cfg, reposet, clientset, serviceset, pg)

	server := apphttp.NewServer(":"+cfg.Port, apphttp.RouterConfig{
		Log:               log,
		ServiceName:       cfg.ServiceName,
		CORSOrigins:       cfg.CORSOrigins,
		WebhookHandler:    handlerset.Webhook,
		ChangeHandler:     handlerset.Change,
		FileHandler:       handlerset.File,
		SharePointHandler: handlerset.SharePoint,
		HealthHandler:     handlerset.Health,
	})

	return &App{
		Log:          log,
		DB:           theDB,
		Server:       server,
		Cfg:          cfg,
		Repos:        reposet,
		Clients:      clientset,
		Services:     serviceset,
		pg:           pg,
		otelShutdown: otelShutdown,
	}, nil
}

// Start runs the background parts: the realtime bus forwarder and the job scheduler.
func (a *App) Start() error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Clients.Bus != nil {
		if err := a.Services.Broadcaster.UseTransport(ctx, a.Clients.Bus); err != nil {
			return fmt.Errorf("start realtime bus: %w", err)
		}
	}
	if a.Services.Scheduler != nil {
		a.Services.Scheduler.Start()
	}
	return nil
}

func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("Server listening", "port", a.Cfg.Port)
	return a.Server.Run()
}

// Shutdown stops accepting requests, then drains background work in
// dependency order.
func (a *App) Shutdown(ctx context.Context) {
	if a == nil {
		return
	}
	if err := a.Server.Shutdown(ctx); err != nil {
		a.Log.Warn("HTTP shutdown failed", "error", err)
	}
	if a.Services.Scheduler != nil {
		a.Services.Scheduler.Stop()
	}
	if a.Services.Dispatcher != nil {
		a.Services.Dispatcher.Wait()
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Clients.Bus != nil {
		if err := a.Clients.Bus.Close(); err != nil {
			a.Log.Warn("Redis bus close failed", "error", err)
		}
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	if a.pg != nil {
		if err := a.pg.Close(); err != nil {
			a.Log.Warn("Postgres close failed", "error", err)
		}
	}
	a.Log.Sync()
}
