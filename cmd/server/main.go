package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	gintrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/gin-gonic/gin"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/petmarket/media-service/cmd/middleware"
	"github.com/petmarket/media-service/internal/api"
	"github.com/petmarket/media-service/internal/api/handlers/events"
	"github.com/petmarket/media-service/internal/api/handlers/media"
	"github.com/petmarket/media-service/internal/configuration"
	"github.com/petmarket/media-service/internal/logger"
	natsclient "github.com/petmarket/media-service/internal/nats"
	"github.com/petmarket/media-service/internal/services"
	"github.com/petmarket/media-service/internal/services/upload"
)

func main() {
	cfg, err := configuration.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *configuration.Config, log *logger.Logger) error {
	if cfg.Tracing.Enabled {
		tracer.Start(
			tracer.WithService(cfg.Tracing.ServiceName),
			tracer.WithEnv(cfg.Environment),
		)
		defer tracer.Stop()
	}

	startupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	store, err := newStorage(startupCtx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	mediaStore, err := newMediaStore(startupCtx, cfg, log)
	if err != nil {
		return err
	}

	var publisher services.EventPublisher = services.NopPublisher{}
	if cfg.NATSURL != "" {
		nc, err := natsclient.NewClient(cfg.NATSURL, log)
		if err != nil {
			return err
		}
		defer nc.Close()
		if err := nc.SubscribeAll(natsclient.Routes(events.NewHandlers(store, mediaStore, log))); err != nil {
			return err
		}
		publisher = nc
	} else {
		log.Info("NATS_URL not set, media events disabled")
	}

	verifier, err := middleware.NewOIDCVerifier(startupCtx, cfg.Auth.IssuerURL, cfg.Auth.ClientID)
	if err != nil {
		return err
	}

	intake := upload.NewIntake(upload.IntakeConfig{
		TempDir:      cfg.Upload.TempDir,
		MaxFileBytes: cfg.Upload.MaxFileBytes,
		MaxFiles:     cfg.Upload.MaxFiles,
	}, newScanner(cfg, log), log)
	orchestrator := upload.NewOrchestrator(mediaStore, store, publisher, retryPolicy(cfg.Upload), cfg.Upload.RootFolder, log)

	handler := media.NewHandler(media.Options{
		Intake:       intake,
		Orchestrator: orchestrator,
		Storage:      store,
		Store:        mediaStore,
		Events:       publisher,
		MaxBodyBytes: maxRequestBytes(cfg.Upload),
	}, log)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.MaxMultipartMemory = 8 << 20
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.RequestLogger(log), middleware.Metrics())
	if cfg.Tracing.Enabled {
		r.Use(gintrace.Middleware(cfg.Tracing.ServiceName))
	}
	api.RegisterRoutes(r, handler, middleware.RequireAuth(verifier, cfg.Auth.AuthorizedApp, log), cfg.Server.AllowedOrigins)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server starting", "addr", srv.Addr, "storage", cfg.StorageBackend, "media_store", mediaStore.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down gracefully...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}
