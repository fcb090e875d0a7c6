package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	v1 "github.com/jaennil/guide_helper/backend/tilestream/internal/infrastructure/http/v1"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/infrastructure/http/v1/handler"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/repository/cache"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/resource"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/scene"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/source"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/style"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/usecase"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/config"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/http_server"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/telemetry"
)

func Run(cfg *config.Config) {
	l := logger.NewZapLogger(cfg.Logger)
	defer l.Sync()

	l.Info("app config", "cfg", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx = logger.WithLogger(ctx, l)

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.InitTracer(telemetry.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Telemetry.ServiceVersion,
			Environment:    cfg.Telemetry.Environment,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		}, l)
		if err != nil {
			l.Fatal("failed to initialize telemetry", "error", err)
		}
		defer func() {
			if err := shutdownTelemetry(context.Background()); err != nil {
				l.Error("failed to shutdown telemetry", "error", err)
			}
		}()
		l.Info("telemetry initialized", "service", cfg.Telemetry.ServiceName)
	}

	// Initialize the source data cache
	tileCache, closeCache, err := cache.New(cfg.Cache, l)
	if err != nil {
		l.Fatal("failed to initialize source cache", "backend", cfg.Cache.Backend, "error", err)
	}
	defer func() {
		if err := closeCache(); err != nil {
			l.Error("failed to close source cache", "error", err)
		}
	}()

	sourceUseCase := usecase.NewSourceUseCase(tileCache, cfg.Upstream, l)
	src := source.NewGeoJSON(cfg.Source, sourceUseCase, l)

	meshes := resource.NewMeshPool()
	textures := resource.NewTextureStore(l)
	styles := style.NewSet(cfg.Styles, src.Name(), meshes, textures)

	sc := scene.New(scene.Params{
		Bindings: []scene.Binding{{Source: src, Loader: src, Styles: styles}},
		Manager:  cfg.Manager,
		View:     cfg.View,
		Meshes:   meshes,
		Textures: textures,
		Logger:   l,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sc.Run(gctx)
	})

	if cfg.HTTP.Enabled {
		h := handler.NewHandler(sc, sourceUseCase, cfg.Source, validator.New())
		router := v1.NewRouter(h, l, cfg.Telemetry.Enabled, cfg.Telemetry.ServiceName)
		httpServer := http_server.NewServer(ctx, cfg.HTTP.Server, router)

		g.Go(func() error {
			l.Info("starting http server...", "address", httpServer.Addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			l.Info("http server stopped", "address", httpServer.Addr)
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			l.Info("received shutdown signal")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()

			l.Info("shutting down http server...", "address", httpServer.Addr)
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				l.Error("http server shutdown failed", "error", err)
				return err
			}
			l.Info("http server shutdown completed")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		l.Error("application stopped with error", "error", err)
		return
	}
	l.Info("application shutdown completed")
}
