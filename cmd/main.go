package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/fx"

	"rancher-error-digest/config"
	"rancher-error-digest/internal/controller"
	"rancher-error-digest/internal/kafka"
	"rancher-error-digest/internal/logsource"
	"rancher-error-digest/internal/metrics"
	"rancher-error-digest/internal/notifier"
	"rancher-error-digest/internal/parser"
	"rancher-error-digest/internal/scheduler"
	"rancher-error-digest/internal/service"
	"rancher-error-digest/internal/store"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	app := fx.New(
		// Core Dependencies
		fx.Provide(
			NewConfig,
		),
		// Infrastructure Dependencies
		fx.Provide(
			NewMetricsRegistry,
			NewRecorder,
			NewGinEngine,
			NewSinks,
			logsource.NewLogSource,
			parser.NewLineClassifier,
			store.NewInMemoryDigestStore,
			service.NewDigestService,
			NewDigestController,
		),
		fx.Invoke(
			ConfigureLogging,
			RegisterRunMode,
		),
	)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 15*time.Second) // Timeout for startup
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}
	signal := <-app.Wait()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 30*time.Second) // Timeout for graceful shutdown
	defer cancelStop()
	log.Info().Msg("Shutting down application...")
	if err := app.Stop(stopCtx); err != nil {
		log.Error().Err(err).Msg("Forced shutdown due to error or timeout")
	}
	os.Exit(signal.ExitCode)
}

func NewConfig() (*config.Config, error) {
	return config.NewConfig()
}

func ConfigureLogging(cfg *config.Config) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Debug().Msg("Debug logging enabled")
	}
}

func NewMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func NewRecorder(reg *prometheus.Registry) metrics.Recorder {
	return metrics.NewPrometheusRecorder(reg)
}

func NewDigestController(digestSvc service.DigestService, digestStore store.DigestStore, reg *prometheus.Registry) *controller.DigestController {
	return controller.NewDigestController(digestSvc, digestStore, reg)
}

func NewGinEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	return r
}

// NewSinks returns the enabled delivery sinks in delivery order: the local
// file always, then Slack and Kafka when configured.
func NewSinks(lc fx.Lifecycle, cfg *config.Config) ([]notifier.Sink, error) {
	sinks := []notifier.Sink{notifier.NewFileSink(cfg.Digest.OutputFile)}

	if cfg.Slack.Enabled {
		sinks = append(sinks, notifier.NewSlackSink(cfg.Slack))
	} else {
		log.Info().Msg("SEND_TO_SLACK is false, Slack delivery disabled")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewDigestProducer(lc, cfg)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, producer)
	}
	return sinks, nil
}

type runModeParams struct {
	fx.In

	Lifecycle        fx.Lifecycle
	Shutdowner       fx.Shutdowner
	Config           *config.Config
	DigestService    service.DigestService
	Router           *gin.Engine
	DigestController *controller.DigestController
}

// RegisterRunMode runs a single digest and exits when no schedule is set,
// otherwise starts the scheduler and the status API.
func RegisterRunMode(p runModeParams) error {
	if p.Config.Digest.Schedule == "" {
		registerOneShot(p.Lifecycle, p.Shutdowner, p.DigestService)
		return nil
	}

	if _, err := scheduler.NewScheduler(p.Lifecycle, p.Config, p.DigestService); err != nil {
		return err
	}
	RegisterAPIRoutes(p.Lifecycle, p.Router, p.Config, p.DigestController)
	return nil
}

func registerOneShot(lc fx.Lifecycle, shutdowner fx.Shutdowner, digestSvc service.DigestService) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				exitCode := 0
				if _, err := digestSvc.Run(ctx); err != nil {
					log.Error().Err(err).Msg("Digest run failed")
					exitCode = 1
				}
				if err := shutdowner.Shutdown(fx.ExitCode(exitCode)); err != nil {
					log.Error().Err(err).Msg("Failed to signal shutdown")
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func RegisterAPIRoutes(
	lifecycle fx.Lifecycle,
	router *gin.Engine,
	cfg *config.Config,
	digestController *controller.DigestController,
) {
	controller.RegisterDigestRoutes(router, digestController)

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info().Msgf("Starting HTTP server on port %s", cfg.Server.Port)
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error().Err(err).Msg("HTTP server ListenAndServe error")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Shutting down HTTP server...")
			return server.Shutdown(ctx)
		},
	})
}
