// startide-server runs the simulation: it connects the database, seeds
// the universe, starts the tick scheduler, and serves the HTTP and
// WebSocket API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/startide/server/internal/actions"
	"github.com/startide/server/internal/config"
	"github.com/startide/server/internal/database"
	"github.com/startide/server/internal/hub"
	"github.com/startide/server/internal/logging"
	"github.com/startide/server/internal/metrics"
	"github.com/startide/server/internal/notify"
	intOtel "github.com/startide/server/internal/otel"
	"github.com/startide/server/internal/server"
	"github.com/startide/server/internal/sim/economy"
	"github.com/startide/server/internal/tick"
	"github.com/startide/server/internal/universe"
)

// Version can be set at build time via ldflags.
var Version string = "0.0.1"

func main() {
	configDir := flag.String("config", ".", "directory containing startide.cfg.json")
	flag.Parse()

	startedAt := time.Now()

	if err := config.Load(*configDir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config, using defaults: %v\n", err)
	}

	logsDir := config.GetString("logsDir")
	if _, err := os.Stat(logsDir); os.IsNotExist(err) {
		os.Mkdir(logsDir, 0755)
	}

	logPath := filepath.Join(logsDir,
		fmt.Sprintf("startide-server.%s.log", startedAt.Format("20060102_150405")))
	logFile, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v\n", logPath, err)
	}

	logger := newZerolog(logFile, config.GetString("logLevel"))
	logger.Info().Str("version", Version).Str("logFile", logPath).Msg("Starting startide-server")

	// OTel log pipeline (optional). The slog manager bridges into it.
	var otelProvider *intOtel.Provider
	if config.GetBool("otel.enabled") {
		otelProvider, err = intOtel.New(intOtel.Config{
			Enabled:      true,
			ServiceName:  config.GetString("otel.serviceName"),
			BatchTimeout: viperDuration("otel.batchTimeout"),
			LogWriter:    logFile,
			Endpoint:     config.GetString("otel.endpoint"),
			Insecure:     config.GetBool("otel.insecure"),
		})
		if err != nil {
			logger.Error().Err(err).Msg("Failed to initialize OTel provider")
			otelProvider = nil
		} else {
			logger.Info().Msg("OTel provider initialized")
		}
	}

	slogManager := logging.NewSlogManager()
	var otelLogProvider *sdklog.LoggerProvider
	if otelProvider != nil {
		otelLogProvider = otelProvider.LoggerProvider()
	}
	slogManager.Setup(logFile, config.GetString("logLevel"), otelLogProvider)

	// Database: Postgres first, SQLite fallback.
	dbManager := database.NewManager(logger)
	if err := dbManager.Connect(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to any database")
	}

	tickCfg := config.GetTickConfig()
	if err := dbManager.Setup(tickCfg.IntervalMs); err != nil {
		logger.Fatal().Err(err).Msg("Failed to set up database")
	}

	// Static universe: load, validate, seed missing rows, serve from the
	// in-memory catalog.
	uni, err := universe.LoadFile(config.GetString("universe.file"))
	if err != nil {
		logger.Fatal().Err(err).Str("file", config.GetString("universe.file")).
			Msg("Failed to load universe file")
	}
	catalog := universe.NewCatalog(uni)
	if err := universe.Seed(dbManager.DB, uni); err != nil {
		logger.Fatal().Err(err).Msg("Failed to seed universe")
	}
	logger.Info().Int("systems", len(uni.Systems)).Int("stations", len(uni.Stations)).
		Int("goods", len(uni.Goods)).Msg("Universe loaded")

	// Influx metrics (optional). A failed ping degrades to the gzip
	// backup file rather than aborting startup.
	var metricsManager *metrics.Manager
	var recorder tick.Recorder
	var roundRecorder tick.RoundRecorder
	if config.GetBool("influx.enabled") {
		metricsManager = metrics.NewManager(logger,
			filepath.Join(logsDir, "metrics_backup.lp.gz"))
		if err := metricsManager.Connect(); err != nil {
			logger.Error().Err(err).Msg("Failed to initialize metrics, continuing without")
			metricsManager = nil
		} else {
			recorder = metricsManager
			roundRecorder = metricsManager
		}
	}

	eventHub := hub.New(tickCfg.IntervalMs, logger)

	actionLogger := logging.NewActionLogger(logger)
	svc := actions.NewService(dbManager.DB, catalog, eventHub, actionLogger, actions.Pricing{
		FuelPerUnit:  config.GetInt("pricing.fuelPerUnit"),
		HullPerPoint: config.GetInt("pricing.hullPerPoint"),
	})
	dispatcher, err := actions.NewDispatcher(actionLogger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create action dispatcher")
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	scheduler := tick.NewScheduler(dbManager.DB, eventHub, recorder, logger, tickCfg.Poll,
		tick.NewArrivals(catalog, &tick.DangerEncounterPolicy{
			ChancePerDanger: config.GetFloat64("encounter.chancePerDanger"),
		}, rng),
		tick.NewEconomyDrift(catalog, economy.Params{
			ReversionRate:   config.GetFloat64("economy.reversionRate"),
			NoiseAmplitude:  config.GetFloat64("economy.noiseAmplitude"),
			ProductionRate:  config.GetFloat64("economy.productionRate"),
			ConsumptionRate: config.GetFloat64("economy.consumptionRate"),
		}, rng),
		tick.NewWorldEvents(catalog, rng,
			config.GetFloat64("worldEvents.spawnChance"),
			uint64(config.GetInt("worldEvents.phaseDurationTicks"))),
		tick.NewBattles(rng, roundRecorder),
	)

	notes := notify.NewStore(dbManager.DB)
	srv := server.New(dbManager.DB, catalog, svc, dispatcher, notes, eventHub, scheduler, logger)

	httpServer := &http.Server{
		Addr:              config.GetString("server.listen"),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler.EnsureStarted(ctx)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("listen", httpServer.Addr).Msg("HTTP server listening")
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP server failed")
		}
	}

	// Drain in dependency order: stop producing ticks, stop accepting
	// requests, then flush telemetry.
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown did not complete cleanly")
	}

	if metricsManager != nil {
		metricsManager.Close()
	}
	if err := slogManager.Flush(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to flush logs")
	}
	if otelProvider != nil {
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to shut down OTel provider")
		}
	}

	logger.Info().Msg("Shutdown complete")
}

// newZerolog builds the component logger writing to console and, when
// available, the session log file.
func newZerolog(logFile *os.File, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	var logger zerolog.Logger
	if logFile != nil {
		logger = zerolog.New(zerolog.MultiLevelWriter(console, logFile))
	} else {
		logger = zerolog.New(console)
	}
	return logger.Level(lvl).With().Timestamp().Logger()
}

func viperDuration(key string) time.Duration {
	d, err := time.ParseDuration(config.GetString(key))
	if err != nil {
		return 5 * time.Second
	}
	return d
}
