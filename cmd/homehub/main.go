// HomeHub Core - Command Dispatch Engine
//
// This is the main entry point for the HomeHub Core application.
// HomeHub bridges user-facing clients to smart-home devices:
//   - Durable command queue with retry and exponential backoff
//   - Device control via the Home Assistant HTTP API or a simulated backend
//   - MQTT ingestion of device state and sensor telemetry
//   - REST + WebSocket API for clients
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/homehub-dev/homehub-core/migrations"

	"github.com/homehub-dev/homehub-core/internal/adapter"
	"github.com/homehub-dev/homehub-core/internal/api"
	"github.com/homehub-dev/homehub-core/internal/audit"
	"github.com/homehub-dev/homehub-core/internal/command"
	"github.com/homehub-dev/homehub-core/internal/events"
	"github.com/homehub-dev/homehub-core/internal/infrastructure/config"
	"github.com/homehub-dev/homehub-core/internal/infrastructure/database"
	"github.com/homehub-dev/homehub-core/internal/infrastructure/influxdb"
	"github.com/homehub-dev/homehub-core/internal/infrastructure/logging"
	"github.com/homehub-dev/homehub-core/internal/infrastructure/mqtt"
	"github.com/homehub-dev/homehub-core/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting HomeHub Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Event bus fans inbound MQTT traffic out to the WebSocket hub and
	// the telemetry recorder.
	bus := events.NewBus()
	bus.SetLogger(log)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Route inbound device and sensor traffic onto the event bus.
	router := mqtt.NewRouter(bus)
	if subErr := mqttClient.Subscribe(mqtt.AllDeviceTopics(), 1, router.Handle); subErr != nil {
		return fmt.Errorf("subscribing to device topics: %w", subErr)
	}
	if subErr := mqttClient.Subscribe(mqtt.AllSensorTopics(), 1, router.Handle); subErr != nil {
		return fmt.Errorf("subscribing to sensor topics: %w", subErr)
	}
	if subErr := mqttClient.Subscribe(mqtt.AllDiscoveryTopics(), 1, router.Handle); subErr != nil {
		return fmt.Errorf("subscribing to discovery topics: %w", subErr)
	}
	log.Info("MQTT routing active",
		"device_filter", mqtt.AllDeviceTopics(),
		"sensor_filter", mqtt.AllSensorTopics(),
	)

	// Device adapter: live Home Assistant backend when credentials are
	// configured, simulated otherwise.
	deviceAdapter := adapter.New(cfg.HomeAssistant, log)
	log.Info("device adapter initialised", "state", deviceAdapter.State())

	// Command store, audit trail, and dispatcher.
	commandRepo := command.NewSQLiteRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	dispatcher := command.NewDispatcher(
		commandRepo,
		auditRepo,
		deviceAdapter,
		mqttClient,
		nil, // notifier wired after the API server exists
		log,
		command.Config{
			MaxAttempts:     cfg.Dispatcher.MaxAttempts,
			RetryBase:       cfg.Dispatcher.GetRetryBase(),
			AttemptTimeout:  cfg.Dispatcher.GetAttemptTimeout(),
			ScheduledWindow: cfg.Dispatcher.GetScheduledTimeout(),
		},
	)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		// Record numeric device and sensor fields as time series.
		recorder := telemetry.NewRecorder(bus, influxClient, log)
		go recorder.Run(ctx)
	} else {
		log.Info("InfluxDB disabled")
	}

	// API server (REST + WebSocket).
	apiServer, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Logger:     log,
		Dispatcher: dispatcher,
		Adapter:    deviceAdapter,
		MQTT:       mqttClient,
		Bus:        bus,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	dispatcher.SetNotifier(apiServer)

	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Dispatch loop: scans for due commands and runs attempts.
	scheduler := command.NewScheduler(
		dispatcher,
		commandRepo,
		log,
		time.Duration(cfg.Scheduler.TickInterval)*time.Second,
		cfg.Scheduler.Workers,
	)
	go scheduler.Run(ctx)
	log.Info("dispatch scheduler started",
		"tick_interval", cfg.Scheduler.TickInterval,
		"workers", cfg.Scheduler.Workers,
	)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient, log); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("startup health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server (drains WebSocket clients)
	// 2. InfluxDB (if enabled)
	// 3. MQTT
	// 4. Database

	log.Info("HomeHub Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses HOMEHUB_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HOMEHUB_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies infrastructure connections at startup.
// influxClient may be nil when the telemetry sink is disabled.
//
// A disconnected broker is degraded, not fatal: the MQTT client retries
// in the background for the life of the process, so startup proceeds and
// the condition is logged instead.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, log *logging.Logger) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		log.Warn("broker not connected at startup, reconnecting in background", "error", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
