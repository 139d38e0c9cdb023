// Smoke Detector - Gray Logic device SDK example application
//
// This program connects a simulated smoke detector to the IoT platform
// using pkg/iotdevice. It demonstrates the full device stack:
//   - Reported-value baselines persisted in SQLite across restarts
//   - Report history written to InfluxDB
//   - Prometheus metrics and a local HTTP status server
//   - Periodic change detection driven by a sensor poll loop
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-device/internal/api"
	"github.com/nerrad567/gray-logic-device/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-device/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-device/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-device/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-device/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-device/internal/snapshot"
	"github.com/nerrad567/gray-logic-device/migrations"
	"github.com/nerrad567/gray-logic-device/pkg/iotdevice"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/device.yaml"

// serviceID is the service the simulated sensor is registered under.
const serviceID = "smokeDetector"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting smoke detector",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version).ForDevice(cfg.Device.DeviceID)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	checks := make(map[string]api.HealthChecker)
	opts := []iotdevice.Option{iotdevice.WithLogger(log)}

	// Snapshot store (optional)
	if cfg.Snapshot.Enabled {
		db, openErr := openSnapshotDB(ctx, cfg.Snapshot)
		if openErr != nil {
			return openErr
		}
		defer func() {
			log.Info("closing snapshot database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing snapshot database", "error", closeErr)
			}
		}()
		log.Info("snapshot store ready", "path", db.Path())

		opts = append(opts, iotdevice.WithSnapshotStore(snapshot.NewSQLiteStore(db.DB)))
		checks["database"] = db
	} else {
		log.Info("snapshot store disabled")
	}

	// InfluxDB report history (optional)
	var history *influxdb.Client
	if cfg.InfluxDB.Enabled {
		history, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := history.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		history.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		opts = append(opts, iotdevice.WithReportObserver(history))
		checks["influxdb"] = history
	} else {
		log.Info("InfluxDB disabled")
	}

	// Live report stream for the status server
	var hub *api.Hub
	if cfg.Status.Enabled {
		hub = api.NewHub(cfg.Status.WebSocket, log)
		opts = append(opts, iotdevice.WithReportObserver(hub))
	}

	promMetrics := metrics.New()
	opts = append(opts, iotdevice.WithMetrics(&deviceMetrics{
		metrics:  promMetrics,
		history:  history,
		deviceID: cfg.Device.DeviceID,
	}))

	clientCfg, err := clientConfig(cfg)
	if err != nil {
		return err
	}

	device := iotdevice.NewFromConfig(clientCfg, opts...)
	defer func() {
		log.Info("closing device")
		if closeErr := closeDevice(device); closeErr != nil {
			log.Error("error closing device", "error", closeErr)
		}
	}()

	sensor := newSmokeSensor(time.Now().UnixNano())
	if err := device.AddService(serviceID, sensor.Service()); err != nil {
		return fmt.Errorf("registering %s: %w", serviceID, err)
	}

	if err := device.Init(ctx); err != nil {
		return fmt.Errorf("connecting device: %w", err)
	}
	log.Info("device connected", "server_uri", cfg.Device.ServerURI)

	if client, ok := device.MQTTClient(); ok {
		checks["mqtt"] = client
		client.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		client.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	}

	// Status server (optional)
	if cfg.Status.Enabled {
		status, statusErr := api.New(api.Deps{
			Config:   cfg.Status,
			Logger:   log,
			Device:   device,
			Commands: device.Router().Handle,
			Metrics:  promMetrics.Handler(),
			Checks:   checks,
			Hub:      hub,
			Version:  version,
		})
		if statusErr != nil {
			return fmt.Errorf("creating status server: %w", statusErr)
		}
		if startErr := status.Start(ctx); startErr != nil {
			return fmt.Errorf("starting status server: %w", startErr)
		}
		if cfg.Status.TokenSecret == "" {
			log.Warn("status server commands are unauthenticated; set GRAYLOGIC_DEVICE_STATUS_TOKEN_SECRET")
		}
		defer func() {
			if closeErr := status.Close(); closeErr != nil {
				log.Error("error closing status server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete, polling sensor",
		"interval", cfg.GetSimulationInterval().String(),
	)

	simulate(ctx, device, sensor, cfg.GetSimulationInterval(), log.ForService(serviceID))

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. Status server (if enabled)
	// 2. Device session
	// 3. InfluxDB (if enabled)
	// 4. Snapshot database (if enabled)

	log.Info("smoke detector stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_DEVICE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_DEVICE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openSnapshotDB opens the snapshot database and applies embedded migrations.
func openSnapshotDB(ctx context.Context, cfg config.SnapshotConfig) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening snapshot database: %w", err)
	}

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// closeDevice releases the platform session. A device that never reached
// Init has nothing to release; a failed Init still closes its transport.
func closeDevice(device *iotdevice.Device) error {
	if device.State() == iotdevice.StateUninitialized {
		return nil
	}
	return device.Close()
}

// clientConfig converts file configuration into the SDK session configuration.
// A configured keystore is read from disk here.
func clientConfig(cfg *config.Config) (iotdevice.ClientConfig, error) {
	cc := iotdevice.DefaultClientConfig(cfg.Device.ServerURI, cfg.Device.DeviceID)
	cc.Secret = cfg.Device.Secret
	cc.QoS = byte(cfg.MQTT.QoS) //nolint:gosec // Validated to 0-2
	cc.CAFile = cfg.MQTT.TLS.CAFile
	cc.InsecureSkipVerify = cfg.MQTT.TLS.InsecureSkipVerify
	cc.ConnectTimeout = cfg.GetConnectTimeout()
	cc.KeepAlive = time.Duration(cfg.MQTT.KeepAlive) * time.Second
	cc.CleanSession = cfg.MQTT.CleanSession
	cc.ReconnectMaxDelay = time.Duration(cfg.MQTT.Reconnect.MaxDelay) * time.Second
	cc.MaxReconnectAttempts = cfg.MQTT.Reconnect.MaxAttempts

	if cfg.Device.Keystore.Path != "" {
		keystore, err := os.ReadFile(cfg.Device.Keystore.Path)
		if err != nil {
			return iotdevice.ClientConfig{}, fmt.Errorf("reading keystore: %w", err)
		}
		cc.Keystore = keystore
		cc.KeystorePassword = cfg.Device.Keystore.Password
	}
	return cc, nil
}

// deviceMetrics fans SDK activity out to Prometheus and, when enabled,
// the InfluxDB command history.
type deviceMetrics struct {
	metrics  *metrics.Metrics
	history  *influxdb.Client
	deviceID string
}

func (m *deviceMetrics) ReportCompleted(serviceID string, d time.Duration, err error) {
	m.metrics.ReportCompleted(serviceID, d, err)
}

func (m *deviceMetrics) PropertyReadFailed(serviceID, property string) {
	m.metrics.PropertyReadFailed(serviceID, property)
}

func (m *deviceMetrics) CommandHandled(kind, serviceID string, resultCode int) {
	m.metrics.CommandHandled(kind, serviceID, resultCode)
	if m.history != nil {
		m.history.WriteCommand(m.deviceID, kind, serviceID, resultCode)
	}
}

func (m *deviceMetrics) StateChanged(state string) {
	m.metrics.StateChanged(state)
}
