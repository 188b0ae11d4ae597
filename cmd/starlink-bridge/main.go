// Starlink bridge - exposes a Starlink dish as a published device on MQTT.
//
// The bridge reads the dish identity once at startup, publishes a retained
// attribute tree (metadata, GPS fix and position, a writable custom name)
// and refreshes the position on a fixed cadence for the life of the process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kr/pretty"

	_ "github.com/nerrad567/starlink-bridge/migrations"

	"github.com/nerrad567/starlink-bridge/internal/api"
	"github.com/nerrad567/starlink-bridge/internal/bridges/starlink"
	"github.com/nerrad567/starlink-bridge/internal/dish"
	"github.com/nerrad567/starlink-bridge/internal/infrastructure/config"
	"github.com/nerrad567/starlink-bridge/internal/infrastructure/database"
	"github.com/nerrad567/starlink-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/starlink-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/starlink-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/starlink-bridge/internal/loop"
	"github.com/nerrad567/starlink-bridge/internal/settings"
	"github.com/nerrad567/starlink-bridge/internal/version"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.buildVersion=1.0.0"
var buildVersion = "dev"

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// options holds the command line.
type options struct {
	configPath string
	printInfo  bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		os.Exit(2)
	}

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags reads the command line. The config path defaults to
// STARLINK_CONFIG, then configs/config.yaml.
func parseFlags(args []string, output io.Writer) (options, error) {
	fset := flag.NewFlagSet("starlink-bridge", flag.ContinueOnError)
	fset.SetOutput(output)

	var opts options
	fset.StringVar(&opts.configPath, "config", getConfigPath(), "path to the YAML configuration file")
	fset.BoolVar(&opts.printInfo, "print-info", false, "print the dish device info and exit")

	if err := fset.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - opts: Parsed command line
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, opts options) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	log := logging.Default()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ver := version.Resolve(cfg.Bridge.VersionFile, buildVersion)
	log = logging.New(cfg.Logging, ver)
	log.Info("starting Starlink bridge",
		"version", ver,
		"commit", version.Commit(),
		"config", opts.configPath,
	)

	// Dial the dish. No I/O happens until the first call.
	dishClient, err := dish.Dial(dish.Config{
		Target:  cfg.Dish.Target,
		Timeout: cfg.DishTimeout(),
		Logger:  log.Component("dish"),
	})
	if err != nil {
		return fmt.Errorf("creating dish client: %w", err)
	}
	defer func() {
		if closeErr := dishClient.Close(); closeErr != nil {
			log.Error("error closing dish channel", "error", closeErr)
		}
	}()

	if opts.printInfo {
		return printDeviceInfo(ctx, dishClient, os.Stdout)
	}

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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

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
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected", "subscriptions", mqttClient.SubscriptionCount())
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
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
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	ev := loop.New(log.Component("loop"))
	bus := &mqttBusAdapter{client: mqttClient}

	store, err := settings.NewStore(settings.Options{
		Repository: settings.NewSQLiteRepository(db.DB),
		Bus:        bus,
		Topics:     mqttClient.Topics(),
		QoS:        mqttClient.QoS(),
		Executor:   ev,
		Logger:     log.Component("settings"),
	})
	if err != nil {
		return fmt.Errorf("creating settings store: %w", err)
	}

	publisher, err := newPublisher(cfg, ver, dishClient, store, bus, mqttClient, ev, influxClient, log)
	if err != nil {
		return fmt.Errorf("creating publisher: %w", err)
	}
	if err := publisher.Initialize(ctx); err != nil {
		return fmt.Errorf("registering device: %w", err)
	}
	defer func() {
		if closeErr := publisher.Close(); closeErr != nil {
			log.Error("error announcing service offline", "error", closeErr)
		}
	}()
	log.Info("device registered",
		"service", publisher.ServiceName(),
		"short_id", publisher.ShortID(),
	)

	reporter := starlink.NewHealthReporter(starlink.HealthReporterConfig{
		Version:   ver,
		Interval:  cfg.HealthInterval(),
		Publisher: mqttClient,
		Source:    publisher,
		Topics:    mqttClient.Topics(),
		QoS:       mqttClient.QoS(),
	})
	reporter.SetLogger(log.Component("health"))
	reporter.Start(ev)
	defer reporter.Stop()

	scheduler := starlink.NewScheduler(ev, publisher, cfg.RefreshInterval())
	scheduler.Start(ctx)
	defer scheduler.Stop()

	if cfg.API.Enabled {
		deps := api.Deps{
			Config:   cfg.API,
			Logger:   log.Component("api"),
			Device:   publisher,
			Health:   reporter,
			Executor: ev,
			Version:  ver,
		}
		if influxClient != nil {
			deps.Telemetry = influxClient
		}
		server, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if apiErr := server.Start(ctx); apiErr != nil {
			return fmt.Errorf("starting API server: %w", apiErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete",
		"refresh_interval", scheduler.Interval(),
		"health_interval", cfg.HealthInterval(),
	)

	// The loop owns every refresh, health report and write from here on.
	if err := ev.Run(ctx); err != nil {
		return fmt.Errorf("running event loop: %w", err)
	}

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// newPublisher builds the device publisher from configuration.
func newPublisher(
	cfg *config.Config,
	ver string,
	device starlink.DeviceClient,
	store starlink.SettingsStore,
	bus starlink.Bus,
	mqttClient *mqtt.Client,
	ev *loop.Loop,
	influxClient *influxdb.Client,
	log *logging.Logger,
) (*starlink.Publisher, error) {
	opts := starlink.Options{
		Device: device,
		Store:  store,
		Bus:    bus,
		Topics: mqttClient.Topics(),
		QoS:    mqttClient.QoS(),
		Metadata: starlink.Metadata{
			ServicePrefix:  cfg.Bridge.ServicePrefix,
			ProcessName:    cfg.Bridge.ProcessName,
			ProcessVersion: ver,
			Connection:     cfg.Bridge.Connection,
			DeviceInstance: cfg.Bridge.DeviceInstance,
			ProductID:      cfg.Bridge.ProductID,
			ProductName:    cfg.Bridge.ProductName,
		},
		DefaultCustomName: cfg.Settings.DefaultCustomName,
		RepublishInterval: cfg.RepublishInterval(),
		Executor:          ev,
		Logger:            log.Component("bridge"),
	}
	// Assigned only when enabled so the interface stays nil otherwise.
	if influxClient != nil {
		opts.Telemetry = influxClient
	}
	return starlink.NewPublisher(opts)
}

// deviceInfoSource is the dish call -print-info needs.
type deviceInfoSource interface {
	GetDeviceInfo(ctx context.Context) (dish.DeviceInfo, error)
}

// printDeviceInfo writes the dish DeviceInfo for diagnostics.
func printDeviceInfo(ctx context.Context, src deviceInfoSource, w io.Writer) error {
	info, err := src.GetDeviceInfo(ctx)
	if err != nil {
		return fmt.Errorf("fetching device info: %w", err)
	}
	if _, err := pretty.Fprintf(w, "%# v\n", info); err != nil {
		return fmt.Errorf("writing device info: %w", err)
	}
	return nil
}

// getConfigPath returns the configuration file path.
// Uses STARLINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("STARLINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// mqttBusAdapter adapts the infrastructure MQTT client to the Bus interfaces
// of the settings store and the publisher. The difference is the Subscribe
// handler signature:
// - Infrastructure mqtt: func(topic, payload []byte) error
// - Bus consumers expect: func(topic, payload []byte)
type mqttBusAdapter struct {
	client *mqtt.Client
}

// Publish implements starlink.Bus and settings.Bus.
func (a *mqttBusAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements starlink.Bus and settings.Bus.
func (a *mqttBusAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements starlink.Bus.
func (a *mqttBusAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
