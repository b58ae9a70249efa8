// Gree bridge - local LAN control of Gree air conditioners
//
// The bridge discovers or loads Gree units, binds to each over UDP port
// 7000, polls their status on a fixed interval and exposes them to Home
// Assistant as MQTT climate entities. Commands from Home Assistant, or
// from the optional HTTP API, are translated back into device packs.
//
// Optional sinks: InfluxDB telemetry, a SQLite state-history log and a
// Prometheus /metrics endpoint.
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nerrad567/gree-bridge/internal/api"
	"github.com/nerrad567/gree-bridge/internal/bridges/gree"
	"github.com/nerrad567/gree-bridge/internal/history"
	"github.com/nerrad567/gree-bridge/internal/infrastructure/config"
	"github.com/nerrad567/gree-bridge/internal/infrastructure/database"
	"github.com/nerrad567/gree-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/gree-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/gree-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/gree-bridge/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// options are the command-line flags.
type options struct {
	configPath   string
	createConfig bool
	discover     bool
	debug        bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags reads the command line. --config and -c are the same flag.
func parseFlags(args []string, output io.Writer) (options, error) {
	var opts options

	fs := flag.NewFlagSet("greebridge", flag.ContinueOnError)
	fs.SetOutput(output)
	usage := "path to config file (default $GREEBRIDGE_CONFIG or " + config.DefaultPath + ")"
	fs.StringVar(&opts.configPath, "config", "", usage)
	fs.StringVar(&opts.configPath, "c", "", usage)
	fs.BoolVar(&opts.createConfig, "create-config", false, "write a default config file and exit")
	fs.BoolVar(&opts.discover, "discover", false, "broadcast a scan, print the units found and exit")
	fs.BoolVar(&opts.debug, "debug", false, "force debug logging")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args, stdout)
	if err != nil {
		return err
	}

	configPath := config.ResolvePath(opts.configPath)

	if opts.createConfig {
		if err := config.WriteDefault(configPath); err != nil {
			return fmt.Errorf("creating config: %w", err)
		}
		fmt.Fprintf(stdout, "Wrote default configuration to %s\n", configPath)
		return nil
	}

	var cfg *config.Config
	if opts.discover {
		cfg, err = loadDiscoveryConfig(configPath)
	} else {
		cfg, err = config.Load(configPath)
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if opts.debug {
		cfg.Logging.Level = "debug"
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting Gree bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", configPath,
	)
	log.Debug("effective configuration", "config", cfg.String())

	if opts.discover {
		return runDiscovery(ctx, cfg, log, stdout)
	}

	return runBridge(ctx, cfg, log)
}

// runBridge wires the infrastructure, starts the bridge and blocks until
// ctx is cancelled.
func runBridge(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := gree.NewMetrics(reg)

	var observers []gree.StateObserver

	// State history (optional)
	var historyRepo *history.SQLiteRepository
	if cfg.Database.Enabled {
		db, err := database.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()

		applied, err := db.Migrate(ctx, migrations.FS)
		if err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		log.Info("database ready", "path", db.Path(), "migrations_applied", applied)

		historyRepo = history.NewSQLiteRepository(db.DB)
		recorder := history.NewRecorder(historyRepo, log)
		observers = append(observers, recorder)
		go recorder.RunPruner(ctx, cfg.GetRetention(), history.DefaultPruneInterval)
	} else {
		log.Info("state history disabled")
	}

	// Telemetry (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(cfg.InfluxDB)
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
		observers = append(observers, &influxObserver{client: influxClient})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// MQTT
	mqttClient, err := mqtt.Connect(cfg.MQTT, version)
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

	bridge, err := gree.NewBridge(gree.BridgeOptions{
		Config:     bridgeConfig(cfg),
		MQTTClient: &mqttBridgeAdapter{client: mqttClient},
		Observers:  observers,
		Metrics:    metrics,
		Logger:     log,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	if err := bridge.Start(ctx); err != nil {
		if errors.Is(err, gree.ErrNoDevices) {
			log.Warn("no devices configured or discovered; nothing to do",
				"discovery_enabled", cfg.Discovery.Enabled,
				"broadcast_address", cfg.Discovery.BroadcastAddress,
			)
			bridge.Stop()
			return nil
		}
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		bridge.Stop()
	}()

	// HTTP API (optional)
	if cfg.API.Enabled {
		var histReader api.HistoryReader
		if historyRepo != nil {
			histReader = historyRepo
		}
		server, err := api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log,
			Bridge:  bridge,
			History: histReader,
			Metrics: reg,
			Version: version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: API, bridge, MQTT, InfluxDB, database.
	return nil
}

// loadDiscoveryConfig loads the config for a one-shot scan. A missing file
// is not an error: the scan runs with the defaults.
func loadDiscoveryConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

// runDiscovery broadcasts one scan and prints what answered.
func runDiscovery(ctx context.Context, cfg *config.Config, log *logging.Logger, out io.Writer) error {
	disc := gree.NewDiscovery(gree.DiscoveryConfig{
		BroadcastAddress: cfg.Discovery.BroadcastAddress,
		Port:             cfg.Discovery.Port,
		Timeout:          cfg.GetDiscoveryTimeout(),
		Logger:           log,
	})

	found, err := disc.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discovery: %w", err)
	}
	printDevices(out, gree.DedupeByAddress(found))
	return nil
}

// printDevices writes one line per discovered unit.
func printDevices(out io.Writer, devices []*gree.Device) {
	if len(devices) == 0 {
		fmt.Fprintln(out, "No devices found")
		return
	}
	fmt.Fprintf(out, "Found %d device(s):\n", len(devices))
	for _, d := range devices {
		fmt.Fprintf(out, "  %-20s ip=%-15s mac=%-12s brand=%s model=%s\n",
			d.Name(), d.Host(), d.MAC(), d.Brand(), d.Model())
	}
}
