// Klafs vDC bridge
//
// This is the main entry point of the bridge between the Klafs sauna cloud
// and a vDC bus carried over MQTT. It polls the appliance, exposes it as a
// virtual device with sensors, binary inputs, actions and scenes, and serves
// a small local REST/WebSocket API.
//
// For the bus protocol and the data flow, see: internal/bridges/klafs/doc.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/klafs-vdc/internal/api"
	"github.com/nerrad567/klafs-vdc/internal/bridges/klafs"
	"github.com/nerrad567/klafs-vdc/internal/cloud"
	"github.com/nerrad567/klafs-vdc/internal/infrastructure/config"
	"github.com/nerrad567/klafs-vdc/internal/infrastructure/database"
	"github.com/nerrad567/klafs-vdc/internal/infrastructure/influxdb"
	"github.com/nerrad567/klafs-vdc/internal/infrastructure/logging"
	"github.com/nerrad567/klafs-vdc/internal/infrastructure/mqtt"
	"github.com/nerrad567/klafs-vdc/internal/statedb"
	"github.com/nerrad567/klafs-vdc/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	// defaultConfigPath is used when KLAFSVDC_CONFIG is not set.
	defaultConfigPath = "configs/config.yaml"

	// containerModel is reported in announce_container.
	containerModel = "Klafs vDC"

	// maintenanceInterval paces history pruning and bridge metrics.
	maintenanceInterval = time.Hour
)

func main() {
	issueToken := flag.String("issue-token", "", "print an API bearer token for `subject` and exit")
	tokenTTL := flag.Duration("token-ttl", 0, "validity of -issue-token (0 = no expiry)")
	flag.Parse()

	if *issueToken != "" {
		if err := printToken(*issueToken, *tokenTTL); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// printToken signs a bearer token with the configured JWT secret.
func printToken(subject string, ttl time.Duration) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	token, err := api.IssueToken(cfg.Security.JWT.Secret, subject, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Klafs vDC bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if errors.Is(err, config.ErrConfigMissing) {
		if writeErr := config.WriteTemplate(configPath); writeErr != nil {
			return fmt.Errorf("writing config template: %w", writeErr)
		}
		log.Warn("no configuration found, template written; fill in the klafs and sauna sections and restart",
			"path", configPath)
		return fmt.Errorf("configuration template written to %s", configPath)
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Database
	db, err := database.Open(ctx, cfg.Database)
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

	repo := statedb.NewRepository(db.DB)

	identity, err := loadIdentity(ctx, cfg, repo)
	if err != nil {
		return err
	}
	log.Info("bus identity",
		"vdc_dsuid", identity.VDCDSUID,
		"lib_dsuid", identity.LibDSUID,
		"device_dsuid", identity.DeviceDSUID,
		"zone_id", identity.ZoneID,
	)

	scenes, err := loadScenes(ctx, cfg, repo)
	if err != nil {
		return err
	}
	log.Info("scene table loaded", "scenes", len(scenes))

	// Klafs cloud
	cookie, err := getSetting(ctx, repo, statedb.KeyAuthCookie)
	if err != nil {
		return err
	}
	cloudLog := log.Component("cloud")
	cloudClient, err := cloud.New(cloud.Options{
		BaseURL:    cfg.Klafs.BaseURL,
		Username:   cfg.Klafs.Username,
		Password:   cfg.Klafs.Password,
		PIN:        cfg.Klafs.PIN,
		SaunaID:    cfg.Sauna.ID,
		Timeout:    cfg.HTTPTimeout(),
		AuthCookie: cookie,
		Logger:     cloudLog,
		OnSession: func(c string) {
			if saveErr := repo.SaveSetting(context.Background(), statedb.KeyAuthCookie, c); saveErr != nil {
				cloudLog.Warn("failed to persist session cookie", "error", saveErr)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("creating cloud client: %w", err)
	}
	if err := cloudClient.ValidateSession(ctx); err != nil {
		// The poll loop keeps retrying; a cloud outage must not stop the bridge.
		log.Warn("klafs session check failed", "error", err)
	} else {
		log.Info("klafs session valid")
	}

	// MQTT
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
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	bridgeLog := log.Component("klafs")
	vdcBus, err := klafs.NewVDCBus(klafs.VDCBusOptions{
		Client:      &mqttBridgeAdapter{client: mqttClient},
		TopicPrefix: cfg.VDC.TopicPrefix,
		VDCDSUID:    identity.VDCDSUID,
		LibDSUID:    identity.LibDSUID,
		Name:        identity.Name,
		Model:       containerModel,
		QoS:         byte(cfg.MQTT.QoS), //nolint:gosec // validated 0-2 by config
		Logger:      bridgeLog,
	})
	if err != nil {
		return fmt.Errorf("creating vdc bus: %w", err)
	}
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
		vdcBus.EndSession("broker connection lost")
	})

	// InfluxDB (optional)
	var telemetry klafs.Telemetry
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		log.Warn("InfluxDB unavailable, telemetry disabled", "error", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		telemetry = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	// Bridge
	hub := api.NewHub(log.Component("websocket"))
	bridge, err := klafs.NewBridge(klafs.BridgeOptions{
		Identity:      identity,
		Sensors:       sensorDefs(cfg),
		Binaries:      binaryDefs(cfg),
		Scenes:        scenes,
		PollInterval:  cfg.PollInterval(),
		RetryInterval: cfg.RetryInterval(),
		WorkTimeout:   cfg.WorkTimeout(),
		Cloud:         cloudClient,
		Bus:           vdcBus,
		Repository:    repo,
		Telemetry:     telemetry,
		Logger:        bridgeLog,
		OnChange:      hub.BroadcastStatus,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	vdcBus.SetRequestHandler(bridge.Submit)
	if err := vdcBus.Start(); err != nil {
		return fmt.Errorf("starting vdc bus: %w", err)
	}

	health := klafs.NewHealthReporter(klafs.HealthReporterConfig{
		BridgeID:  cfg.MQTT.Broker.ClientID,
		Version:   version,
		Interval:  cfg.HealthInterval(),
		Topic:     vdcBus.Topics().Health(),
		Publisher: mqttClient,
		Source:    bridge,
		Logger:    bridgeLog,
	})
	if err := health.PublishStarting(); err != nil {
		log.Warn("failed to publish starting health", "error", err)
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	// Local API (optional)
	if cfg.API.Enabled {
		server, err := api.New(api.Deps{
			Config:      cfg.API,
			Security:    cfg.Security,
			Logger:      log.Component("api"),
			Sauna:       bridge,
			History:     repo,
			MQTT:        mqttClient,
			DB:          db.DB,
			ExternalHub: hub,
			Version:     version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := server.Start(gctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("local API disabled")
	}

	health.Start(gctx)
	defer health.Stop()

	g.Go(func() error { return bridge.RunPoller(gctx) })
	g.Go(func() error { return bridge.RunBus(gctx) })
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		runMaintenance(gctx, cfg, repo, bridge, influxClient, log)
		return nil
	})

	log.Info("initialisation complete, waiting for shutdown signal")

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("Klafs vDC bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses KLAFSVDC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("KLAFSVDC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// settingsStore is the part of the state repository used at startup.
type settingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SaveSetting(ctx context.Context, key, value string) error
	ListScenes(ctx context.Context) ([]klafs.Scene, error)
	SaveScene(ctx context.Context, slot int, sc klafs.Scene) error
}

// loadIdentity resolves the bus identifiers. Configured dsUIDs win; missing
// ones come from the database or are generated once and persisted.
func loadIdentity(ctx context.Context, cfg *config.Config, repo settingsStore) (klafs.Identity, error) {
	vdcDSUID, err := persistentDSUID(ctx, repo, statedb.KeyVDCDSUID, cfg.VDC.VDCDSUID)
	if err != nil {
		return klafs.Identity{}, err
	}
	libDSUID, err := persistentDSUID(ctx, repo, statedb.KeyLibDSUID, cfg.VDC.LibDSUID)
	if err != nil {
		return klafs.Identity{}, err
	}

	zone, err := settingInt(ctx, repo, statedb.KeyZoneID, cfg.Sauna.ZoneID)
	if err != nil {
		return klafs.Identity{}, err
	}
	defaultZone, err := settingInt(ctx, repo, statedb.KeyDefaultZoneID, klafs.DefaultZoneID)
	if err != nil {
		return klafs.Identity{}, err
	}

	hostname, _ := os.Hostname() //nolint:errcheck // informational only

	id := klafs.Identity{
		DeviceDSUID:   klafs.DeviceDSUID(cfg.Sauna.ID),
		VDCDSUID:      vdcDSUID,
		LibDSUID:      libDSUID,
		SaunaID:       cfg.Sauna.ID,
		Name:          cfg.Sauna.Name,
		ZoneID:        zone,
		DefaultZoneID: defaultZone,
		Hostname:      hostname,
	}
	if cfg.API.Enabled {
		id.ConfigURL = fmt.Sprintf("http://%s:%d/api/v1/sauna", hostname, cfg.API.Port)
	}
	return id, nil
}

// getSetting reads a setting; a missing key is the empty string.
func getSetting(ctx context.Context, repo settingsStore, key string) (string, error) {
	v, err := repo.GetSetting(ctx, key)
	if errors.Is(err, statedb.ErrSettingNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	return v, nil
}

func persistentDSUID(ctx context.Context, repo settingsStore, key, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	stored, err := getSetting(ctx, repo, key)
	if err != nil {
		return "", err
	}
	if klafs.ValidDSUID(stored) {
		return stored, nil
	}

	generated, err := klafs.NewRandomDSUID()
	if err != nil {
		return "", err
	}
	if err := repo.SaveSetting(ctx, key, generated); err != nil {
		return "", fmt.Errorf("persisting %s: %w", key, err)
	}
	return generated, nil
}

func settingInt(ctx context.Context, repo settingsStore, key string, fallback int) (int, error) {
	raw, err := getSetting(ctx, repo, key)
	if err != nil {
		return 0, err
	}
	if raw == "" {
		return fallback, nil
	}
	n, convErr := strconv.Atoi(raw)
	if convErr != nil {
		return fallback, nil
	}
	return n, nil
}

// loadScenes returns the persisted scene table. When nothing has been
// saved yet the configured seed is persisted slot by slot and returned, so
// later saves extend the seed instead of replacing it.
func loadScenes(ctx context.Context, cfg *config.Config, repo settingsStore) ([]klafs.Scene, error) {
	stored, err := repo.ListScenes(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading scenes: %w", err)
	}
	if len(stored) > 0 {
		return stored, nil
	}

	scenes := make([]klafs.Scene, 0, len(cfg.Sauna.Scenes))
	for _, sc := range cfg.Sauna.Scenes {
		mode, err := klafs.ParseMode(sc.Mode)
		if err != nil {
			return nil, fmt.Errorf("scene %d: %w", sc.ID, err)
		}
		scenes = append(scenes, klafs.Scene{
			ID:                  sc.ID,
			IsPoweredOn:         sc.PoweredOn,
			Mode:                mode,
			SaunaTemperature:    sc.SaunaTemperature,
			SanariumTemperature: sc.SanariumTemperature,
			IRTemperature:       sc.IRTemperature,
			HumidityLevel:       sc.HumidityLevel,
			IRLevel:             sc.IRLevel,
			BathingHours:        sc.BathingHours,
			BathingMinutes:      sc.BathingMinutes,
		})
	}

	for slot, sc := range scenes {
		if err := repo.SaveScene(ctx, slot, sc); err != nil {
			return nil, fmt.Errorf("persisting seeded scene %d: %w", sc.ID, err)
		}
	}
	return scenes, nil
}

func sensorDefs(cfg *config.Config) []klafs.SensorDef {
	defs := make([]klafs.SensorDef, 0, len(cfg.Sauna.Sensors))
	for _, s := range cfg.Sauna.Sensors {
		defs = append(defs, klafs.SensorDef{
			Name:  s.Name,
			Kind:  klafs.SensorType(s.SensorType),
			Usage: klafs.SensorUsage(s.SensorUsage),
		})
	}
	return defs
}

func binaryDefs(cfg *config.Config) []klafs.BinaryDef {
	defs := make([]klafs.BinaryDef, 0, len(cfg.Sauna.BinaryInputs))
	for _, b := range cfg.Sauna.BinaryInputs {
		defs = append(defs, klafs.BinaryDef{
			Name:     b.Name,
			Function: klafs.SensorFunction(b.SensorFunction),
		})
	}
	return defs
}

// historyPruner removes old state history rows.
// This interface is satisfied by *statedb.Repository.
type historyPruner interface {
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}

// bridgeStatsWriter receives periodic bridge counters.
// This interface is satisfied by *influxdb.Client.
type bridgeStatsWriter interface {
	RecordBridgeStats(bridgeID string, stats influxdb.BridgeStats)
}

// runMaintenance prunes the state history and writes bridge counters
// until ctx is cancelled.
func runMaintenance(ctx context.Context, cfg *config.Config, repo historyPruner, bridge *klafs.Bridge, influxClient *influxdb.Client, log *logging.Logger) {
	var metrics bridgeStatsWriter
	if influxClient != nil {
		metrics = influxClient
	}

	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if retention := cfg.HistoryRetention(); retention > 0 {
			removed, err := repo.PruneHistory(ctx, retention)
			if err != nil {
				log.Warn("state history prune failed", "error", err)
			} else if removed > 0 {
				log.Info("state history pruned", "removed", removed)
			}
		}

		if metrics != nil {
			snap := bridge.HealthSnapshot()
			metrics.RecordBridgeStats(cfg.MQTT.Broker.ClientID, influxdb.BridgeStats{
				DroppedRequests: bridge.DroppedRequests(),
				SessionActive:   snap.SessionActive,
				Health:          string(snap.Status),
			})
		}
	}
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

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. The primary difference is the Subscribe handler signature:
// - Infrastructure mqtt: func(topic, payload []byte) error
// - Klafs bridge expects: func(topic, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements klafs.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements klafs.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements klafs.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
