package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Slot limits for the fixed-size value and scene tables.
const (
	MaxSensorValues = 15
	MaxBinaryValues = 15
	MaxScenes       = 128
)

// Config is the root configuration structure for the Klafs vDC bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Klafs    KlafsConfig    `yaml:"klafs"`
	Sauna    SaunaConfig    `yaml:"sauna"`
	VDC      VDCConfig      `yaml:"vdc"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Security SecurityConfig `yaml:"security"`
}

// KlafsConfig contains the cloud account and polling settings.
type KlafsConfig struct {
	BaseURL  string `yaml:"base_url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// PIN is only needed to power the cabin on remotely.
	PIN string `yaml:"pin"`

	// PollInterval is the normal status poll interval in seconds.
	PollInterval int `yaml:"poll_interval"`

	// RetryInterval is the delay after a failed poll in seconds.
	RetryInterval int `yaml:"retry_interval"`

	// Timeout bounds every cloud HTTP exchange in seconds.
	Timeout int `yaml:"timeout"`
}

// SaunaConfig describes the single appliance exposed on the bus.
type SaunaConfig struct {
	ID           string              `yaml:"id"`
	Name         string              `yaml:"name"`
	ZoneID       int                 `yaml:"zone_id"`
	Sensors      []SensorConfig      `yaml:"sensors"`
	BinaryInputs []BinaryInputConfig `yaml:"binary_inputs"`

	// Scenes seeds the scene table on first start. Once scenes have been
	// saved from the bus the database copy wins.
	Scenes []SceneConfig `yaml:"scenes"`
}

// SensorConfig maps a cloud status field to a bus sensor slot.
type SensorConfig struct {
	Name        string `yaml:"name"`
	SensorType  int    `yaml:"sensor_type"`
	SensorUsage int    `yaml:"sensor_usage"`
}

// BinaryInputConfig maps a cloud status field to a bus binary input slot.
type BinaryInputConfig struct {
	Name           string `yaml:"name"`
	SensorFunction int    `yaml:"sensor_function"`
}

// SceneConfig is a saved appliance configuration keyed by bus scene number.
type SceneConfig struct {
	ID                  int    `yaml:"id"`
	PoweredOn           bool   `yaml:"powered_on"`
	Mode                string `yaml:"mode"` // sauna, sanarium, infrared
	SaunaTemperature    int    `yaml:"sauna_temperature"`
	SanariumTemperature int    `yaml:"sanarium_temperature"`
	IRTemperature       int    `yaml:"ir_temperature"`
	HumidityLevel       int    `yaml:"humidity_level"`
	IRLevel             int    `yaml:"ir_level"`
	BathingHours        int    `yaml:"bathing_hours"`
	BathingMinutes      int    `yaml:"bathing_minutes"`
}

// VDCConfig contains the bus (vDC API over MQTT) settings.
type VDCConfig struct {
	// TopicPrefix is the root of all bus topics.
	TopicPrefix string `yaml:"topic_prefix"`

	// VDCDSUID and LibDSUID pin the container and library identifiers.
	// Empty values are generated once and persisted in the database.
	VDCDSUID string `yaml:"vdc_dsuid"`
	LibDSUID string `yaml:"lib_dsuid"`

	// WorkTimeout is the bounded wait per bus-loop iteration in seconds.
	WorkTimeout int `yaml:"work_timeout"`

	// HealthInterval is how often bridge health is published in seconds.
	HealthInterval int `yaml:"health_interval"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// HistoryRetention is how many days of state history are kept. 0 keeps all.
	HistoryRetention int `yaml:"history_retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains the local HTTP API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains API security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains the bearer token settings for mutating API routes.
// An empty secret leaves those routes open (local installations).
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: KLAFSVDC_SECTION_KEY
// For example: KLAFSVDC_KLAFS_PASSWORD, KLAFSVDC_MQTT_HOST
//
// A missing file is reported with ErrConfigMissing so the caller can
// write a template with WriteTemplate.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigMissing, path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Klafs: KlafsConfig{
			BaseURL:       "https://sauna-app-19.klafs.com",
			PollInterval:  60,
			RetryInterval: 60,
			Timeout:       42,
		},
		Sauna: SaunaConfig{
			Name:   "Sauna",
			ZoneID: 65534,
		},
		VDC: VDCConfig{
			TopicPrefix:    "vdc",
			WorkTimeout:    2,
			HealthInterval: 30,
		},
		Database: DatabaseConfig{
			Path:             "./data/klafs-vdc.db",
			WALMode:          true,
			BusyTimeout:      5,
			HistoryRetention: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "klafs-vdc",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 60,
				Idle:  60,
			},
		},
		InfluxDB: InfluxDBConfig{
			Org:           "klafs",
			Bucket:        "sauna",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: KLAFSVDC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Klafs account
	if v := os.Getenv("KLAFSVDC_KLAFS_USERNAME"); v != "" {
		cfg.Klafs.Username = v
	}
	if v := os.Getenv("KLAFSVDC_KLAFS_PASSWORD"); v != "" {
		cfg.Klafs.Password = v
	}
	if v := os.Getenv("KLAFSVDC_KLAFS_PIN"); v != "" {
		cfg.Klafs.PIN = v
	}
	if v := os.Getenv("KLAFSVDC_KLAFS_POLL_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Klafs.PollInterval = n
		}
	}

	// Sauna
	if v := os.Getenv("KLAFSVDC_SAUNA_ID"); v != "" {
		cfg.Sauna.ID = v
	}

	// Database
	if v := os.Getenv("KLAFSVDC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("KLAFSVDC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("KLAFSVDC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("KLAFSVDC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("KLAFSVDC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API token secret
	if v := os.Getenv("KLAFSVDC_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors.
//
// Missing mandatory account or appliance fields are fatal: the bridge must
// stop before any network activity.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Mandatory account and appliance identity
	if c.Klafs.Username == "" {
		errs = append(errs, "klafs.username is required")
	}
	if c.Klafs.Password == "" {
		errs = append(errs, "klafs.password is required (set KLAFSVDC_KLAFS_PASSWORD environment variable)")
	}
	if c.Sauna.ID == "" {
		errs = append(errs, "sauna.id is required")
	}
	if c.Klafs.BaseURL == "" {
		errs = append(errs, "klafs.base_url is required")
	}

	if c.Klafs.PollInterval < 1 {
		errs = append(errs, "klafs.poll_interval must be at least 1 second")
	}
	if c.Klafs.RetryInterval < 1 {
		errs = append(errs, "klafs.retry_interval must be at least 1 second")
	}
	if c.Klafs.Timeout < 1 {
		errs = append(errs, "klafs.timeout must be at least 1 second")
	}

	errs = append(errs, c.validateValues()...)
	errs = append(errs, c.validateScenes()...)

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.HistoryRetention < 0 {
		errs = append(errs, "database.history_retention_days must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.VDC.TopicPrefix == "" {
		errs = append(errs, "vdc.topic_prefix is required")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	const minJWTSecretLength = 32
	if c.Security.JWT.Secret != "" && len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validateValues checks slot limits and case-insensitive name uniqueness
// across sensors and binary inputs.
func (c *Config) validateValues() []string {
	var errs []string

	if len(c.Sauna.Sensors) > MaxSensorValues {
		errs = append(errs, fmt.Sprintf("sauna.sensors: at most %d entries allowed", MaxSensorValues))
	}
	if len(c.Sauna.BinaryInputs) > MaxBinaryValues {
		errs = append(errs, fmt.Sprintf("sauna.binary_inputs: at most %d entries allowed", MaxBinaryValues))
	}

	seen := make(map[string]bool)
	check := func(section string, i int, name string) {
		if name == "" {
			errs = append(errs, fmt.Sprintf("%s[%d].name is required", section, i))
			return
		}
		key := strings.ToLower(name)
		if seen[key] {
			errs = append(errs, fmt.Sprintf("%s[%d].name %q is not unique", section, i, name))
		}
		seen[key] = true
	}
	for i, s := range c.Sauna.Sensors {
		check("sauna.sensors", i, s.Name)
	}
	for i, b := range c.Sauna.BinaryInputs {
		check("sauna.binary_inputs", i, b.Name)
	}

	return errs
}

// validateScenes checks the scene seed table.
func (c *Config) validateScenes() []string {
	var errs []string

	if len(c.Sauna.Scenes) > MaxScenes {
		errs = append(errs, fmt.Sprintf("sauna.scenes: at most %d entries allowed", MaxScenes))
	}

	ids := make(map[int]bool)
	for i, s := range c.Sauna.Scenes {
		if s.ID < 0 {
			errs = append(errs, fmt.Sprintf("sauna.scenes[%d].id must not be negative", i))
		}
		if ids[s.ID] {
			errs = append(errs, fmt.Sprintf("sauna.scenes[%d].id %d is not unique", i, s.ID))
		}
		ids[s.ID] = true

		switch strings.ToLower(s.Mode) {
		case "", "sauna", "sanarium", "infrared":
		default:
			errs = append(errs, fmt.Sprintf("sauna.scenes[%d].mode must be sauna, sanarium or infrared", i))
		}
	}

	return errs
}

// PollInterval returns the normal poll interval as a Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Klafs.PollInterval) * time.Second
}

// RetryInterval returns the delay after a failed poll as a Duration.
func (c *Config) RetryInterval() time.Duration {
	return time.Duration(c.Klafs.RetryInterval) * time.Second
}

// HTTPTimeout returns the cloud request timeout as a Duration.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.Klafs.Timeout) * time.Second
}

// WorkTimeout returns the bounded bus-loop wait as a Duration.
func (c *Config) WorkTimeout() time.Duration {
	return time.Duration(c.VDC.WorkTimeout) * time.Second
}

// HistoryRetention returns how long state history is kept, 0 for forever.
func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.Database.HistoryRetention) * 24 * time.Hour
}

// HealthInterval returns the bridge health publish interval.
func (c *Config) HealthInterval() time.Duration {
	return time.Duration(c.VDC.HealthInterval) * time.Second
}

// ReadTimeout returns the API read timeout as a Duration.
func (a APITimeoutConfig) ReadTimeout() time.Duration {
	return time.Duration(a.Read) * time.Second
}

// WriteTimeout returns the API write timeout as a Duration.
func (a APITimeoutConfig) WriteTimeout() time.Duration {
	return time.Duration(a.Write) * time.Second
}

// IdleTimeout returns the API idle timeout as a Duration.
func (a APITimeoutConfig) IdleTimeout() time.Duration {
	return time.Duration(a.Idle) * time.Second
}
