package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrConfigMissing is returned by Load when the configuration file does not exist.
var ErrConfigMissing = errors.New("config file not found")

// templateYAML is written when no configuration exists yet. It leaves the
// mandatory account fields empty so the next start fails validation until
// the operator fills them in.
const templateYAML = `# Klafs vDC bridge configuration
klafs:
  base_url: "https://sauna-app-19.klafs.com"
  username: ""
  password: ""          # prefer KLAFSVDC_KLAFS_PASSWORD
  pin: ""
  poll_interval: 60
  retry_interval: 60
  timeout: 42

sauna:
  id: ""
  name: "Sauna"
  zone_id: 65534
  sensors:
    - name: currentTemperature
      sensor_type: 1
      sensor_usage: 1
    - name: currentHumidity
      sensor_type: 2
      sensor_usage: 1
    - name: bathingHours
      sensor_type: 0
      sensor_usage: 0
    - name: bathingMinutes
      sensor_type: 0
      sensor_usage: 0
  binary_inputs:
    - name: isPoweredOn
      sensor_function: 0
    - name: isConnected
      sensor_function: 0
    - name: isReadyForUse
      sensor_function: 0

vdc:
  topic_prefix: "vdc"
  work_timeout: 2
  health_interval: 30

database:
  path: "./data/klafs-vdc.db"
  wal_mode: true
  busy_timeout: 5
  history_retention_days: 30

mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "klafs-vdc"
  qos: 1

api:
  enabled: true
  host: "0.0.0.0"
  port: 8090

influxdb:
  enabled: false

logging:
  level: "info"
  format: "json"
  output: "stdout"
`

// WriteTemplate writes a commented configuration template to path.
// An existing file is never overwritten.
//
// Parameters:
//   - path: Destination of the template
//
// Returns:
//   - error: If the file exists or cannot be written
func WriteTemplate(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("creating config template: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(templateYAML); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}
