package config

import (
	"fmt"
	"os"
)

// configTemplate is written by Load when no config file exists.
// Every setting is shown with its default value.
const configTemplate = `# Inventory Server Configuration
#
# Environment variables override these settings:
#   INVENTORY_BIND            host:port for the HTTP listener
#   INVENTORY_DB_PATH         database file path
#   INVENTORY_TLS_CERT        TLS certificate (PEM)
#   INVENTORY_TLS_KEY         TLS private key (PEM)
#   INVENTORY_DEBUG           "1" or "true" logs every accepted check-in
#   INVENTORY_MQTT_HOST, INVENTORY_MQTT_USERNAME, INVENTORY_MQTT_PASSWORD
#   INVENTORY_INFLUXDB_TOKEN

server:
  host: "0.0.0.0"
  port: 8443
  # tls:
  #   cert_file: "path/to/cert.pem"
  #   key_file: "path/to/key.pem"
  timeouts:
    read: 30
    write: 30
    idle: 60

database:
  # Defaults to inventory.db in the executable directory when empty.
  # path: "/var/lib/inventory/inventory.db"
  busy_timeout: 5
  max_read_conns: 4

# Log every incoming check-in payload.
debug: false

logging:
  level: "info"   # debug, info, warn, error
  format: "json"  # json, text
  output: "stdout"

mqtt:
  enabled: false
  broker:
    host: "localhost"
    port: 1883
    tls: false
    client_id: "inventory-core"
  qos: 1
  reconnect:
    initial_delay: 1
    max_delay: 60

influxdb:
  enabled: false
  url: "http://localhost:8086"
  org: "inventory"
  bucket: "checkins"
  batch_size: 100
  flush_interval: 10
`

// WriteTemplate writes the commented default configuration to path.
// An existing file is never overwritten.
func WriteTemplate(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, templatePermissions)
	if err != nil {
		return fmt.Errorf("creating config template: %w", err)
	}
	if _, err := f.WriteString(configTemplate); err != nil {
		f.Close() //nolint:errcheck // Best effort cleanup on error path
		return fmt.Errorf("writing config template: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing config template: %w", err)
	}
	return nil
}
