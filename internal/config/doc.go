// Package config handles configuration loading for a11y-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and defaults for the listen addresses, the
// key event timeout and logging.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from A11Y_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/a11y/gateway.yaml
//  3. ~/.config/a11y/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	database:
//	  path: "${A11Y_DATA}/settings.db"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  grpc_addr: "127.0.0.1:50061"
//	  http_addr: "127.0.0.1:8086"
//
// Settings database (required):
//
//	database:
//	  path: "~/.local/share/a11y/settings.db"
//
// Broker tunables. key_event_timeout uses time.ParseDuration syntax:
//
//	broker:
//	  initial_user: 0
//	  key_event_timeout: "500ms"
//
// Installed services come from TOML manifests in a directory, optionally
// watched for changes:
//
//	inventory:
//	  manifest_dir: "/etc/a11y/services"
//	  watch: true
//
// Publishing state on D-Bus (off by default):
//
//	dbus:
//	  enabled: true
//	  bus: "session"   # session or system
//
// Logging:
//
//	logging:
//	  level: "info"    # debug, info, warn, error
//	  format: "text"   # text or json
package config
