// Package inventory supplies the set of installed assistive services.
//
// # Overview
//
// An Inventory lists ServiceInfo descriptors and notifies subscribers when
// packages appear, change or disappear. The broker treats it as the only
// source of truth for what can be bound.
//
// # Providers
//
//   - Dir: one TOML manifest per service in a directory, watched with
//     fsnotify and reloaded after a short debounce
//   - Static: an in-memory list for tests and embedders
//
// # Manifest format
//
//	package = "org.example.reader"
//	class = ".ScreenReader"
//	label = "Screen Reader"
//	permission = "bind_accessibility_service"
//	target_version = 18
//	capabilities = ["retrieve_window_content", "request_touch_exploration"]
//	event_types = ["all"]
//	feedback_types = ["spoken"]
//	packages = []
//	notification_timeout = "100ms"
//	flags = ["request_touch_exploration_mode"]
package inventory
