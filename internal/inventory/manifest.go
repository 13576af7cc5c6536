// ABOUTME: TOML service manifests describing installable assistive services
// ABOUTME: Decodes names into capability, event, feedback and flag bitmasks

package inventory

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/2389/a11y-gateway/internal/a11y"
)

// Manifest is the on-disk form of one service descriptor.
type Manifest struct {
	Package             string   `toml:"package"`
	Class               string   `toml:"class"`
	Label               string   `toml:"label"`
	Permission          string   `toml:"permission"`
	TargetVersion       int      `toml:"target_version"`
	Capabilities        []string `toml:"capabilities"`
	EventTypes          []string `toml:"event_types"`
	FeedbackTypes       []string `toml:"feedback_types"`
	Packages            []string `toml:"packages"`
	NotificationTimeout string   `toml:"notification_timeout"`
	Flags               []string `toml:"flags"`
}

// ParseManifest decodes TOML into a ServiceInfo.
func ParseManifest(data string) (*a11y.ServiceInfo, error) {
	var m Manifest
	if _, err := toml.Decode(data, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	return m.ServiceInfo()
}

// LoadManifest reads and decodes the manifest at path.
func LoadManifest(path string) (*a11y.ServiceInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	info, err := ParseManifest(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return info, nil
}

// ServiceInfo validates the manifest and converts it.
func (m *Manifest) ServiceInfo() (*a11y.ServiceInfo, error) {
	component, err := a11y.ParseComponentName(m.Package + "/" + m.Class)
	if err != nil {
		return nil, err
	}

	info := &a11y.ServiceInfo{
		Component:     component,
		Label:         m.Label,
		Permission:    m.Permission,
		TargetVersion: m.TargetVersion,
		Packages:      m.Packages,
	}
	if info.Label == "" {
		info.Label = component.Class
	}

	for _, name := range m.Capabilities {
		c, ok := a11y.ParseCapability(name)
		if !ok {
			return nil, fmt.Errorf("unknown capability %q", name)
		}
		info.Capabilities |= c
	}
	for _, name := range m.EventTypes {
		e, ok := a11y.ParseEventType(name)
		if !ok {
			return nil, fmt.Errorf("unknown event type %q", name)
		}
		info.EventTypes |= e
	}
	for _, name := range m.FeedbackTypes {
		f, ok := a11y.ParseFeedbackType(name)
		if !ok {
			return nil, fmt.Errorf("unknown feedback type %q", name)
		}
		info.FeedbackType |= f
	}
	for _, name := range m.Flags {
		f, ok := a11y.ParseServiceFlag(name)
		if !ok {
			return nil, fmt.Errorf("unknown flag %q", name)
		}
		info.Flags |= f
	}
	if m.NotificationTimeout != "" {
		d, err := time.ParseDuration(m.NotificationTimeout)
		if err != nil {
			return nil, fmt.Errorf("parsing notification_timeout %q: %w", m.NotificationTimeout, err)
		}
		info.NotificationTimeout = d
	}

	return info, nil
}
