// ABOUTME: ServiceInfo describes an installed assistive service and its requests
// ABOUTME: Populated from manifests and mutated at runtime by SetServiceInfo

package a11y

import (
	"slices"
	"time"
)

// BindServicePermission must be declared by a manifest for the service to be
// installable.
const BindServicePermission = "bind_accessibility_service"

// ServiceInfo is the descriptor of one assistive service.
type ServiceInfo struct {
	Component     ComponentName
	Label         string
	Permission    string
	TargetVersion int

	// Capabilities come from the manifest and never widen at runtime, except
	// for the touch-exploration grant given to legacy services.
	Capabilities Capability

	EventTypes          EventType
	FeedbackType        FeedbackType
	Packages            []string
	NotificationTimeout time.Duration
	Flags               ServiceFlag
}

// ID is the stable string form of the component.
func (i *ServiceInfo) ID() string {
	return i.Component.String()
}

// HasFlag reports whether f is set.
func (i *ServiceInfo) HasFlag(f ServiceFlag) bool {
	return i.Flags&f != 0
}

// Clone returns a deep copy.
func (i *ServiceInfo) Clone() *ServiceInfo {
	if i == nil {
		return nil
	}
	out := *i
	out.Packages = slices.Clone(i.Packages)
	return &out
}

// Equal compares every field.
func (i *ServiceInfo) Equal(o *ServiceInfo) bool {
	if i == nil || o == nil {
		return i == o
	}
	return i.Component == o.Component &&
		i.Label == o.Label &&
		i.Permission == o.Permission &&
		i.TargetVersion == o.TargetVersion &&
		i.Capabilities == o.Capabilities &&
		i.EventTypes == o.EventTypes &&
		i.FeedbackType == o.FeedbackType &&
		slices.Equal(i.Packages, o.Packages) &&
		i.NotificationTimeout == o.NotificationTimeout &&
		i.Flags == o.Flags
}

// EqualServiceLists compares two installed lists element by element.
func EqualServiceLists(a, b []*ServiceInfo) bool {
	return slices.EqualFunc(a, b, func(x, y *ServiceInfo) bool { return x.Equal(y) })
}
