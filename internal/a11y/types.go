// ABOUTME: Bitmask and sentinel constants shared across the accessibility broker
// ABOUTME: Event types, feedback types, capabilities, service flags and user ids

package a11y

import (
	"math/bits"
	"strings"
)

// EventType is a single UI event kind. Masks of event types are stored in the
// same type.
type EventType uint32

const (
	EventViewClicked                    EventType = 1 << 0
	EventViewLongClicked                EventType = 1 << 1
	EventViewSelected                   EventType = 1 << 2
	EventViewFocused                    EventType = 1 << 3
	EventViewTextChanged                EventType = 1 << 4
	EventWindowStateChanged             EventType = 1 << 5
	EventNotificationStateChanged       EventType = 1 << 6
	EventViewHoverEnter                 EventType = 1 << 7
	EventViewHoverExit                  EventType = 1 << 8
	EventTouchExplorationGestureStart   EventType = 1 << 9
	EventTouchExplorationGestureEnd     EventType = 1 << 10
	EventWindowContentChanged           EventType = 1 << 11
	EventViewScrolled                   EventType = 1 << 12
	EventViewTextSelectionChanged       EventType = 1 << 13
	EventAnnouncement                   EventType = 1 << 14
	EventViewAccessibilityFocused       EventType = 1 << 15
	EventViewAccessibilityFocusCleared  EventType = 1 << 16
	EventViewTextTraversedAtGranularity EventType = 1 << 17
	EventGestureDetectionStart          EventType = 1 << 18
	EventGestureDetectionEnd            EventType = 1 << 19
	EventTouchInteractionStart          EventType = 1 << 20
	EventTouchInteractionEnd            EventType = 1 << 21

	// EventTypesAll matches every event type.
	EventTypesAll EventType = 0xFFFFFFFF
)

var eventTypeNames = map[EventType]string{
	EventViewClicked:                    "view_clicked",
	EventViewLongClicked:                "view_long_clicked",
	EventViewSelected:                   "view_selected",
	EventViewFocused:                    "view_focused",
	EventViewTextChanged:                "view_text_changed",
	EventWindowStateChanged:             "window_state_changed",
	EventNotificationStateChanged:       "notification_state_changed",
	EventViewHoverEnter:                 "view_hover_enter",
	EventViewHoverExit:                  "view_hover_exit",
	EventTouchExplorationGestureStart:   "touch_exploration_gesture_start",
	EventTouchExplorationGestureEnd:     "touch_exploration_gesture_end",
	EventWindowContentChanged:           "window_content_changed",
	EventViewScrolled:                   "view_scrolled",
	EventViewTextSelectionChanged:       "view_text_selection_changed",
	EventAnnouncement:                   "announcement",
	EventViewAccessibilityFocused:       "view_accessibility_focused",
	EventViewAccessibilityFocusCleared:  "view_accessibility_focus_cleared",
	EventViewTextTraversedAtGranularity: "view_text_traversed_at_granularity",
	EventGestureDetectionStart:          "gesture_detection_start",
	EventGestureDetectionEnd:            "gesture_detection_end",
	EventTouchInteractionStart:          "touch_interaction_start",
	EventTouchInteractionEnd:            "touch_interaction_end",
}

// ParseEventType maps a manifest name ("view_clicked", "all") to its bit.
func ParseEventType(name string) (EventType, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "all" {
		return EventTypesAll, true
	}
	for t, n := range eventTypeNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

// String renders a mask as a bracketed list of names.
func (t EventType) String() string {
	if t == EventTypesAll {
		return "[all]"
	}
	return "[" + strings.Join(maskNames(uint32(t), func(bit uint32) string {
		return eventTypeNames[EventType(bit)]
	}), ", ") + "]"
}

// FeedbackType is the kind of output a service produces.
type FeedbackType uint32

const (
	FeedbackSpoken  FeedbackType = 1 << 0
	FeedbackHaptic  FeedbackType = 1 << 1
	FeedbackAudible FeedbackType = 1 << 2
	FeedbackVisual  FeedbackType = 1 << 3
	FeedbackGeneric FeedbackType = 1 << 4
	FeedbackBraille FeedbackType = 1 << 5

	// FeedbackAllMask matches every feedback type.
	FeedbackAllMask FeedbackType = 0xFFFFFFFF
)

var feedbackNames = map[FeedbackType]string{
	FeedbackSpoken:  "spoken",
	FeedbackHaptic:  "haptic",
	FeedbackAudible: "audible",
	FeedbackVisual:  "visual",
	FeedbackGeneric: "generic",
	FeedbackBraille: "braille",
}

// ParseFeedbackType maps a manifest name to its bit.
func ParseFeedbackType(name string) (FeedbackType, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for f, n := range feedbackNames {
		if n == name {
			return f, true
		}
	}
	return 0, false
}

func (f FeedbackType) String() string {
	return "[" + strings.Join(maskNames(uint32(f), func(bit uint32) string {
		return feedbackNames[FeedbackType(bit)]
	}), ", ") + "]"
}

// Capability is a permission a service declares in its manifest.
type Capability uint32

const (
	CapabilityRetrieveWindowContent   Capability = 1 << 0
	CapabilityRequestTouchExploration Capability = 1 << 1
	CapabilityRequestEnhancedWeb      Capability = 1 << 2
	CapabilityRequestFilterKeyEvents  Capability = 1 << 3
)

var capabilityNames = map[Capability]string{
	CapabilityRetrieveWindowContent:   "retrieve_window_content",
	CapabilityRequestTouchExploration: "request_touch_exploration",
	CapabilityRequestEnhancedWeb:      "request_enhanced_web",
	CapabilityRequestFilterKeyEvents:  "request_filter_key_events",
}

// ParseCapability maps a manifest name to its bit.
func ParseCapability(name string) (Capability, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for c, n := range capabilityNames {
		if n == name {
			return c, true
		}
	}
	return 0, false
}

func (c Capability) String() string {
	return "[" + strings.Join(maskNames(uint32(c), func(bit uint32) string {
		return capabilityNames[Capability(bit)]
	}), ", ") + "]"
}

// ServiceFlag is a runtime request a service makes through its ServiceInfo.
type ServiceFlag uint32

const (
	FlagDefault                         ServiceFlag = 1 << 0
	FlagIncludeNotImportantViews        ServiceFlag = 1 << 1
	FlagRequestTouchExplorationMode     ServiceFlag = 1 << 2
	FlagRequestEnhancedWebAccessibility ServiceFlag = 1 << 3
	FlagReportViewIDs                   ServiceFlag = 1 << 4
	FlagRequestFilterKeyEvents          ServiceFlag = 1 << 5
)

var flagNames = map[ServiceFlag]string{
	FlagDefault:                         "default",
	FlagIncludeNotImportantViews:        "include_not_important_views",
	FlagRequestTouchExplorationMode:     "request_touch_exploration_mode",
	FlagRequestEnhancedWebAccessibility: "request_enhanced_web_accessibility",
	FlagReportViewIDs:                   "report_view_ids",
	FlagRequestFilterKeyEvents:          "request_filter_key_events",
}

// ParseServiceFlag maps a manifest name to its bit.
func ParseServiceFlag(name string) (ServiceFlag, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for f, n := range flagNames {
		if n == name {
			return f, true
		}
	}
	return 0, false
}

// FetchFlag controls what a node query includes.
type FetchFlag uint32

const (
	FetchIncludeNotImportantViews FetchFlag = 1 << 3
	FetchReportViewIDs            FetchFlag = 1 << 4
)

// ClientState is the aggregate bitmask broadcast to registered clients.
type ClientState int

const (
	StateAccessibilityEnabled    ClientState = 1 << 0
	StateTouchExplorationEnabled ClientState = 1 << 1
)

// InputFeature is a bit of the downstream input filter configuration.
type InputFeature uint32

const (
	InputFeatureScreenMagnifier  InputFeature = 1 << 0
	InputFeatureTouchExploration InputFeature = 1 << 1
	InputFeatureFilterKeyEvents  InputFeature = 1 << 2
)

// PolicyFlagPassToUser marks a re-injected key event so the input pipeline
// delivers it to the application rather than offering it again.
const PolicyFlagPassToUser uint32 = 0x40000000

// User id sentinels.
const (
	UserAll           = -1
	UserCurrent       = -2
	UserCurrentOrSelf = -3
	UserNull          = -10000
	UserOwner         = 0
)

// Window id sentinels.
const (
	// NoWindow means no window is active.
	NoWindow = -1
	// ActiveWindowID asks the broker to substitute the active window.
	ActiveWindowID = -2
)

// LegacyTouchExplorationVersion is the highest target version whose services
// need an explicit user grant before they may enable touch exploration.
const LegacyTouchExplorationVersion = 17

func maskNames(mask uint32, name func(uint32) string) []string {
	var out []string
	for mask != 0 {
		bit := uint32(1) << bits.TrailingZeros32(mask)
		mask &^= bit
		if n := name(bit); n != "" {
			out = append(out, n)
		} else {
			out = append(out, "unknown")
		}
	}
	return out
}
