// ABOUTME: Node and global action identifiers a service may request
// ABOUTME: ValidAction guards which node actions reach an interaction connection

package a11y

// Action is a node-level action performed through an interaction connection.
type Action int

const (
	ActionFocus                     Action = 1 << 0
	ActionClearFocus                Action = 1 << 1
	ActionSelect                    Action = 1 << 2
	ActionClearSelection            Action = 1 << 3
	ActionClick                     Action = 1 << 4
	ActionLongClick                 Action = 1 << 5
	ActionAccessibilityFocus        Action = 1 << 6
	ActionClearAccessibilityFocus   Action = 1 << 7
	ActionNextAtMovementGranularity Action = 1 << 8
	ActionPrevAtMovementGranularity Action = 1 << 9
	ActionNextHTMLElement           Action = 1 << 10
	ActionPrevHTMLElement           Action = 1 << 11
	ActionScrollForward             Action = 1 << 12
	ActionScrollBackward            Action = 1 << 13
	ActionCopy                      Action = 1 << 14
	ActionPaste                     Action = 1 << 15
	ActionCut                       Action = 1 << 16
	ActionSetSelection              Action = 1 << 17
	ActionExpand                    Action = 1 << 18
	ActionCollapse                  Action = 1 << 19
	ActionDismiss                   Action = 1 << 20
)

const validActions = ActionFocus | ActionClearFocus | ActionSelect | ActionClearSelection |
	ActionClick | ActionLongClick | ActionAccessibilityFocus | ActionClearAccessibilityFocus |
	ActionNextAtMovementGranularity | ActionPrevAtMovementGranularity |
	ActionNextHTMLElement | ActionPrevHTMLElement | ActionScrollForward | ActionScrollBackward |
	ActionCopy | ActionPaste | ActionCut | ActionSetSelection | ActionExpand | ActionCollapse |
	ActionDismiss

// ValidAction reports whether a is exactly one permitted node action.
func ValidAction(a Action) bool {
	return a != 0 && a&(a-1) == 0 && a&validActions == a
}

// GlobalAction is a system-wide action such as going back or home.
type GlobalAction int

const (
	GlobalActionBack GlobalAction = iota + 1
	GlobalActionHome
	GlobalActionRecents
	GlobalActionNotifications
	GlobalActionQuickSettings
)
