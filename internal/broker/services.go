// ABOUTME: Read-only queries over installed and enabled services
// ABOUTME: The automation service is hidden from listings and suppresses the enabled list

package broker

import (
	"context"
	"math/bits"

	"github.com/2389/a11y-gateway/internal/a11y"
	"github.com/2389/a11y-gateway/internal/auth"
	"github.com/2389/a11y-gateway/internal/policy"
)

// InstalledServices lists the installed services of userID.
func (b *Broker) InstalledServices(ctx context.Context, userID int) ([]*a11y.ServiceInfo, error) {
	caller, err := auth.RequireCaller(ctx)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	resolved, err := policy.ResolveCallingUser(caller, userID, b.currentUser)
	if err != nil {
		return nil, err
	}
	u := b.userLocked(resolved)
	out := make([]*a11y.ServiceInfo, 0, len(u.installed))
	for _, info := range u.installed {
		if info.Component == AutomationComponent {
			continue
		}
		out = append(out, info.Clone())
	}
	return out, nil
}

// EnabledServices lists bound services whose feedback intersects
// feedbackMask, grouped by feedback bit from lowest to highest.
func (b *Broker) EnabledServices(ctx context.Context, feedbackMask a11y.FeedbackType, userID int) ([]*a11y.ServiceInfo, error) {
	caller, err := auth.RequireCaller(ctx)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	resolved, err := policy.ResolveCallingUser(caller, userID, b.currentUser)
	if err != nil {
		return nil, err
	}
	u := b.userLocked(resolved)
	if u.automation != nil {
		return nil, nil
	}

	var out []*a11y.ServiceInfo
	seen := make(map[*Service]bool)
	for mask := uint32(feedbackMask); mask != 0; {
		bit := a11y.FeedbackType(1) << bits.TrailingZeros32(mask)
		mask &^= uint32(bit)
		for _, s := range u.bound {
			if s.feedbackType&bit != 0 && !seen[s] {
				seen[s] = true
				out = append(out, s.info.Clone())
			}
		}
	}
	return out, nil
}
