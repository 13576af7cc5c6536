// ABOUTME: Reacts to installed-service inventory changes and forced package stops
// ABOUTME: Prunes enabled and granted sets of removed packages and persists the result

package broker

import (
	"github.com/2389/a11y-gateway/internal/a11y"
	"github.com/2389/a11y-gateway/internal/inventory"
	"github.com/2389/a11y-gateway/internal/store"
)

func (b *Broker) onInventoryChanged(c inventory.Change) {
	switch c.Kind {
	case inventory.PackagesChanged:
		b.OnPackagesChanged()
	case inventory.PackageRemoved:
		b.OnPackageRemoved(c.Package)
	}
}

// OnPackagesChanged re-reads the installed services of the current user.
func (b *Broker) OnPackagesChanged() {
	b.mu.Lock()
	defer b.mu.Unlock()

	u := b.currentUserLocked()
	// Reconciled when the automation service goes away.
	if u.automation != nil {
		return
	}
	u.installed = nil
	if b.readConfigurationLocked(u) {
		b.onUserStateChangedLocked(u)
	}
}

// OnComponentAvailable retries the binding of component when the current
// user has it enabled. Connectors call it once a component they previously
// could not serve becomes reachable.
func (b *Broker) OnComponentAvailable(component a11y.ComponentName) {
	b.mu.Lock()
	defer b.mu.Unlock()

	u := b.currentUserLocked()
	if u.automation != nil || !u.enabled.Has(component) {
		return
	}
	b.logger.Debug("component available", "service", component.String(), "user_id", u.userID)
	b.onUserStateChangedLocked(u)
}

// OnPackageRemoved drops every enabled or granted service of pkg.
func (b *Broker) OnPackageRemoved(pkg string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	u := b.currentUserLocked()
	if u.automation != nil {
		return
	}
	enabledChanged := u.enabled.RemovePackage(pkg)
	grantedChanged := u.granted.RemovePackage(pkg)
	if !enabledChanged && !grantedChanged {
		return
	}
	if enabledChanged {
		b.persistSetLocked(store.SettingEnabledServices, u.enabled, u.userID)
	}
	if grantedChanged {
		b.persistSetLocked(store.SettingTouchExplorationGrantedServices, u.granted, u.userID)
	}
	b.logger.Info("package removed", "package", pkg, "user_id", u.userID)
	b.onUserStateChangedLocked(u)
}

// OnPackagesForceStopped reports whether any enabled service belongs to pkgs.
// With stop set those services are also disabled.
func (b *Broker) OnPackagesForceStopped(pkgs []string, stop bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	u := b.currentUserLocked()
	if u.automation != nil {
		return false
	}
	hit := false
	for _, pkg := range pkgs {
		for c := range u.enabled {
			if c.Package != pkg {
				continue
			}
			if !stop {
				return true
			}
			hit = u.enabled.Remove(c) || hit
		}
	}
	if hit {
		b.persistSetLocked(store.SettingEnabledServices, u.enabled, u.userID)
		b.onUserStateChangedLocked(u)
	}
	return hit
}
