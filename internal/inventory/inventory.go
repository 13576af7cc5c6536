// ABOUTME: Inventory of installed assistive services and package change notifications
// ABOUTME: Static in-memory provider plus the shared subscriber list

package inventory

import (
	"sort"
	"sync"

	"github.com/2389/a11y-gateway/internal/a11y"
)

// ChangeKind classifies an inventory notification.
type ChangeKind int

const (
	// PackagesChanged means the installed set may differ; re-read it.
	PackagesChanged ChangeKind = iota
	// PackageRemoved means Package is gone and references must be pruned.
	PackageRemoved
)

// Change is one inventory notification.
type Change struct {
	Kind    ChangeKind
	Package string
}

// Inventory is the source of truth for installed services.
type Inventory interface {
	// Services returns fresh copies of every installed service for userID.
	Services(userID int) []*a11y.ServiceInfo
	// Subscribe registers fn for changes. The returned func removes it.
	Subscribe(fn func(Change)) (cancel func())
}

type subscribers struct {
	mu     sync.RWMutex
	nextID int
	fns    map[int]func(Change)
}

func (s *subscribers) add(fn func(Change)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[int]func(Change))
	}
	id := s.nextID
	s.nextID++
	s.fns[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.fns, id)
	}
}

func (s *subscribers) publish(changes ...Change) {
	s.mu.RLock()
	fns := make([]func(Change), 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, c := range changes {
		for _, fn := range fns {
			fn(c)
		}
	}
}

// Static is an inventory held in memory. Tests and embedders mutate it
// directly.
type Static struct {
	mu       sync.RWMutex
	services []*a11y.ServiceInfo
	subs     subscribers
}

// NewStatic returns an inventory holding services.
func NewStatic(services ...*a11y.ServiceInfo) *Static {
	s := &Static{}
	for _, info := range services {
		s.services = append(s.services, info.Clone())
	}
	return s
}

// Services returns copies of the installed services.
func (s *Static) Services(int) []*a11y.ServiceInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSorted(s.services)
}

// Subscribe registers fn for changes.
func (s *Static) Subscribe(fn func(Change)) func() {
	return s.subs.add(fn)
}

// Install adds or replaces a service and publishes PackagesChanged.
func (s *Static) Install(info *a11y.ServiceInfo) {
	s.mu.Lock()
	replaced := false
	for i, existing := range s.services {
		if existing.Component == info.Component {
			s.services[i] = info.Clone()
			replaced = true
		}
	}
	if !replaced {
		s.services = append(s.services, info.Clone())
	}
	s.mu.Unlock()

	s.subs.publish(Change{Kind: PackagesChanged})
}

// RemovePackage uninstalls every service of pkg and publishes PackageRemoved
// followed by PackagesChanged.
func (s *Static) RemovePackage(pkg string) {
	s.mu.Lock()
	kept := s.services[:0]
	for _, info := range s.services {
		if info.Component.Package != pkg {
			kept = append(kept, info)
		}
	}
	s.services = kept
	s.mu.Unlock()

	s.subs.publish(Change{Kind: PackageRemoved, Package: pkg}, Change{Kind: PackagesChanged})
}

func cloneSorted(in []*a11y.ServiceInfo) []*a11y.ServiceInfo {
	out := make([]*a11y.ServiceInfo, 0, len(in))
	for _, info := range in {
		out = append(out, info.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
