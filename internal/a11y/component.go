// ABOUTME: ComponentName identifies an installable service as package plus class
// ABOUTME: Parsing and flattening helpers for the colon-separated settings lists

package a11y

import (
	"fmt"
	"sort"
	"strings"
)

// ComponentName identifies a service implementation.
type ComponentName struct {
	Package string
	Class   string
}

// ParseComponentName parses "pkg/cls". A class starting with "." is relative
// to the package.
func ParseComponentName(s string) (ComponentName, error) {
	pkg, cls, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || pkg == "" || cls == "" {
		return ComponentName{}, fmt.Errorf("invalid component name %q", s)
	}
	if strings.HasPrefix(cls, ".") {
		cls = pkg + cls
	}
	return ComponentName{Package: pkg, Class: cls}, nil
}

// String returns the flattened "pkg/cls" form.
func (c ComponentName) String() string {
	return c.Package + "/" + c.Class
}

// IsZero reports whether c is the zero value.
func (c ComponentName) IsZero() bool {
	return c.Package == "" && c.Class == ""
}

// ComponentSet is an unordered set of component names.
type ComponentSet map[ComponentName]struct{}

// ParseComponentSet parses a colon-separated list, skipping malformed entries.
func ParseComponentSet(s string) ComponentSet {
	set := make(ComponentSet)
	for _, part := range strings.Split(s, ":") {
		if part == "" {
			continue
		}
		c, err := ParseComponentName(part)
		if err != nil {
			continue
		}
		set[c] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s ComponentSet) Has(c ComponentName) bool {
	_, ok := s[c]
	return ok
}

// Add inserts c.
func (s ComponentSet) Add(c ComponentName) {
	s[c] = struct{}{}
}

// Remove deletes c and reports whether it was present.
func (s ComponentSet) Remove(c ComponentName) bool {
	if _, ok := s[c]; !ok {
		return false
	}
	delete(s, c)
	return true
}

// RemovePackage deletes every component belonging to pkg and reports whether
// anything was removed.
func (s ComponentSet) RemovePackage(pkg string) bool {
	removed := false
	for c := range s {
		if c.Package == pkg {
			delete(s, c)
			removed = true
		}
	}
	return removed
}

// Equal reports whether both sets hold the same members.
func (s ComponentSet) Equal(o ComponentSet) bool {
	if len(s) != len(o) {
		return false
	}
	for c := range s {
		if !o.Has(c) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (s ComponentSet) Clone() ComponentSet {
	out := make(ComponentSet, len(s))
	for c := range s {
		out[c] = struct{}{}
	}
	return out
}

// Sorted returns the members in lexical order.
func (s ComponentSet) Sorted() []ComponentName {
	out := make([]ComponentName, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// String flattens the set into the colon-separated settings form.
func (s ComponentSet) String() string {
	parts := make([]string, 0, len(s))
	for _, c := range s.Sorted() {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, ":")
}
