// ABOUTME: Manifest-directory inventory that watches *.toml files with fsnotify
// ABOUTME: Reloads on change and reports removed packages before a general change

package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/2389/a11y-gateway/internal/a11y"
)

// debounceDelay collapses bursts of writes into one reload.
const debounceDelay = 100 * time.Millisecond

// Dir is an inventory backed by a directory of TOML manifests.
type Dir struct {
	dir    string
	logger *slog.Logger

	mu       sync.RWMutex
	services map[string]*a11y.ServiceInfo // manifest path -> info

	subs    subscribers
	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewDir creates an inventory over dir. Call Load before use.
func NewDir(dir string, logger *slog.Logger) *Dir {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dir{
		dir:      dir,
		logger:   logger.With("component", "inventory"),
		services: make(map[string]*a11y.ServiceInfo),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Load scans the directory. A missing directory yields an empty inventory.
// Malformed manifests are skipped with a warning.
func (d *Dir) Load() error {
	services, err := d.scan()
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.services = services
	d.mu.Unlock()

	d.logger.Info("inventory loaded", "dir", d.dir, "services", len(services))
	return nil
}

func (d *Dir) scan() (map[string]*a11y.ServiceInfo, error) {
	services := make(map[string]*a11y.ServiceInfo)

	entries, err := os.ReadDir(d.dir)
	if os.IsNotExist(err) {
		return services, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".toml") {
			continue
		}
		path := filepath.Join(d.dir, e.Name())
		info, err := LoadManifest(path)
		if err != nil {
			d.logger.Warn("skipping manifest", "path", path, "error", err)
			continue
		}
		services[path] = info
	}
	return services, nil
}

// Services returns copies of every loaded service.
func (d *Dir) Services(int) []*a11y.ServiceInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	list := make([]*a11y.ServiceInfo, 0, len(d.services))
	for _, info := range d.services {
		list = append(list, info)
	}
	return cloneSorted(list)
}

// Subscribe registers fn for changes.
func (d *Dir) Subscribe(fn func(Change)) func() {
	return d.subs.add(fn)
}

// Watch starts watching the directory for manifest changes.
func (d *Dir) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		watcher.Close()
		return fmt.Errorf("creating manifest dir: %w", err)
	}
	if err := watcher.Add(d.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	d.watcher = watcher

	go d.watchLoop()
	return nil
}

func (d *Dir) watchLoop() {
	var debounceTimer *time.Timer

	for {
		select {
		case <-d.ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".toml") {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDelay, d.reload)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.logger.Warn("manifest watcher error", "error", err)
		}
	}
}

// reload rescans the directory and publishes what changed.
func (d *Dir) reload() {
	next, err := d.scan()
	if err != nil {
		d.logger.Warn("manifest reload failed", "error", err)
		return
	}

	d.mu.Lock()
	prev := d.services
	d.services = next
	d.mu.Unlock()

	changes := diffPackages(prev, next)
	if len(changes) == 0 {
		return
	}
	d.logger.Info("inventory changed", "services", len(next))
	d.subs.publish(changes...)
}

// diffPackages reports packages that disappeared, then a general change if
// anything differs at all.
func diffPackages(prev, next map[string]*a11y.ServiceInfo) []Change {
	nextPkgs := make(map[string]bool)
	for _, info := range next {
		nextPkgs[info.Component.Package] = true
	}

	var changes []Change
	removed := make(map[string]bool)
	for _, info := range prev {
		pkg := info.Component.Package
		if !nextPkgs[pkg] && !removed[pkg] {
			removed[pkg] = true
			changes = append(changes, Change{Kind: PackageRemoved, Package: pkg})
		}
	}

	changed := len(prev) != len(next)
	for path, info := range next {
		if old, ok := prev[path]; !ok || !old.Equal(info) {
			changed = true
		}
	}
	if changed {
		changes = append(changes, Change{Kind: PackagesChanged})
	}
	return changes
}

// Close stops the watcher.
func (d *Dir) Close() error {
	d.cancel()
	if d.watcher != nil {
		return d.watcher.Close()
	}
	return nil
}
