// Package watch keeps the atlas current by re-running the discovery
// pipeline when the search roots change.
//
// The daemon:
//  1. Performs an initial full scan
//  2. Watches the top level of each search root with fsnotify
//  3. Re-scans after a debounce window batches rapid events together
//  4. Optionally re-scans on a fixed interval, catching changes deeper
//     in the tree than the shallow watch can see
//  5. Handles graceful shutdown
package watch

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ScanFunc runs one full discovery pass.
type ScanFunc func(ctx context.Context) error

// Config holds daemon tuning.
type Config struct {
	// Debounce is how long the tree must stay quiet after an event
	// before a re-scan is triggered.
	Debounce time.Duration

	// RescanInterval forces a periodic full re-scan regardless of
	// events. Zero disables periodic re-scans.
	RescanInterval time.Duration

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Debounce:       500 * time.Millisecond,
		RescanInterval: 0,
		Logger:         log.New(os.Stderr, "[watch] ", log.LstdFlags),
	}
}

// Daemon re-runs discovery when the roots change. The watch is
// shallow: only events at the top level of each root are observed,
// which covers project directories appearing and disappearing; deeper
// changes are caught by the periodic re-scan when enabled.
type Daemon struct {
	roots  []string
	scan   ScanFunc
	config *Config

	watcher *fsnotify.Watcher

	mu        sync.Mutex
	dirty     bool
	lastEvent time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Daemon watching the given roots. Use Start to begin.
func New(roots []string, scan ScanFunc, config *Config) (*Daemon, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("no roots to watch")
	}
	if scan == nil {
		return nil, fmt.Errorf("scan function cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Daemon{
		roots:   roots,
		scan:    scan,
		config:  config,
		watcher: watcher,
	}, nil
}

// Start performs the initial scan, begins watching, and blocks until
// ctx is cancelled. Scan failures after the initial one are logged and
// the daemon keeps running.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting watch daemon")

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	defer cancel()

	if err := d.scan(ctx); err != nil {
		return fmt.Errorf("initial scan failed: %w", err)
	}

	for _, root := range d.roots {
		if err := d.watcher.Add(root); err != nil {
			return fmt.Errorf("failed to watch %s: %w", root, err)
		}
		d.config.Logger.Printf("Watching: %s", root)
	}

	d.wg.Add(2)
	go d.watchEvents(ctx)
	go d.rescanLoop(ctx)

	<-ctx.Done()
	return d.stop()
}

// stop closes the watcher and drains the goroutines.
func (d *Daemon) stop() error {
	d.config.Logger.Println("Stopping watch daemon")

	if d.cancel != nil {
		d.cancel()
	}
	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}
	d.wg.Wait()

	d.config.Logger.Println("Watch daemon stopped")
	return nil
}

// watchEvents marks the tree dirty on relevant filesystem events.
func (d *Daemon) watchEvents(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			d.config.Logger.Printf("File event: %s %s", event.Op, event.Name)
			d.markDirty()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func (d *Daemon) markDirty() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dirty = true
	d.lastEvent = time.Now()
}

// consumeDirty reports whether a re-scan is due: the tree is dirty and
// has stayed quiet for the debounce window. It clears the flag.
func (d *Daemon) consumeDirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.dirty || time.Since(d.lastEvent) < d.config.Debounce {
		return false
	}
	d.dirty = false
	return true
}

// rescanLoop triggers debounced and periodic re-scans.
func (d *Daemon) rescanLoop(ctx context.Context) {
	defer d.wg.Done()

	tick := d.config.Debounce / 2
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	var periodic <-chan time.Time
	if d.config.RescanInterval > 0 {
		p := time.NewTicker(d.config.RescanInterval)
		defer p.Stop()
		periodic = p.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if d.consumeDirty() {
				d.runScan(ctx, "change")
			}

		case <-periodic:
			d.runScan(ctx, "interval")
		}
	}
}

func (d *Daemon) runScan(ctx context.Context, reason string) {
	d.config.Logger.Printf("Re-scan (%s)", reason)
	if err := d.scan(ctx); err != nil {
		d.config.Logger.Printf("Re-scan failed: %v", err)
	}
}
