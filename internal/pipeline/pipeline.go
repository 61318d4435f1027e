// Package pipeline orchestrates repository discovery and ingestion.
//
// Three concurrent stages are wired by two channels:
//
//	candidates -> [locals stage] -> views channel -> [storage stage]
//	                   |                  ^
//	                   v                  |
//	            addresses channel -> [remotes stage]
//
// The locals stage probes and inspects candidate directories and fans
// newly discovered remote addresses out to the remotes stage. Both
// producing stages feed the same views channel, whose single consumer
// is the storage stage. The views channel termination condition is
// made explicit with a reference-counted producer handle: the channel
// closes only when every registered producer has released its handle,
// and the orchestrator holds one extra handle that it releases only
// after both producing stages have completed. Dropping that extra
// handle too early would let the storage stage observe a close while
// sends are still possible; never dropping it would block the storage
// stage forever.
package pipeline

import (
	"context"
	"log"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/repoatlas/repoatlas/internal/atlas"
	"github.com/repoatlas/repoatlas/internal/dedup"
)

// Inspector is the external repository inspector the pipeline calls.
type Inspector interface {
	// Probe cheaply checks whether dir is a usable repository.
	Probe(ctx context.Context, dir string) bool

	// Inspect extracts Facts for a location, or fails.
	Inspect(ctx context.Context, loc atlas.Location) (*atlas.Facts, error)
}

// Storer is the durable sink for inspection outcomes.
type Storer interface {
	// UpsertView persists one view keyed by (host, location),
	// returning a row identity for logging.
	UpsertView(ctx context.Context, view *atlas.View) (int64, error)
}

// Counts summarizes one pipeline run.
type Counts struct {
	// Locals is the number of local repositories inspected.
	Locals int
	// RemotesOK is the number of remote addresses inspected successfully.
	RemotesOK int
	// RemotesErr is the number of remote addresses whose inspection failed.
	RemotesErr int
	// Stored is the number of views persisted.
	Stored int
	// StoreErrs is the number of persistence failures (logged, not fatal).
	StoreErrs int
}

// Pipeline runs the three-stage discovery pipeline. Configure the
// fields, then call Run once.
type Pipeline struct {
	// Host is the identifier of the machine performing local
	// inspections, resolved once at startup and stamped on every view.
	Host string

	// Inspector extracts repository facts.
	Inspector Inspector

	// Store persists views.
	Store Storer

	// LocalWorkers caps concurrent local inspections. 0 means
	// unbounded, matching the original no-cap policy.
	LocalWorkers int

	// RemoteWorkers caps concurrent remote inspections. 0 means
	// unbounded.
	RemoteWorkers int

	// Logger receives per-item diagnostics and the stage lifecycle.
	Logger *log.Logger
}

// chanBuffer smooths producer/consumer handoff. Senders may still
// block briefly under a slow consumer; only the close protocol below
// guarantees termination.
const chanBuffer = 64

// sender is a reference-counted producer handle for a channel shared
// by several concurrent producers and one consumer. The channel closes
// when the last handle is released.
type sender[T any] struct {
	mu   sync.Mutex
	ch   chan T
	refs int
}

func newSender[T any](refs int) *sender[T] {
	return &sender[T]{ch: make(chan T, chanBuffer), refs: refs}
}

// send delivers v unless ctx is cancelled first.
func (s *sender[T]) send(ctx context.Context, v T) error {
	select {
	case s.ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// release drops one producer handle, closing the channel when the
// count reaches zero.
func (s *sender[T]) release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		close(s.ch)
	}
}

// Run executes the pipeline over the candidate directories and blocks
// until every stage has drained. Per-item failures (inspection,
// persistence) are logged and counted, never fatal; the returned error
// is non-nil only when ctx was cancelled before completion.
func (p *Pipeline) Run(ctx context.Context, candidates <-chan string) (Counts, error) {
	logger := p.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[pipeline] ", log.LstdFlags)
	}

	localsSeen := dedup.NewSet[atlas.Location]()
	addrsSeen := dedup.NewSet[string]()
	remotesOK := dedup.NewSet[string]()
	remotesErr := dedup.NewSet[string]()

	addrs := make(chan string, chanBuffer)

	// Three view producers: locals stage, remotes stage, and the
	// orchestrator's own extra handle released after both finish.
	views := newSender[*atlas.View](3)

	var stored, storeErrs atomic.Int64

	// Storage stage: the single consumer. Its loop ends only when the
	// views channel closes, i.e. when all three handles are released.
	storageDone := make(chan struct{})
	go func() {
		defer close(storageDone)
		for view := range views.ch {
			id, err := p.Store.UpsertView(ctx, view)
			if err != nil {
				storeErrs.Add(1)
				logger.Printf("Failed to store view for %s: %v", view.Location, err)
				continue
			}
			stored.Add(1)
			logger.Printf("Stored view for %s (row %d)", view.Location, id)
		}
	}()

	// Remotes stage: consumes deduplicated addresses until the locals
	// stage closes the address channel.
	remotesDone := make(chan struct{})
	go func() {
		defer close(remotesDone)
		defer views.release()

		g, gctx := errgroup.WithContext(ctx)
		if p.RemoteWorkers > 0 {
			g.SetLimit(p.RemoteWorkers)
		}
		for addr := range addrs {
			addr := addr
			g.Go(func() error {
				p.inspectRemote(gctx, logger, addr, views, remotesOK, remotesErr)
				return nil
			})
		}
		_ = g.Wait()
	}()

	// Locals stage: runs in the calling goroutine. When it finishes it
	// closes the address channel (no further remote addresses can be
	// discovered) and releases its views handle.
	func() {
		defer close(addrs)
		defer views.release()

		g, gctx := errgroup.WithContext(ctx)
		if p.LocalWorkers > 0 {
			g.SetLimit(p.LocalWorkers)
		}
		for dir := range candidates {
			dir := dir
			g.Go(func() error {
				p.inspectLocal(gctx, logger, dir, views, localsSeen, addrsSeen, addrs)
				return nil
			})
			if ctx.Err() != nil {
				break
			}
		}
		_ = g.Wait()
	}()

	// Locals stage has completed; wait for the remotes stage, then
	// release the orchestrator's handle. Only now can the storage
	// stage observe the channel as closed.
	<-remotesDone
	views.release()
	<-storageDone

	counts := Counts{
		Locals:     localsSeen.Len(),
		RemotesOK:  remotesOK.Len(),
		RemotesErr: remotesErr.Len(),
		Stored:     int(stored.Load()),
		StoreErrs:  int(storeErrs.Load()),
	}
	logger.Printf("Run complete: %d locals, %d remotes ok, %d remotes err, %d stored (%d store errors)",
		counts.Locals, counts.RemotesOK, counts.RemotesErr, counts.Stored, counts.StoreErrs)

	return counts, ctx.Err()
}

// inspectLocal handles one candidate directory: probe, inspect, emit a
// view, and forward newly discovered remote addresses.
func (p *Pipeline) inspectLocal(
	ctx context.Context,
	logger *log.Logger,
	dir string,
	views *sender[*atlas.View],
	localsSeen *dedup.Set[atlas.Location],
	addrsSeen *dedup.Set[string],
	addrs chan<- string,
) {
	if !p.Inspector.Probe(ctx, dir) {
		return
	}

	loc := atlas.FsLocation(dir)
	localsSeen.Add(loc)

	facts, err := p.Inspector.Inspect(ctx, loc)
	if err != nil {
		logger.Printf("Inspection failed for %s: %v", dir, err)
		facts = nil // the failure is still emitted downstream
	}

	view := &atlas.View{Host: p.Host, Location: loc, Facts: facts}

	if facts != nil {
		for _, addr := range facts.Remotes {
			if !addrsSeen.Add(addr) {
				continue
			}
			select {
			case addrs <- addr:
			case <-ctx.Done():
				return
			}
		}
	}

	if err := views.send(ctx, view); err != nil {
		logger.Printf("Dropped view for %s: %v", dir, err)
	}
}

// inspectRemote handles one deduplicated remote address: inspect,
// classify, emit a view.
func (p *Pipeline) inspectRemote(
	ctx context.Context,
	logger *log.Logger,
	addr string,
	views *sender[*atlas.View],
	remotesOK, remotesErr *dedup.Set[string],
) {
	loc := atlas.NetLocation(addr)

	facts, err := p.Inspector.Inspect(ctx, loc)
	if err != nil {
		logger.Printf("Remote inspection failed for %s: %v", addr, err)
		remotesErr.Add(addr)
		facts = nil
	} else {
		remotesOK.Add(addr)
	}

	view := &atlas.View{Host: p.Host, Location: loc, Facts: facts}
	if err := views.send(ctx, view); err != nil {
		logger.Printf("Dropped view for %s: %v", addr, err)
	}
}
