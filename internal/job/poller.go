package job

import (
	"context"
	"log"
	"time"

	"mintwatch/internal/cache"
	"mintwatch/internal/mentions"
	"mintwatch/internal/observability"
	"mintwatch/internal/tracker"

	"go.opentelemetry.io/otel/trace"
)

// Poller runs the background ticker loops: position sweeps, cache flushes
// and mention feed scans.
type Poller struct {
	tracer  trace.Tracer
	sweeper PositionSweeper
	stores  []FlushableStore
	scanner MentionScanner
	metrics *observability.Metrics

	sweepInterval time.Duration
	flushInterval time.Duration
	scanInterval  time.Duration
}

type PositionSweeper interface {
	Sweep(ctx context.Context, now time.Time) (tracker.SweepResult, error)
}

// FlushableStore is the cache surface the flush safety net needs. The store
// flushes itself on write pressure; this loop bounds the loss window when
// writes are sparse.
type FlushableStore interface {
	Flush() error
	Stats() cache.Stats
}

type MentionScanner interface {
	Scan(ctx context.Context, now time.Time) (mentions.ScanResult, error)
}

func NewPoller(tracer trace.Tracer, sweeper PositionSweeper, stores []FlushableStore, scanner MentionScanner, metrics *observability.Metrics, sweepSecs, flushSecs, scanSecs int) *Poller {
	if sweepSecs <= 0 {
		sweepSecs = 300
	}
	if flushSecs <= 0 {
		flushSecs = 60
	}
	if scanSecs <= 0 {
		scanSecs = 900
	}
	return &Poller{
		tracer:        tracer,
		sweeper:       sweeper,
		stores:        stores,
		scanner:       scanner,
		metrics:       metrics,
		sweepInterval: time.Duration(sweepSecs) * time.Second,
		flushInterval: time.Duration(flushSecs) * time.Second,
		scanInterval:  time.Duration(scanSecs) * time.Second,
	}
}

// Start launches the background loops. Blocks until ctx is cancelled.
func (p *Poller) Start(ctx context.Context) {
	log.Println("Background poller starting...")

	// Tier 1: position sweeps every sweepInterval (default 300s)
	if p.sweeper != nil {
		go p.pollLoop(ctx, "position-sweep", 0, p.sweepInterval, p.runSweep)
	}

	// Tier 2: cache flush safety net, staggered off the sweep start
	if len(p.stores) > 0 {
		go p.pollLoop(ctx, "cache-flush", 10*time.Second, p.flushInterval, p.runFlush)
	}

	// Tier 3: mention feed scans
	if p.scanner != nil {
		go p.pollLoop(ctx, "mention-scan", 30*time.Second, p.scanInterval, p.runScan)
	}

	<-ctx.Done()
	log.Println("Background poller stopped")
}

func (p *Poller) pollLoop(ctx context.Context, name string, delay, interval time.Duration, fn func(context.Context) error) {
	if delay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}

	// Run immediately on start
	if err := fn(ctx); err != nil {
		log.Printf("poller %s initial run error: %v", name, err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				log.Printf("poller %s error: %v", name, err)
			}
		}
	}
}

func (p *Poller) runSweep(ctx context.Context) error {
	result, err := p.sweeper.Sweep(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if result.Scanned > 0 {
		log.Printf("sweep complete scanned=%d ath=%d checkpoints=%d signals=%d dead=%d errors=%d",
			result.Scanned, result.ATHUpdates, result.Checkpoints, result.Signals, result.Dead, len(result.Errors))
	}
	return nil
}

func (p *Poller) runFlush(ctx context.Context) error {
	for _, store := range p.stores {
		name := store.Stats().Name
		status := "ok"
		if err := store.Flush(); err != nil {
			// The store logs the failure and keeps the writes buffered.
			status = "error"
		}
		p.metrics.RecordCacheFlush(name, status)
	}
	return nil
}

func (p *Poller) runScan(ctx context.Context) error {
	result, err := p.scanner.Scan(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if result.NewItems > 0 || len(result.Errors) > 0 {
		log.Printf("mention scan complete items=%d new=%d mentions=%d opened=%d errors=%d",
			result.ItemsFetched, result.NewItems, result.Mentions, result.Opened, len(result.Errors))
	}
	return nil
}
