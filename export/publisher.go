// Package export publishes periodic rate snapshots to NATS JetStream KV,
// for fleets where monitors cannot map the instrumented host's shared
// memory directly.
//
// The publisher is optional and fully decoupled from the recording path: it
// samples Heartbeat.Snapshot on a ticker and writes the JSON-encoded result
// to a KV bucket under the key <prefix>.<pid>. Configure the bucket with a
// TTL of ~3x the publish interval so that a crashed process's entry expires
// instead of going stale.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/pulse"
	"github.com/arloliu/pulse/internal/logging"
	"github.com/arloliu/pulse/internal/metrics"
	"github.com/arloliu/pulse/types"
)

// Common errors for publisher operations.
var (
	ErrNotStarted     = errors.New("publisher not started")
	ErrAlreadyStarted = errors.New("publisher already started")
)

// Snapshotter supplies the rate snapshots to publish. *pulse.Heartbeat
// implements it.
type Snapshotter interface {
	Snapshot() pulse.Snapshot
}

// Publisher publishes periodic rate snapshots to NATS KV.
type Publisher struct {
	kv       jetstream.KeyValue
	prefix   string
	interval time.Duration
	src      Snapshotter
	logger   types.Logger
	metrics  types.MetricsCollector

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	ticker  *time.Ticker
}

// New creates a new snapshot publisher.
//
// Parameters:
//   - kv: JetStream KV bucket for snapshot storage
//   - prefix: Key prefix for snapshot keys (e.g., "pulse-rate")
//   - interval: Publish interval (typically 2s)
//   - src: Snapshot supplier, usually a *pulse.Heartbeat
//
// Returns:
//   - *Publisher: New snapshot publisher instance
func New(kv jetstream.KeyValue, prefix string, interval time.Duration, src Snapshotter) *Publisher {
	return &Publisher{
		kv:       kv,
		prefix:   prefix,
		interval: interval,
		src:      src,
		logger:   logging.NewSlogDefault(),
		metrics:  metrics.NewNop(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// SetLogger sets the logger. Must be called before Start.
func (p *Publisher) SetLogger(logger types.Logger) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.logger = logger
}

// SetMetrics sets the metrics collector. Must be called before Start.
func (p *Publisher) SetMetrics(m types.MetricsCollector) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.metrics = m
}

// Start begins publishing snapshots in the background.
//
// Publishes the first snapshot immediately, then at regular intervals until
// Stop is called.
//
// Returns:
//   - error: ErrAlreadyStarted if already running, or the initial publish failure
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}

	p.started = true
	p.ticker = time.NewTicker(p.interval)

	if err := p.publish(ctx); err != nil {
		p.started = false
		p.ticker.Stop()
		return fmt.Errorf("failed to publish initial snapshot: %w", err)
	}
	p.metrics.RecordExport(true)

	go p.publishLoop()

	return nil
}

// Stop stops the publisher and deletes the snapshot entry from KV.
//
// Blocks until the publisher goroutine exits. The entry is deleted to
// immediately signal shutdown instead of waiting for TTL expiration.
//
// Returns:
//   - error: ErrNotStarted if not running, or the cleanup error if the delete fails
func (p *Publisher) Stop() error {
	p.mu.Lock()

	if !p.started {
		p.mu.Unlock()
		return ErrNotStarted
	}

	p.ticker.Stop()
	close(p.stopCh)
	p.started = false

	p.mu.Unlock()

	<-p.doneCh

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := p.kv.Delete(ctx, p.key()); err != nil {
		return fmt.Errorf("stopped but failed to delete snapshot: %w", err)
	}

	return nil
}

// IsStarted returns whether the publisher is currently running.
func (p *Publisher) IsStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.started
}

// publishLoop is the background goroutine that publishes snapshots.
func (p *Publisher) publishLoop() {
	defer close(p.doneCh)

	for {
		select {
		case <-p.stopCh:
			return
		case <-p.ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := p.publish(ctx)
			cancel()

			if err != nil {
				p.metrics.RecordExport(false)
				p.logger.Warn("snapshot publish failed", "error", err)
			} else {
				p.metrics.RecordExport(true)
			}
		}
	}
}

// publish samples the snapshotter and writes the result to NATS KV.
func (p *Publisher) publish(ctx context.Context) error {
	snap := p.src.Snapshot()

	value, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if _, err := p.kv.Put(ctx, p.keyFor(snap.Pid), value); err != nil {
		return fmt.Errorf("failed to publish snapshot for pid %d: %w", snap.Pid, err)
	}

	return nil
}

func (p *Publisher) key() string {
	return p.keyFor(p.src.Snapshot().Pid)
}

func (p *Publisher) keyFor(pid int64) string {
	return p.prefix + "." + strconv.FormatInt(pid, 10)
}
