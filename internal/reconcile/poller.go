// Package reconcile implements a generic seen-set reconciliation poller.
//
// A Poller periodically fetches the current set of pending items from a
// Feed, diffs the returned ids against the set it remembers from previous
// ticks, and pushes each newly appeared item to a Notifier. Items that
// disappear from the feed are dropped from the remembered set silently;
// only a confirmed-empty snapshot clears the set entirely, so a failed
// fetch never causes duplicate notifications.
package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vaultops/warden/internal/observability"
)

// Item is one pending entry observed in a feed. Fields carries the raw
// feed payload for the notification layer; ID must be stable across ticks.
type Item struct {
	ID     string
	Fields map[string]any
}

// Snapshot is the result of one successful fetch: the complete set of
// items currently pending. An empty Items slice means confirmed empty.
type Snapshot struct {
	Items []Item
}

// Feed produces the current pending set on demand.
type Feed interface {
	// Name identifies the feed in logs and metrics.
	Name() string
	// FetchPending returns the complete current pending set, or an error
	// when the set could not be determined. A nil error with zero items
	// is a confirmed-empty result, not a failure.
	FetchPending(ctx context.Context) (*Snapshot, error)
}

// Notifier receives newly observed items. Notification failures are
// logged by the poller and never affect reconciliation state.
type Notifier interface {
	Notify(ctx context.Context, item Item) error
}

// State describes the poller lifecycle.
type State int

const (
	// StateStopped means the poller is not running. Start transitions
	// out of this state.
	StateStopped State = iota
	// StateRunning means the background loop is active.
	StateRunning
	// StateDisabled means the poller shut itself down after too many
	// consecutive fetch failures. Start transitions out of this state
	// too, giving an operator a retry path.
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

const (
	// DefaultMaxConsecutiveErrors is how many fetch failures in a row a
	// poller tolerates before disabling itself.
	DefaultMaxConsecutiveErrors = 3

	// DefaultJoinTimeout bounds how long Stop waits for the loop to
	// exit. An in-flight network call can outlive this bound; the loop
	// still exits once it returns.
	DefaultJoinTimeout = 5 * time.Second
)

// Config configures a Poller.
type Config struct {
	// Interval is the delay between ticks.
	Interval time.Duration

	// MaxConsecutiveErrors is the self-disable threshold. Zero means
	// DefaultMaxConsecutiveErrors.
	MaxConsecutiveErrors int

	// JoinTimeout bounds Stop's wait for the loop. Zero means
	// DefaultJoinTimeout.
	JoinTimeout time.Duration

	// Logger is the structured logger (optional).
	Logger *observability.Logger

	// Metrics records tick and notification outcomes (optional).
	Metrics *observability.Metrics
}

// Poller owns the reconciliation loop for a single feed. Each instance
// keeps its own seen set and error counter; nothing is shared between
// feeds.
type Poller struct {
	feed     Feed
	notifier Notifier
	cfg      Config
	logger   *observability.Logger
	metrics  *observability.Metrics

	mu                sync.Mutex
	state             State
	seen              map[string]struct{}
	consecutiveErrors int
	disabledReason    string
	runID             string
	stopCh            chan struct{}
	doneCh            chan struct{}
}

// NewPoller creates a poller for the given feed and notification sink.
func NewPoller(feed Feed, notifier Notifier, cfg Config) *Poller {
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = DefaultJoinTimeout
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Poller{
		feed:     feed,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		metrics:  cfg.Metrics,
		state:    StateStopped,
		seen:     make(map[string]struct{}),
	}
}

// Start launches the background loop. Starting an already-running poller
// is a no-op with a warning. Starting a disabled poller re-enables it
// with fresh state.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.state == StateRunning {
		p.mu.Unlock()
		p.logger.Warn(ctx, "poller already running", "feed", p.feed.Name())
		return
	}
	if p.state == StateDisabled {
		p.logger.Info(ctx, "re-enabling disabled poller",
			"feed", p.feed.Name(), "reason", p.disabledReason)
	}
	p.state = StateRunning
	p.seen = make(map[string]struct{})
	p.consecutiveErrors = 0
	p.disabledReason = ""
	p.runID = uuid.New().String()
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	p.stopCh = stopCh
	p.doneCh = doneCh
	p.mu.Unlock()

	p.logger.Info(ctx, "poller started",
		"feed", p.feed.Name(),
		"run_id", p.runID,
		"interval", p.cfg.Interval.String())

	go p.run(ctx, stopCh, doneCh)
}

// run is the main poll loop. The first tick fires immediately so pending
// items present at startup are surfaced without waiting a full interval.
// The loop owns the channels of its own generation: a poller that disables
// itself becomes restartable before this goroutine has fully unwound, so
// the exit path must not touch a successor's channels or state.
func (p *Poller) run(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer p.exitRun(doneCh)

	if !p.tick(ctx) {
		return
	}

	for {
		// Armed after the tick completes: a slow tick still gets a full
		// quiet interval before the next one, with no drift compensation.
		timer := time.NewTimer(p.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.logger.Info(ctx, "poller context cancelled", "feed", p.feed.Name())
			return
		case <-stopCh:
			timer.Stop()
			return
		case <-timer.C:
			if !p.tick(ctx) {
				return
			}
		}
	}
}

// exitRun closes out one run generation. State is only mutated when the
// generation is still current; doneCh is always closed so a pending Stop
// on the old generation unblocks.
func (p *Poller) exitRun(doneCh chan struct{}) {
	p.mu.Lock()
	if p.doneCh == doneCh && p.state == StateRunning {
		p.state = StateStopped
	}
	close(doneCh)
	p.mu.Unlock()
}

// Stop halts the loop and waits for it to exit, bounded by JoinTimeout.
// Stopping a poller that is not running is a no-op.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.state != StateRunning {
		p.mu.Unlock()
		return
	}
	close(p.stopCh)
	doneCh := p.doneCh
	p.mu.Unlock()

	select {
	case <-doneCh:
	case <-time.After(p.cfg.JoinTimeout):
		p.logger.Warn(context.Background(), "poller did not stop in time",
			"feed", p.feed.Name(), "timeout", p.cfg.JoinTimeout.String())
	}
}

// State returns the current lifecycle state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// DisabledReason reports why the poller disabled itself, or "" when it
// has not.
func (p *Poller) DisabledReason() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disabledReason
}

// SeenCount reports the size of the remembered set.
func (p *Poller) SeenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

// tick performs one fetch-diff-notify cycle. It returns false when the
// poller has disabled itself and the loop should exit.
func (p *Poller) tick(ctx context.Context) bool {
	snap, err := p.feed.FetchPending(ctx)
	if err != nil {
		return p.recordFetchFailure(ctx, err)
	}

	p.mu.Lock()
	p.consecutiveErrors = 0

	if len(snap.Items) == 0 {
		// Confirmed empty: the remote authoritatively reports nothing
		// pending, so forget everything. Items that reappear later are
		// genuinely new again.
		p.seen = make(map[string]struct{})
		p.mu.Unlock()
		p.recordTick("empty")
		return true
	}

	live := make(map[string]struct{}, len(snap.Items))
	var fresh []Item
	for _, item := range snap.Items {
		live[item.ID] = struct{}{}
		if _, ok := p.seen[item.ID]; !ok {
			p.seen[item.ID] = struct{}{}
			fresh = append(fresh, item)
		}
	}
	for id := range p.seen {
		if _, ok := live[id]; !ok {
			// Resolved elsewhere; drop without notifying.
			delete(p.seen, id)
		}
	}
	p.mu.Unlock()

	// Notifications run outside the lock: the sink may block on network
	// I/O and must not stall State or Stop.
	for _, item := range fresh {
		if err := p.notifier.Notify(ctx, item); err != nil {
			p.logger.Error(ctx, "notification failed",
				"feed", p.feed.Name(), "item_id", item.ID, "error", err)
			if p.metrics != nil {
				p.metrics.NotificationFailed(p.feed.Name())
			}
			continue
		}
		if p.metrics != nil {
			p.metrics.NotificationSent(p.feed.Name())
		}
	}

	p.recordTick("ok")
	return true
}

// recordFetchFailure counts a failed tick and disables the poller once
// the threshold is reached. The seen set is left untouched so a later
// successful tick does not re-notify items that never went away.
func (p *Poller) recordFetchFailure(ctx context.Context, err error) bool {
	p.mu.Lock()
	p.consecutiveErrors++
	count := p.consecutiveErrors
	disable := count >= p.cfg.MaxConsecutiveErrors
	if disable {
		p.state = StateDisabled
		p.disabledReason = err.Error()
	}
	p.mu.Unlock()

	p.recordTick("fetch_failed")

	if !disable {
		p.logger.Warn(ctx, "pending fetch failed",
			"feed", p.feed.Name(),
			"consecutive_errors", count,
			"error", err)
		return true
	}

	p.logger.Error(ctx, "disabling poller after repeated fetch failures; feature may be unavailable",
		"feed", p.feed.Name(),
		"consecutive_errors", count,
		"error", err)
	if p.metrics != nil {
		p.metrics.PollerSelfDisabled(p.feed.Name())
	}
	return false
}

func (p *Poller) recordTick(result string) {
	if p.metrics != nil {
		p.metrics.PollTick(p.feed.Name(), result)
	}
}
