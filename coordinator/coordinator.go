// Package coordinator runs the poll loop that keeps the current chore
// snapshot fresh and relays task actions to the backend.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"choreshore-bridge/domain"
)

const (
	DefaultInterval        = 300 * time.Second
	DefaultPollTimeout     = 60 * time.Second
	DefaultActionTimeout   = 30 * time.Second
	DefaultListenerTimeout = 30 * time.Second

	pollKey = "poll"
)

var (
	// ErrUpdateFailed marks a poll that produced no snapshot. The previous
	// snapshot stays current.
	ErrUpdateFailed = errors.New("update failed")
	// ErrNoActor is returned for an action without an acting user.
	ErrNoActor = errors.New("acting user required")
)

// Source is the backend the coordinator reads from and writes to.
type Source interface {
	ChoreInstances(ctx context.Context, scope domain.Scope) ([]domain.ChoreInstance, error)
	Chores(ctx context.Context, householdID string) ([]domain.Chore, error)
	Profiles(ctx context.Context, householdID string) ([]domain.Profile, error)
	Bundle(ctx context.Context, householdID string) (*domain.Bundle, error)
	CompleteInstance(ctx context.Context, instanceID, completedBy string) error
	SkipInstance(ctx context.Context, instanceID, skippedBy string, reason *string) error
}

// Listener receives every new snapshot.
type Listener interface {
	SnapshotUpdated(ctx context.Context, snap *domain.Snapshot)
}

// Invalidator is implemented by listeners holding a copy of the snapshot
// that must be dropped once a mutation succeeded.
type Invalidator interface {
	SnapshotInvalidated(ctx context.Context)
}

// Config controls a Coordinator.
type Config struct {
	Scope           domain.Scope
	Mode            domain.Source
	Interval        time.Duration
	PollTimeout     time.Duration
	ActionTimeout   time.Duration
	ListenerTimeout time.Duration
	Location        *time.Location
}

type pollResult struct {
	snapshot   *domain.Snapshot
	generation uint64
}

// Coordinator owns the current snapshot. At most one poll is in flight at a
// time; concurrent refresh requests share it.
type Coordinator struct {
	cfg       Config
	source    Source
	logger    *log.Logger
	listeners []Listener
	now       func() time.Time

	group      singleflight.Group
	current    atomic.Pointer[domain.Snapshot]
	generation atomic.Uint64

	life    context.Context
	stop    context.CancelFunc
	updates chan *domain.Snapshot
	done    chan struct{}
}

// New creates a coordinator. Zero durations select the defaults.
func New(cfg Config, source Source, logger *log.Logger, listeners ...Listener) *Coordinator {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = DefaultActionTimeout
	}
	if cfg.ListenerTimeout <= 0 {
		cfg.ListenerTimeout = DefaultListenerTimeout
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Mode == "" {
		cfg.Mode = domain.SourceREST
	}
	if logger == nil {
		logger = log.StandardLogger()
	}

	life, stop := context.WithCancel(context.Background())
	c := &Coordinator{
		cfg:       cfg,
		source:    source,
		logger:    logger,
		listeners: listeners,
		now:       time.Now,
		life:      life,
		stop:      stop,
		updates:   make(chan *domain.Snapshot, 1),
		done:      make(chan struct{}),
	}
	go c.notifyLoop()
	return c
}

// Scope returns the scope the coordinator tracks.
func (c *Coordinator) Scope() domain.Scope {
	return c.cfg.Scope
}

// Snapshot returns the current snapshot or nil before the first successful
// poll.
func (c *Coordinator) Snapshot() *domain.Snapshot {
	return c.current.Load()
}

// Seed installs snap as the current snapshot if no poll has succeeded yet.
// It is meant for a snapshot restored from a cache at startup.
func (c *Coordinator) Seed(snap *domain.Snapshot) bool {
	if snap == nil {
		return false
	}
	return c.current.CompareAndSwap(nil, snap)
}

// Run polls immediately and then on every interval tick until ctx ends.
// In-flight polls are abandoned when Run returns.
func (c *Coordinator) Run(ctx context.Context) error {
	defer c.Close()

	c.logger.WithFields(log.Fields{
		"scope":    c.cfg.Scope.Key(),
		"mode":     c.cfg.Mode,
		"interval": c.cfg.Interval.String(),
	}).Info("coordinator started")

	if _, err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
		c.logger.Warnf("initial poll failed: %v", err)
	}

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("coordinator stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warnf("scheduled poll failed: %v", err)
			}
		}
	}
}

// Close abandons in-flight polls and stops listener delivery. It is safe to
// call more than once.
func (c *Coordinator) Close() {
	c.stop()
	<-c.done
}

// Refresh returns a freshly polled snapshot, joining a poll that is already
// in flight. A caller that gives up does not cancel the shared poll.
func (c *Coordinator) Refresh(ctx context.Context) (*domain.Snapshot, error) {
	res, err := c.refresh(ctx)
	if err != nil {
		return nil, err
	}
	return res.snapshot, nil
}

func (c *Coordinator) refresh(ctx context.Context) (*pollResult, error) {
	ch := c.group.DoChan(pollKey, func() (any, error) {
		return c.poll()
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*pollResult), nil
	}
}

// forceRefresh waits for a poll that started after the call. Polls already
// in flight carry an older generation and are waited out.
func (c *Coordinator) forceRefresh(ctx context.Context) (*domain.Snapshot, error) {
	want := c.generation.Add(1)
	for {
		res, err := c.refresh(ctx)
		if err != nil {
			return nil, err
		}
		if res.generation >= want {
			return res.snapshot, nil
		}
	}
}

func (c *Coordinator) poll() (*pollResult, error) {
	gen := c.generation.Load()
	if err := c.life.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}
	ctx, cancel := context.WithTimeout(c.life, c.cfg.PollTimeout)
	defer cancel()

	metrics, ctx := startPollMetrics(ctx, c.logger, c.cfg.Scope, c.cfg.Mode)
	var (
		snap *domain.Snapshot
		err  error
	)
	if c.cfg.Mode == domain.SourceEdge {
		snap, err = c.fetchEdge(ctx)
	} else {
		snap, err = c.fetchREST(ctx)
	}
	metrics.Finish(snap, err)
	if err != nil {
		return nil, err
	}

	c.current.Store(snap)
	c.publish(snap)
	return &pollResult{snapshot: snap, generation: gen}, nil
}

// fetchREST reads the three resources concurrently. A failed resource is
// empty-filled and listed in Snapshot.Degraded; the poll fails only when
// every resource failed.
func (c *Coordinator) fetchREST(ctx context.Context) (*domain.Snapshot, error) {
	scope := c.cfg.Scope
	var (
		instances []domain.ChoreInstance
		chores    []domain.Chore
		profiles  []domain.Profile

		mu       sync.Mutex
		degraded []string
		failures []error
	)
	fail := func(resource string, err error) {
		mu.Lock()
		defer mu.Unlock()
		degraded = append(degraded, resource)
		failures = append(failures, fmt.Errorf("%s: %w", resource, err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := c.source.ChoreInstances(gctx, scope)
		if err != nil {
			fail(domain.ResourceInstances, err)
			v = nil
		}
		instances = v
		return nil
	})
	g.Go(func() error {
		v, err := c.source.Chores(gctx, scope.HouseholdID)
		if err != nil {
			fail(domain.ResourceChores, err)
			v = nil
		}
		chores = v
		return nil
	})
	g.Go(func() error {
		v, err := c.source.Profiles(gctx, scope.HouseholdID)
		if err != nil {
			fail(domain.ResourceProfiles, err)
			v = nil
		}
		profiles = v
		return nil
	})
	_ = g.Wait()

	if len(failures) == 3 {
		return nil, fmt.Errorf("%w: %w", ErrUpdateFailed, errors.Join(failures...))
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}

	snap := domain.Build(scope, instances, chores, profiles, c.now(), c.cfg.Location, c.logger)
	sort.Strings(degraded)
	snap.Degraded = degraded
	snap.Source = domain.SourceREST
	return snap, nil
}

// fetchEdge reads the pre-joined bundle. Analytics are always recomputed
// from the scoped instance list.
func (c *Coordinator) fetchEdge(ctx context.Context) (*domain.Snapshot, error) {
	scope := c.cfg.Scope
	bundle, err := c.source.Bundle(ctx, scope.HouseholdID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUpdateFailed, domain.ResourceBundle, err)
	}
	snap := domain.Build(scope, bundle.Instances, nil, bundle.Members, c.now(), c.cfg.Location, c.logger)
	snap.Source = domain.SourceEdge
	return snap, nil
}

// publish hands snap to the notifier. Only the newest undelivered snapshot
// is kept. Polls are serialized, so this has a single writer.
func (c *Coordinator) publish(snap *domain.Snapshot) {
	if len(c.listeners) == 0 {
		return
	}
	select {
	case c.updates <- snap:
		return
	default:
	}
	select {
	case <-c.updates:
	default:
	}
	select {
	case c.updates <- snap:
	default:
	}
}

func (c *Coordinator) notifyLoop() {
	defer close(c.done)
	for {
		select {
		case <-c.life.Done():
			return
		case snap := <-c.updates:
			for _, l := range c.listeners {
				ctx, cancel := context.WithTimeout(c.life, c.cfg.ListenerTimeout)
				l.SnapshotUpdated(ctx, snap)
				cancel()
			}
		}
	}
}
