package shard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ErrReadyTimeout is returned when a shard does not report ready in time.
var ErrReadyTimeout = errors.New("shard did not become ready")

// Conn is one gateway connection.
type Conn interface {
	Open() error
	Close() error
}

// Factory builds the connection for shard id of total.
type Factory func(id, total int) (Conn, error)

type ManagerOptions struct {
	// SpawnDelay separates consecutive spawns to respect identify limits.
	SpawnDelay time.Duration
	// SpawnTimeout bounds how long a spawned shard has to report ready.
	SpawnTimeout time.Duration
	// OnAllReady runs once, when every planned shard reported ready.
	OnAllReady func(ctx context.Context) error
	Logger     *slog.Logger
}

// Status is the readiness of one shard.
type Status struct {
	ID    int
	Ready bool
}

// Manager spawns the shards of a plan in order and tracks their readiness.
type Manager struct {
	factory Factory
	opts    ManagerOptions
	log     *slog.Logger

	mu       sync.Mutex
	plan     Plan
	conns    map[int]Conn
	ready    map[int]chan struct{}
	allReady bool
}

func NewManager(factory Factory, opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		factory: factory,
		opts:    opts,
		log:     logger,
		conns:   make(map[int]Conn),
		ready:   make(map[int]chan struct{}),
	}
}

// Start spawns every shard of plan, waiting for each to report ready before
// the next one identifies. On failure the shards already open are closed.
func (m *Manager) Start(ctx context.Context, plan Plan) error {
	if len(plan.Shards) == 0 {
		return ErrNoShards
	}
	m.mu.Lock()
	m.plan = plan
	for _, id := range plan.Shards {
		m.ready[id] = make(chan struct{})
	}
	m.mu.Unlock()

	for n, id := range plan.Shards {
		if n > 0 && m.opts.SpawnDelay > 0 {
			if err := sleep(ctx, m.opts.SpawnDelay); err != nil {
				m.Close()
				return err
			}
		}
		if err := m.spawn(ctx, id, plan.Total); err != nil {
			m.Close()
			return err
		}
	}
	return nil
}

func (m *Manager) spawn(ctx context.Context, id, total int) error {
	conn, err := m.factory(id, total)
	if err != nil {
		return fmt.Errorf("create shard %d: %w", id, err)
	}
	m.mu.Lock()
	m.conns[id] = conn
	ready := m.ready[id]
	m.mu.Unlock()

	m.log.Info("spawning shard", "shard_id", id, "total_shards", total)
	if err := conn.Open(); err != nil {
		return fmt.Errorf("open shard %d: %w", id, err)
	}

	var timeout <-chan time.Time
	if m.opts.SpawnTimeout > 0 {
		timer := time.NewTimer(m.opts.SpawnTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-ready:
		return nil
	case <-timeout:
		return fmt.Errorf("shard %d after %s: %w", id, m.opts.SpawnTimeout, ErrReadyTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MarkReady records that shard id received its ready event. Repeated
// reports, such as after a resume, are ignored.
func (m *Manager) MarkReady(ctx context.Context, id int) {
	m.mu.Lock()
	ch, ok := m.ready[id]
	if !ok {
		m.mu.Unlock()
		m.log.Warn("ready from unplanned shard", "shard_id", id)
		return
	}
	select {
	case <-ch:
		m.mu.Unlock()
		return
	default:
		close(ch)
	}
	done := !m.allReady && m.readyCountLocked() == len(m.ready)
	if done {
		m.allReady = true
	}
	m.mu.Unlock()

	m.log.Info("shard ready", "shard_id", id)
	if done && m.opts.OnAllReady != nil {
		if err := m.opts.OnAllReady(ctx); err != nil {
			m.log.Error("all-ready hook failed", "error", err)
		}
	}
}

func (m *Manager) readyCountLocked() int {
	n := 0
	for _, ch := range m.ready {
		select {
		case <-ch:
			n++
		default:
		}
	}
	return n
}

// Statuses lists the planned shards in id order.
func (m *Manager) Statuses() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Status, 0, len(m.ready))
	for id, ch := range m.ready {
		s := Status{ID: id}
		select {
		case <-ch:
			s.Ready = true
		default:
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Plan returns the plan the manager was started with.
func (m *Manager) Plan() Plan {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.plan
}

// Close closes every spawned shard.
func (m *Manager) Close() error {
	m.mu.Lock()
	conns := m.conns
	m.conns = make(map[int]Conn)
	m.mu.Unlock()

	var errs []error
	for id, conn := range conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close shard %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
