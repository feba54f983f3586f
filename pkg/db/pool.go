// pkg/db/pool.go
package db

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// Dialer opens a dedicated session. *sqlx.DB implements it.
type Dialer interface {
	Connx(ctx context.Context) (*sqlx.Conn, error)
}

// PoolConfig bounds and tunes the pool.
type PoolConfig struct {
	MinConns         int           // Sessions opened on first use and kept warm
	MaxConns         int           // Hard cap on live sessions
	AcquireTimeout   time.Duration // How long Acquire waits at capacity; <= 0 fails fast
	IdleCheckAfter   time.Duration // Idle sessions older than this are pinged before reuse
	ValidateSchedule string        // cron spec for background validation, empty disables it
	ConnectRetries   int           // Extra dial attempts after the first failure
	ConnectBackoff   time.Duration // Delay before the first retry, doubled each attempt
}

const maxConnectBackoff = 5 * time.Second

// DefaultPoolConfig returns the pool settings used when nothing is configured.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MinConns:         2,
		MaxConns:         10,
		AcquireTimeout:   5 * time.Second,
		IdleCheckAfter:   30 * time.Second,
		ValidateSchedule: "@every 30s",
		ConnectRetries:   1,
		ConnectBackoff:   200 * time.Millisecond,
	}
}

// Validate checks the bounds for consistency.
func (c PoolConfig) Validate() error {
	if c.MaxConns < 1 {
		return fmt.Errorf("pool max connections must be at least 1, got %d", c.MaxConns)
	}
	if c.MinConns < 0 || c.MinConns > c.MaxConns {
		return fmt.Errorf("pool min connections must be between 0 and %d, got %d", c.MaxConns, c.MinConns)
	}
	if c.ConnectRetries < 0 {
		return fmt.Errorf("pool connect retries must not be negative, got %d", c.ConnectRetries)
	}
	return nil
}

// Stats is a point-in-time snapshot of the pool counters.
type Stats struct {
	Open      int   `json:"open"`
	Idle      int   `json:"idle"`
	InUse     int   `json:"in_use"`
	MaxConns  int   `json:"max_conns"`
	Waits     int64 `json:"waits"`
	Discarded int64 `json:"discarded"`
}

// Pool owns a bounded set of database sessions and leases them out one request
// at a time.
//
// Every live session is either idle or held by someone holding a slot, so the
// number of open sessions never exceeds MaxConns. The mutex only guards the
// bookkeeping below; dialing, pinging and closing run outside it.
type Pool struct {
	dialer Dialer
	cfg    PoolConfig
	logger *slog.Logger

	slots chan struct{} // one token per lease (or per background dial/validation)

	mu        sync.Mutex
	idle      []*PooledConnection
	leased    map[*PooledConnection]struct{}
	open      int
	waits     int64
	discarded int64
	closed    bool
	drained   chan struct{}

	warmOnce  sync.Once
	scheduler *cron.Cron

	// Background dials (warm-up, refill) run under bgCtx, cancelled by Close.
	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
}

// NewPool creates a pool. No session is opened until the first Acquire.
func NewPool(dialer Dialer, cfg PoolConfig, logger *slog.Logger) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	bgCtx, bgCancel := context.WithCancel(context.Background())
	return &Pool{
		dialer:   dialer,
		cfg:      cfg,
		logger:   logger.With("component", "pool"),
		slots:    make(chan struct{}, cfg.MaxConns),
		leased:   make(map[*PooledConnection]struct{}),
		drained:  make(chan struct{}),
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
	}, nil
}

// Acquire leases a session to the caller. It blocks the calling goroutine
// while the pool is at capacity, up to AcquireTimeout.
func (p *Pool) Acquire(ctx context.Context) (*PooledConnection, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}

	// Warm-up runs in the background so no caller waits on another's dials.
	p.warmOnce.Do(func() { p.goBackground(p.warmUp) })

	if err := p.takeSlot(ctx); err != nil {
		return nil, err
	}

	conn, err := p.checkout(ctx)
	if err != nil {
		p.giveSlot()
		return nil, err
	}
	return conn, nil
}

// Release ends a lease. Healthy sessions go back to the idle set; unhealthy
// ones are discarded and replaced in the background if the pool fell below
// MinConns. Releasing a connection that is not leased is a no-op.
func (p *Pool) Release(conn *PooledConnection, healthy bool) {
	if conn == nil {
		return
	}

	p.mu.Lock()
	if _, ok := p.leased[conn]; !ok {
		p.mu.Unlock()
		p.logger.Warn("Release of a connection that is not leased", "conn_id", conn.ID)
		return
	}
	delete(p.leased, conn)

	keep := healthy && !p.closed
	if keep {
		conn.markIdle()
		p.idle = append(p.idle, conn)
	} else {
		p.open--
		if !healthy {
			p.discarded++
		}
	}
	p.signalDrainedLocked()
	refill := !healthy && !p.closed && p.open < p.cfg.MinConns
	p.mu.Unlock()

	p.giveSlot()

	if keep {
		return
	}
	if healthy {
		conn.close()
		return
	}

	p.logger.Warn("Discarding broken connection", "conn_id", conn.ID, "error", conn.LastError())
	conn.discard()
	if refill {
		p.goBackground(p.replenish)
	}
}

// Validate pings every idle session, discards the ones that fail and then
// tops the pool back up to MinConns.
func (p *Pool) Validate(ctx context.Context) {
	p.mu.Lock()
	n := len(p.idle)
	p.mu.Unlock()

	for i := 0; i < n; i++ {
		if !p.tryTakeSlot() {
			break // every slot is leased; those sessions are checked on release
		}
		conn := p.popOldestIdle()
		if conn == nil {
			p.giveSlot()
			break
		}
		if err := conn.PingContext(ctx); err != nil {
			p.dropUnleased(conn, err)
		} else {
			p.mu.Lock()
			conn.markIdle()
			p.idle = append(p.idle, conn)
			p.mu.Unlock()
		}
		p.giveSlot()
	}

	p.replenish(ctx)
}

// StartValidation schedules Validate on the configured cron spec.
func (p *Pool) StartValidation() error {
	if p.cfg.ValidateSchedule == "" {
		return nil
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(p.cfg.ValidateSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		p.Validate(ctx)
	}); err != nil {
		return fmt.Errorf("invalid pool validation schedule %q: %w", p.cfg.ValidateSchedule, err)
	}

	p.mu.Lock()
	p.scheduler = scheduler
	p.mu.Unlock()

	scheduler.Start()
	p.logger.Info("Idle connection validation scheduled", "schedule", p.cfg.ValidateSchedule)
	return nil
}

// Stats returns the current counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Open:      p.open,
		Idle:      len(p.idle),
		InUse:     len(p.leased),
		MaxConns:  p.cfg.MaxConns,
		Waits:     p.waits,
		Discarded: p.discarded,
	}
}

// Close stops handing out sessions, closes the idle ones and waits for
// in-flight leases to be released. Leases still out when ctx expires are
// force-closed.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.open -= len(idle)
	scheduler := p.scheduler
	p.signalDrainedLocked()
	p.mu.Unlock()

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	for _, conn := range idle {
		conn.close()
	}

	var err error
	select {
	case <-p.drained:
	case <-ctx.Done():
		p.mu.Lock()
		inFlight := make([]*PooledConnection, 0, len(p.leased))
		for conn := range p.leased {
			inFlight = append(inFlight, conn)
		}
		p.leased = make(map[*PooledConnection]struct{})
		p.open -= len(inFlight)
		p.mu.Unlock()

		for _, conn := range inFlight {
			conn.discard()
		}
		p.logger.Warn("Force-closed in-flight connections", "count", len(inFlight))
		err = fmt.Errorf("pool closed with %d leases still in flight: %w", len(inFlight), ctx.Err())
	}

	p.bgCancel()
	p.bg.Wait()
	p.logger.Info("Connection pool closed")
	return err
}

// goBackground runs fn on the pool's background context unless the pool is
// already closed. Close waits for it.
func (p *Pool) goBackground(fn func(context.Context)) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.bg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.bg.Done()
		fn(p.bgCtx)
	}()
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Pool) takeSlot(ctx context.Context) error {
	select {
	case p.slots <- struct{}{}:
		return nil
	default:
	}

	if p.cfg.AcquireTimeout <= 0 {
		return ErrPoolExhausted
	}

	p.mu.Lock()
	p.waits++
	p.mu.Unlock()

	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	select {
	case p.slots <- struct{}{}:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrAcquireTimeout, p.cfg.AcquireTimeout)
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrAcquireTimeout, ctx.Err())
	}
}

func (p *Pool) tryTakeSlot() bool {
	select {
	case p.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (p *Pool) giveSlot() {
	<-p.slots
}

// checkout hands out an idle session or dials a new one. The caller holds a slot.
func (p *Pool) checkout(ctx context.Context) (*PooledConnection, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		if n := len(p.idle); n > 0 {
			conn := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.mu.Unlock()

			if p.cfg.IdleCheckAfter > 0 && conn.idleFor() > p.cfg.IdleCheckAfter {
				if err := conn.PingContext(ctx); err != nil {
					p.dropUnleased(conn, err)
					continue
				}
			}
			return p.lease(conn), nil
		}
		// Holding a slot with no idle session means open < MaxConns.
		p.open++
		p.mu.Unlock()

		conn, err := p.dial(ctx)
		if err != nil {
			p.mu.Lock()
			p.open--
			p.mu.Unlock()
			return nil, err
		}
		return p.lease(conn), nil
	}
}

func (p *Pool) lease(conn *PooledConnection) *PooledConnection {
	conn.resetLease()
	p.mu.Lock()
	p.leased[conn] = struct{}{}
	p.mu.Unlock()
	return conn
}

// dial opens a session, retrying connect failures with doubling backoff.
func (p *Pool) dial(ctx context.Context) (*PooledConnection, error) {
	backoff := p.cfg.ConnectBackoff
	attempts := p.cfg.ConnectRetries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		start := time.Now()
		raw, err := p.dialer.Connx(ctx)
		if err == nil {
			conn := newPooledConnection(raw)
			p.logger.Debug("Opened database connection",
				"conn_id", conn.ID,
				"attempt", attempt,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return conn, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrAcquireTimeout, ctx.Err())
		}
		if attempt == attempts {
			break
		}

		p.logger.Warn("Database connect failed; retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %w", ErrAcquireTimeout, ctx.Err())
		case <-timer.C:
		}
		backoff = min(backoff*2, maxConnectBackoff)
	}

	p.logger.Error("Database connect failed", "attempts", attempts, "error", lastErr)
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrConnectFailed, attempts, lastErr)
}

// warmUp opens MinConns sessions concurrently. Failures are logged only; the
// triggering Acquire still gets its own chance to dial.
func (p *Pool) warmUp(ctx context.Context) {
	if p.cfg.MinConns == 0 {
		return
	}
	if err := p.fill(ctx, p.cfg.MinConns); err != nil {
		p.logger.Warn("Pool warm-up incomplete", "error", err)
		return
	}
	p.logger.Info("Pool warmed up", "connections", p.cfg.MinConns)
}

// replenish opens sessions until the pool is back at MinConns.
func (p *Pool) replenish(ctx context.Context) {
	p.mu.Lock()
	missing := p.cfg.MinConns - p.open
	closed := p.closed
	p.mu.Unlock()

	if missing <= 0 || closed {
		return
	}
	if err := p.fill(ctx, missing); err != nil {
		p.logger.Warn("Failed to replenish pool", "missing", missing, "error", err)
	}
}

// fill dials up to n idle sessions in parallel, each under its own slot.
// Slots that are already taken are skipped: a busy pool needs no warm spares.
func (p *Pool) fill(ctx context.Context, n int) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		if !p.tryTakeSlot() {
			break
		}
		p.mu.Lock()
		if p.closed || p.open >= p.cfg.MaxConns {
			p.mu.Unlock()
			p.giveSlot()
			break
		}
		p.open++
		p.mu.Unlock()

		g.Go(func() error {
			defer p.giveSlot()

			conn, err := p.dial(gctx)
			if err != nil {
				p.mu.Lock()
				p.open--
				p.mu.Unlock()
				return err
			}

			p.mu.Lock()
			if p.closed {
				p.open--
				p.mu.Unlock()
				conn.close()
				return nil
			}
			conn.markIdle()
			p.idle = append(p.idle, conn)
			p.mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

func (p *Pool) popOldestIdle() *PooledConnection {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.idle) == 0 {
		return nil
	}
	conn := p.idle[0]
	p.idle = p.idle[1:]
	return conn
}

// dropUnleased discards a session that failed its liveness probe.
func (p *Pool) dropUnleased(conn *PooledConnection, err error) {
	p.mu.Lock()
	p.open--
	p.discarded++
	p.mu.Unlock()

	p.logger.Warn("Idle connection failed liveness probe", "conn_id", conn.ID, "error", err)
	conn.discard()
}

func (p *Pool) signalDrainedLocked() {
	if !p.closed || len(p.leased) > 0 {
		return
	}
	select {
	case <-p.drained:
	default:
		close(p.drained)
	}
}
