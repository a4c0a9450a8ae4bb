// Package negotiation drives negotiation sessions between a buyer and a
// seller strategy, one goroutine per session.
package negotiation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xiaot623/dealroom/internal/adapter/auditlog"
	"github.com/xiaot623/dealroom/internal/domain"
	"github.com/xiaot623/dealroom/internal/integrity"
	"github.com/xiaot623/dealroom/internal/metrics"
	"github.com/xiaot623/dealroom/internal/registry"
	"github.com/xiaot623/dealroom/internal/strategy"
)

const (
	// DefaultMaxRounds bounds the half-turns after the opening offer.
	DefaultMaxRounds = 10
	// DefaultRoundDelay paces the exchange so watchers can follow it.
	DefaultRoundDelay = 500 * time.Millisecond
)

var (
	// ErrInvalidParams is returned by Start for unusable parameters.
	ErrInvalidParams = errors.New("invalid negotiation parameters")
	// ErrShuttingDown is returned by Start after Shutdown was called.
	ErrShuttingDown = errors.New("orchestrator is shutting down")
	// ErrNotActive is returned when cancelling a session that already ended.
	ErrNotActive = errors.New("session is not active")
)

// Notifier receives session events. Publish must not block.
type Notifier interface {
	Publish(sessionID string, event domain.SessionEvent)
}

// Config holds the orchestrator limits.
type Config struct {
	MaxRounds        int
	MaxCounterOffers int
	RoundDelay       time.Duration
	// SessionTimeout bounds a whole session. Zero disables the bound.
	SessionTimeout time.Duration
}

// StartParams describes one negotiation.
type StartParams struct {
	Buyer     domain.AgentIdentity
	Seller    domain.AgentIdentity
	Product   domain.Product
	MaxBudget float64
	MinPrice  float64
	// Opener is the side that sends the first offer. Empty means buyer.
	Opener domain.AgentRole
}

func (p StartParams) validate() error {
	switch {
	case p.Buyer.AgentID == "" || p.Seller.AgentID == "":
		return fmt.Errorf("%w: buyer and seller are required", ErrInvalidParams)
	case p.Product.ID == "":
		return fmt.Errorf("%w: product id is required", ErrInvalidParams)
	case p.Product.Quantity <= 0:
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidParams)
	case p.MaxBudget <= 0:
		return fmt.Errorf("%w: max budget must be positive", ErrInvalidParams)
	case p.MinPrice <= 0:
		return fmt.Errorf("%w: min price must be positive", ErrInvalidParams)
	}
	switch p.Opener {
	case "", domain.AgentRoleBuyer, domain.AgentRoleSeller:
		return nil
	default:
		return fmt.Errorf("%w: opener must be buyer or seller, got %q", ErrInvalidParams, p.Opener)
	}
}

// negotiatorFactory builds the two strategies for a session.
type negotiatorFactory func(p StartParams, opts strategy.Options) (buyer, seller strategy.Negotiator)

type run struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Orchestrator starts and supervises negotiation sessions.
type Orchestrator struct {
	cfg       Config
	registry  *registry.Registry
	signer    *integrity.Signer
	inventory *strategy.Inventory
	audit     auditlog.Log
	notifier  Notifier
	metrics   *metrics.Collector
	logger    *zap.Logger

	newNegotiators negotiatorFactory

	baseCtx context.Context
	stop    context.CancelFunc

	mu      sync.Mutex
	running map[string]*run
	closed  bool
	wg      sync.WaitGroup
}

// New creates an orchestrator. audit, notifier and m may be nil.
func New(cfg Config, reg *registry.Registry, signer *integrity.Signer, inventory *strategy.Inventory,
	audit auditlog.Log, notifier Notifier, m *metrics.Collector, logger *zap.Logger) *Orchestrator {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	if cfg.MaxCounterOffers <= 0 {
		cfg.MaxCounterOffers = strategy.DefaultMaxCounterOffers
	}
	if cfg.RoundDelay < 0 {
		cfg.RoundDelay = 0
	}
	if inventory == nil {
		inventory = strategy.DefaultInventory()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, stop := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:       cfg,
		registry:  reg,
		signer:    signer,
		inventory: inventory,
		audit:     audit,
		notifier:  notifier,
		metrics:   m,
		logger:    logger.With(zap.String("component", "orchestrator")),
		baseCtx:   ctx,
		stop:      stop,
		running:   make(map[string]*run),
	}
	o.newNegotiators = o.defaultNegotiators
	return o
}

func (o *Orchestrator) defaultNegotiators(p StartParams, opts strategy.Options) (strategy.Negotiator, strategy.Negotiator) {
	buyer := strategy.NewBuyer(p.Buyer, p.MaxBudget, o.signer, opts)
	seller := strategy.NewSeller(p.Seller, p.MinPrice, o.inventory, o.signer, opts)
	return buyer, seller
}

// Inventory returns the seller catalog used for new sessions.
func (o *Orchestrator) Inventory() *strategy.Inventory {
	return o.inventory
}

// Start creates a session and drives it in the background. It returns the
// session as first recorded, before any message has been exchanged.
func (o *Orchestrator) Start(ctx context.Context, p StartParams) (domain.NegotiationSession, error) {
	if err := p.validate(); err != nil {
		return domain.NegotiationSession{}, err
	}
	item, err := o.inventory.Lookup(p.Product.ID)
	if err != nil {
		return domain.NegotiationSession{}, fmt.Errorf("failed to start negotiation: %w", err)
	}
	if p.Product.Quantity > item.Quantity {
		return domain.NegotiationSession{}, fmt.Errorf("%w: only %d units of %s available", ErrInvalidParams, item.Quantity, item.ProductID)
	}
	if p.Product.Name == "" {
		p.Product.Name = item.Name
	}
	if p.Opener == "" {
		p.Opener = domain.AgentRoleBuyer
	}

	sessionID := uuid.NewString()
	logger := o.logger.With(zap.String("session_id", sessionID))
	clock := newSessionClock(time.Now)
	buyer, seller := o.newNegotiators(p, strategy.Options{
		MaxCounterOffers: o.cfg.MaxCounterOffers,
		Clock:            clock.Now,
		Logger:           logger,
	})

	if o.isClosed() {
		return domain.NegotiationSession{}, ErrShuttingDown
	}

	// The registry may write through to the store, so the session is created
	// without holding o.mu.
	h, err := o.registry.CreateSession(ctx, domain.NegotiationSession{
		SessionID:     sessionID,
		BuyerAgentID:  p.Buyer.AgentID,
		SellerAgentID: p.Seller.AgentID,
		Status:        domain.SessionStatusActive,
		StartedAt:     time.Now().UTC(),
	})
	if err != nil {
		return domain.NegotiationSession{}, fmt.Errorf("failed to create session: %w", err)
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		// Shutdown began while the session was being created.
		h.Fail(ctx, clock.Now().UTC())
		return domain.NegotiationSession{}, ErrShuttingDown
	}

	var runCtx context.Context
	var cancel context.CancelFunc
	if o.cfg.SessionTimeout > 0 {
		runCtx, cancel = context.WithTimeout(o.baseCtx, o.cfg.SessionTimeout)
	} else {
		runCtx, cancel = context.WithCancel(o.baseCtx)
	}
	r := &run{cancel: cancel, done: make(chan struct{})}
	o.running[sessionID] = r
	o.wg.Add(1)
	o.mu.Unlock()

	snapshot := h.Snapshot()
	o.metrics.SessionStarted()
	o.publish(sessionID, domain.SessionEvent{
		Type:   domain.SessionEventStarted,
		Status: domain.SessionStatusActive,
	})
	logger.Info("negotiation started",
		zap.String("buyer", p.Buyer.AgentID),
		zap.String("seller", p.Seller.AgentID),
		zap.String("product", p.Product.ID),
		zap.String("opener", string(p.Opener)),
	)

	s := &sessionRun{
		o:       o,
		handle:  h,
		buyer:   buyer,
		seller:  seller,
		product: p.Product,
		opener:  p.Opener,
		clock:   clock,
		logger:  logger,
	}
	go o.drive(runCtx, r, s)

	return snapshot, nil
}

// Cancel stops a running session, which is then marked failed. It waits for
// the loop to record the outcome or for ctx to end.
func (o *Orchestrator) Cancel(ctx context.Context, sessionID string) error {
	o.mu.Lock()
	r, ok := o.running[sessionID]
	o.mu.Unlock()
	if !ok {
		if _, err := o.registry.Session(sessionID); err != nil {
			return err
		}
		return fmt.Errorf("session %s: %w", sessionID, ErrNotActive)
	}

	r.cancel()
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until the session loop has finished or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context, sessionID string) error {
	o.mu.Lock()
	r, ok := o.running[sessionID]
	o.mu.Unlock()
	if !ok {
		_, err := o.registry.Session(sessionID)
		return err
	}

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active returns the number of running session loops.
func (o *Orchestrator) Active() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.running)
}

// Shutdown refuses new sessions, cancels running ones and waits for their
// loops to record an outcome.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.stop()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func (o *Orchestrator) forget(sessionID string) {
	o.mu.Lock()
	delete(o.running, sessionID)
	o.mu.Unlock()
}

func (o *Orchestrator) publish(sessionID string, event domain.SessionEvent) {
	if o.notifier == nil {
		return
	}
	event.SessionID = sessionID
	if event.Ts == 0 {
		event.Ts = time.Now().UnixMilli()
	}
	o.notifier.Publish(sessionID, event)
}
