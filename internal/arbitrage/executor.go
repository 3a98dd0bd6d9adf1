// Package arbitrage implements the Arbitrage Executor (AX, spec.md §4.5):
// one driver goroutine per ArbitrageTask, owning that task exclusively from
// "executing" through a terminal state, reserving and releasing capital
// through the Fund Allocator and placing orders through the Exchange
// Adapter pool.
package arbitrage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/cryptosentinel/internal/domain"
	"github.com/aristath/cryptosentinel/internal/exchange"
)

const (
	defaultTransferPollInterval = 30 * time.Second
	defaultTransferMaxWait      = 2 * time.Hour
)

// capitalAllocator is the subset of allocator.Allocator AX needs. Declared
// locally so this package doesn't import internal/allocator just for a type
// assertion — the composition root wires the concrete *allocator.Allocator.
type capitalAllocator interface {
	Reserve(class domain.OpportunityClass, amount decimal.Decimal) (string, error)
	Release(token string, returnedAmount decimal.Decimal) error
}

// TaskStore persists ArbitrageTask snapshots as the task moves through its
// state machine. Implemented by internal/persistence; a noop store is used
// when none is configured (e.g. in unit tests).
type TaskStore interface {
	SaveTask(ctx context.Context, task domain.ArbitrageTask) error
}

type noopStore struct{}

func (noopStore) SaveTask(context.Context, domain.ArbitrageTask) error { return nil }

// Config configures an Executor.
type Config struct {
	Pool                 *exchange.Pool
	Allocator            capitalAllocator
	Store                TaskStore
	TransferPollInterval time.Duration
	TransferMaxWait      time.Duration
	Log                  zerolog.Logger
}

// Executor drives ArbitrageTasks. One Executor instance serves the whole
// system; each Start call spawns its own single-owner goroutine per task.
type Executor struct {
	pool  *exchange.Pool
	alloc capitalAllocator
	store TaskStore

	transferPollInterval time.Duration
	transferMaxWait      time.Duration

	log zerolog.Logger
}

// New creates an Executor.
func New(cfg Config) *Executor {
	if cfg.Store == nil {
		cfg.Store = noopStore{}
	}
	if cfg.TransferPollInterval <= 0 {
		cfg.TransferPollInterval = defaultTransferPollInterval
	}
	if cfg.TransferMaxWait <= 0 {
		cfg.TransferMaxWait = defaultTransferMaxWait
	}
	return &Executor{
		pool:                 cfg.Pool,
		alloc:                cfg.Allocator,
		store:                cfg.Store,
		transferPollInterval: cfg.TransferPollInterval,
		transferMaxWait:      cfg.TransferMaxWait,
		log:                  cfg.Log.With().Str("component", "arbitrage_executor").Logger(),
	}
}

// Handle is the caller's view onto a task being driven to completion.
// domain.ArbitrageTask documents that it is owned exclusively by the AX
// goroutine driving it; Handle is how the rest of the system observes that
// task's state without racing its owner.
type Handle struct {
	mu   sync.RWMutex
	task domain.ArbitrageTask
	done chan struct{}
}

// Task returns a snapshot of the task's current state.
func (h *Handle) Task() domain.ArbitrageTask {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.task
}

// Done is closed once the task reaches a terminal state.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) set(t domain.ArbitrageTask) {
	h.mu.Lock()
	h.task = t
	h.mu.Unlock()
}

// Start reserves capital for opp via the Fund Allocator, creates the
// ArbitrageTask, and spawns the goroutine that drives it to a terminal
// state. Returns domain.ErrInsufficientFunds (wrapped) if the allocator
// declines the reservation.
func (x *Executor) Start(ctx context.Context, opp domain.ArbitrageOpportunity, reserveAmount decimal.Decimal) (*Handle, error) {
	token, err := x.alloc.Reserve(opp.Class, reserveAmount)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	task := domain.ArbitrageTask{
		ID:               uuid.NewString(),
		Class:            opp.Class,
		Opportunity:      opp,
		ReservedCapital:  reserveAmount,
		ReservationToken: token,
		State:            domain.TaskPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	task.AppendStep("reserve", true, "reserved "+reserveAmount.String(), "")

	h := &Handle{task: task, done: make(chan struct{})}
	x.persist(ctx, h)

	go x.drive(ctx, h)
	return h, nil
}

// Resume re-attaches a task PL loaded from a prior run's OpenTasks query
// (spec.md §5: AX tasks in awaiting_transfer persist their state and
// return; they resume after restart via PL replay). Only
// awaiting_transfer cross-exchange tasks have a well-defined resume point
// — the transfer poll; anything else was interrupted mid-leg with no
// durable record of which leg, so it is marked failed_stuck rather than
// guessed at.
func (x *Executor) Resume(ctx context.Context, task domain.ArbitrageTask) (*Handle, error) {
	h := &Handle{task: task, done: make(chan struct{})}

	if task.State != domain.TaskAwaitingTransfer || task.Class != domain.ClassCrossExchange || task.Transfer == nil {
		task.AppendStep("resume", false, "no durable resume point for this state", domain.ErrInvariantViolation)
		task.State = domain.TaskFailedStuck
		task.ReleasedCapital = decimal.Zero
		task.RealizedPnL = task.ReleasedCapital.Sub(task.ReservedCapital)
		h.set(task)
		x.persist(ctx, h)
		close(h.done)
		if err := x.alloc.Release(task.ReservationToken, task.ReleasedCapital); err != nil {
			x.log.Error().Err(err).Str("task_id", task.ID).Msg("failed to release reserved capital on unresumable task")
		}
		return h, nil
	}

	buyAdapter, err := x.pool.Get(task.Transfer.FromExchange)
	if err != nil {
		return nil, err
	}
	sellAdapter, err := x.pool.Get(task.Transfer.ToExchange)
	if err != nil {
		return nil, err
	}
	held := task.Transfer.Amount

	go func() {
		defer close(h.done)
		x.settleCross(ctx, h, buyAdapter, sellAdapter, task.Opportunity.Symbol, held)
		x.persist(ctx, h)
		final := h.Task()
		if relErr := x.alloc.Release(final.ReservationToken, final.ReleasedCapital); relErr != nil {
			x.log.Error().Err(relErr).Str("task_id", final.ID).Msg("failed to release reserved capital")
		}
	}()
	return h, nil
}

func (x *Executor) persist(ctx context.Context, h *Handle) {
	if err := x.store.SaveTask(ctx, h.Task()); err != nil {
		x.log.Warn().Err(err).Str("task_id", h.Task().ID).Msg("failed to persist arbitrage task snapshot")
	}
}

func (x *Executor) drive(ctx context.Context, h *Handle) {
	defer close(h.done)

	task := h.Task()
	task.State = domain.TaskExecuting
	h.set(task)
	x.persist(ctx, h)

	switch task.Class {
	case domain.ClassTriangular:
		x.driveTriangular(ctx, h)
	case domain.ClassCrossExchange:
		x.driveCross(ctx, h)
	default:
		task.AppendStep("dispatch", false, "unknown opportunity class", domain.ErrInvariantViolation)
		task.State = domain.TaskFailed
		task.ReleasedCapital = task.ReservedCapital
		h.set(task)
	}

	x.persist(ctx, h)

	final := h.Task()
	if err := x.alloc.Release(final.ReservationToken, final.ReleasedCapital); err != nil {
		x.log.Error().Err(err).Str("task_id", final.ID).Msg("failed to release reserved capital")
	}
}

// failTask marks task Failed, releasing the full reserved capital back
// unchanged — used when a failure happens before any capital has actually
// moved (e.g. the adapter for the task's exchange isn't registered).
func failTask(task domain.ArbitrageTask, step string, err error, kind domain.ErrKind) domain.ArbitrageTask {
	task.AppendStep(step, false, errString(err), kind)
	task.State = domain.TaskFailed
	task.ReleasedCapital = task.ReservedCapital
	task.RealizedPnL = decimal.Zero
	return task
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
