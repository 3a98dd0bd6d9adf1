package exchange

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/cryptosentinel/internal/domain"
)

// reaper is implemented by adapters that hold an idle-closeable streaming
// connection (the venue.Adapter real implementations); adapters without
// ReapIdle, such as the test double, are skipped by the reaper.
type reaper interface {
	ReapIdle()
}

// Pool owns one Adapter instance per configured exchange and periodically
// reaps idle streaming connections (spec.md §4.1: "EA pool closes sockets
// unused for > 5 min").
type Pool struct {
	mu       sync.RWMutex
	adapters map[domain.ExchangeID]Adapter
	log      zerolog.Logger

	reapInterval time.Duration
	stop         chan struct{}
	stopped      chan struct{}
}

// NewPool creates an empty pool. Call Register for each configured,
// enabled exchange before Start.
func NewPool(log zerolog.Logger) *Pool {
	return &Pool{
		adapters:     make(map[domain.ExchangeID]Adapter),
		log:          log.With().Str("component", "exchange_pool").Logger(),
		reapInterval: time.Minute,
		stop:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
}

// Register adds an adapter instance to the pool.
func (p *Pool) Register(a Adapter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.adapters[a.ID()] = a
}

// Get returns the adapter for id, or an error if none is registered.
func (p *Pool) Get(id domain.ExchangeID) (Adapter, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	a, ok := p.adapters[id]
	if !ok {
		return nil, fmt.Errorf("exchange %q not registered", id)
	}
	return a, nil
}

// All returns every registered adapter, keyed by exchange id.
func (p *Pool) All() map[domain.ExchangeID]Adapter {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[domain.ExchangeID]Adapter, len(p.adapters))
	for k, v := range p.adapters {
		out[k] = v
	}
	return out
}

// Start begins the idle-connection reaper loop.
func (p *Pool) Start() {
	go func() {
		defer close(p.stopped)
		ticker := time.NewTicker(p.reapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.reapOnce()
			case <-p.stop:
				return
			}
		}
	}()
}

func (p *Pool) reapOnce() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for id, a := range p.adapters {
		if r, ok := a.(reaper); ok {
			r.ReapIdle()
		}
		_ = id
	}
}

// Stop halts the reaper loop and closes every adapter.
func (p *Pool) Stop() {
	close(p.stop)
	<-p.stopped

	p.mu.RLock()
	defer p.mu.RUnlock()
	for id, a := range p.adapters {
		if err := a.Close(); err != nil {
			p.log.Warn().Err(err).Str("exchange", string(id)).Msg("error closing adapter")
		}
	}
}
