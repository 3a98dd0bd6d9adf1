// Package status implements the SystemStatus owner task spec.md §9 calls
// for: "Health reported inconsistently across multiple tables ... a single
// SystemStatus owner task aggregates signals from all components and
// publishes a coherent view." Every other component reports into Owner
// instead of writing its own health flag, and the two runtime toggles
// dispatch (SD) and evolution (ES) gate on — auto_trading_enabled,
// evolution_enabled — live here as the one place Control Plane commands
// flip them.
package status

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/cryptosentinel/internal/domain"
	"github.com/aristath/cryptosentinel/internal/events"
)

// resourceCPUCeiling/resourceMemCeiling are the process-resource-pressure
// thresholds past which Owner considers itself degraded even with every
// component otherwise healthy — a runaway evolution/simulation loop
// starving the host shows up here before it starts missing EA deadlines.
const (
	resourceCPUCeiling = 90.0 // percent, host-wide
	resourceMemCeiling = 90.0 // percent, host-wide
)

// Store persists the singleton system_status row.
type Store interface {
	SaveStatus(ctx context.Context, st domain.SystemStatus) error
	LoadStatus(ctx context.Context) (domain.SystemStatus, error)
}

// Owner is the single task every component's health signal and the two
// runtime toggles flow through. Safe for concurrent use.
type Owner struct {
	mu sync.RWMutex
	st domain.SystemStatus

	store Store
	mgr   *events.Manager
	log   zerolog.Logger
}

// New creates an Owner. Initial state is QuantitativeRunning=true,
// Health=ok until a component reports otherwise.
func New(store Store, mgr *events.Manager, log zerolog.Logger) *Owner {
	return &Owner{
		st: domain.SystemStatus{
			QuantitativeRunning: true,
			EvolutionEnabled:    true,
			Health:              domain.HealthOK,
			LastUpdate:          time.Now().UTC(),
		},
		store: store,
		mgr:   mgr,
		log:   log.With().Str("component", "system_status").Logger(),
	}
}

// LoadPersisted overwrites the in-memory toggle state from a prior run's
// persisted row, called once at boot before any engine starts so a
// restart resumes with the operator's last auto_trading/evolution choice
// rather than silently reverting to the default.
func (o *Owner) LoadPersisted(ctx context.Context) error {
	st, err := o.store.LoadStatus(ctx)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.st.AutoTradingEnabled = st.AutoTradingEnabled
	o.st.EvolutionEnabled = st.EvolutionEnabled
	o.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the current status.
func (o *Owner) Snapshot() domain.SystemStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.st
}

// AutoTradingEnabled implements dispatch.AutoTradingSource.
func (o *Owner) AutoTradingEnabled() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.st.AutoTradingEnabled
}

// EvolutionEnabled implements evolution's gate check.
func (o *Owner) EvolutionEnabled() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.st.EvolutionEnabled
}

// SetAutoTrading flips auto_trading_enabled — the Control Plane's
// toggle_auto_trading command (spec.md §4.13), idempotent by construction
// (setting the same value twice is a no-op observationally).
func (o *Owner) SetAutoTrading(ctx context.Context, enabled bool) {
	o.mu.Lock()
	changed := o.st.AutoTradingEnabled != enabled
	o.st.AutoTradingEnabled = enabled
	o.st.LastUpdate = time.Now().UTC()
	snap := o.st
	o.mu.Unlock()

	if changed {
		o.mgr.Emit(&events.AutoTradingToggledData{Enabled: enabled}, "control_plane")
	}
	o.persist(ctx, snap)
}

// SetEvolutionEnabled flips evolution_enabled — CP's enable_evolution
// command; ES's loops consult EvolutionEnabled() before acting.
func (o *Owner) SetEvolutionEnabled(ctx context.Context, enabled bool) {
	o.mu.Lock()
	changed := o.st.EvolutionEnabled != enabled
	o.st.EvolutionEnabled = enabled
	o.st.LastUpdate = time.Now().UTC()
	snap := o.st
	o.mu.Unlock()

	if changed {
		o.mgr.Emit(&events.EvolutionToggledData{Enabled: enabled}, "control_plane")
	}
	o.persist(ctx, snap)
}

// ReportHealth lets any component report its last observed error kind.
// auth_failed, persistence_unavailable and invariant_violation degrade
// overall health; every other kind is ignored here and leaves Health as it
// is, since transient/retryable failures are routine operation, not
// degradation.
func (o *Owner) ReportHealth(ctx context.Context, component string, kind domain.ErrKind) {
	if kind != domain.ErrAuthFailed && kind != domain.ErrPersistenceUnavailable && kind != domain.ErrInvariantViolation {
		return
	}

	reason := component + " " + string(kind)
	o.mu.Lock()
	o.st.Health = domain.HealthDegraded
	o.st.HealthReason = reason
	o.st.LastUpdate = time.Now().UTC()
	snap := o.st
	o.mu.Unlock()

	o.log.Warn().Str("component", component).Str("err_kind", string(kind)).Msg("health degraded")
	o.mgr.Emit(&events.SystemStatusChangedData{Health: string(domain.HealthDegraded), Reason: reason}, component)
	o.persist(ctx, snap)
}

// ClearHealth restores Health=ok, used once the reporting component
// recovers (e.g. an exchange's auth is fixed and polling resumes).
func (o *Owner) ClearHealth(ctx context.Context) {
	o.mu.Lock()
	o.st.Health = domain.HealthOK
	o.st.HealthReason = ""
	o.st.LastUpdate = time.Now().UTC()
	snap := o.st
	o.mu.Unlock()

	o.mgr.Emit(&events.SystemStatusChangedData{Health: string(domain.HealthOK)}, "system_status")
	o.persist(ctx, snap)
}

// SetStrategyCounts updates the pool-size figures CP's status projection
// reads, called by the owner's periodic refresh loop rather than by the
// pool itself, so the Strategy Pool stays free of a status dependency.
func (o *Owner) SetStrategyCounts(total, running, generation int) {
	o.mu.Lock()
	o.st.TotalStrategies = total
	o.st.RunningStrategies = running
	o.st.CurrentGeneration = generation
	o.st.LastUpdate = time.Now().UTC()
	o.mu.Unlock()
}

func (o *Owner) persist(ctx context.Context, st domain.SystemStatus) {
	if o.store == nil {
		return
	}
	if err := o.store.SaveStatus(ctx, st); err != nil {
		o.log.Warn().Err(err).Msg("failed to persist system status")
	}
}

// Run periodically persists the current status until ctx is cancelled —
// a cheap heartbeat so system_status.last_update reflects liveness even
// when no toggle or health event has fired recently — and samples host
// CPU/memory pressure each tick, degrading health when either exceeds its
// ceiling the way the teacher's system_handlers.go reports resource
// pressure in its own health endpoint.
func (o *Owner) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.sampleResources(ctx)

			o.mu.Lock()
			o.st.LastUpdate = time.Now().UTC()
			snap := o.st
			o.mu.Unlock()
			o.persist(ctx, snap)
		}
	}
}

const hostResourceReason = "host_resources exhausted"

// sampleResources reads host CPU/memory utilization and degrades health
// when either is pinned, restoring it once pressure subsides — the same
// pattern as ReportHealth/ClearHealth, but resource pressure has no
// ErrKind of its own so it bypasses that filter directly.
func (o *Owner) sampleResources(ctx context.Context) {
	percents, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(percents) == 0 {
		return
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return
	}

	overCPU := percents[0] >= resourceCPUCeiling
	overMem := vm.UsedPercent >= resourceMemCeiling

	o.mu.Lock()
	reason := o.st.HealthReason
	switch {
	case overCPU || overMem:
		o.st.Health = domain.HealthDegraded
		o.st.HealthReason = hostResourceReason
		o.st.LastUpdate = time.Now().UTC()
		snap := o.st
		o.mu.Unlock()
		if reason != hostResourceReason {
			o.log.Warn().Float64("cpu_pct", percents[0]).Float64("mem_pct", vm.UsedPercent).Msg("health degraded: host resources")
			o.mgr.Emit(&events.SystemStatusChangedData{Health: string(domain.HealthDegraded), Reason: hostResourceReason}, "host_resources")
		}
		o.persist(ctx, snap)
	case reason == hostResourceReason:
		o.mu.Unlock()
		o.ClearHealth(ctx)
	default:
		o.mu.Unlock()
	}
}
