// Package events provides event management functionality.
package events

// EventType represents different event types.
type EventType string

const (
	OpportunityFound      EventType = "OPPORTUNITY_FOUND"
	TaskStateChanged      EventType = "TASK_STATE_CHANGED"
	TaskCompleted         EventType = "TASK_COMPLETED"
	TaskFailed            EventType = "TASK_FAILED"
	StrategyTierChanged   EventType = "STRATEGY_TIER_CHANGED"
	StrategyEliminated    EventType = "STRATEGY_ELIMINATED"
	EvolutionActionTaken  EventType = "EVOLUTION_ACTION_TAKEN"
	SignalDispatched      EventType = "SIGNAL_DISPATCHED"
	TradeCycleClosed      EventType = "TRADE_CYCLE_CLOSED"
	AutoTradingToggled    EventType = "AUTO_TRADING_TOGGLED"
	EvolutionToggled      EventType = "EVOLUTION_TOGGLED"
	EmergencyStopTriggered EventType = "EMERGENCY_STOP_TRIGGERED"
	SystemStatusChanged   EventType = "SYSTEM_STATUS_CHANGED"
	ExchangeHealthChanged EventType = "EXCHANGE_HEALTH_CHANGED"
	ErrorOccurred         EventType = "ERROR_OCCURRED"
)
