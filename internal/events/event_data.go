package events

import "encoding/json"

// EventData is the interface every typed event payload implements.
type EventData interface {
	EventType() EventType
}

// OpportunityFoundData reports one ranked arbitrage opportunity OD surfaced.
type OpportunityFoundData struct {
	Class  string `json:"class"`
	Symbol string `json:"symbol,omitempty"`
	NetPct string `json:"net_pct"` // decimal.Decimal.String()
}

func (d *OpportunityFoundData) EventType() EventType { return OpportunityFound }

// TaskStateChangedData reports an ArbitrageTask's state transition.
type TaskStateChangedData struct {
	TaskID   string `json:"task_id"`
	OldState string `json:"old_state"`
	NewState string `json:"new_state"`
}

func (d *TaskStateChangedData) EventType() EventType { return TaskStateChanged }

// TaskCompletedData reports a settled task's realized outcome.
type TaskCompletedData struct {
	TaskID      string `json:"task_id"`
	RealizedPnL string `json:"realized_pnl"`
}

func (d *TaskCompletedData) EventType() EventType { return TaskCompleted }

// TaskFailedData reports a terminal failure and its classified cause.
type TaskFailedData struct {
	TaskID  string `json:"task_id"`
	ErrKind string `json:"err_kind"`
	Detail  string `json:"detail,omitempty"`
}

func (d *TaskFailedData) EventType() EventType { return TaskFailed }

// StrategyTierChangedData reports SP promoting or demoting a strategy.
type StrategyTierChangedData struct {
	StrategyID string `json:"strategy_id"`
	OldTier    string `json:"old_tier"`
	NewTier    string `json:"new_tier"`
}

func (d *StrategyTierChangedData) EventType() EventType { return StrategyTierChanged }

// StrategyEliminatedData reports a strategy being retired by SP.
type StrategyEliminatedData struct {
	StrategyID string `json:"strategy_id"`
	Reason     string `json:"reason"`
}

func (d *StrategyEliminatedData) EventType() EventType { return StrategyEliminated }

// EvolutionActionTakenData mirrors one EvolutionRecord as it is applied.
type EvolutionActionTakenData struct {
	StrategyID string `json:"strategy_id"`
	Generation int    `json:"generation"`
	Action     string `json:"action"`
}

func (d *EvolutionActionTakenData) EventType() EventType { return EvolutionActionTaken }

// SignalDispatchedData reports SD's trade_type decision for one signal.
type SignalDispatchedData struct {
	StrategyID string `json:"strategy_id"`
	SignalID   string `json:"signal_id"`
	TradeType  string `json:"trade_type"`
}

func (d *SignalDispatchedData) EventType() EventType { return SignalDispatched }

// TradeCycleClosedData reports a closed TradeCycle's realized P&L.
type TradeCycleClosedData struct {
	CycleID string `json:"cycle_id"`
	PnL     string `json:"pnl,omitempty"`
	Status  string `json:"status"`
}

func (d *TradeCycleClosedData) EventType() EventType { return TradeCycleClosed }

// AutoTradingToggledData reports a CP toggle_auto_trading call.
type AutoTradingToggledData struct {
	Enabled bool `json:"enabled"`
}

func (d *AutoTradingToggledData) EventType() EventType { return AutoTradingToggled }

// EvolutionToggledData reports a CP enable_evolution call.
type EvolutionToggledData struct {
	Enabled bool `json:"enabled"`
}

func (d *EvolutionToggledData) EventType() EventType { return EvolutionToggled }

// EmergencyStopTriggeredData reports a CP emergency_stop call.
type EmergencyStopTriggeredData struct {
	ClosedPositions bool `json:"closed_positions"`
	Reason          string `json:"reason,omitempty"`
}

func (d *EmergencyStopTriggeredData) EventType() EventType { return EmergencyStopTriggered }

// SystemStatusChangedData mirrors a SystemStatus change for CP subscribers.
type SystemStatusChangedData struct {
	Health string `json:"health"`
	Reason string `json:"reason,omitempty"`
}

func (d *SystemStatusChangedData) EventType() EventType { return SystemStatusChanged }

// ExchangeHealthChangedData reports one exchange adapter's health flip.
type ExchangeHealthChangedData struct {
	ExchangeID string `json:"exchange_id"`
	Healthy    bool   `json:"healthy"`
	ErrKind    string `json:"err_kind,omitempty"`
}

func (d *ExchangeHealthChangedData) EventType() EventType { return ExchangeHealthChanged }

// ErrorEventData carries a classified error for any component.
type ErrorEventData struct {
	ErrKind string                 `json:"err_kind"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (d *ErrorEventData) EventType() EventType { return ErrorOccurred }

// GenericEventData is a fallback for events with no specific registered type.
type GenericEventData struct {
	Type EventType              `json:"-"`
	Data map[string]interface{} `json:"-"`
}

func (d *GenericEventData) EventType() EventType { return d.Type }

func (d *GenericEventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Data)
}

func (d *GenericEventData) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &d.Data)
}
