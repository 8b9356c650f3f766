package bus

import (
	"time"

	"github.com/cryptoarb/arbot/internal/execution"
	"github.com/cryptoarb/arbot/internal/types"
	"github.com/google/uuid"
)

// signalPayload is the wire shape for a newly detected signal.
type signalPayload struct {
	ID              uuid.UUID         `json:"id"`
	Strategy        types.Strategy    `json:"strategy"`
	Legs            []types.Leg       `json:"legs"`
	GrossSpreadPct  string            `json:"gross_spread_pct"`
	NetSpreadPct    string            `json:"net_spread_pct"`
	EstimatedPnLUSD string            `json:"estimated_pnl_usd"`
	NotionalUSD     string            `json:"notional_usd"`
	DetectedTS      time.Time         `json:"detected_ts"`
}

// outcomePayload is the wire shape for a settled execution outcome.
type outcomePayload struct {
	SignalID    uuid.UUID            `json:"signal_id"`
	Kind        execution.OutcomeKind `json:"kind"`
	RealizedPnL string               `json:"realized_pnl"`
	Legs        int                  `json:"legs"`
	HedgeLegs   int                  `json:"hedge_legs"`
}

// PublishSignalDetected announces a signal as soon as a detector emits it,
// before risk evaluation, so external observers see detection latency
// separately from execution latency.
func (b *Bus) PublishSignalDetected(s *types.Signal) {
	b.Publish(SubjectSignalDetected, signalPayload{
		ID:              s.ID,
		Strategy:        s.Strategy,
		Legs:            s.Legs,
		GrossSpreadPct:  s.GrossSpreadPct.String(),
		NetSpreadPct:    s.NetSpreadPct.String(),
		EstimatedPnLUSD: s.EstimatedPnLUSD.String(),
		NotionalUSD:     s.NotionalUSD.String(),
		DetectedTS:      s.DetectedTS,
	})
}

// PublishOutcome announces a settled execution outcome, once reconciliation
// (including any hedge legs) has completed.
func (b *Bus) PublishOutcome(o *execution.Outcome) {
	b.Publish(SubjectSignalSettled, outcomePayload{
		SignalID:    o.Signal.ID,
		Kind:        o.Kind,
		RealizedPnL: o.RealizedPnL.String(),
		Legs:        len(o.Orders),
		HedgeLegs:   len(o.HedgeOrders),
	})
}

// PublishRiskRejected announces a signal the risk pipeline declined.
func (b *Bus) PublishRiskRejected(s *types.Signal, reason string) {
	b.Publish(SubjectRiskRejected, map[string]string{
		"signal_id": s.ID.String(),
		"reason":    reason,
	})
}

// PublishCircuitBreaker announces a change in the consecutive-loss
// circuit breaker's state.
func (b *Bus) PublishCircuitBreaker(state types.CircuitState) {
	tripped := state.Tripped()
	b.Publish(SubjectCircuitBreaker, map[string]interface{}{
		"tripped":            tripped,
		"consecutive_losses": state.ConsecutiveLosses,
	})
}

// PublishConnState announces a connector's state machine transition, so
// degraded connectivity is visible to external consumers.
func (b *Bus) PublishConnState(exchangeName, state string) {
	b.Publish(SubjectConnState, map[string]string{
		"exchange": exchangeName,
		"state":    state,
	})
}
