package execution

import (
	"context"
	"time"

	"github.com/cryptoarb/arbot/internal/db"
	"github.com/cryptoarb/arbot/internal/ledger"
	"github.com/cryptoarb/arbot/internal/types"
	"github.com/shopspring/decimal"
)

// NewPaper constructs an Engine backed entirely by exchange.SimConnector
// instances: fills are computed by walking the connector's book snapshot
// rather than touching a real exchange, but every other stage (tracking,
// reconciliation, hedging, persistence) runs identically to Live.
func NewPaper(connectors Connectors, l *ledger.Ledger, exposure *ledger.Exposure, database *db.DB, orderTimeout, maxLatency time.Duration, onPnL func(decimal.Decimal), halt *HaltSwitch) *Engine {
	return New(ModePaper, connectors, l, exposure, database, orderTimeout, maxLatency, onPnL, halt)
}

// ExecutePaper is a convenience wrapper matching the signature the
// detector -> risk -> execution pipeline calls after a signal clears risk.
func (e *Engine) ExecutePaper(ctx context.Context, signal *types.Signal, decision types.RiskDecision) (*Outcome, error) {
	if e.mode != ModePaper {
		return nil, errWrongMode(ModePaper, e.mode)
	}
	return e.Execute(ctx, signal, decision)
}
