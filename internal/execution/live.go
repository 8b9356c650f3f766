package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/cryptoarb/arbot/internal/db"
	"github.com/cryptoarb/arbot/internal/ledger"
	"github.com/cryptoarb/arbot/internal/types"
	"github.com/shopspring/decimal"
)

// NewLive constructs an Engine backed by real exchange connectors
// (BinanceConnector and peers). Leg orders are requested as IOC;
// BinanceConnector sends them as GTC limit orders, which the engine
// cancels once order_timeout passes without a terminal state.
func NewLive(connectors Connectors, l *ledger.Ledger, exposure *ledger.Exposure, database *db.DB, orderTimeout, maxLatency time.Duration, onPnL func(decimal.Decimal), halt *HaltSwitch) *Engine {
	return New(ModeLive, connectors, l, exposure, database, orderTimeout, maxLatency, onPnL, halt)
}

// ExecuteLive submits both legs against live exchanges.
func (e *Engine) ExecuteLive(ctx context.Context, signal *types.Signal, decision types.RiskDecision) (*Outcome, error) {
	if e.mode != ModeLive {
		return nil, errWrongMode(ModeLive, e.mode)
	}
	return e.Execute(ctx, signal, decision)
}

func errWrongMode(want, got Mode) error {
	return fmt.Errorf("execution engine configured for %s mode, not %s", got, want)
}
