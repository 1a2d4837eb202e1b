// internal/engine/decide.go
package engine

import (
	"errors"
	"math"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PietroScorza/copytrade-bot/internal/position"
	"github.com/PietroScorza/copytrade-bot/internal/types"
)

// Tier is one configured take-profit rule: once the realized multiple reaches
// Multiplier, SellPercent of the entry quantity is sold.
type Tier struct {
	Multiplier  float64
	SellPercent float64
}

// DecisionConfig is read once at startup and immutable afterwards.
type DecisionConfig struct {
	MonitoredWallet      solana.PublicKey
	BuyAmountLamports    uint64
	MaxBuyAmountLamports uint64
	SlippageBps          uint16
	Tiers                []Tier // sorted ascending by Multiplier
	EmergencyMirror      bool
}

// Decider converts one trade event plus current position state into zero or
// more outbound actions. Every store-mutating outcome is proposed through
// Apply and the action is kept only when the store commits it, so a decision
// computed from a stale read dies here instead of reaching the bundle
// builder.
type Decider struct {
	store  *position.Store
	cfg    DecisionConfig
	logger *zap.Logger
}

func NewDecider(store *position.Store, cfg DecisionConfig, logger *zap.Logger) *Decider {
	return &Decider{store: store, cfg: cfg, logger: logger.Named("decider")}
}

// Monitors reports whether the trader is the wallet being copied.
func (d *Decider) Monitors(trader solana.PublicKey) bool {
	return trader.Equals(d.cfg.MonitoredWallet)
}

// Decide runs one decision cycle for a single event. Emergency handling runs
// before tier evaluation so a mirrored exit is always the first high-urgency
// action of the cycle.
func (d *Decider) Decide(event *types.TradeEvent) []types.TradeAction {
	correlationID := uuid.New().String()
	logger := d.logger.With(
		zap.String("correlation_id", correlationID),
		zap.Stringer("token", event.TokenMint),
		zap.Uint64("slot", event.Slot))

	var actions []types.TradeAction

	switch event.Direction {
	case types.DirectionBuy:
		if a, ok := d.decideEntry(event, correlationID, logger); ok {
			actions = append(actions, a)
		}
	case types.DirectionSell:
		if a, ok := d.decideEmergency(event, correlationID, logger); ok {
			actions = append(actions, a)
		}
	}

	actions = append(actions, d.decideTiers(event, correlationID, logger)...)
	return actions
}

// decideEntry mirrors the monitored wallet's first buy of a token. Later buys
// of the same token are ignored, including tokens whose position has already
// been closed.
func (d *Decider) decideEntry(event *types.TradeEvent, correlationID string, logger *zap.Logger) (types.TradeAction, bool) {
	if d.store.Traded(event.TokenMint) {
		logger.Debug("ignoring repeat buy, token already traded")
		return types.TradeAction{}, false
	}

	ratio := event.PriceRatio()
	if ratio <= 0 {
		logger.Warn("buy event carries no usable entry ratio, skipping entry")
		return types.TradeAction{}, false
	}

	solAmount := d.cfg.BuyAmountLamports
	if solAmount > d.cfg.MaxBuyAmountLamports {
		solAmount = d.cfg.MaxBuyAmountLamports
	}
	entryQty := uint64(math.Floor(float64(solAmount) / ratio))
	if entryQty == 0 {
		logger.Warn("configured buy amount buys zero tokens at observed ratio, skipping entry",
			zap.Float64("ratio", ratio))
		return types.TradeAction{}, false
	}

	if _, err := d.store.Apply(event.TokenMint, position.OpenPosition(solAmount, entryQty)); err != nil {
		// A concurrent cycle won the race for the first buy.
		logger.Debug("entry rejected by store", zap.Error(err))
		return types.TradeAction{}, false
	}

	logger.Info("mirroring first buy",
		zap.Uint64("sol_amount", solAmount),
		zap.Uint64("entry_qty", entryQty),
		zap.Float64("entry_ratio", ratio))

	return types.TradeAction{
		Kind:          types.ActionEnter,
		Venue:         event.Venue,
		TokenMint:     event.TokenMint,
		SolAmount:     solAmount,
		Quantity:      entryQty,
		Tip:           types.TipNormal,
		Slot:          event.Slot,
		CorrelationID: correlationID,
	}, true
}

// decideEmergency mirrors the monitored wallet's sell: the source trader
// exiting is the strongest available signal, so the whole position is
// flattened immediately, overriding tier state.
func (d *Decider) decideEmergency(event *types.TradeEvent, correlationID string, logger *zap.Logger) (types.TradeAction, bool) {
	if !d.cfg.EmergencyMirror {
		return types.TradeAction{}, false
	}
	pos, ok := d.store.Get(event.TokenMint)
	if !ok {
		return types.TradeAction{}, false
	}

	quantity := pos.Quantity
	if _, err := d.store.Apply(event.TokenMint, position.Close()); err != nil {
		logger.Debug("emergency close rejected by store", zap.Error(err))
		return types.TradeAction{}, false
	}

	logger.Warn("source wallet sold, mirroring emergency exit",
		zap.Uint64("quantity", quantity))

	return types.TradeAction{
		Kind:              types.ActionEmergencyExit,
		Venue:             event.Venue,
		TokenMint:         event.TokenMint,
		SellPercent:       100,
		Quantity:          quantity,
		TierIndex:         -1,
		CloseTokenAccount: true,
		Tip:               types.TipEmergency,
		Slot:              event.Slot,
		CorrelationID:     correlationID,
	}, true
}

// decideTiers evaluates not-yet-applied take-profit tiers in ascending
// multiplier order against the realized multiple implied by the event's pool
// ratio. A large jump may fire several tiers in one cycle; each one is a
// separate store transition and a separate action. When the cumulative sell
// percentage reaches the whole entry, the final tier is clamped to the
// remaining quantity and the position closes.
func (d *Decider) decideTiers(event *types.TradeEvent, correlationID string, logger *zap.Logger) []types.TradeAction {
	ratio := event.PriceRatio()
	if ratio <= 0 {
		return nil
	}

	var actions []types.TradeAction
	for i, tier := range d.cfg.Tiers {
		pos, ok := d.store.Get(event.TokenMint)
		if !ok {
			break // closed by an earlier tier or a concurrent cycle
		}
		if pos.EntryRatio <= 0 || pos.TierApplied(i) {
			continue
		}
		multiple := ratio / pos.EntryRatio
		if multiple < tier.Multiplier {
			break // tiers are ascending, nothing further can fire
		}

		qty := uint64(math.Floor(float64(pos.EntryQty) * tier.SellPercent / 100))
		if qty == 0 {
			// Dust position: the percentage rounds to nothing. Sell one base
			// unit so the tier still applies exactly once instead of silently
			// liquidating the whole holding.
			qty = 1
		}
		if qty > pos.Quantity {
			qty = pos.Quantity
		}

		committed, err := d.store.Apply(event.TokenMint, position.RecordExit(qty, i))
		if err != nil {
			if !errors.Is(err, position.ErrTierAlreadyApplied) {
				logger.Debug("tier exit rejected by store", zap.Error(err))
			}
			continue
		}

		logger.Info("take-profit tier fired",
			zap.Int("tier", i),
			zap.Float64("multiple", multiple),
			zap.Float64("sell_percent", tier.SellPercent),
			zap.Uint64("quantity", qty),
			zap.Stringer("status", committed.Status))

		actions = append(actions, types.TradeAction{
			Kind:              types.ActionExitTier,
			Venue:             event.Venue,
			TokenMint:         event.TokenMint,
			SellPercent:       tier.SellPercent,
			Quantity:          qty,
			TierIndex:         i,
			CloseTokenAccount: committed.Status == position.StatusClosed,
			Tip:               types.TipNormal,
			Slot:              event.Slot,
			CorrelationID:     correlationID,
		})

		if committed.Status == position.StatusClosed {
			break
		}
	}
	return actions
}
