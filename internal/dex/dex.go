// internal/dex/dex.go
package dex

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/PietroScorza/copytrade-bot/internal/dex/pumpfun"
	"github.com/PietroScorza/copytrade-bot/internal/dex/raydium"
	"github.com/PietroScorza/copytrade-bot/internal/types"
)

// InstructionBuilder produces the venue-specific swap instructions for one
// trade action. Builders are stateless; pool/account discovery is injected.
type InstructionBuilder interface {
	Venue() types.Venue
	BuildSwap(ctx context.Context, action *types.TradeAction, owner solana.PublicKey, slippageBps uint16) ([]solana.Instruction, error)
}

// Registry maps venues to their instruction builders. The venue set is closed
// and known at construction.
type Registry struct {
	builders map[types.Venue]InstructionBuilder
	logger   *zap.Logger
}

func NewRegistry(logger *zap.Logger, builders ...InstructionBuilder) *Registry {
	r := &Registry{
		builders: make(map[types.Venue]InstructionBuilder, len(builders)),
		logger:   logger.Named("dex"),
	}
	for _, b := range builders {
		r.builders[b.Venue()] = b
	}
	return r
}

// DefaultRegistry wires the builders the pipeline ships with. Jupiter and
// Orca trades are executed through the Pump.fun/Raydium side of the pair when
// observed; routing across venues is out of scope.
func DefaultRegistry(logger *zap.Logger, pools raydium.PoolResolver) *Registry {
	return NewRegistry(logger,
		pumpfun.NewBuilder(logger),
		raydium.NewBuilder(pools, logger),
	)
}

// BuildSwap dispatches to the builder registered for the action's venue,
// falling back to the Raydium AMM builder for aggregator-routed trades.
func (r *Registry) BuildSwap(ctx context.Context, action *types.TradeAction, owner solana.PublicKey, slippageBps uint16) ([]solana.Instruction, error) {
	b, ok := r.builders[action.Venue]
	if !ok {
		b, ok = r.builders[types.VenueRaydiumAMM]
		if !ok {
			return nil, fmt.Errorf("no instruction builder for venue %s", action.Venue)
		}
		r.logger.Debug("no builder for venue, using raydium fallback",
			zap.Stringer("venue", action.Venue))
	}
	return b.BuildSwap(ctx, action, owner, slippageBps)
}
