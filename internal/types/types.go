// internal/types/types.go
package types

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// Venue identifies a DEX protocol whose instructions we can decode.
type Venue uint8

const (
	VenueUnknown Venue = iota
	VenueRaydiumAMM
	VenueJupiter
	VenuePumpFun
	VenueOrcaWhirlpool
)

// Mainnet program ids for the supported venues.
var (
	RaydiumAMMProgramID    = solana.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")
	JupiterProgramID       = solana.MustPublicKeyFromBase58("JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4")
	PumpFunProgramID       = solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")
	OrcaWhirlpoolProgramID = solana.MustPublicKeyFromBase58("whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc")

	// WSOLMint is the wrapped SOL mint used to tell which swap side is SOL.
	WSOLMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
)

// VenueFromProgramID maps a program id to a known venue.
func VenueFromProgramID(programID solana.PublicKey) Venue {
	switch programID {
	case RaydiumAMMProgramID:
		return VenueRaydiumAMM
	case JupiterProgramID:
		return VenueJupiter
	case PumpFunProgramID:
		return VenuePumpFun
	case OrcaWhirlpoolProgramID:
		return VenueOrcaWhirlpool
	default:
		return VenueUnknown
	}
}

func (v Venue) String() string {
	switch v {
	case VenueRaydiumAMM:
		return "raydium_amm"
	case VenueJupiter:
		return "jupiter"
	case VenuePumpFun:
		return "pumpfun"
	case VenueOrcaWhirlpool:
		return "orca_whirlpool"
	default:
		return "unknown"
	}
}

// Direction of a swap from the trader's point of view.
type Direction uint8

const (
	DirectionBuy Direction = iota + 1
	DirectionSell
)

func (d Direction) String() string {
	if d == DirectionBuy {
		return "buy"
	}
	return "sell"
}

// TradeEvent is the canonical, venue-agnostic representation of one observed
// swap by the monitored wallet. Amounts are integers in the smallest
// denomination (lamports for SOL, base units for the token).
type TradeEvent struct {
	Venue      Venue
	TokenMint  solana.PublicKey
	Trader     solana.PublicKey
	Direction  Direction
	AmountIn   uint64
	AmountOut  uint64
	Slot       uint64
	Signature  solana.Signature
	ObservedAt time.Time
}

// PriceRatio returns lamports per token base unit implied by this swap, or 0
// when the event carries no usable amounts (aggregator routes without
// decodable legs).
func (e *TradeEvent) PriceRatio() float64 {
	switch e.Direction {
	case DirectionBuy:
		if e.AmountOut == 0 {
			return 0
		}
		return float64(e.AmountIn) / float64(e.AmountOut)
	case DirectionSell:
		if e.AmountIn == 0 {
			return 0
		}
		return float64(e.AmountOut) / float64(e.AmountIn)
	}
	return 0
}

// TipLevel classifies the urgency of an outbound action. It selects which
// configured tip amount the bundle builder attaches.
type TipLevel uint8

const (
	TipNormal TipLevel = iota
	TipEmergency
)

func (t TipLevel) String() string {
	if t == TipEmergency {
		return "emergency"
	}
	return "normal"
}

// ActionKind discriminates TradeAction variants.
type ActionKind uint8

const (
	ActionEnter ActionKind = iota + 1
	ActionExitTier
	ActionEmergencyExit
)

func (k ActionKind) String() string {
	switch k {
	case ActionEnter:
		return "enter"
	case ActionExitTier:
		return "exit_tier"
	case ActionEmergencyExit:
		return "emergency_exit"
	default:
		return "unknown"
	}
}

// TradeAction is one outbound trade decided by the engine and consumed by the
// bundle builder.
type TradeAction struct {
	Kind      ActionKind
	Venue     Venue
	TokenMint solana.PublicKey

	// Enter only: lamports to commit.
	SolAmount uint64

	// Exit variants: share of the current holding to sell, 0 < percent <= 100,
	// and the tier that fired (ExitTier only).
	SellPercent float64
	TierIndex   int

	// Quantity is the token amount behind the action, resolved at decision
	// time: expected tokens out for an entry, tokens to sell for an exit.
	Quantity uint64

	// CloseTokenAccount marks an exit that empties the position: the token
	// account is closed afterwards to recover its rent.
	CloseTokenAccount bool

	Tip TipLevel

	// Slot of the triggering TradeEvent; same-token submissions preserve
	// slot order.
	Slot uint64

	// CorrelationID links the action back to its triggering event through
	// logs, bundles and the journal.
	CorrelationID string
}
