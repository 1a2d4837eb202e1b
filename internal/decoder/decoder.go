// internal/decoder/decoder.go
package decoder

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/PietroScorza/copytrade-bot/internal/types"
)

// RawInstruction is one opaque instruction from the feed. Account references
// are indexes into the transaction's AccountKeys, the standard Solana message
// encoding.
type RawInstruction struct {
	ProgramIDIndex uint16
	AccountIndexes []uint16
	Data           []byte
}

// TokenBalance resolves a token account key to its mint and owner. Enriched
// feeds ship this alongside the message (pre/post token balances); without it
// only venues that carry the mint in the account list can be decoded.
type TokenBalance struct {
	AccountIndex uint16
	Mint         solana.PublicKey
	Owner        solana.PublicKey
}

// RawTransaction is the data contract with the ingestion collaborator: one
// observed transaction for the subscribed account filter.
type RawTransaction struct {
	Slot          uint64
	Signature     solana.Signature
	AccountKeys   []solana.PublicKey
	Instructions  []RawInstruction
	TokenBalances []TokenBalance
	Timestamp     time.Time
}

// DecodeError is a recoverable, instruction-scoped decode failure: the
// instruction tag was recognized but its payload or account layout was not
// usable. It never aborts decoding of sibling instructions.
type DecodeError struct {
	Venue  types.Venue
	Index  int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s instruction %d: %s", e.Venue, e.Index, e.Reason)
}

// venueDecoder turns one recognized instruction into a trade event.
// Returning (nil, nil) means the tag is not a swap and must be skipped.
type venueDecoder func(ctx *instructionContext) (*types.TradeEvent, error)

// instructionContext bundles everything a venue decoder needs to interpret a
// single instruction.
type instructionContext struct {
	tx    *RawTransaction
	ix    *RawInstruction
	index int
	venue types.Venue
}

// account resolves the i-th account reference of the instruction, or false
// when the index is out of range (malformed layout).
func (c *instructionContext) account(i int) (solana.PublicKey, bool) {
	if i >= len(c.ix.AccountIndexes) {
		return solana.PublicKey{}, false
	}
	keyIdx := c.ix.AccountIndexes[i]
	if int(keyIdx) >= len(c.tx.AccountKeys) {
		return solana.PublicKey{}, false
	}
	return c.tx.AccountKeys[keyIdx], true
}

// tokenMintOf looks up the mint backing a token account via the balance table.
func (c *instructionContext) tokenMintOf(account solana.PublicKey) (solana.PublicKey, bool) {
	for _, tb := range c.tx.TokenBalances {
		if int(tb.AccountIndex) < len(c.tx.AccountKeys) &&
			c.tx.AccountKeys[tb.AccountIndex] == account {
			return tb.Mint, true
		}
	}
	return solana.PublicKey{}, false
}

func (c *instructionContext) errf(format string, args ...interface{}) *DecodeError {
	return &DecodeError{Venue: c.venue, Index: c.index, Reason: fmt.Sprintf(format, args...)}
}

// event fills the venue-independent fields shared by all decoders.
func (c *instructionContext) event(dir types.Direction, mint solana.PublicKey, in, out uint64) *types.TradeEvent {
	return &types.TradeEvent{
		Venue:      c.venue,
		TokenMint:  mint,
		Direction:  dir,
		AmountIn:   in,
		AmountOut:  out,
		Slot:       c.tx.Slot,
		Signature:  c.tx.Signature,
		ObservedAt: c.tx.Timestamp,
	}
}

// Decoder turns raw transactions into canonical trade events. The venue set
// is closed: decoders are registered once at construction and keyed by
// program id.
type Decoder struct {
	decoders map[types.Venue]venueDecoder
	logger   *zap.Logger
}

func New(logger *zap.Logger) *Decoder {
	return &Decoder{
		decoders: map[types.Venue]venueDecoder{
			types.VenueRaydiumAMM:    decodeRaydium,
			types.VenuePumpFun:       decodePumpFun,
			types.VenueJupiter:       decodeJupiter,
			types.VenueOrcaWhirlpool: decodeOrca,
		},
		logger: logger.Named("decoder"),
	}
}

// Decode walks the instruction list and returns every swap it can interpret.
// A transaction with no recognized instruction yields an empty slice, not an
// error. Malformed instructions are logged and skipped so a bad leg never
// hides its siblings.
func (d *Decoder) Decode(tx *RawTransaction) []*types.TradeEvent {
	var events []*types.TradeEvent

	for i := range tx.Instructions {
		ix := &tx.Instructions[i]
		if int(ix.ProgramIDIndex) >= len(tx.AccountKeys) {
			d.logger.Warn("instruction references missing program id",
				zap.Stringer("signature", tx.Signature),
				zap.Int("instruction", i))
			continue
		}

		venue := types.VenueFromProgramID(tx.AccountKeys[ix.ProgramIDIndex])
		decode, ok := d.decoders[venue]
		if !ok {
			continue
		}

		ctx := &instructionContext{tx: tx, ix: ix, index: i, venue: venue}
		ev, err := decode(ctx)
		if err != nil {
			d.logger.Warn("skipping undecodable instruction",
				zap.Stringer("signature", tx.Signature),
				zap.Error(err))
			continue
		}
		if ev == nil {
			// Recognized program, non-swap tag.
			continue
		}

		events = append(events, ev)
		d.logger.Debug("decoded trade",
			zap.Stringer("venue", venue),
			zap.Stringer("token", ev.TokenMint),
			zap.Stringer("direction", ev.Direction),
			zap.Uint64("amount_in", ev.AmountIn),
			zap.Uint64("amount_out", ev.AmountOut),
			zap.Uint64("slot", ev.Slot))
	}

	return events
}
