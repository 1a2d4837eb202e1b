// internal/decoder/pumpfun.go
package decoder

import (
	"bytes"

	bin "github.com/gagliardetto/binary"

	"github.com/PietroScorza/copytrade-bot/internal/types"
)

// Pump.fun anchor instruction discriminators.
var (
	pumpFunBuyDiscriminator  = []byte{0x66, 0x06, 0x3d, 0x12, 0x01, 0xda, 0xeb, 0xea}
	pumpFunSellDiscriminator = []byte{0x33, 0xe6, 0x85, 0xa4, 0x01, 0x7f, 0x83, 0xad}
)

// Bonding curve trade account layout: global, fee recipient, mint, bonding
// curve, associated bonding curve, user ATA, user, then program accounts.
const (
	pumpFunMinAccounts = 12
	pumpFunMintAccount = 2
	pumpFunUserAccount = 6
)

// decodePumpFun interprets a Pump.fun bonding curve trade. Direction comes
// straight from the discriminator; the mint sits at a fixed position in the
// account list. Buy data is (tokenAmount, maxSolCost), sell data is
// (tokenAmount, minSolOutput), both u64 little-endian after the 8-byte
// discriminator.
func decodePumpFun(ctx *instructionContext) (*types.TradeEvent, error) {
	data := ctx.ix.Data
	if len(data) < 8 {
		return nil, nil
	}

	var dir types.Direction
	switch {
	case bytes.Equal(data[:8], pumpFunBuyDiscriminator):
		dir = types.DirectionBuy
	case bytes.Equal(data[:8], pumpFunSellDiscriminator):
		dir = types.DirectionSell
	default:
		return nil, nil
	}

	dec := bin.NewBinDecoder(data[8:])
	tokenAmount, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return nil, ctx.errf("truncated trade payload: %v", err)
	}
	solThreshold, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return nil, ctx.errf("truncated trade payload: %v", err)
	}

	if len(ctx.ix.AccountIndexes) < pumpFunMinAccounts {
		return nil, ctx.errf("trade needs %d accounts, got %d",
			pumpFunMinAccounts, len(ctx.ix.AccountIndexes))
	}
	mint, ok := ctx.account(pumpFunMintAccount)
	if !ok {
		return nil, ctx.errf("unresolvable mint account")
	}
	user, ok := ctx.account(pumpFunUserAccount)
	if !ok {
		return nil, ctx.errf("unresolvable user account")
	}

	var ev *types.TradeEvent
	if dir == types.DirectionBuy {
		// SOL in (bounded by maxSolCost), tokens out.
		ev = ctx.event(types.DirectionBuy, mint, solThreshold, tokenAmount)
	} else {
		// Tokens in, SOL out (bounded below by minSolOutput).
		ev = ctx.event(types.DirectionSell, mint, tokenAmount, solThreshold)
	}
	ev.Trader = user
	return ev, nil
}
