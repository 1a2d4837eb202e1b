// internal/decoder/jupiter.go
package decoder

import (
	"bytes"

	bin "github.com/gagliardetto/binary"

	"github.com/PietroScorza/copytrade-bot/internal/types"
)

// Jupiter v6 anchor discriminators for the two routing entrypoints.
var (
	jupiterRouteDiscriminator       = []byte{0xe5, 0x17, 0xcb, 0x97, 0x7a, 0xe3, 0xad, 0x2a}
	jupiterSharedRouteDiscriminator = []byte{0xc1, 0x20, 0x9b, 0x33, 0x41, 0xd6, 0x9c, 0x81}
)

// Route args end with inAmount(u64) + quotedOutAmount(u64) + slippageBps(u16)
// + platformFeeBps(u8). The route plan before them is variable-length, so the
// amounts are read from the payload tail.
const jupiterArgsTail = 8 + 8 + 2 + 1

// decodeJupiter interprets a Jupiter aggregator route. Only the top-level
// route amounts are used; the inner legs stay with their own programs and may
// be decoded separately when they appear as sibling instructions.
func decodeJupiter(ctx *instructionContext) (*types.TradeEvent, error) {
	data := ctx.ix.Data
	if len(data) < 8 {
		return nil, nil
	}

	var sourceIdx, destIdx, authorityIdx int
	switch {
	case bytes.Equal(data[:8], jupiterRouteDiscriminator):
		// token program, user authority, user source ATA, user destination ATA, ...
		authorityIdx, sourceIdx, destIdx = 1, 2, 3
	case bytes.Equal(data[:8], jupiterSharedRouteDiscriminator):
		// token program, program authority, user authority, user source ATA,
		// program source, program destination, user destination ATA, ...
		authorityIdx, sourceIdx, destIdx = 2, 3, 6
	default:
		return nil, nil
	}

	if len(data) < 8+jupiterArgsTail {
		return nil, ctx.errf("route payload too short for args tail")
	}
	dec := bin.NewBinDecoder(data[len(data)-jupiterArgsTail:])
	inAmount, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return nil, ctx.errf("unreadable route amounts: %v", err)
	}
	quotedOut, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return nil, ctx.errf("unreadable route amounts: %v", err)
	}

	authority, ok := ctx.account(authorityIdx)
	if !ok {
		return nil, ctx.errf("unresolvable user authority account")
	}
	userSource, ok := ctx.account(sourceIdx)
	if !ok {
		return nil, ctx.errf("unresolvable source token account")
	}
	userDest, ok := ctx.account(destIdx)
	if !ok {
		return nil, ctx.errf("unresolvable destination token account")
	}

	sourceMint, haveSource := ctx.tokenMintOf(userSource)
	destMint, haveDest := ctx.tokenMintOf(userDest)
	if !haveSource || !haveDest {
		return nil, ctx.errf("token balance metadata missing for route accounts")
	}

	var ev *types.TradeEvent
	switch {
	case sourceMint == types.WSOLMint:
		ev = ctx.event(types.DirectionBuy, destMint, inAmount, quotedOut)
	case destMint == types.WSOLMint:
		ev = ctx.event(types.DirectionSell, sourceMint, inAmount, quotedOut)
	default:
		return nil, nil
	}
	ev.Trader = authority
	return ev, nil
}
