// internal/decoder/raydium.go
package decoder

import (
	bin "github.com/gagliardetto/binary"

	"github.com/PietroScorza/copytrade-bot/internal/types"
)

// Raydium AMM v4 swap instruction tags.
const (
	raydiumSwapBaseIn  = 9
	raydiumSwapBaseOut = 11
)

// Raydium swap account layout: 17 accounts (18 with target orders), the last
// three being user source token account, user destination token account and
// the user authority.
const raydiumMinSwapAccounts = 17

// decodeRaydium interprets a Raydium AMM v4 swap. The payload is a single
// byte tag followed by two little-endian u64 amounts: amountIn/minAmountOut
// for swapBaseIn, maxAmountIn/amountOut for swapBaseOut.
func decodeRaydium(ctx *instructionContext) (*types.TradeEvent, error) {
	data := ctx.ix.Data
	if len(data) == 0 {
		return nil, nil
	}
	tag := data[0]
	if tag != raydiumSwapBaseIn && tag != raydiumSwapBaseOut {
		return nil, nil
	}

	dec := bin.NewBinDecoder(data[1:])
	amountIn, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return nil, ctx.errf("truncated swap payload: %v", err)
	}
	amountOut, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return nil, ctx.errf("truncated swap payload: %v", err)
	}

	n := len(ctx.ix.AccountIndexes)
	if n < raydiumMinSwapAccounts {
		return nil, ctx.errf("swap needs %d accounts, got %d", raydiumMinSwapAccounts, n)
	}

	userSource, ok := ctx.account(n - 3)
	if !ok {
		return nil, ctx.errf("unresolvable user source account")
	}
	userDest, ok := ctx.account(n - 2)
	if !ok {
		return nil, ctx.errf("unresolvable user destination account")
	}
	owner, ok := ctx.account(n - 1)
	if !ok {
		return nil, ctx.errf("unresolvable owner account")
	}

	sourceMint, haveSource := ctx.tokenMintOf(userSource)
	destMint, haveDest := ctx.tokenMintOf(userDest)
	if !haveSource || !haveDest {
		return nil, ctx.errf("token balance metadata missing for user accounts")
	}

	var ev *types.TradeEvent
	switch {
	case sourceMint == types.WSOLMint:
		ev = ctx.event(types.DirectionBuy, destMint, amountIn, amountOut)
	case destMint == types.WSOLMint:
		ev = ctx.event(types.DirectionSell, sourceMint, amountIn, amountOut)
	default:
		// Token-to-token swap, nothing to mirror.
		return nil, nil
	}
	ev.Trader = owner
	return ev, nil
}
