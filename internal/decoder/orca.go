// internal/decoder/orca.go
package decoder

import (
	"bytes"

	bin "github.com/gagliardetto/binary"

	"github.com/PietroScorza/copytrade-bot/internal/types"
)

// Orca Whirlpool swap anchor discriminator.
var orcaSwapDiscriminator = []byte{0xf8, 0xc6, 0x9e, 0x91, 0xe1, 0x75, 0x87, 0xc8}

// Swap account layout: token program, token authority, whirlpool, user token
// account A, vault A, user token account B, vault B, three tick arrays,
// oracle.
const (
	orcaMinSwapAccounts = 11
	orcaAuthorityIdx    = 1
	orcaUserAccountAIdx = 3
	orcaUserAccountBIdx = 5
)

// decodeOrca interprets a Whirlpool swap: amount(u64), otherAmountThreshold
// (u64), then the aToB and amountSpecifiedIsInput flags. aToB fixes which of
// the two user token accounts is the input side.
func decodeOrca(ctx *instructionContext) (*types.TradeEvent, error) {
	data := ctx.ix.Data
	if len(data) < 8 || !bytes.Equal(data[:8], orcaSwapDiscriminator) {
		return nil, nil
	}
	if len(data) < 26 {
		return nil, ctx.errf("swap payload too short: %d bytes", len(data))
	}

	dec := bin.NewBinDecoder(data[8:24])
	amount, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return nil, ctx.errf("unreadable swap amounts: %v", err)
	}
	threshold, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return nil, ctx.errf("unreadable swap amounts: %v", err)
	}
	aToB := data[24] != 0
	amountIsInput := data[25] != 0

	if len(ctx.ix.AccountIndexes) < orcaMinSwapAccounts {
		return nil, ctx.errf("swap needs %d accounts, got %d",
			orcaMinSwapAccounts, len(ctx.ix.AccountIndexes))
	}
	authority, ok := ctx.account(orcaAuthorityIdx)
	if !ok {
		return nil, ctx.errf("unresolvable token authority account")
	}
	accountA, ok := ctx.account(orcaUserAccountAIdx)
	if !ok {
		return nil, ctx.errf("unresolvable token account A")
	}
	accountB, ok := ctx.account(orcaUserAccountBIdx)
	if !ok {
		return nil, ctx.errf("unresolvable token account B")
	}

	input, output := accountA, accountB
	if !aToB {
		input, output = accountB, accountA
	}
	inputMint, haveIn := ctx.tokenMintOf(input)
	outputMint, haveOut := ctx.tokenMintOf(output)
	if !haveIn || !haveOut {
		return nil, ctx.errf("token balance metadata missing for swap accounts")
	}

	// amount binds whichever side was specified; the threshold bounds the
	// other one.
	amountIn, amountOut := amount, threshold
	if !amountIsInput {
		amountIn, amountOut = threshold, amount
	}

	var ev *types.TradeEvent
	switch {
	case inputMint == types.WSOLMint:
		ev = ctx.event(types.DirectionBuy, outputMint, amountIn, amountOut)
	case outputMint == types.WSOLMint:
		ev = ctx.event(types.DirectionSell, inputMint, amountIn, amountOut)
	default:
		return nil, nil
	}
	ev.Trader = authority
	return ev, nil
}
