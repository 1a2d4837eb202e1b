// internal/decoder/decoder_test.go
package decoder

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PietroScorza/copytrade-bot/internal/types"
)

func key(seed byte) solana.PublicKey {
	var pk solana.PublicKey
	pk[0] = seed
	pk[31] = seed
	return pk
}

func u64le(vs ...uint64) []byte {
	out := make([]byte, 0, len(vs)*8)
	for _, v := range vs {
		out = binary.LittleEndian.AppendUint64(out, v)
	}
	return out
}

// buildTx assembles a single-instruction transaction. The program id becomes
// account key 0; the instruction accounts follow in order. balances maps an
// instruction-account position to the mint backing that token account.
func buildTx(programID solana.PublicKey, data []byte, accounts []solana.PublicKey, balances map[int]solana.PublicKey) *RawTransaction {
	keys := append([]solana.PublicKey{programID}, accounts...)
	indexes := make([]uint16, len(accounts))
	for i := range accounts {
		indexes[i] = uint16(i + 1)
	}

	var tb []TokenBalance
	for pos, mint := range balances {
		tb = append(tb, TokenBalance{
			AccountIndex: uint16(pos + 1),
			Mint:         mint,
			Owner:        key(0xEE),
		})
	}

	return &RawTransaction{
		Slot:        12345,
		Signature:   solana.Signature{1},
		AccountKeys: keys,
		Instructions: []RawInstruction{{
			ProgramIDIndex: 0,
			AccountIndexes: indexes,
			Data:           data,
		}},
		TokenBalances: tb,
		Timestamp:     time.Now(),
	}
}

// raydiumAccounts returns a 17-account swap layout with the given user
// source, destination and owner in the trailing positions.
func raydiumAccounts(source, dest, owner solana.PublicKey) []solana.PublicKey {
	accounts := make([]solana.PublicKey, 17)
	for i := range accounts {
		accounts[i] = key(byte(0x40 + i))
	}
	accounts[14] = source
	accounts[15] = dest
	accounts[16] = owner
	return accounts
}

func TestDecodeRaydiumBuy(t *testing.T) {
	d := New(zap.NewNop())
	tokenMint := key(0xA1)
	wsolAcc, tokenAcc, owner := key(0x01), key(0x02), key(0x03)

	data := append([]byte{9}, u64le(1_000_000, 500)...)
	tx := buildTx(types.RaydiumAMMProgramID, data,
		raydiumAccounts(wsolAcc, tokenAcc, owner),
		map[int]solana.PublicKey{14: types.WSOLMint, 15: tokenMint})

	events := d.Decode(tx)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, types.VenueRaydiumAMM, ev.Venue)
	assert.Equal(t, types.DirectionBuy, ev.Direction)
	assert.Equal(t, tokenMint, ev.TokenMint)
	assert.Equal(t, owner, ev.Trader)
	assert.Equal(t, uint64(1_000_000), ev.AmountIn)
	assert.Equal(t, uint64(500), ev.AmountOut)
	assert.Equal(t, uint64(12345), ev.Slot)
}

func TestDecodeRaydiumSell(t *testing.T) {
	d := New(zap.NewNop())
	tokenMint := key(0xA2)
	tokenAcc, wsolAcc, owner := key(0x01), key(0x02), key(0x03)

	data := append([]byte{11}, u64le(500, 900_000)...)
	tx := buildTx(types.RaydiumAMMProgramID, data,
		raydiumAccounts(tokenAcc, wsolAcc, owner),
		map[int]solana.PublicKey{14: tokenMint, 15: types.WSOLMint})

	events := d.Decode(tx)
	require.Len(t, events, 1)
	assert.Equal(t, types.DirectionSell, events[0].Direction)
	assert.Equal(t, tokenMint, events[0].TokenMint)
}

func TestDecodeRaydiumSkipsTokenToToken(t *testing.T) {
	d := New(zap.NewNop())
	data := append([]byte{9}, u64le(100, 100)...)
	tx := buildTx(types.RaydiumAMMProgramID, data,
		raydiumAccounts(key(0x01), key(0x02), key(0x03)),
		map[int]solana.PublicKey{14: key(0xB1), 15: key(0xB2)})

	assert.Empty(t, d.Decode(tx))
}

func TestDecodeRaydiumSkipsNonSwapTag(t *testing.T) {
	d := New(zap.NewNop())
	// Tag 1 is pool initialization, not a swap.
	data := append([]byte{1}, u64le(100, 100)...)
	tx := buildTx(types.RaydiumAMMProgramID, data,
		raydiumAccounts(key(0x01), key(0x02), key(0x03)), nil)

	assert.Empty(t, d.Decode(tx))
}

func TestDecodeRaydiumMalformedSkipped(t *testing.T) {
	d := New(zap.NewNop())
	// Truncated payload: tag only.
	tx := buildTx(types.RaydiumAMMProgramID, []byte{9},
		raydiumAccounts(key(0x01), key(0x02), key(0x03)), nil)
	assert.Empty(t, d.Decode(tx))

	// Too few accounts.
	data := append([]byte{9}, u64le(100, 100)...)
	tx = buildTx(types.RaydiumAMMProgramID, data,
		[]solana.PublicKey{key(0x01), key(0x02)}, nil)
	assert.Empty(t, d.Decode(tx))
}

func pumpFunAccounts(mint, user solana.PublicKey) []solana.PublicKey {
	accounts := make([]solana.PublicKey, 12)
	for i := range accounts {
		accounts[i] = key(byte(0x60 + i))
	}
	accounts[2] = mint
	accounts[6] = user
	return accounts
}

func TestDecodePumpFunBuy(t *testing.T) {
	d := New(zap.NewNop())
	mint, user := key(0xC1), key(0xC2)

	data := append([]byte{0x66, 0x06, 0x3d, 0x12, 0x01, 0xda, 0xeb, 0xea},
		u64le(1_000_000, 50_000)...) // tokenAmount, maxSolCost
	tx := buildTx(types.PumpFunProgramID, data, pumpFunAccounts(mint, user), nil)

	events := d.Decode(tx)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, types.VenuePumpFun, ev.Venue)
	assert.Equal(t, types.DirectionBuy, ev.Direction)
	assert.Equal(t, mint, ev.TokenMint)
	assert.Equal(t, user, ev.Trader)
	assert.Equal(t, uint64(50_000), ev.AmountIn)
	assert.Equal(t, uint64(1_000_000), ev.AmountOut)
}

func TestDecodePumpFunSell(t *testing.T) {
	d := New(zap.NewNop())
	mint, user := key(0xC3), key(0xC4)

	data := append([]byte{0x33, 0xe6, 0x85, 0xa4, 0x01, 0x7f, 0x83, 0xad},
		u64le(1_000_000, 40_000)...) // tokenAmount, minSolOutput
	tx := buildTx(types.PumpFunProgramID, data, pumpFunAccounts(mint, user), nil)

	events := d.Decode(tx)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, types.DirectionSell, ev.Direction)
	assert.Equal(t, uint64(1_000_000), ev.AmountIn)
	assert.Equal(t, uint64(40_000), ev.AmountOut)
}

func TestDecodePumpFunUnknownDiscriminatorSkipped(t *testing.T) {
	d := New(zap.NewNop())
	data := append([]byte{1, 2, 3, 4, 5, 6, 7, 8}, u64le(1, 1)...)
	tx := buildTx(types.PumpFunProgramID, data, pumpFunAccounts(key(1), key(2)), nil)
	assert.Empty(t, d.Decode(tx))
}

func TestDecodeJupiterRoute(t *testing.T) {
	d := New(zap.NewNop())
	tokenMint := key(0xD1)
	authority, wsolAcc, tokenAcc := key(0xD2), key(0xD3), key(0xD4)

	// Discriminator, variable route plan filler, then the args tail:
	// inAmount + quotedOutAmount + slippageBps + platformFeeBps.
	data := []byte{0xe5, 0x17, 0xcb, 0x97, 0x7a, 0xe3, 0xad, 0x2a}
	data = append(data, []byte{0xAA, 0xBB, 0xCC}...)
	data = append(data, u64le(2_000_000, 800)...)
	data = append(data, 0xF4, 0x01) // 500 bps
	data = append(data, 0)

	accounts := []solana.PublicKey{
		solana.TokenProgramID, authority, wsolAcc, tokenAcc, key(0xD5),
	}
	tx := buildTx(types.JupiterProgramID, data, accounts,
		map[int]solana.PublicKey{2: types.WSOLMint, 3: tokenMint})

	events := d.Decode(tx)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, types.VenueJupiter, ev.Venue)
	assert.Equal(t, types.DirectionBuy, ev.Direction)
	assert.Equal(t, tokenMint, ev.TokenMint)
	assert.Equal(t, authority, ev.Trader)
	assert.Equal(t, uint64(2_000_000), ev.AmountIn)
	assert.Equal(t, uint64(800), ev.AmountOut)
}

func TestDecodeJupiterSharedRouteSell(t *testing.T) {
	d := New(zap.NewNop())
	tokenMint := key(0xD6)
	authority, tokenAcc, wsolAcc := key(0xD7), key(0xD8), key(0xD9)

	data := []byte{0xc1, 0x20, 0x9b, 0x33, 0x41, 0xd6, 0x9c, 0x81}
	data = append(data, u64le(800, 1_500_000)...)
	data = append(data, 0xF4, 0x01, 0)

	// token program, program authority, user authority, user source,
	// program source, program destination, user destination.
	accounts := []solana.PublicKey{
		solana.TokenProgramID, key(0xDA), authority, tokenAcc,
		key(0xDB), key(0xDC), wsolAcc,
	}
	tx := buildTx(types.JupiterProgramID, data, accounts,
		map[int]solana.PublicKey{3: tokenMint, 6: types.WSOLMint})

	events := d.Decode(tx)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, types.DirectionSell, ev.Direction)
	assert.Equal(t, tokenMint, ev.TokenMint)
	assert.Equal(t, authority, ev.Trader)
}

func orcaAccounts(authority, accountA, accountB solana.PublicKey) []solana.PublicKey {
	accounts := make([]solana.PublicKey, 11)
	for i := range accounts {
		accounts[i] = key(byte(0x80 + i))
	}
	accounts[1] = authority
	accounts[3] = accountA
	accounts[5] = accountB
	return accounts
}

func TestDecodeOrcaBuy(t *testing.T) {
	d := New(zap.NewNop())
	tokenMint := key(0xE1)
	authority, wsolAcc, tokenAcc := key(0xE2), key(0xE3), key(0xE4)

	data := []byte{0xf8, 0xc6, 0x9e, 0x91, 0xe1, 0x75, 0x87, 0xc8}
	data = append(data, u64le(3_000_000, 1200)...)
	data = append(data, 1, 1) // aToB, amountSpecifiedIsInput

	tx := buildTx(types.OrcaWhirlpoolProgramID, data,
		orcaAccounts(authority, wsolAcc, tokenAcc),
		map[int]solana.PublicKey{3: types.WSOLMint, 5: tokenMint})

	events := d.Decode(tx)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, types.VenueOrcaWhirlpool, ev.Venue)
	assert.Equal(t, types.DirectionBuy, ev.Direction)
	assert.Equal(t, tokenMint, ev.TokenMint)
	assert.Equal(t, authority, ev.Trader)
	assert.Equal(t, uint64(3_000_000), ev.AmountIn)
	assert.Equal(t, uint64(1200), ev.AmountOut)
}

func TestDecodeOrcaSellBtoA(t *testing.T) {
	d := New(zap.NewNop())
	tokenMint := key(0xE5)
	authority, wsolAcc, tokenAcc := key(0xE6), key(0xE7), key(0xE8)

	// aToB=0: account B is the input side. amountSpecifiedIsInput=0 binds the
	// amount to the output.
	data := []byte{0xf8, 0xc6, 0x9e, 0x91, 0xe1, 0x75, 0x87, 0xc8}
	data = append(data, u64le(1_000_000, 400)...)
	data = append(data, 0, 0)

	tx := buildTx(types.OrcaWhirlpoolProgramID, data,
		orcaAccounts(authority, wsolAcc, tokenAcc),
		map[int]solana.PublicKey{3: types.WSOLMint, 5: tokenMint})

	events := d.Decode(tx)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, types.DirectionSell, ev.Direction)
	assert.Equal(t, tokenMint, ev.TokenMint)
	assert.Equal(t, uint64(400), ev.AmountIn)
	assert.Equal(t, uint64(1_000_000), ev.AmountOut)
}

func TestDecodeIgnoresUnknownPrograms(t *testing.T) {
	d := New(zap.NewNop())
	tx := buildTx(solana.SystemProgramID, u64le(42), []solana.PublicKey{key(1)}, nil)
	assert.Empty(t, d.Decode(tx))
}

func TestDecodeMultipleInstructions(t *testing.T) {
	d := New(zap.NewNop())
	mint, user := key(0xF1), key(0xF2)

	buy := append([]byte{0x66, 0x06, 0x3d, 0x12, 0x01, 0xda, 0xeb, 0xea}, u64le(100, 10)...)
	pumpTx := buildTx(types.PumpFunProgramID, buy, pumpFunAccounts(mint, user), nil)

	// Append a second, undecodable instruction; the first must still decode.
	pumpTx.AccountKeys = append(pumpTx.AccountKeys, solana.SystemProgramID)
	pumpTx.Instructions = append(pumpTx.Instructions, RawInstruction{
		ProgramIDIndex: uint16(len(pumpTx.AccountKeys) - 1),
		Data:           []byte{0x02},
	})

	events := d.Decode(pumpTx)
	require.Len(t, events, 1)
	assert.Equal(t, mint, events[0].TokenMint)
}
