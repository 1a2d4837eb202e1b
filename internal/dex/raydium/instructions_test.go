// internal/dex/raydium/instructions_test.go
package raydium

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PietroScorza/copytrade-bot/internal/types"
)

func testPool() *Pool {
	return &Pool{
		AmmID:            solana.NewWallet().PublicKey(),
		AmmAuthority:     solana.NewWallet().PublicKey(),
		AmmOpenOrders:    solana.NewWallet().PublicKey(),
		AmmTargetOrders:  solana.NewWallet().PublicKey(),
		PoolCoinVault:    solana.NewWallet().PublicKey(),
		PoolPcVault:      solana.NewWallet().PublicKey(),
		SerumProgram:     solana.NewWallet().PublicKey(),
		SerumMarket:      solana.NewWallet().PublicKey(),
		SerumBids:        solana.NewWallet().PublicKey(),
		SerumAsks:        solana.NewWallet().PublicKey(),
		SerumEventQueue:  solana.NewWallet().PublicKey(),
		SerumCoinVault:   solana.NewWallet().PublicKey(),
		SerumPcVault:     solana.NewWallet().PublicKey(),
		SerumVaultSigner: solana.NewWallet().PublicKey(),
	}
}

func TestStaticPoolResolver(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	pool := testPool()
	r := NewStaticPoolResolver(map[solana.PublicKey]*Pool{mint: pool})

	got, err := r.ResolvePool(context.Background(), mint)
	require.NoError(t, err)
	assert.Equal(t, pool, got)

	_, err = r.ResolvePool(context.Background(), solana.NewWallet().PublicKey())
	assert.Error(t, err)
}

func TestBuildSwapEnter(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	pool := testPool()
	b := NewBuilder(NewStaticPoolResolver(map[solana.PublicKey]*Pool{mint: pool}), zap.NewNop())

	owner := solana.NewWallet().PublicKey()
	action := &types.TradeAction{
		Kind:      types.ActionEnter,
		Venue:     types.VenueRaydiumAMM,
		TokenMint: mint,
		SolAmount: 1_000_000,
		Quantity:  500,
	}

	ixs, err := b.BuildSwap(context.Background(), action, owner, 500)
	require.NoError(t, err)
	require.Len(t, ixs, 1)

	ix := ixs[0]
	assert.Equal(t, ProgramID, ix.ProgramID())

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 17)
	assert.Equal(t, byte(swapBaseIn), data[0])
	assert.Equal(t, uint64(1_000_000), binary.LittleEndian.Uint64(data[1:9]))
	// minAmountOut floors the expected quantity by the 5% tolerance.
	assert.Equal(t, uint64(475), binary.LittleEndian.Uint64(data[9:17]))

	accounts := ix.Accounts()
	require.Len(t, accounts, 18)
	assert.Equal(t, solana.TokenProgramID, accounts[0].PublicKey)
	assert.Equal(t, pool.AmmID, accounts[1].PublicKey)
	assert.Equal(t, owner, accounts[17].PublicKey)
	assert.True(t, accounts[17].IsSigner)

	// Entry flows SOL into the token: WSOL ATA as source, token ATA as dest.
	wsolATA, _, err := solana.FindAssociatedTokenAddress(owner, types.WSOLMint)
	require.NoError(t, err)
	tokenATA, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	assert.Equal(t, wsolATA, accounts[15].PublicKey)
	assert.Equal(t, tokenATA, accounts[16].PublicKey)
}

func TestBuildSwapExit(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	b := NewBuilder(NewStaticPoolResolver(map[solana.PublicKey]*Pool{mint: testPool()}), zap.NewNop())

	owner := solana.NewWallet().PublicKey()
	action := &types.TradeAction{
		Kind:      types.ActionEmergencyExit,
		Venue:     types.VenueRaydiumAMM,
		TokenMint: mint,
		Quantity:  500,
	}

	ixs, err := b.BuildSwap(context.Background(), action, owner, 500)
	require.NoError(t, err)

	data, err := ixs[0].Data()
	require.NoError(t, err)
	assert.Equal(t, uint64(500), binary.LittleEndian.Uint64(data[1:9]))
	assert.Equal(t, uint64(1), binary.LittleEndian.Uint64(data[9:17]))

	// Exit flows the token back into WSOL.
	wsolATA, _, err := solana.FindAssociatedTokenAddress(owner, types.WSOLMint)
	require.NoError(t, err)
	tokenATA, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	accounts := ixs[0].Accounts()
	assert.Equal(t, tokenATA, accounts[15].PublicKey)
	assert.Equal(t, wsolATA, accounts[16].PublicKey)
}

func TestBuildSwapClosesEmptiedTokenAccount(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	b := NewBuilder(NewStaticPoolResolver(map[solana.PublicKey]*Pool{mint: testPool()}), zap.NewNop())
	owner := solana.NewWallet().PublicKey()

	action := &types.TradeAction{
		Kind:              types.ActionEmergencyExit,
		Venue:             types.VenueRaydiumAMM,
		TokenMint:         mint,
		Quantity:          500,
		CloseTokenAccount: true,
	}

	ixs, err := b.BuildSwap(context.Background(), action, owner, 500)
	require.NoError(t, err)
	require.Len(t, ixs, 2)

	closeIx := ixs[1]
	assert.Equal(t, solana.TokenProgramID, closeIx.ProgramID())

	// Rent from the emptied ATA flows back to the owner.
	tokenATA, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	accounts := closeIx.Accounts()
	require.Len(t, accounts, 3)
	assert.Equal(t, tokenATA, accounts[0].PublicKey)
	assert.Equal(t, owner, accounts[1].PublicKey)
	assert.True(t, accounts[2].IsSigner)
}

func TestBuildSwapUnknownPool(t *testing.T) {
	b := NewBuilder(NewStaticPoolResolver(nil), zap.NewNop())
	action := &types.TradeAction{
		Kind:      types.ActionEnter,
		TokenMint: solana.NewWallet().PublicKey(),
		SolAmount: 1,
		Quantity:  1,
	}
	_, err := b.BuildSwap(context.Background(), action, solana.NewWallet().PublicKey(), 500)
	assert.Error(t, err)
}
