// internal/bundle/builder_test.go
package bundle

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PietroScorza/copytrade-bot/internal/dex"
	"github.com/PietroScorza/copytrade-bot/internal/dex/pumpfun"
	"github.com/PietroScorza/copytrade-bot/internal/types"
	"github.com/PietroScorza/copytrade-bot/internal/wallet"
)

type staticBlockhash struct {
	hash solana.Hash
}

func (s staticBlockhash) LatestBlockhash(context.Context) (solana.Hash, error) {
	return s.hash, nil
}

func newTestBuilder(t *testing.T, tips TipConfig) *Builder {
	t.Helper()
	w, err := wallet.New(solana.NewWallet().PrivateKey.String())
	require.NoError(t, err)

	logger := zap.NewNop()
	registry := dex.NewRegistry(logger, pumpfun.NewBuilder(logger))
	return NewBuilder(w, registry, staticBlockhash{hash: solana.Hash{7}}, BuilderConfig{
		Tips:                          tips,
		SlippageBps:                   500,
		ComputeUnitLimit:              200_000,
		ComputeUnitPriceMicroLamports: 1_000,
	}, logger)
}

func enterAction(mint solana.PublicKey, correlationID string) types.TradeAction {
	return types.TradeAction{
		Kind:          types.ActionEnter,
		Venue:         types.VenuePumpFun,
		TokenMint:     mint,
		SolAmount:     1_000_000,
		Quantity:      500,
		Tip:           types.TipNormal,
		Slot:          1000,
		CorrelationID: correlationID,
	}
}

func emergencyAction(mint solana.PublicKey, correlationID string) types.TradeAction {
	return types.TradeAction{
		Kind:          types.ActionEmergencyExit,
		Venue:         types.VenuePumpFun,
		TokenMint:     mint,
		SellPercent:   100,
		Quantity:      500,
		TierIndex:     -1,
		Tip:           types.TipEmergency,
		Slot:          1001,
		CorrelationID: correlationID,
	}
}

func TestBuildSingleAction(t *testing.T) {
	b := newTestBuilder(t, DefaultTipConfig())
	mint := solana.NewWallet().PublicKey()

	bundles, err := b.Build(context.Background(), []types.TradeAction{enterAction(mint, "c1")})
	require.NoError(t, err)
	require.Len(t, bundles, 1)

	bundle := bundles[0]
	// One trade transaction plus the tip transfer.
	assert.Len(t, bundle.Transactions, 2)
	assert.Equal(t, types.TipNormal, bundle.TipLevel)
	assert.Equal(t, uint64(10_000), bundle.TipLamports)
	assert.Equal(t, "c1", bundle.CorrelationID)
	assert.Equal(t, mint, bundle.TokenMint)
	assert.Equal(t, uint64(1000), bundle.SlotStart)
	assert.Greater(t, bundle.SlotEnd, bundle.SlotStart)

	// Every transaction must be signed and serializable.
	for _, tx := range bundle.Transactions {
		raw, err := tx.MarshalBinary()
		require.NoError(t, err)
		assert.NotEmpty(t, raw)
	}
}

func TestBuildGroupsByCorrelation(t *testing.T) {
	b := newTestBuilder(t, DefaultTipConfig())
	mintA := solana.NewWallet().PublicKey()
	mintB := solana.NewWallet().PublicKey()

	bundles, err := b.Build(context.Background(), []types.TradeAction{
		enterAction(mintA, "c1"),
		enterAction(mintB, "c2"),
	})
	require.NoError(t, err)
	require.Len(t, bundles, 2)
	assert.Equal(t, "c1", bundles[0].CorrelationID)
	assert.Equal(t, "c2", bundles[1].CorrelationID)
}

func TestBuildOrdersEmergencyFirst(t *testing.T) {
	b := newTestBuilder(t, DefaultTipConfig())
	mintA := solana.NewWallet().PublicKey()
	mintB := solana.NewWallet().PublicKey()

	bundles, err := b.Build(context.Background(), []types.TradeAction{
		enterAction(mintA, "normal"),
		emergencyAction(mintB, "urgent"),
	})
	require.NoError(t, err)
	require.Len(t, bundles, 2)

	assert.Equal(t, "urgent", bundles[0].CorrelationID)
	assert.Equal(t, types.TipEmergency, bundles[0].TipLevel)
	assert.Equal(t, uint64(100_000), bundles[0].TipLamports)
	assert.Equal(t, "normal", bundles[1].CorrelationID)
}

func TestBuildSplitsOversizedGroup(t *testing.T) {
	b := newTestBuilder(t, DefaultTipConfig())
	mint := solana.NewWallet().PublicKey()

	// Five actions with one correlation id exceed the per-bundle budget of
	// four trade transactions plus tip.
	actions := make([]types.TradeAction, 5)
	for i := range actions {
		actions[i] = enterAction(mint, "big")
	}

	bundles, err := b.Build(context.Background(), actions)
	require.NoError(t, err)
	require.Len(t, bundles, 2)
	assert.Len(t, bundles[0].Transactions, 5) // 4 trades + tip
	assert.Len(t, bundles[1].Transactions, 2) // 1 trade + tip
}

func TestBuildEmptyInput(t *testing.T) {
	b := newTestBuilder(t, DefaultTipConfig())
	bundles, err := b.Build(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, bundles)
}

func TestRebuildBoostsTip(t *testing.T) {
	b := newTestBuilder(t, DefaultTipConfig())
	mint := solana.NewWallet().PublicKey()

	bundles, err := b.Build(context.Background(), []types.TradeAction{emergencyAction(mint, "c1")})
	require.NoError(t, err)
	require.Len(t, bundles, 1)
	require.Equal(t, uint64(100_000), bundles[0].TipLamports)

	fresh, ok, err := b.Rebuild(context.Background(), bundles[0])
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(200_000), fresh.TipLamports)
	assert.Equal(t, bundles[0].CorrelationID, fresh.CorrelationID)
	assert.Len(t, fresh.Transactions, len(bundles[0].Transactions))
}

func TestRebuildStopsAtTipCap(t *testing.T) {
	b := newTestBuilder(t, TipConfig{Normal: 10_000, Emergency: 500_000, Max: 500_000})
	mint := solana.NewWallet().PublicKey()

	bundles, err := b.Build(context.Background(), []types.TradeAction{emergencyAction(mint, "c1")})
	require.NoError(t, err)
	require.Equal(t, uint64(500_000), bundles[0].TipLamports)

	_, ok, err := b.Rebuild(context.Background(), bundles[0])
	require.NoError(t, err)
	assert.False(t, ok)
}
