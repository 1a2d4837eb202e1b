// internal/bundle/tip.go
package bundle

import (
	"math/rand"

	"github.com/gagliardetto/solana-go"

	"github.com/PietroScorza/copytrade-bot/internal/types"
)

// Official Jito tip accounts on mainnet. Tips are spread across them at
// random so bundles do not contend on a single account's write lock.
var jitoTipAccounts = []solana.PublicKey{
	solana.MustPublicKeyFromBase58("96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5"),
	solana.MustPublicKeyFromBase58("HFqU5x63VTqvQss8hp11i4bVqkfRtRhsMVYH4bM2vKW1"),
	solana.MustPublicKeyFromBase58("Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY"),
	solana.MustPublicKeyFromBase58("ADaUMid9yfUytqMBgopwjb2DTLSokTSzL1zt6iGPaS49"),
	solana.MustPublicKeyFromBase58("DfXygSm4jCyNCybVYYK6DwvWqjKee8pbDmJGcLWNDXjh"),
	solana.MustPublicKeyFromBase58("ADuUkR4vqLUMWXxW9gh6D6L8pMSawimctcNZ5pGwDcEt"),
	solana.MustPublicKeyFromBase58("DttWaMuVvTiduZRnguLF7jNxTgiMBZ1hyAumKUiL2KRL"),
	solana.MustPublicKeyFromBase58("3AVi9Tg9Uo68tJfuvoKvqKNWKkC5wPdSSdeBnizKZ6jT"),
}

// RandomTipAccount picks one of the Jito tip accounts.
func RandomTipAccount() solana.PublicKey {
	return jitoTipAccounts[rand.Intn(len(jitoTipAccounts))]
}

// TipConfig sizes bundle tips per urgency. Max is a hard cap: no tip ever
// exceeds it, and a retry that would need more is dropped instead.
type TipConfig struct {
	Normal    uint64
	Emergency uint64
	Max       uint64
}

// DefaultTipConfig mirrors conservative mainnet defaults.
func DefaultTipConfig() TipConfig {
	return TipConfig{
		Normal:    10_000,  // 0.00001 SOL
		Emergency: 100_000, // 0.0001 SOL
		Max:       500_000, // 0.0005 SOL
	}
}

// TipFor returns the lamports to attach for an urgency level, clamped to Max.
func (c TipConfig) TipFor(level types.TipLevel) uint64 {
	amount := c.Normal
	if level == types.TipEmergency {
		amount = c.Emergency
	}
	if amount > c.Max {
		amount = c.Max
	}
	return amount
}

// BoostedTip returns the escalated tip for a fresh retry, doubling the
// previous amount under the cap. ok is false when the previous attempt
// already paid the cap, meaning the cap is exhausted and the action must be
// dropped.
func (c TipConfig) BoostedTip(previous uint64) (uint64, bool) {
	if previous >= c.Max {
		return 0, false
	}
	boosted := previous * 2
	if boosted > c.Max {
		boosted = c.Max
	}
	return boosted, true
}
