// internal/bundle/builder.go
package bundle

import (
	"context"
	"fmt"
	"sort"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/system"
	"go.uber.org/zap"

	"github.com/PietroScorza/copytrade-bot/internal/dex"
	"github.com/PietroScorza/copytrade-bot/internal/types"
	"github.com/PietroScorza/copytrade-bot/internal/wallet"
)

// maxBundleTransactions is the Jito block-engine limit per bundle. One slot
// is always reserved for the tip transfer.
const maxBundleTransactions = 5

// blockhashValiditySlots bounds how far past the observed slot a bundle is
// still worth landing; beyond it the signed blockhash has expired anyway.
const blockhashValiditySlots = 150

// BlockhashProvider supplies a recent blockhash for signing.
type BlockhashProvider interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
}

// Bundle is an ordered group of signed transactions submitted atomically.
// Actions are retained so an emergency bundle can be rebuilt with a fresh
// blockhash and a boosted tip.
type Bundle struct {
	Transactions []*solana.Transaction
	Actions      []types.TradeAction

	TokenMint     solana.PublicKey
	CorrelationID string
	TipLevel      types.TipLevel
	TipLamports   uint64

	// Target slot window the bundle is valid for.
	SlotStart uint64
	SlotEnd   uint64
}

// Builder turns decided trade actions into signed Jito bundles.
type Builder struct {
	wallet     *wallet.Wallet
	registry   *dex.Registry
	blockhash  BlockhashProvider
	tips       TipConfig
	slippage   uint16
	cuLimit    uint32
	cuPriceMic uint64
	logger     *zap.Logger
}

// BuilderConfig carries the tunables for bundle assembly.
type BuilderConfig struct {
	Tips             TipConfig
	SlippageBps      uint16
	ComputeUnitLimit uint32
	// Priority fee in micro-lamports per compute unit, applied on top of the
	// Jito tip so the leader also sees the transactions as worth including.
	ComputeUnitPriceMicroLamports uint64
}

func NewBuilder(w *wallet.Wallet, registry *dex.Registry, blockhash BlockhashProvider, cfg BuilderConfig, logger *zap.Logger) *Builder {
	return &Builder{
		wallet:     w,
		registry:   registry,
		blockhash:  blockhash,
		tips:       cfg.Tips,
		slippage:   cfg.SlippageBps,
		cuLimit:    cfg.ComputeUnitLimit,
		cuPriceMic: cfg.ComputeUnitPriceMicroLamports,
		logger:     logger.Named("bundle"),
	}
}

// Build assembles one or more bundles from a batch of decided actions.
// Emergency actions are ordered ahead of normal ones; actions sharing a
// correlation ID land in the same bundle when the transaction limit allows.
// All transactions in a batch share one fetched blockhash.
func (b *Builder) Build(ctx context.Context, actions []types.TradeAction) ([]*Bundle, error) {
	if len(actions) == 0 {
		return nil, nil
	}

	ordered := make([]types.TradeAction, len(actions))
	copy(ordered, actions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Tip == types.TipEmergency && ordered[j].Tip != types.TipEmergency
	})

	blockhash, err := b.blockhash.LatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch blockhash: %w", err)
	}

	var bundles []*Bundle
	for _, group := range groupByCorrelation(ordered) {
		for len(group) > 0 {
			chunk := group
			if len(chunk) > maxBundleTransactions-1 {
				chunk = chunk[:maxBundleTransactions-1]
			}
			group = group[len(chunk):]

			bundle, err := b.buildOne(ctx, chunk, blockhash, 0)
			if err != nil {
				return nil, err
			}
			bundles = append(bundles, bundle)
		}
	}
	return bundles, nil
}

// Rebuild re-signs the bundle's actions with a fresh blockhash and a boosted
// tip. It returns ok=false when the tip cap is exhausted.
func (b *Builder) Rebuild(ctx context.Context, prev *Bundle) (*Bundle, bool, error) {
	tip, ok := b.tips.BoostedTip(prev.TipLamports)
	if !ok {
		return nil, false, nil
	}
	blockhash, err := b.blockhash.LatestBlockhash(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("fetch blockhash: %w", err)
	}
	bundle, err := b.buildOne(ctx, prev.Actions, blockhash, tip)
	if err != nil {
		return nil, false, err
	}
	return bundle, true, nil
}

func (b *Builder) buildOne(ctx context.Context, actions []types.TradeAction, blockhash solana.Hash, tipOverride uint64) (*Bundle, error) {
	level := types.TipNormal
	slotStart := actions[0].Slot
	for _, a := range actions {
		if a.Tip == types.TipEmergency {
			level = types.TipEmergency
		}
		if a.Slot < slotStart {
			slotStart = a.Slot
		}
	}
	tip := tipOverride
	if tip == 0 {
		tip = b.tips.TipFor(level)
	}

	txs := make([]*solana.Transaction, 0, len(actions)+1)
	for i := range actions {
		tx, err := b.buildActionTransaction(ctx, &actions[i], blockhash)
		if err != nil {
			return nil, fmt.Errorf("build transaction for %s %s: %w", actions[i].Kind, actions[i].TokenMint, err)
		}
		txs = append(txs, tx)
	}

	tipTx, err := b.buildTipTransaction(tip, blockhash)
	if err != nil {
		return nil, fmt.Errorf("build tip transaction: %w", err)
	}
	txs = append(txs, tipTx)

	bundle := &Bundle{
		Transactions:  txs,
		Actions:       actions,
		TokenMint:     actions[0].TokenMint,
		CorrelationID: actions[0].CorrelationID,
		TipLevel:      level,
		TipLamports:   tip,
		SlotStart:     slotStart,
		SlotEnd:       slotStart + blockhashValiditySlots,
	}

	b.logger.Debug("assembled bundle",
		zap.String("correlation_id", bundle.CorrelationID),
		zap.Stringer("mint", bundle.TokenMint),
		zap.Int("transactions", len(txs)),
		zap.Uint64("tip_lamports", tip),
		zap.Stringer("tip_level", level))

	return bundle, nil
}

func (b *Builder) buildActionTransaction(ctx context.Context, action *types.TradeAction, blockhash solana.Hash) (*solana.Transaction, error) {
	swapIxs, err := b.registry.BuildSwap(ctx, action, b.wallet.PublicKey, b.slippage)
	if err != nil {
		return nil, err
	}

	ixs := make([]solana.Instruction, 0, len(swapIxs)+2)
	ixs = append(ixs,
		computebudget.NewSetComputeUnitLimitInstruction(b.cuLimit).Build(),
		computebudget.NewSetComputeUnitPriceInstruction(b.cuPriceMic).Build(),
	)
	ixs = append(ixs, swapIxs...)

	return b.signTransaction(ixs, blockhash)
}

func (b *Builder) buildTipTransaction(lamports uint64, blockhash solana.Hash) (*solana.Transaction, error) {
	transfer := system.NewTransferInstruction(lamports, b.wallet.PublicKey, RandomTipAccount()).Build()
	return b.signTransaction([]solana.Instruction{transfer}, blockhash)
}

func (b *Builder) signTransaction(ixs []solana.Instruction, blockhash solana.Hash) (*solana.Transaction, error) {
	tx, err := solana.NewTransaction(ixs, blockhash, solana.TransactionPayer(b.wallet.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("assemble transaction: %w", err)
	}
	if err := b.wallet.SignTransaction(tx); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return tx, nil
}

// groupByCorrelation partitions actions into runs sharing a correlation ID,
// preserving the incoming order of groups.
func groupByCorrelation(actions []types.TradeAction) [][]types.TradeAction {
	var groups [][]types.TradeAction
	index := make(map[string]int)
	for _, a := range actions {
		i, ok := index[a.CorrelationID]
		if !ok {
			index[a.CorrelationID] = len(groups)
			groups = append(groups, []types.TradeAction{a})
			continue
		}
		groups[i] = append(groups[i], a)
	}
	return groups
}
