// internal/dex/raydium/instructions.go
package raydium

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	token "github.com/gagliardetto/solana-go/programs/token"
	"go.uber.org/zap"

	"github.com/PietroScorza/copytrade-bot/internal/types"
)

// ProgramID is the Raydium AMM v4 program on mainnet.
var ProgramID = types.RaydiumAMMProgramID

// swapBaseIn is the AMM v4 swap instruction tag.
const swapBaseIn = 9

// Pool holds the account set of one SOL/token AMM pool. Discovery of these
// accounts (RPC pool scan or an off-chain index) lives with the resolver.
type Pool struct {
	AmmID            solana.PublicKey
	AmmAuthority     solana.PublicKey
	AmmOpenOrders    solana.PublicKey
	AmmTargetOrders  solana.PublicKey
	PoolCoinVault    solana.PublicKey
	PoolPcVault      solana.PublicKey
	SerumProgram     solana.PublicKey
	SerumMarket      solana.PublicKey
	SerumBids        solana.PublicKey
	SerumAsks        solana.PublicKey
	SerumEventQueue  solana.PublicKey
	SerumCoinVault   solana.PublicKey
	SerumPcVault     solana.PublicKey
	SerumVaultSigner solana.PublicKey
}

// PoolResolver supplies the pool account set for a token mint.
type PoolResolver interface {
	ResolvePool(ctx context.Context, mint solana.PublicKey) (*Pool, error)
}

// StaticPoolResolver serves pools from a fixed table, typically loaded from
// configuration.
type StaticPoolResolver struct {
	pools map[solana.PublicKey]*Pool
}

func NewStaticPoolResolver(pools map[solana.PublicKey]*Pool) *StaticPoolResolver {
	return &StaticPoolResolver{pools: pools}
}

func (r *StaticPoolResolver) ResolvePool(_ context.Context, mint solana.PublicKey) (*Pool, error) {
	p, ok := r.pools[mint]
	if !ok {
		return nil, fmt.Errorf("no raydium pool known for mint %s", mint)
	}
	return p, nil
}

// Builder constructs Raydium AMM v4 swap instructions.
type Builder struct {
	pools  PoolResolver
	logger *zap.Logger
}

func NewBuilder(pools PoolResolver, logger *zap.Logger) *Builder {
	return &Builder{pools: pools, logger: logger.Named("raydium")}
}

func (b *Builder) Venue() types.Venue { return types.VenueRaydiumAMM }

// BuildSwap produces the swap instruction for the action. Entries swap SOL
// into the token with the minimum-out floor derived from the slippage
// tolerance; exits swap the token back with a nominal floor.
func (b *Builder) BuildSwap(ctx context.Context, action *types.TradeAction, owner solana.PublicKey, slippageBps uint16) ([]solana.Instruction, error) {
	pool, err := b.pools.ResolvePool(ctx, action.TokenMint)
	if err != nil {
		return nil, fmt.Errorf("resolve pool: %w", err)
	}

	userWSOL, _, err := solana.FindAssociatedTokenAddress(owner, types.WSOLMint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive WSOL ATA: %w", err)
	}
	userToken, _, err := solana.FindAssociatedTokenAddress(owner, action.TokenMint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive token ATA: %w", err)
	}

	var amountIn, minAmountOut uint64
	var source, destination solana.PublicKey
	switch action.Kind {
	case types.ActionEnter:
		amountIn = action.SolAmount
		minAmountOut = types.MinAmountOutBps(action.Quantity, slippageBps)
		source, destination = userWSOL, userToken
	case types.ActionExitTier, types.ActionEmergencyExit:
		amountIn = action.Quantity
		minAmountOut = 1
		source, destination = userToken, userWSOL
	default:
		return nil, fmt.Errorf("unsupported action kind %s", action.Kind)
	}

	// Layout: tag(u8) + amountIn(u64) + minAmountOut(u64), little-endian.
	data := make([]byte, 0, 17)
	data = append(data, swapBaseIn)
	data = binary.LittleEndian.AppendUint64(data, amountIn)
	data = binary.LittleEndian.AppendUint64(data, minAmountOut)

	accounts := []*solana.AccountMeta{
		{PublicKey: solana.TokenProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: pool.AmmID, IsSigner: false, IsWritable: true},
		{PublicKey: pool.AmmAuthority, IsSigner: false, IsWritable: false},
		{PublicKey: pool.AmmOpenOrders, IsSigner: false, IsWritable: true},
		{PublicKey: pool.AmmTargetOrders, IsSigner: false, IsWritable: true},
		{PublicKey: pool.PoolCoinVault, IsSigner: false, IsWritable: true},
		{PublicKey: pool.PoolPcVault, IsSigner: false, IsWritable: true},
		{PublicKey: pool.SerumProgram, IsSigner: false, IsWritable: false},
		{PublicKey: pool.SerumMarket, IsSigner: false, IsWritable: true},
		{PublicKey: pool.SerumBids, IsSigner: false, IsWritable: true},
		{PublicKey: pool.SerumAsks, IsSigner: false, IsWritable: true},
		{PublicKey: pool.SerumEventQueue, IsSigner: false, IsWritable: true},
		{PublicKey: pool.SerumCoinVault, IsSigner: false, IsWritable: true},
		{PublicKey: pool.SerumPcVault, IsSigner: false, IsWritable: true},
		{PublicKey: pool.SerumVaultSigner, IsSigner: false, IsWritable: false},
		{PublicKey: source, IsSigner: false, IsWritable: true},
		{PublicKey: destination, IsSigner: false, IsWritable: true},
		{PublicKey: owner, IsSigner: true, IsWritable: true},
	}

	b.logger.Debug("built raydium swap instruction",
		zap.Stringer("kind", action.Kind),
		zap.Stringer("mint", action.TokenMint),
		zap.Uint64("amount_in", amountIn),
		zap.Uint64("min_amount_out", minAmountOut))

	ixs := []solana.Instruction{solana.NewInstruction(ProgramID, accounts, data)}
	if action.CloseTokenAccount && action.Kind != types.ActionEnter {
		// The position is empty after this swap; close the ATA so its rent
		// flows back to the owner.
		ixs = append(ixs, token.NewCloseAccountInstructionBuilder().
			SetAccount(userToken).
			SetDestinationAccount(owner).
			SetOwnerAccount(owner).
			Build())
	}
	return ixs, nil
}
