// internal/dex/pumpfun/instructions.go
package pumpfun

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	token "github.com/gagliardetto/solana-go/programs/token"
	"go.uber.org/zap"

	"github.com/PietroScorza/copytrade-bot/internal/types"
)

// Known Pump.fun protocol addresses on mainnet.
var (
	ProgramID      = types.PumpFunProgramID
	GlobalAccount  = solana.MustPublicKeyFromBase58("4wTV1YmiEkRvAtNtsSGPtUrqRYQMe5SKy2uB4Jjaxnjf")
	FeeRecipient   = solana.MustPublicKeyFromBase58("CebN5WGQ4jvEPvsVU4EoHEpgzq1VV7AbicfhtW4xC9iM")
	EventAuthority = solana.MustPublicKeyFromBase58("Ce6TQqeHC9p8KetsN6JsjHK7UTZk7nasjjnr7XxXp9F1")
	SysvarRent     = solana.MustPublicKeyFromBase58("SysvarRent111111111111111111111111111111111")
)

var (
	buyDiscriminator  = []byte{0x66, 0x06, 0x3d, 0x12, 0x01, 0xda, 0xeb, 0xea}
	sellDiscriminator = []byte{0x33, 0xe6, 0x85, 0xa4, 0x01, 0x7f, 0x83, 0xad}
)

// Builder constructs Pump.fun bonding curve trade instructions. Every account
// the program expects is derivable from the mint, so the builder needs no
// chain access.
type Builder struct {
	logger *zap.Logger
}

func NewBuilder(logger *zap.Logger) *Builder {
	return &Builder{logger: logger.Named("pumpfun")}
}

func (b *Builder) Venue() types.Venue { return types.VenuePumpFun }

// BuildSwap produces the buy or sell instruction for the action, with the
// SOL-side threshold padded by the slippage tolerance.
func (b *Builder) BuildSwap(_ context.Context, action *types.TradeAction, owner solana.PublicKey, slippageBps uint16) ([]solana.Instruction, error) {
	bondingCurve, associatedBondingCurve, err := deriveBondingCurveAccounts(action.TokenMint)
	if err != nil {
		return nil, err
	}
	associatedUser, _, err := solana.FindAssociatedTokenAddress(owner, action.TokenMint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive user ATA: %w", err)
	}

	var ixs []solana.Instruction
	switch action.Kind {
	case types.ActionEnter:
		maxSolCost := types.MaxSolCostBps(action.SolAmount, slippageBps)
		ixs = append(ixs, buildTradeInstruction(buyDiscriminator, action.Quantity, maxSolCost,
			action.TokenMint, bondingCurve, associatedBondingCurve, associatedUser, owner, false))
	case types.ActionExitTier, types.ActionEmergencyExit:
		// Exits take whatever SOL the curve pays; the floor only guards
		// against a completely drained curve.
		minSolOutput := uint64(1)
		ixs = append(ixs, buildTradeInstruction(sellDiscriminator, action.Quantity, minSolOutput,
			action.TokenMint, bondingCurve, associatedBondingCurve, associatedUser, owner, true))
		if action.CloseTokenAccount {
			// The position is empty after this sell; close the ATA so its
			// rent flows back to the owner.
			ixs = append(ixs, token.NewCloseAccountInstructionBuilder().
				SetAccount(associatedUser).
				SetDestinationAccount(owner).
				SetOwnerAccount(owner).
				Build())
		}
	default:
		return nil, fmt.Errorf("unsupported action kind %s", action.Kind)
	}

	b.logger.Debug("built bonding curve instruction",
		zap.Stringer("kind", action.Kind),
		zap.Stringer("mint", action.TokenMint),
		zap.Uint64("quantity", action.Quantity))

	return ixs, nil
}

func deriveBondingCurveAccounts(mint solana.PublicKey) (bondingCurve, associatedBondingCurve solana.PublicKey, err error) {
	bondingCurve, _, err = solana.FindProgramAddress(
		[][]byte{[]byte("bonding-curve"), mint.Bytes()},
		ProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, fmt.Errorf("failed to derive bonding curve: %w", err)
	}
	associatedBondingCurve, _, err = solana.FindAssociatedTokenAddress(bondingCurve, mint)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, fmt.Errorf("failed to derive associated bonding curve: %w", err)
	}
	return bondingCurve, associatedBondingCurve, nil
}

// buildTradeInstruction encodes discriminator + tokenAmount + solThreshold
// and lays out the account list in the exact order the program expects. Sells
// replace the rent sysvar slot with the associated token program.
func buildTradeInstruction(
	discriminator []byte,
	tokenAmount, solThreshold uint64,
	mint, bondingCurve, associatedBondingCurve, associatedUser, owner solana.PublicKey,
	sell bool,
) solana.Instruction {
	data := make([]byte, 0, 24)
	data = append(data, discriminator...)
	data = binary.LittleEndian.AppendUint64(data, tokenAmount)
	data = binary.LittleEndian.AppendUint64(data, solThreshold)

	rentOrATAProgram := SysvarRent
	if sell {
		rentOrATAProgram = solana.SPLAssociatedTokenAccountProgramID
	}

	accounts := []*solana.AccountMeta{
		{PublicKey: GlobalAccount, IsSigner: false, IsWritable: false},
		{PublicKey: FeeRecipient, IsSigner: false, IsWritable: true},
		{PublicKey: mint, IsSigner: false, IsWritable: false},
		{PublicKey: bondingCurve, IsSigner: false, IsWritable: true},
		{PublicKey: associatedBondingCurve, IsSigner: false, IsWritable: true},
		{PublicKey: associatedUser, IsSigner: false, IsWritable: true},
		{PublicKey: owner, IsSigner: true, IsWritable: true},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: solana.TokenProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: rentOrATAProgram, IsSigner: false, IsWritable: false},
		{PublicKey: EventAuthority, IsSigner: false, IsWritable: false},
		{PublicKey: ProgramID, IsSigner: false, IsWritable: false},
	}

	return solana.NewInstruction(ProgramID, accounts, data)
}
