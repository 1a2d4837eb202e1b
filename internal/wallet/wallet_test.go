// internal/wallet/wallet_test.go
package wallet

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromBase58(t *testing.T) {
	generated := solana.NewWallet()

	w, err := New(generated.PrivateKey.String())
	require.NoError(t, err)
	assert.Equal(t, generated.PublicKey(), w.PublicKey)
}

func TestNewRejectsBadKeys(t *testing.T) {
	_, err := New("not-base58-!!!")
	assert.Error(t, err)

	// Valid base58, wrong length.
	_, err = New("3yZe7d")
	assert.Error(t, err)
}

func TestATAIsCachedAndCorrect(t *testing.T) {
	w, err := New(solana.NewWallet().PrivateKey.String())
	require.NoError(t, err)

	mint := solana.NewWallet().PublicKey()
	expected, _, err := solana.FindAssociatedTokenAddress(w.PublicKey, mint)
	require.NoError(t, err)

	ata, err := w.ATA(mint)
	require.NoError(t, err)
	assert.Equal(t, expected, ata)

	again, err := w.ATA(mint)
	require.NoError(t, err)
	assert.Equal(t, ata, again)
}

func TestSignTransaction(t *testing.T) {
	w, err := New(solana.NewWallet().PrivateKey.String())
	require.NoError(t, err)

	transfer := solana.NewInstruction(
		solana.SystemProgramID,
		[]*solana.AccountMeta{
			{PublicKey: w.PublicKey, IsSigner: true, IsWritable: true},
			{PublicKey: solana.NewWallet().PublicKey(), IsSigner: false, IsWritable: true},
		},
		[]byte{2, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0},
	)
	tx, err := solana.NewTransaction([]solana.Instruction{transfer}, solana.Hash{1},
		solana.TransactionPayer(w.PublicKey))
	require.NoError(t, err)

	require.NoError(t, w.SignTransaction(tx))
	require.Len(t, tx.Signatures, 1)
	assert.NoError(t, tx.VerifySignatures())
}
