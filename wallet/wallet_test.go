package wallet

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/require"

	"gochainpay/engine"
	"gochainpay/registry"
)

// well-known hardhat dev key, never funded anywhere that matters
const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestNewKeyedWallet(t *testing.T) {
	w, err := NewKeyedWallet(testKey, nil)
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), w.Address())

	_, err = NewKeyedWallet("zz", nil)
	require.Error(t, err)
}

func TestSwitchChain(t *testing.T) {
	w, err := NewKeyedWallet(testKey, nil)
	require.NoError(t, err)

	require.NoError(t, w.SwitchChain(context.Background(), registry.Base))
	require.Error(t, w.SwitchChain(context.Background(), 424242))
}

func TestSendTransactionEnforcesActiveChain(t *testing.T) {
	w, err := NewKeyedWallet(testKey, nil)
	require.NoError(t, err)
	require.NoError(t, w.SwitchChain(context.Background(), registry.Base))

	// engine skipped a switch: the send must be refused before any RPC
	_, err = w.SendTransaction(context.Background(), engine.TxParams{
		ChainID: registry.Ethereum,
		To:      common.HexToAddress("0x1111111111111111111111111111111111111111"),
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "active chain")
}

func TestSignTypedDataRecoversToWallet(t *testing.T) {
	w, err := NewKeyedWallet(testKey, nil)
	require.NoError(t, err)

	typed := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
			},
			"Order": []apitypes.Type{
				{Name: "maker", Type: "address"},
			},
		},
		PrimaryType: "Order",
		Domain:      apitypes.TypedDataDomain{Name: "Swap Settlement", Version: "1"},
		Message: apitypes.TypedDataMessage{
			"maker": w.Address().Hex(),
		},
	}

	sig, err := w.SignTypedData(context.Background(), typed)
	require.NoError(t, err)
	require.Len(t, sig, 65)

	hash, _, err := apitypes.TypedDataAndHash(typed)
	require.NoError(t, err)

	recovery := make([]byte, 65)
	copy(recovery, sig)
	recovery[64] -= 27
	pub, err := crypto.SigToPub(hash, recovery)
	require.NoError(t, err)
	require.Equal(t, w.Address(), crypto.PubkeyToAddress(*pub))
}
