// Package wallet implements the engine's Wallet capability with a
// config-supplied custodial key.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"gochainpay/EVMRPC"
	"gochainpay/engine"
	"gochainpay/registry"
)

// KeyedWallet signs with a single private key. The active chain is shared
// mutable state, the same way a browser wallet's selected network is; engines
// re-request switches before every chain-sensitive operation.
type KeyedWallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
	log     *zap.Logger

	mu          sync.Mutex
	activeChain int64
}

func NewKeyedWallet(privateKeyHex string, log *zap.Logger) (*KeyedWallet, error) {
	if log == nil {
		log = zap.NewNop()
	}
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, errors.Wrap(err, "instantiating private key")
	}
	return &KeyedWallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		log:     log,
	}, nil
}

func (w *KeyedWallet) Address() common.Address {
	return w.address
}

// SwitchChain selects the chain subsequent sends target. Unknown chains are
// rejected up front.
func (w *KeyedWallet) SwitchChain(ctx context.Context, chainID int64) error {
	if _, ok := registry.ByChainID(chainID); !ok {
		return fmt.Errorf("cannot switch to unknown chain %d", chainID)
	}
	w.mu.Lock()
	if w.activeChain != chainID {
		w.log.Debug("switching active chain", zap.Int64("from", w.activeChain), zap.Int64("to", chainID))
	}
	w.activeChain = chainID
	w.mu.Unlock()
	return nil
}

// SendTransaction signs and broadcasts a dynamic-fee transaction. The params'
// chain must be the active chain; a mismatch means a switch was skipped.
func (w *KeyedWallet) SendTransaction(ctx context.Context, p engine.TxParams) (common.Hash, error) {
	w.mu.Lock()
	active := w.activeChain
	w.mu.Unlock()
	if p.ChainID != active {
		return common.Hash{}, fmt.Errorf("active chain is %d but transaction targets %d", active, p.ChainID)
	}

	return EVMRPC.WithClient(p.ChainID, func(client *ethclient.Client) (common.Hash, error) {
		nonce, err := client.PendingNonceAt(ctx, w.address)
		if err != nil {
			return common.Hash{}, errors.Wrap(err, "getting nonce for wallet")
		}

		tip := p.MaxPriorityFeePerGas
		feeCap := p.MaxFeePerGas
		if tip == nil || feeCap == nil {
			tip, feeCap, err = suggestFees(ctx, client)
			if err != nil {
				return common.Hash{}, err
			}
		}

		gas := p.Gas
		if gas == 0 {
			value := p.Value
			if value == nil {
				value = big.NewInt(0)
			}
			gas, err = client.EstimateGas(ctx, ethereum.CallMsg{
				From:  w.address,
				To:    &p.To,
				Value: value,
				Data:  p.Data,
			})
			if err != nil {
				return common.Hash{}, errors.Wrap(err, "estimating gas")
			}
		}

		tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
			ChainID:   big.NewInt(p.ChainID),
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gas,
			To:        &p.To,
			Value:     p.Value,
			Data:      p.Data,
		})
		signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(big.NewInt(p.ChainID)), w.key)
		if err != nil {
			return common.Hash{}, errors.Wrap(err, "signing transaction")
		}
		if err := client.SendTransaction(ctx, signed); err != nil {
			return common.Hash{}, errors.Wrap(err, "broadcasting transaction")
		}
		return signed.Hash(), nil
	})
}

// SignTypedData hashes the payload per EIP-712 and signs it. The payload is
// used exactly as received; nothing is re-derived.
func (w *KeyedWallet) SignTypedData(ctx context.Context, typed apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return nil, errors.Wrap(err, "hashing typed data")
	}
	signature, err := crypto.Sign(hash, w.key)
	if err != nil {
		return nil, errors.Wrap(err, "signing typed data")
	}
	// recovery id to Ethereum convention
	signature[64] += 27
	return signature, nil
}

func suggestFees(ctx context.Context, client *ethclient.Client) (tip, feeCap *big.Int, err error) {
	tip, err = client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "getting suggested tip")
	}
	head, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "getting chain head")
	}
	if head.BaseFee == nil {
		return tip, tip, nil
	}
	// base fee headroom for the next few blocks
	feeCap = new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tip)
	return tip, feeCap, nil
}

var _ engine.Wallet = (*KeyedWallet)(nil)
