package EVMRPC

import (
	"context"
	"fmt"
	"log"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"gochainpay/registry"
)

// WithClient runs f against the chain's RPC endpoints in order until one
// both connects and serves the call.
func WithClient[T any](chainID int64, f func(client *ethclient.Client) (T, error)) (res T, err error) {
	d, ok := registry.ByChainID(chainID)
	if !ok {
		err = fmt.Errorf("no RPC endpoints registered for chain %d", chainID)
		return
	}

	var client *ethclient.Client
	for _, url := range d.RPCList {
		client, err = ethclient.Dial(url)
		if err != nil {
			log.Println(fmt.Sprintf("Error connecting to %s: %s", url, err.Error()))
			continue
		}

		res, err = f(client)
		client.Close()
		if err == nil {
			return
		}
	}
	return
}

// Reader implements the engine's read-only chain capability on top of
// WithClient failover.
type Reader struct{}

func NewReader() *Reader {
	return &Reader{}
}

func (r *Reader) CallContract(ctx context.Context, chainID int64, to common.Address, data []byte) ([]byte, error) {
	return WithClient(chainID, func(client *ethclient.Client) ([]byte, error) {
		return client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	})
}

func (r *Reader) NativeBalance(ctx context.Context, chainID int64, addr common.Address) (*big.Int, error) {
	return WithClient(chainID, func(client *ethclient.Client) (*big.Int, error) {
		return client.BalanceAt(ctx, addr, nil)
	})
}

func (r *Reader) EstimateGas(ctx context.Context, chainID int64, from, to common.Address, data []byte) (uint64, error) {
	return WithClient(chainID, func(client *ethclient.Client) (uint64, error) {
		return client.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	})
}

func (r *Reader) EstimateFeesPerGas(ctx context.Context, chainID int64) (*big.Int, *big.Int, error) {
	type fees struct {
		maxFee *big.Int
		maxTip *big.Int
	}
	f, err := WithClient(chainID, func(client *ethclient.Client) (fees, error) {
		tip, err := client.SuggestGasTipCap(ctx)
		if err != nil {
			return fees{}, err
		}
		head, err := client.HeaderByNumber(ctx, nil)
		if err != nil {
			return fees{}, err
		}
		if head.BaseFee == nil {
			return fees{maxFee: tip, maxTip: tip}, nil
		}
		maxFee := new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tip)
		return fees{maxFee: maxFee, maxTip: tip}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return f.maxFee, f.maxTip, nil
}
