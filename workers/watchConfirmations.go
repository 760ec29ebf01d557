package workers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"gochainpay/EVMRPC"
	"gochainpay/config"
	"gochainpay/redis"
)

// Worker_watchConfirmations follows executing payments until their
// destination transaction has enough confirmations, then flips them to
// success. Swap orders carry a synthesized placeholder id when the protocol
// reported execution without a hash; those are settled by the swap service
// itself and count as confirmed immediately.
func Worker_watchConfirmations() {
	for !WorkerShutdown {
		// latency of <30 sec should be ok for EVM chains (even if Arb is faster)
		time.Sleep(10 * time.Second)

		executing, err := redis.FindAllPaymentsByStatus("executing")
		if err != nil {
			logger.Error(fmt.Sprintf("Error getting executing payments by status: %v", err))
			continue
		}

		for _, rec := range executing {
			if rec.TxOrOrderID == "" {
				// execution worker is still running this one
				continue
			}

			if strings.HasPrefix(rec.TxOrOrderID, "fill-order-") {
				rec.Status = "success"
				rec.TsUpdated = time.Now().Unix()
				if err := redis.ChangePaymentStatus(rec, "executing"); err != nil {
					logger.Error(fmt.Sprintf("Error saving updated payment record: %v", err))
				}
				continue
			}

			confirmations, err := txConfirmations(rec.DestChain, rec.TxOrOrderID)
			if err != nil {
				logger.Warn(fmt.Sprintf("Error checking confirmations for %s on chain %d: %v",
					rec.TxOrOrderID, rec.DestChain, err))
				continue
			}
			if confirmations < 0 {
				// receipt reverted
				rec.Status = "failed"
				rec.Message = "destination transaction reverted"
				rec.TsUpdated = time.Now().Unix()
				if err := redis.ChangePaymentStatus(rec, "executing"); err != nil {
					logger.Error(fmt.Sprintf("Error saving updated payment record: %v", err))
				}
				continue
			}
			if confirmations < int64(config.Config.Confirmations) {
				continue
			}

			logger.Info(fmt.Sprintf("Payment %s confirmed: tx %s has %d confirmations",
				rec.ID, rec.TxOrOrderID, confirmations))
			rec.Status = "success"
			rec.TsUpdated = time.Now().Unix()
			if err := redis.ChangePaymentStatus(rec, "executing"); err != nil {
				logger.Error(fmt.Sprintf("Error saving updated payment record: %v", err))
			}
		}
	}
}

// txConfirmations returns how many blocks sit on top of the transaction's
// block, or -1 when the receipt shows a revert. A missing receipt is an
// error so the caller keeps waiting.
func txConfirmations(chainID int64, txHash string) (int64, error) {
	type receiptInfo struct {
		blockNumber uint64
		reverted    bool
		latest      uint64
	}

	info, err := EVMRPC.WithClient(chainID, func(client *ethclient.Client) (receiptInfo, error) {
		receipt, err := client.TransactionReceipt(context.Background(), common.HexToHash(txHash))
		if err != nil {
			return receiptInfo{}, err
		}
		latest, err := client.BlockNumber(context.Background())
		if err != nil {
			return receiptInfo{}, err
		}
		return receiptInfo{
			blockNumber: receipt.BlockNumber.Uint64(),
			reverted:    receipt.Status == 0,
			latest:      latest,
		}, nil
	})
	if err != nil {
		return 0, err
	}
	if info.reverted {
		return -1, nil
	}
	if info.latest < info.blockNumber {
		return 0, nil
	}
	return int64(info.latest - info.blockNumber), nil
}
