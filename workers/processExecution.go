package workers

import (
	"context"
	"fmt"
	"time"

	"gochainpay/backend"
	"gochainpay/redis"

	"gochainpay/engine"
)

// Worker_processExecution picks up pending payments one at a time and runs
// the transfer engine for them. A payment is moved to executing before the
// engine starts so a crash cannot double-send it.
func Worker_processExecution() {
	for !WorkerShutdown {
		time.Sleep(3 * time.Second)

		pending, err := redis.FindPaymentStatus("pending")
		if err != nil {
			logger.Error(fmt.Sprintf("Error getting pending payments by status: %v", err))
			continue
		}
		if pending == nil {
			continue
		}

		logger.Info(fmt.Sprintf("Found pending payment %s: chain %d -> %d, amount %s",
			pending.ID, pending.SourceChain, pending.DestChain, pending.Amount))

		// update record immediately to prevent looped sending if some error
		pending.Status = "executing"
		pending.TsUpdated = time.Now().Unix()
		if err := redis.ChangePaymentStatus(pending, "pending"); err != nil {
			// emergency exit
			logger.Error(fmt.Sprintf("Error saving updated payment record: %v, emergency exit to avoid looping", err))
			WorkerShutdown = true
			continue
		}

		transferType := pending.TransferType
		if transferType == "" {
			// records created before the speed class existed
			transferType = "standard"
		}

		in := engine.RouteInput{
			SourceChainID:      pending.SourceChain,
			DestinationChainID: pending.DestChain,
			Asset:              pending.Asset,
			Amount:             pending.Amount,
			TransferType:       transferType,
			DestinationAddress: pending.PayerAddress,
		}

		selector.Reset()
		res, runErr := selector.ExecuteTransfer(context.Background(), in)

		pending.Route = string(res.Route)
		pending.Step = res.Step
		pending.Logs = res.Logs
		pending.TxOrOrderID = res.TxOrOrderID
		pending.TsUpdated = time.Now().Unix()

		if runErr != nil || res.IsError {
			msg := res.Step
			if runErr != nil {
				msg = runErr.Error()
			}
			logger.Error(fmt.Sprintf("Payment %s transfer failed: %s", pending.ID, msg))
			if pending.Message == "" {
				pending.Message = msg
			} else {
				pending.Message += "; " + msg
			}
			pending.Status = "failed"
			if err := redis.ChangePaymentStatus(pending, "executing"); err != nil {
				logger.Error(fmt.Sprintf("Error saving updated payment record: %v, emergency exit to avoid looping", err))
				WorkerShutdown = true
			}
			continue
		}

		logger.Info(fmt.Sprintf("Payment %s transfer finished via %s, id %s",
			pending.ID, pending.Route, pending.TxOrOrderID))

		if err := redis.ChangePaymentStatus(pending, "executing"); err != nil {
			logger.Error(fmt.Sprintf("Error saving updated payment record: %v, emergency exit to avoid looping", err))
			WorkerShutdown = true
			continue
		}

		// report the final identifier, fire and forget
		reporter.Report(backend.SubmitRequest{
			TxID:          pending.TxOrOrderID,
			ProductID:     pending.ProductID,
			SourceChainID: pending.SourceChain,
		})

		// don't rush, it's decentralized nodes, etc.
		time.Sleep(5 * time.Second)
	}
}
