package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"gochainpay/registry"
)

// SwapRequest is the payer's intent for one intent-swap attempt. Amount is a
// base-unit integer string of the source token. Immutable after creation.
type SwapRequest struct {
	SourceChainID      int64  `validate:"required"`
	DestinationChainID int64  `validate:"required"`
	SrcTokenAddress    string `validate:"required,eth_addr"`
	DstTokenAddress    string `validate:"required,eth_addr"`
	Amount             string `validate:"required"`
	DestinationAddress string `validate:"omitempty,eth_addr"`
}

// SwapConfig bounds the execution-polling loop so a stuck order cannot
// hold a worker forever.
type SwapConfig struct {
	PollInterval    time.Duration
	MaxPollAttempts int
	FeeBps          int
	Logger          *zap.Logger
}

func (c *SwapConfig) applyDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.MaxPollAttempts == 0 {
		c.MaxPollAttempts = 120
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// SwapEngine drives an intent-based cross-chain swap:
// quote -> hash-lock commitment -> signed order -> poll status and submit one
// secret per ready fill until the order executes.
type SwapEngine struct {
	wallet Wallet
	svc    SwapService
	cfg    SwapConfig
	log    *zap.Logger
	state  *transferState
}

func NewSwapEngine(wallet Wallet, svc SwapService, cfg SwapConfig) *SwapEngine {
	cfg.applyDefaults()
	return &SwapEngine{
		wallet: wallet,
		svc:    svc,
		cfg:    cfg,
		log:    cfg.Logger,
		state:  newTransferState(string(FusionStepIdle)),
	}
}

func (e *SwapEngine) CurrentStep() FusionTransferStep {
	return FusionTransferStep(e.state.snapshot().Step)
}

func (e *SwapEngine) Snapshot() Snapshot {
	return e.state.snapshot()
}

// Reset cancels any in-flight run and returns the engine to idle with an
// empty log.
func (e *SwapEngine) Reset() {
	e.state.reset(string(FusionStepIdle))
}

// ExecuteTransfer runs the swap to a terminal state and returns the final
// identifier: a transaction hash when the service reports one, otherwise a
// synthesized placeholder derived from the order hash.
func (e *SwapEngine) ExecuteTransfer(ctx context.Context, req SwapRequest) (string, error) {
	if e.wallet == nil {
		return "", errf(KindWalletNotConnected, "no connected wallet")
	}
	runCtx, err := e.state.begin(ctx)
	if err != nil {
		return "", err
	}
	defer e.state.finish()

	id, err := e.run(runCtx, req)
	if err != nil {
		e.state.logf("Error: %s", err.Error())
		e.state.fail(err)
		e.log.Warn("swap transfer failed", zap.String("kind", string(KindOf(err))), zap.Error(err))
		return "", err
	}
	return id, nil
}

func (e *SwapEngine) run(ctx context.Context, req SwapRequest) (string, error) {
	if err := validate.Struct(req); err != nil {
		return "", wrapErr(KindConfiguration, err)
	}

	srcNetwork, err := registry.NetworkEnumFor(req.SourceChainID)
	if err != nil {
		return "", wrapErr(KindUnsupportedChain, err)
	}
	dstNetwork, err := registry.NetworkEnumFor(req.DestinationChainID)
	if err != nil {
		return "", wrapErr(KindUnsupportedChain, err)
	}

	walletAddr := e.wallet.Address().Hex()
	destAddr := req.DestinationAddress
	if destAddr == "" {
		destAddr = walletAddr
	}

	// quote
	e.state.setStep(string(FusionStepGettingQuote))
	e.state.logf("Getting quote from swap service...")
	quote, err := e.svc.GetQuote(ctx, QuoteParams{
		SrcNetwork:    srcNetwork,
		DstNetwork:    dstNetwork,
		SrcToken:      req.SrcTokenAddress,
		DstToken:      req.DstTokenAddress,
		Amount:        req.Amount,
		WalletAddress: destAddr,
	})
	if err != nil {
		return "", wrapErr(KindQuoteFailed, err)
	}
	e.state.logf("Quote received successfully")

	secretsCount := quote.GetPreset().SecretsCount
	if secretsCount < 1 {
		return "", errf(KindQuoteFailed, "quote preset has invalid secrets count %d", secretsCount)
	}

	// the hash-lock must be fully constructed before order placement
	commitment, err := NewHashLockCommitment(secretsCount)
	if err != nil {
		return "", wrapErr(KindOrderPlacementFailed, err)
	}
	e.state.logf("Generated %d secrets and hash lock", secretsCount)

	// place order
	e.state.setStep(string(FusionStepPlacingOrder))
	e.state.logf("Placing order on swap service...")
	params := OrderParams{
		WalletAddress: walletAddr,
		HashLock:      commitment.Lock,
		SecretHashes:  commitment.SecretHashes,
	}
	if e.cfg.FeeBps > 0 {
		params.Fee = &OrderFee{TakingFeeBps: e.cfg.FeeBps, TakingFeeReceiver: walletAddr}
	}
	placed, err := e.svc.PlaceOrder(ctx, quote, params)
	if err != nil {
		return "", wrapErr(KindOrderPlacementFailed, err)
	}
	e.state.logf("Order placed successfully. Hash: %s", placed.OrderHash)
	e.state.setTxID(placed.OrderHash)

	// execution
	e.state.setStep(string(FusionStepWaitingExecution))
	e.state.logf("Waiting for order execution...")
	return e.awaitExecution(ctx, placed, commitment)
}

// awaitExecution runs the status poller and the fills poller concurrently
// against the same order. Either signal completes the transfer, first wins,
// the loser is a no-op. Poll errors are logged and absorbed; only a terminal
// order status or the attempt bound ends the loop.
func (e *SwapEngine) awaitExecution(ctx context.Context, placed *PlacedOrder, commitment *HashLockCommitment) (string, error) {
	pollCtx, stopPolling := context.WithCancel(ctx)
	defer stopPolling()

	var (
		once    sync.Once
		finalID string
		mu      sync.Mutex
		// submitted tracks which fill indices already got their secret;
		// increments are serialized because both pollers run goroutines
		submitted = make(map[int]bool)
	)

	complete := func(id string) {
		once.Do(func() {
			if id == "" {
				id = fmt.Sprintf("fill-order-%s", truncateHash(placed.OrderHash))
			}
			finalID = id
			stopPolling()
		})
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[0] = e.pollStatus(pollCtx, placed, complete)
		if errs[0] != nil && !errors.Is(errs[0], ErrPollExhausted) {
			stopPolling()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[1] = e.pollFills(pollCtx, placed.OrderHash, commitment, &mu, submitted, complete)
		if errs[1] != nil && !errors.Is(errs[1], ErrPollExhausted) {
			stopPolling()
		}
	}()

	wg.Wait()

	if finalID != "" {
		e.state.logf("Transfer completed successfully!")
		e.state.complete(string(FusionStepCompleted), finalID)
		e.log.Info("swap transfer completed", zap.String("order", placed.OrderHash), zap.String("id", finalID))
		return finalID, nil
	}

	// neither signal fired: surface a terminal status error if one poller
	// saw one, otherwise the bound was exhausted
	for _, err := range errs {
		if err != nil && !errors.Is(err, ErrPollExhausted) && !errors.Is(err, context.Canceled) {
			return "", err
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "", errf(KindExecutionTimeout, "order %s not executed after %d polls", placed.OrderHash, e.cfg.MaxPollAttempts)
}

func (e *SwapEngine) pollStatus(ctx context.Context, placed *PlacedOrder, complete func(string)) error {
	_, err := Poll(ctx, e.cfg.PollInterval, e.cfg.MaxPollAttempts,
		func(ctx context.Context, attempt int) (struct{}, PollDecision, error) {
			status, err := e.svc.OrderStatus(ctx, placed.OrderHash)
			if err != nil {
				if ctx.Err() != nil {
					return struct{}{}, PollFatal, ctx.Err()
				}
				e.state.logf("Error getting order status: %s", err.Error())
				return struct{}{}, PollRetry, nil
			}
			switch status.Status {
			case OrderStatusExecuted:
				e.state.logf("Order executed.")
				id := placed.TxHash
				if status.TxHash != "" {
					id = status.TxHash
				}
				complete(id)
				return struct{}{}, PollDone, nil
			case OrderStatusExpired, OrderStatusCancelled, OrderStatusRefunded:
				return struct{}{}, PollFatal, errf(KindExecutionFailed, "order %s terminal status %q", placed.OrderHash, status.Status)
			default:
				// unknown statuses are "not yet", never a crash
				return struct{}{}, PollRetry, nil
			}
		})
	return err
}

func (e *SwapEngine) pollFills(ctx context.Context, orderHash string, commitment *HashLockCommitment, mu *sync.Mutex, submitted map[int]bool, complete func(string)) error {
	_, err := Poll(ctx, e.cfg.PollInterval, e.cfg.MaxPollAttempts,
		func(ctx context.Context, attempt int) (struct{}, PollDecision, error) {
			fills, err := e.svc.ReadyFills(ctx, orderHash)
			if err != nil {
				if ctx.Err() != nil {
					return struct{}{}, PollFatal, ctx.Err()
				}
				e.state.logf("Error getting ready fills: %s", err.Error())
				return struct{}{}, PollRetry, nil
			}

			for _, fill := range fills {
				mu.Lock()
				done := submitted[fill.Idx]
				mu.Unlock()
				if done {
					continue
				}

				// a secret is revealed only for a fill the service
				// reported ready
				secret, err := commitment.SecretHex(fill.Idx)
				if err != nil {
					e.state.logf("Ignoring fill with unknown index %d", fill.Idx)
					continue
				}
				if err := e.svc.SubmitSecret(ctx, orderHash, secret); err != nil {
					e.state.logf("Error submitting secret for fill %d: %s", fill.Idx, err.Error())
					continue
				}
				mu.Lock()
				submitted[fill.Idx] = true
				count := len(submitted)
				mu.Unlock()
				e.state.logf("Submitted secret for fill %d (%d/%d)", fill.Idx, count, commitment.Count())
			}

			mu.Lock()
			allSubmitted := len(submitted) == commitment.Count()
			mu.Unlock()
			if allSubmitted {
				e.state.logf("All secrets submitted, completing transfer")
				complete("")
				return struct{}{}, PollDone, nil
			}
			return struct{}{}, PollRetry, nil
		})
	return err
}

func truncateHash(h string) string {
	if len(h) > 10 {
		return h[:10]
	}
	return h
}
