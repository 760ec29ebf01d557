package engine

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"gochainpay/registry"
)

// TransferRequest is the payer's intent for one bridge attempt. Immutable
// after creation; retrying means constructing a fresh request.
type TransferRequest struct {
	SourceChainID      int64  `validate:"required"`
	DestinationChainID int64  `validate:"required"`
	// decimal string, converted to 6-decimal base units before anything
	// touches a chain
	Amount             string `validate:"required"`
	TransferType       string `validate:"omitempty,oneof=fast standard"`
	DestinationAddress string `validate:"omitempty,eth_addr"`
}

var validate = validator.New()

const erc20ABIJSON = `[
 {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"_owner","type":"address"}],"outputs":[{"name":"balance","type":"uint256"}]},
 {"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const messengerABIJSON = `[
 {"type":"function","name":"depositForBurn","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"},{"name":"destinationDomain","type":"uint32"},{"name":"mintRecipient","type":"bytes32"},{"name":"burnToken","type":"address"},{"name":"hookData","type":"bytes32"},{"name":"maxFee","type":"uint256"},{"name":"minFinalityThreshold","type":"uint32"}],"outputs":[]}
]`

const transmitterABIJSON = `[
 {"type":"function","name":"receiveMessage","stateMutability":"nonpayable","inputs":[{"name":"message","type":"bytes"},{"name":"attestation","type":"bytes"}],"outputs":[]}
]`

var (
	erc20ABI       = mustABI(erc20ABIJSON)
	messengerABI   = mustABI(messengerABIJSON)
	transmitterABI = mustABI(transmitterABIJSON)
)

func mustABI(src string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(src))
	if err != nil {
		panic(err)
	}
	return parsed
}

// allowance authorized to the token messenger, a fixed amount rather than
// max uint256
var approveAllowance = big.NewInt(10_000_000_000)

// finality thresholds: fast trades a larger allowed fee for fewer
// confirmations
const (
	finalityFast     = uint32(1000)
	finalityStandard = uint32(2000)
)

// BridgeConfig bounds the engine's polling and retry behavior. Zero values
// take the defaults below.
type BridgeConfig struct {
	AttestationInterval    time.Duration
	AttestationMaxAttempts int
	MintRetries            int
	MintBackoff            time.Duration
	MinNativeWei           *big.Int
	Logger                 *zap.Logger
}

func (c *BridgeConfig) applyDefaults() {
	if c.AttestationInterval == 0 {
		c.AttestationInterval = 5 * time.Second
	}
	if c.AttestationMaxAttempts == 0 {
		c.AttestationMaxAttempts = 30
	}
	if c.MintRetries == 0 {
		c.MintRetries = 3
	}
	if c.MintBackoff == 0 {
		c.MintBackoff = 2 * time.Second
	}
	if c.MinNativeWei == nil {
		// 0.01 native units
		c.MinNativeWei = new(big.Int).Mul(big.NewInt(10_000_000), big.NewInt(1_000_000_000))
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// BridgeEngine drives a burn/mint attestation transfer:
// approve -> burn on source -> poll attestation -> mint on destination.
type BridgeEngine struct {
	wallet Wallet
	reader ChainReader
	att    AttestationClient
	cfg    BridgeConfig
	log    *zap.Logger
	state  *transferState
}

func NewBridgeEngine(wallet Wallet, reader ChainReader, att AttestationClient, cfg BridgeConfig) *BridgeEngine {
	cfg.applyDefaults()
	return &BridgeEngine{
		wallet: wallet,
		reader: reader,
		att:    att,
		cfg:    cfg,
		log:    cfg.Logger,
		state:  newTransferState(string(StepIdle)),
	}
}

// CurrentStep reports where the state machine is.
func (e *BridgeEngine) CurrentStep() TransferStep {
	return TransferStep(e.state.snapshot().Step)
}

// Snapshot returns a copy of the full engine state for the caller to render.
func (e *BridgeEngine) Snapshot() Snapshot {
	return e.state.snapshot()
}

// Reset cancels any in-flight run and returns the engine to idle with an
// empty log.
func (e *BridgeEngine) Reset() {
	e.state.reset(string(StepIdle))
}

// ExecuteTransfer runs the whole transfer to a terminal state and returns the
// destination finalize transaction hash.
func (e *BridgeEngine) ExecuteTransfer(ctx context.Context, req TransferRequest) (string, error) {
	if e.wallet == nil {
		return "", errf(KindWalletNotConnected, "no connected wallet")
	}
	runCtx, err := e.state.begin(ctx)
	if err != nil {
		return "", err
	}
	defer e.state.finish()

	tx, err := e.run(runCtx, req)
	if err != nil {
		e.state.logf("Error: %s", err.Error())
		e.state.fail(err)
		e.log.Warn("bridge transfer failed", zap.String("kind", string(KindOf(err))), zap.Error(err))
		return "", err
	}
	return tx, nil
}

func (e *BridgeEngine) run(ctx context.Context, req TransferRequest) (string, error) {
	if err := validate.Struct(req); err != nil {
		return "", wrapErr(KindConfiguration, err)
	}

	src, ok := registry.ByChainID(req.SourceChainID)
	if !ok || !registry.BridgeSupported(src.ChainID) {
		return "", errf(KindConfiguration, "bridge descriptor missing for source chain id %d", req.SourceChainID)
	}
	dst, ok := registry.ByChainID(req.DestinationChainID)
	if !ok || !registry.BridgeSupported(dst.ChainID) {
		return "", errf(KindConfiguration, "bridge descriptor missing for destination chain id %d", req.DestinationChainID)
	}

	amount, err := ParseUnits(req.Amount, registry.USDCDecimals)
	if err != nil {
		return "", wrapErr(KindConfiguration, err)
	}

	destAddr := req.DestinationAddress
	if destAddr == "" {
		destAddr = e.wallet.Address().Hex()
	}

	e.log.Info("starting bridge transfer",
		zap.Int64("src", src.ChainID), zap.Int64("dst", dst.ChainID), zap.String("amount", req.Amount))

	if err := e.approve(ctx, src, amount); err != nil {
		return "", err
	}
	burnTx, err := e.burn(ctx, src, dst, amount, destAddr, req.TransferType)
	if err != nil {
		return "", err
	}
	attestation, err := e.awaitAttestation(ctx, src, burnTx)
	if err != nil {
		return "", err
	}
	return e.mint(ctx, dst, attestation)
}

// approve authorizes the token messenger to move the bridged asset. When the
// current allowance already covers the transfer the transaction is skipped.
func (e *BridgeEngine) approve(ctx context.Context, src registry.Descriptor, amount *big.Int) error {
	e.state.setStep(string(StepApproving))
	e.state.logf("Approving USDC transfer...")

	if err := e.wallet.SwitchChain(ctx, src.ChainID); err != nil {
		return wrapErr(KindApprovalFailed, err)
	}

	if cur, err := e.currentAllowance(ctx, src); err == nil && cur.Cmp(amount) >= 0 {
		e.state.logf("Existing allowance %s USDC covers transfer, skipping approval", FormatUnits(cur, registry.USDCDecimals))
		return nil
	}

	data, err := erc20ABI.Pack("approve", common.HexToAddress(src.TokenMessenger), approveAllowance)
	if err != nil {
		return wrapErr(KindApprovalFailed, err)
	}
	tx, err := e.wallet.SendTransaction(ctx, TxParams{
		ChainID: src.ChainID,
		To:      common.HexToAddress(src.USDCAddress),
		Data:    data,
	})
	if err != nil {
		return wrapErr(KindApprovalFailed, err)
	}
	e.state.logf("USDC Approval Tx: %s", tx.Hex())
	e.state.setTxID(tx.Hex())
	return nil
}

func (e *BridgeEngine) currentAllowance(ctx context.Context, src registry.Descriptor) (*big.Int, error) {
	data, err := erc20ABI.Pack("allowance", e.wallet.Address(), common.HexToAddress(src.TokenMessenger))
	if err != nil {
		return nil, err
	}
	out, err := e.reader.CallContract(ctx, src.ChainID, common.HexToAddress(src.USDCAddress), data)
	if err != nil {
		return nil, err
	}
	vals, err := erc20ABI.Unpack("allowance", out)
	if err != nil || len(vals) != 1 {
		return nil, errors.New("malformed allowance response")
	}
	cur, ok := vals[0].(*big.Int)
	if !ok {
		return nil, errors.New("malformed allowance response")
	}
	return cur, nil
}

// burn locks the asset on the source chain with the destination domain and a
// zero-padded 32-byte mint recipient.
func (e *BridgeEngine) burn(ctx context.Context, src, dst registry.Descriptor, amount *big.Int, destAddr, transferType string) (common.Hash, error) {
	e.state.setStep(string(StepBurning))
	e.state.logf("Burning USDC...")

	// the active chain is shared state, re-verify before the send
	if err := e.wallet.SwitchChain(ctx, src.ChainID); err != nil {
		return common.Hash{}, wrapErr(KindBurnFailed, err)
	}

	finality := finalityStandard
	if transferType == "fast" {
		finality = finalityFast
	}
	maxFee := new(big.Int).Sub(amount, big.NewInt(1))

	var recipient [32]byte
	copy(recipient[12:], common.HexToAddress(destAddr).Bytes())
	var hookData [32]byte

	data, err := messengerABI.Pack("depositForBurn",
		amount,
		uint32(dst.Domain),
		recipient,
		common.HexToAddress(src.USDCAddress),
		hookData,
		maxFee,
		finality,
	)
	if err != nil {
		return common.Hash{}, wrapErr(KindBurnFailed, err)
	}

	tx, err := e.wallet.SendTransaction(ctx, TxParams{
		ChainID: src.ChainID,
		To:      common.HexToAddress(src.TokenMessenger),
		Data:    data,
	})
	if err != nil {
		return common.Hash{}, wrapErr(KindBurnFailed, err)
	}
	e.state.logf("Burn Tx: %s", tx.Hex())
	e.state.setTxID(tx.Hex())
	return tx, nil
}

// awaitAttestation polls the attestation service until the burn message is
// complete. Not-found is "not ready yet"; other request failures are absorbed
// and retried up to the same bound.
func (e *BridgeEngine) awaitAttestation(ctx context.Context, src registry.Descriptor, burnTx common.Hash) (*Attestation, error) {
	e.state.setStep(string(StepWaitingAttestation))
	e.state.logf("Retrieving attestation...")

	var lastSvcErr error
	attestation, err := Poll(ctx, e.cfg.AttestationInterval, e.cfg.AttestationMaxAttempts,
		func(ctx context.Context, attempt int) (*Attestation, PollDecision, error) {
			att, err := e.att.Message(ctx, src.Domain, burnTx)
			if err == nil {
				e.state.logf("Attestation retrieved!")
				return att, PollDone, nil
			}
			if errors.Is(err, ErrAttestationNotReady) {
				e.state.logf("Waiting for attestation... (%d/%d)", attempt, e.cfg.AttestationMaxAttempts)
				return nil, PollRetry, nil
			}
			lastSvcErr = err
			e.state.logf("Error retrieving attestation: %s. Retrying... (%d/%d)", err.Error(), attempt, e.cfg.AttestationMaxAttempts)
			return nil, PollRetry, nil
		})
	if err != nil {
		if errors.Is(err, ErrPollExhausted) {
			if lastSvcErr != nil {
				return nil, wrapErr(KindAttestationFailed, lastSvcErr)
			}
			return nil, errf(KindAttestationTimeout, "attestation not complete after %d attempts", e.cfg.AttestationMaxAttempts)
		}
		return nil, wrapErr(KindAttestationFailed, err)
	}
	return attestation, nil
}

// mint submits the attested message on the destination chain. Insufficient
// native gas is fatal without retry; execution failures retry with linear
// backoff.
func (e *BridgeEngine) mint(ctx context.Context, dst registry.Descriptor, attestation *Attestation) (string, error) {
	if err := e.wallet.SwitchChain(ctx, dst.ChainID); err != nil {
		return "", wrapErr(KindMintExecutionFailed, err)
	}

	balance, err := e.reader.NativeBalance(ctx, dst.ChainID, e.wallet.Address())
	if err != nil {
		return "", wrapErr(KindMintExecutionFailed, err)
	}
	if balance.Cmp(e.cfg.MinNativeWei) < 0 {
		return "", errf(KindInsufficientGas,
			"insufficient native token for gas fees on destination chain: have %s, need %s",
			FormatUnits(balance, registry.NativeDecimals), FormatUnits(e.cfg.MinNativeWei, registry.NativeDecimals))
	}

	e.state.setStep(string(StepMinting))
	e.state.logf("Minting USDC...")

	data, err := transmitterABI.Pack("receiveMessage", attestation.Message, attestation.Attestation)
	if err != nil {
		return "", wrapErr(KindMintExecutionFailed, err)
	}
	transmitter := common.HexToAddress(dst.MessageTransmitter)

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MintRetries; attempt++ {
		tx, err := e.mintOnce(ctx, dst, transmitter, data)
		if err == nil {
			e.state.logf("Mint Tx: %s", tx.Hex())
			e.state.complete(string(StepCompleted), tx.Hex())
			e.log.Info("bridge transfer completed", zap.String("tx", tx.Hex()))
			return tx.Hex(), nil
		}
		lastErr = err
		if attempt == e.cfg.MintRetries {
			break
		}
		e.state.logf("Retry %d/%d...", attempt, e.cfg.MintRetries)
		select {
		case <-ctx.Done():
			return "", wrapErr(KindMintExecutionFailed, ctx.Err())
		case <-time.After(e.cfg.MintBackoff * time.Duration(attempt)):
		}
	}
	return "", wrapErr(KindMintExecutionFailed, lastErr)
}

func (e *BridgeEngine) mintOnce(ctx context.Context, dst registry.Descriptor, transmitter common.Address, data []byte) (common.Hash, error) {
	// re-verify the active chain on every attempt
	if err := e.wallet.SwitchChain(ctx, dst.ChainID); err != nil {
		return common.Hash{}, err
	}
	maxFee, maxTip, err := e.reader.EstimateFeesPerGas(ctx, dst.ChainID)
	if err != nil {
		return common.Hash{}, err
	}
	gas, err := e.reader.EstimateGas(ctx, dst.ChainID, e.wallet.Address(), transmitter, data)
	if err != nil {
		return common.Hash{}, err
	}
	// 50% safety buffer on the estimate
	gasWithBuffer := gas * 150 / 100
	e.state.logf("Gas limit with buffer: %d", gasWithBuffer)

	return e.wallet.SendTransaction(ctx, TxParams{
		ChainID:              dst.ChainID,
		To:                   transmitter,
		Data:                 data,
		Gas:                  gasWithBuffer,
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: maxTip,
	})
}

// GetBalance reads the connected address's bridged-asset balance on a chain
// and formats it at the asset's fixed precision. Engine state is untouched.
func (e *BridgeEngine) GetBalance(ctx context.Context, chainID int64) (string, error) {
	d, ok := registry.ByChainID(chainID)
	if !ok {
		return "", errf(KindConfiguration, "no chain descriptor for chain id %d", chainID)
	}
	data, err := erc20ABI.Pack("balanceOf", e.wallet.Address())
	if err != nil {
		return "", err
	}
	out, err := e.reader.CallContract(ctx, chainID, common.HexToAddress(d.USDCAddress), data)
	if err != nil {
		return "", err
	}
	vals, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil || len(vals) != 1 {
		return "", errors.New("malformed balanceOf response")
	}
	balance, ok := vals[0].(*big.Int)
	if !ok {
		return "", errors.New("malformed balanceOf response")
	}
	return FormatUnits(balance, registry.USDCDecimals), nil
}
