package engine

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/require"

	"gochainpay/registry"
)

// fakeWallet records every call; SendTransaction hands out sequential hashes.
// Sends to failTo fail with failWith for the first failCount calls.
type fakeWallet struct {
	mu        sync.Mutex
	addr      common.Address
	switched  []int64
	sent      []TxParams
	failTo    common.Address
	failCount int
	failWith  error
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{addr: common.HexToAddress("0x00000000000000000000000000000000DeaDBeef")}
}

func (w *fakeWallet) Address() common.Address { return w.addr }

func (w *fakeWallet) SwitchChain(ctx context.Context, chainID int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.switched = append(w.switched, chainID)
	return nil
}

func (w *fakeWallet) SendTransaction(ctx context.Context, p TxParams) (common.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failCount > 0 && p.To == w.failTo {
		w.failCount--
		return common.Hash{}, w.failWith
	}
	w.sent = append(w.sent, p)
	return common.BigToHash(big.NewInt(int64(len(w.sent)))), nil
}

func (w *fakeWallet) SignTypedData(ctx context.Context, typed apitypes.TypedData) ([]byte, error) {
	return make([]byte, 65), nil
}

func (w *fakeWallet) sentTo(addr string) []TxParams {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []TxParams
	for _, p := range w.sent {
		if p.To == common.HexToAddress(addr) {
			out = append(out, p)
		}
	}
	return out
}

// fakeReader serves canned allowance and balance values.
type fakeReader struct {
	allowance     *big.Int
	nativeBalance *big.Int
}

func (r *fakeReader) CallContract(ctx context.Context, chainID int64, to common.Address, data []byte) ([]byte, error) {
	allowance := r.allowance
	if allowance == nil {
		allowance = big.NewInt(0)
	}
	return erc20ABI.Methods["allowance"].Outputs.Pack(allowance)
}

func (r *fakeReader) NativeBalance(ctx context.Context, chainID int64, addr common.Address) (*big.Int, error) {
	if r.nativeBalance == nil {
		// plenty of gas
		return new(big.Int).Mul(big.NewInt(1), big.NewInt(1e18)), nil
	}
	return new(big.Int).Set(r.nativeBalance), nil
}

func (r *fakeReader) EstimateGas(ctx context.Context, chainID int64, from, to common.Address, data []byte) (uint64, error) {
	return 100_000, nil
}

func (r *fakeReader) EstimateFeesPerGas(ctx context.Context, chainID int64) (*big.Int, *big.Int, error) {
	return big.NewInt(2_000_000_000), big.NewInt(1_000_000_000), nil
}

// fakeAttestation stays not-ready for notReadyFor calls, then serves the proof.
type fakeAttestation struct {
	mu          sync.Mutex
	calls       int
	notReadyFor int
	err         error
}

func (a *fakeAttestation) Message(ctx context.Context, sourceDomain int32, burnTx common.Hash) (*Attestation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	if a.calls <= a.notReadyFor {
		return nil, ErrAttestationNotReady
	}
	return &Attestation{Message: []byte{0x01, 0x02}, Attestation: []byte{0x03}}, nil
}

func testBridgeConfig() BridgeConfig {
	return BridgeConfig{
		AttestationInterval: time.Millisecond,
		MintBackoff:         time.Millisecond,
	}
}

func TestBridgeHappyPath(t *testing.T) {
	wallet := newFakeWallet()
	reader := &fakeReader{}
	att := &fakeAttestation{notReadyFor: 2}
	eng := NewBridgeEngine(wallet, reader, att, testBridgeConfig())

	tx, err := eng.ExecuteTransfer(context.Background(), TransferRequest{
		SourceChainID:      registry.Ethereum,
		DestinationChainID: registry.Base,
		Amount:             "10.00",
	})
	require.NoError(t, err)
	require.NotEmpty(t, tx)

	snap := eng.Snapshot()
	require.Equal(t, string(StepCompleted), snap.Step)
	require.Equal(t, tx, snap.TxOrOrderID)
	require.Nil(t, snap.Err)

	// the log trail walks every step in order
	trail := strings.Join(snap.Logs, "\n")
	approving := strings.Index(trail, "Approving USDC transfer")
	burning := strings.Index(trail, "Burning USDC")
	waiting := strings.Index(trail, "Retrieving attestation")
	minting := strings.Index(trail, "Minting USDC")
	require.True(t, approving >= 0 && burning > approving && waiting > burning && minting > waiting,
		"steps out of order:\n%s", trail)

	// approve then burn on source, mint on destination
	src, _ := registry.ByChainID(registry.Ethereum)
	dst, _ := registry.ByChainID(registry.Base)
	require.Len(t, wallet.sentTo(src.USDCAddress), 1)
	require.Len(t, wallet.sentTo(src.TokenMessenger), 1)
	require.Len(t, wallet.sentTo(dst.MessageTransmitter), 1)
}

func TestBridgeBurnEncoding(t *testing.T) {
	wallet := newFakeWallet()
	eng := NewBridgeEngine(wallet, &fakeReader{}, &fakeAttestation{}, testBridgeConfig())

	dest := "0x1111111111111111111111111111111111111111"
	_, err := eng.ExecuteTransfer(context.Background(), TransferRequest{
		SourceChainID:      registry.Ethereum,
		DestinationChainID: registry.Base,
		Amount:             "10.00",
		TransferType:       "fast",
		DestinationAddress: dest,
	})
	require.NoError(t, err)

	src, _ := registry.ByChainID(registry.Ethereum)
	burns := wallet.sentTo(src.TokenMessenger)
	require.Len(t, burns, 1)

	vals, err := messengerABI.Methods["depositForBurn"].Inputs.Unpack(burns[0].Data[4:])
	require.NoError(t, err)

	amount := vals[0].(*big.Int)
	domain := vals[1].(uint32)
	recipient := vals[2].([32]byte)
	maxFee := vals[5].(*big.Int)
	finality := vals[6].(uint32)

	require.Equal(t, "10000000", amount.String())
	dst, _ := registry.ByChainID(registry.Base)
	require.Equal(t, uint32(dst.Domain), domain)

	// zero-padded 32-byte mint recipient
	var want [32]byte
	copy(want[12:], common.HexToAddress(dest).Bytes())
	require.Equal(t, want, recipient)

	// maxFee = amount - 1, fast finality threshold
	require.Equal(t, "9999999", maxFee.String())
	require.Equal(t, finalityFast, finality)
}

func TestBridgeSkipsApprovalWhenAllowanceCovers(t *testing.T) {
	wallet := newFakeWallet()
	reader := &fakeReader{allowance: big.NewInt(1_000_000_000)}
	eng := NewBridgeEngine(wallet, reader, &fakeAttestation{}, testBridgeConfig())

	_, err := eng.ExecuteTransfer(context.Background(), TransferRequest{
		SourceChainID:      registry.Ethereum,
		DestinationChainID: registry.Base,
		Amount:             "10.00",
	})
	require.NoError(t, err)

	src, _ := registry.ByChainID(registry.Ethereum)
	require.Empty(t, wallet.sentTo(src.USDCAddress), "approval should have been skipped")
}

func TestBridgeInsufficientGas(t *testing.T) {
	wallet := newFakeWallet()
	// 0.001 native, below the 0.01 minimum
	reader := &fakeReader{nativeBalance: big.NewInt(1_000_000_000_000_000)}
	eng := NewBridgeEngine(wallet, reader, &fakeAttestation{}, testBridgeConfig())

	_, err := eng.ExecuteTransfer(context.Background(), TransferRequest{
		SourceChainID:      registry.Ethereum,
		DestinationChainID: registry.Base,
		Amount:             "10.00",
	})
	require.Error(t, err)
	require.Equal(t, KindInsufficientGas, KindOf(err))

	snap := eng.Snapshot()
	require.Equal(t, string(StepError), snap.Step)

	// no finalize attempt was made
	dst, _ := registry.ByChainID(registry.Base)
	require.Empty(t, wallet.sentTo(dst.MessageTransmitter))
	require.NotContains(t, strings.Join(snap.Logs, "\n"), "Minting USDC")
}

func TestBridgeAttestationTimeout(t *testing.T) {
	wallet := newFakeWallet()
	att := &fakeAttestation{notReadyFor: 1 << 30}
	cfg := testBridgeConfig()
	cfg.AttestationMaxAttempts = 4
	eng := NewBridgeEngine(wallet, &fakeReader{}, att, cfg)

	_, err := eng.ExecuteTransfer(context.Background(), TransferRequest{
		SourceChainID:      registry.Ethereum,
		DestinationChainID: registry.Base,
		Amount:             "10.00",
	})
	require.Error(t, err)
	require.Equal(t, KindAttestationTimeout, KindOf(err))

	snap := eng.Snapshot()
	require.Equal(t, string(StepError), snap.Step)

	// one log line per poll attempt
	var waits int
	for _, line := range snap.Logs {
		if strings.Contains(line, "Waiting for attestation") {
			waits++
		}
	}
	require.Equal(t, 4, waits)

	// never reached the destination chain
	dst, _ := registry.ByChainID(registry.Base)
	require.Empty(t, wallet.sentTo(dst.MessageTransmitter))
}

func TestBridgeAttestationServiceErrors(t *testing.T) {
	att := &fakeAttestation{err: fmt.Errorf("connection refused")}
	cfg := testBridgeConfig()
	cfg.AttestationMaxAttempts = 3
	eng := NewBridgeEngine(newFakeWallet(), &fakeReader{}, att, cfg)

	_, err := eng.ExecuteTransfer(context.Background(), TransferRequest{
		SourceChainID:      registry.Ethereum,
		DestinationChainID: registry.Base,
		Amount:             "10.00",
	})
	require.Error(t, err)
	require.Equal(t, KindAttestationFailed, KindOf(err))
}

func TestBridgeRejectsUnsupportedChain(t *testing.T) {
	eng := NewBridgeEngine(newFakeWallet(), &fakeReader{}, &fakeAttestation{}, testBridgeConfig())

	// Polygon has no bridge contracts
	_, err := eng.ExecuteTransfer(context.Background(), TransferRequest{
		SourceChainID:      registry.Polygon,
		DestinationChainID: registry.Base,
		Amount:             "10.00",
	})
	require.Error(t, err)
	require.Equal(t, KindConfiguration, KindOf(err))
}

func TestBridgeReset(t *testing.T) {
	eng := NewBridgeEngine(newFakeWallet(), &fakeReader{}, &fakeAttestation{err: fmt.Errorf("down")}, testBridgeConfig())

	_, err := eng.ExecuteTransfer(context.Background(), TransferRequest{
		SourceChainID:      registry.Ethereum,
		DestinationChainID: registry.Base,
		Amount:             "10.00",
	})
	require.Error(t, err)

	eng.Reset()
	snap := eng.Snapshot()
	require.Equal(t, string(StepIdle), snap.Step)
	require.Empty(t, snap.Logs)
	require.Nil(t, snap.Err)
	require.Empty(t, snap.TxOrOrderID)
}

func TestBridgeMintRetriesThenSucceeds(t *testing.T) {
	dst, _ := registry.ByChainID(registry.Base)

	wallet := newFakeWallet()
	wallet.failTo = common.HexToAddress(dst.MessageTransmitter)
	wallet.failCount = 2
	wallet.failWith = fmt.Errorf("nonce too low")
	eng := NewBridgeEngine(wallet, &fakeReader{}, &fakeAttestation{}, testBridgeConfig())

	tx, err := eng.ExecuteTransfer(context.Background(), TransferRequest{
		SourceChainID:      registry.Ethereum,
		DestinationChainID: registry.Base,
		Amount:             "10.00",
	})
	require.NoError(t, err)
	require.NotEmpty(t, tx)

	snap := eng.Snapshot()
	require.Equal(t, string(StepCompleted), snap.Step)
	require.Len(t, wallet.sentTo(dst.MessageTransmitter), 1)

	// two failed attempts each leave a retry line
	trail := strings.Join(snap.Logs, "\n")
	require.Contains(t, trail, "Retry 1/3")
	require.Contains(t, trail, "Retry 2/3")
}

func TestBridgeMintRetriesExhausted(t *testing.T) {
	dst, _ := registry.ByChainID(registry.Base)

	wallet := newFakeWallet()
	wallet.failTo = common.HexToAddress(dst.MessageTransmitter)
	wallet.failCount = 3
	wallet.failWith = fmt.Errorf("execution reverted")
	eng := NewBridgeEngine(wallet, &fakeReader{}, &fakeAttestation{}, testBridgeConfig())

	_, err := eng.ExecuteTransfer(context.Background(), TransferRequest{
		SourceChainID:      registry.Ethereum,
		DestinationChainID: registry.Base,
		Amount:             "10.00",
	})
	require.Error(t, err)
	require.Equal(t, KindMintExecutionFailed, KindOf(err))
	// the underlying cause surfaces after the last attempt
	require.Contains(t, err.Error(), "execution reverted")

	// approve and burn went through, no mint landed
	src, _ := registry.ByChainID(registry.Ethereum)
	require.Len(t, wallet.sentTo(src.USDCAddress), 1)
	require.Len(t, wallet.sentTo(src.TokenMessenger), 1)
	require.Empty(t, wallet.sentTo(dst.MessageTransmitter))

	snap := eng.Snapshot()
	require.Equal(t, string(StepError), snap.Step)
}

func TestBridgeRejectsZeroAmount(t *testing.T) {
	wallet := newFakeWallet()
	eng := NewBridgeEngine(wallet, &fakeReader{}, &fakeAttestation{}, testBridgeConfig())

	// zero would turn maxFee = amount - 1 into a huge wrapped uint256
	_, err := eng.ExecuteTransfer(context.Background(), TransferRequest{
		SourceChainID:      registry.Ethereum,
		DestinationChainID: registry.Base,
		Amount:             "0",
	})
	require.Error(t, err)
	require.Equal(t, KindConfiguration, KindOf(err))
	require.Empty(t, wallet.sent)
}

func TestBridgeSecondRunDropsPreviousTrail(t *testing.T) {
	eng := NewBridgeEngine(newFakeWallet(), &fakeReader{}, &fakeAttestation{}, testBridgeConfig())

	_, err := eng.ExecuteTransfer(context.Background(), TransferRequest{
		SourceChainID:      registry.Ethereum,
		DestinationChainID: registry.Base,
		Amount:             "not-a-number",
	})
	require.Error(t, err)
	require.Contains(t, strings.Join(eng.Snapshot().Logs, "\n"), "Error:")

	// a new run without an intervening Reset starts with a clean trail
	tx, err := eng.ExecuteTransfer(context.Background(), TransferRequest{
		SourceChainID:      registry.Ethereum,
		DestinationChainID: registry.Base,
		Amount:             "10.00",
	})
	require.NoError(t, err)
	require.NotEmpty(t, tx)

	snap := eng.Snapshot()
	require.Equal(t, string(StepCompleted), snap.Step)
	require.NotContains(t, strings.Join(snap.Logs, "\n"), "Error:")
	require.Nil(t, snap.Err)
}

func TestBridgeGetBalanceDoesNotTouchState(t *testing.T) {
	reader := &fakeReader{allowance: big.NewInt(12_500_000)}
	eng := NewBridgeEngine(newFakeWallet(), reader, &fakeAttestation{}, testBridgeConfig())

	// fakeReader packs a single uint256; balanceOf shares the shape
	balance, err := eng.GetBalance(context.Background(), registry.Ethereum)
	require.NoError(t, err)
	require.Equal(t, "12.5", balance)

	snap := eng.Snapshot()
	require.Equal(t, string(StepIdle), snap.Step)
	require.Empty(t, snap.Logs)
}
