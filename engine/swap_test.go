package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"gochainpay/registry"
)

// fakeSwapService scripts ready fills per poll cycle and records submitted
// secrets. Status stays pending until markExecuted or all secrets arrive.
type fakeSwapService struct {
	mu           sync.Mutex
	secretsCount int
	quoteErr     error
	placeErr     error

	// fillWaves[i] is the set of fill indices reported on status poll i+1
	fillWaves [][]int
	fillPolls int

	status          string
	statusTx        string
	placed          []OrderParams
	submitted       []string
	hashesSeen      []string
	lastQuoteParams QuoteParams
}

func newFakeSwapService(secretsCount int) *fakeSwapService {
	return &fakeSwapService{secretsCount: secretsCount, status: OrderStatusPending}
}

func (s *fakeSwapService) GetQuote(ctx context.Context, params QuoteParams) (*Quote, error) {
	if s.quoteErr != nil {
		return nil, s.quoteErr
	}
	s.mu.Lock()
	s.lastQuoteParams = params
	s.mu.Unlock()
	return &Quote{
		QuoteID: "quote-1",
		Params:  params,
		Preset:  Preset{SecretsCount: s.secretsCount},
	}, nil
}

func (s *fakeSwapService) PlaceOrder(ctx context.Context, quote *Quote, params OrderParams) (*PlacedOrder, error) {
	if s.placeErr != nil {
		return nil, s.placeErr
	}
	s.mu.Lock()
	s.placed = append(s.placed, params)
	s.mu.Unlock()
	return &PlacedOrder{OrderHash: "0xabcdef0123456789"}, nil
}

func (s *fakeSwapService) OrderStatus(ctx context.Context, orderHash string) (*OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &OrderStatus{Status: s.status, TxHash: s.statusTx}, nil
}

func (s *fakeSwapService) ReadyFills(ctx context.Context, orderHash string) ([]Fill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashesSeen = append(s.hashesSeen, orderHash)

	wave := s.fillPolls
	s.fillPolls++
	if wave >= len(s.fillWaves) {
		return nil, nil
	}
	fills := make([]Fill, 0, len(s.fillWaves[wave]))
	for _, idx := range s.fillWaves[wave] {
		fills = append(fills, Fill{Idx: idx})
	}
	return fills, nil
}

func (s *fakeSwapService) SubmitSecret(ctx context.Context, orderHash string, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted = append(s.submitted, secret)
	return nil
}

func (s *fakeSwapService) setStatus(status, tx string) {
	s.mu.Lock()
	s.status = status
	s.statusTx = tx
	s.mu.Unlock()
}

func (s *fakeSwapService) submittedSecrets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.submitted))
	copy(out, s.submitted)
	return out
}

func testSwapConfig() SwapConfig {
	return SwapConfig{
		PollInterval:    time.Millisecond,
		MaxPollAttempts: 50,
	}
}

func testSwapRequest() SwapRequest {
	return SwapRequest{
		SourceChainID:      registry.Polygon,
		DestinationChainID: registry.Base,
		SrcTokenAddress:    "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174",
		DstTokenAddress:    "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		Amount:             "10000000",
	}
}

func TestSwapSingleFill(t *testing.T) {
	svc := newFakeSwapService(1)
	svc.fillWaves = [][]int{{}, {0}}
	eng := NewSwapEngine(newFakeWallet(), svc, testSwapConfig())

	id, err := eng.ExecuteTransfer(context.Background(), testSwapRequest())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	snap := eng.Snapshot()
	require.Equal(t, string(FusionStepCompleted), snap.Step)

	// the single secret went out exactly once and matches its commitment
	secrets := svc.submittedSecrets()
	require.Len(t, secrets, 1)
	raw, err := hexutil.Decode(secrets[0])
	require.NoError(t, err)
	require.Equal(t, crypto.Keccak256Hash(raw), svc.placed[0].SecretHashes[0])
	require.Equal(t, svc.placed[0].HashLock, svc.placed[0].SecretHashes[0])
}

func TestSwapMultiFillArbitraryOrder(t *testing.T) {
	svc := newFakeSwapService(3)
	// three fills reported across three poll cycles, out of order
	svc.fillWaves = [][]int{{2}, {0}, {1}}
	eng := NewSwapEngine(newFakeWallet(), svc, testSwapConfig())

	id, err := eng.ExecuteTransfer(context.Background(), testSwapRequest())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	snap := eng.Snapshot()
	require.Equal(t, string(FusionStepCompleted), snap.Step)

	// exactly three distinct secrets, each the preimage of a committed hash
	secrets := svc.submittedSecrets()
	require.Len(t, secrets, 3)
	require.Len(t, svc.placed, 1)

	matched := map[int]bool{}
	for _, secret := range secrets {
		raw, err := hexutil.Decode(secret)
		require.NoError(t, err)
		h := crypto.Keccak256Hash(raw)
		found := -1
		for i, sh := range svc.placed[0].SecretHashes {
			if sh == h {
				found = i
			}
		}
		require.GreaterOrEqual(t, found, 0, "submitted secret matches no committed hash")
		require.False(t, matched[found], "same fill served twice")
		matched[found] = true
	}
}

func TestSwapNoPrematureReveal(t *testing.T) {
	svc := newFakeSwapService(2)
	// the service never reports any fill ready
	svc.fillWaves = nil
	go func() {
		time.Sleep(20 * time.Millisecond)
		svc.setStatus(OrderStatusExecuted, "0xfeed")
	}()
	eng := NewSwapEngine(newFakeWallet(), svc, testSwapConfig())

	id, err := eng.ExecuteTransfer(context.Background(), testSwapRequest())
	require.NoError(t, err)
	require.Equal(t, "0xfeed", id)

	require.Empty(t, svc.submittedSecrets(), "secrets revealed before any fill was ready")
}

func TestSwapStatusCompletionSynthesizesID(t *testing.T) {
	svc := newFakeSwapService(1)
	svc.status = OrderStatusExecuted
	// no tx hash anywhere: the engine synthesizes a placeholder
	eng := NewSwapEngine(newFakeWallet(), svc, testSwapConfig())

	id, err := eng.ExecuteTransfer(context.Background(), testSwapRequest())
	require.NoError(t, err)
	require.Equal(t, "fill-order-0xabcdef01", id)
}

func TestSwapExecutionTimeout(t *testing.T) {
	svc := newFakeSwapService(1)
	cfg := testSwapConfig()
	cfg.MaxPollAttempts = 3
	eng := NewSwapEngine(newFakeWallet(), svc, cfg)

	_, err := eng.ExecuteTransfer(context.Background(), testSwapRequest())
	require.Error(t, err)
	require.Equal(t, KindExecutionTimeout, KindOf(err))

	snap := eng.Snapshot()
	require.Equal(t, string(FusionStepError), snap.Step)
}

func TestSwapTerminalStatusFails(t *testing.T) {
	svc := newFakeSwapService(1)
	svc.status = OrderStatusCancelled
	eng := NewSwapEngine(newFakeWallet(), svc, testSwapConfig())

	_, err := eng.ExecuteTransfer(context.Background(), testSwapRequest())
	require.Error(t, err)
	require.Equal(t, KindExecutionFailed, KindOf(err))
}

func TestSwapRejectsUnmappedChain(t *testing.T) {
	svc := newFakeSwapService(1)
	eng := NewSwapEngine(newFakeWallet(), svc, testSwapConfig())

	req := testSwapRequest()
	req.SourceChainID = registry.EthSepolia // no swap network enum
	_, err := eng.ExecuteTransfer(context.Background(), req)
	require.Error(t, err)
	require.Equal(t, KindUnsupportedChain, KindOf(err))
}

func TestSwapResetMidFlight(t *testing.T) {
	svc := newFakeSwapService(1)
	cfg := testSwapConfig()
	cfg.PollInterval = 50 * time.Millisecond
	cfg.MaxPollAttempts = 1000
	eng := NewSwapEngine(newFakeWallet(), svc, cfg)

	done := make(chan error, 1)
	go func() {
		_, err := eng.ExecuteTransfer(context.Background(), testSwapRequest())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	eng.Reset()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reset did not stop the in-flight run")
	}

	// reset is safe from any state, including the error the canceled run left
	eng.Reset()
	snap := eng.Snapshot()
	require.Equal(t, string(FusionStepIdle), snap.Step)
	require.Empty(t, snap.Logs)
}
