package engine

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// TxParams is a destination, calldata and optional gas overrides. Zero gas
// fields mean "let the wallet decide".
type TxParams struct {
	ChainID              int64
	To                   common.Address
	Data                 []byte
	Value                *big.Int
	Gas                  uint64
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Wallet is the externally owned signing capability. The active chain is
// process-wide shared state: the engine requests switches but never assumes
// exclusive ownership, so it re-switches before every chain-sensitive call.
type Wallet interface {
	Address() common.Address
	SwitchChain(ctx context.Context, chainID int64) error
	SendTransaction(ctx context.Context, params TxParams) (common.Hash, error)
	// SignTypedData must sign exactly the payload it is given; the engine
	// forwards protocol-supplied typed data without re-deriving any field.
	SignTypedData(ctx context.Context, typed apitypes.TypedData) ([]byte, error)
}

// ChainReader is the read-only chain capability.
type ChainReader interface {
	CallContract(ctx context.Context, chainID int64, to common.Address, data []byte) ([]byte, error)
	NativeBalance(ctx context.Context, chainID int64, addr common.Address) (*big.Int, error)
	EstimateGas(ctx context.Context, chainID int64, from, to common.Address, data []byte) (uint64, error)
	EstimateFeesPerGas(ctx context.Context, chainID int64) (maxFee, maxTip *big.Int, err error)
}

// ErrAttestationNotReady is returned by AttestationClient while the burn has
// not reached finality yet (including the service's not-found responses).
var ErrAttestationNotReady = errors.New("attestation not ready")

// Attestation is the opaque proof blob: message bytes plus the verifier
// network's signature. The engine passes it through untouched.
type Attestation struct {
	Message     []byte
	Attestation []byte
}

// AttestationClient retrieves the proof for a burn transaction, keyed by the
// source chain's domain code and the burn transaction hash.
type AttestationClient interface {
	Message(ctx context.Context, sourceDomain int32, burnTx common.Hash) (*Attestation, error)
}

// QuoteParams identifies a swap between two networks in the swap protocol's
// own network enumeration. Amount is a base-unit integer string.
type QuoteParams struct {
	SrcNetwork    int64
	DstNetwork    int64
	SrcToken      string
	DstToken      string
	Amount        string
	WalletAddress string
}

// Preset is the slice of quote parameters the engine actually consumes.
type Preset struct {
	SecretsCount int
}

// Quote is the priced route returned by the swap service. QuoteID and Raw are
// echoed back verbatim on order placement.
type Quote struct {
	QuoteID string
	Params  QuoteParams
	Preset  Preset
	Raw     []byte
}

func (q *Quote) GetPreset() Preset { return q.Preset }

// OrderFee is an optional protocol fee in basis points.
type OrderFee struct {
	TakingFeeBps      int
	TakingFeeReceiver string
}

// OrderParams carries the hash-lock commitment into order placement. Secret
// preimages stay with the engine; only hashes travel.
type OrderParams struct {
	WalletAddress string
	HashLock      common.Hash
	SecretHashes  []common.Hash
	Fee           *OrderFee
}

// PlacedOrder is the service's acknowledgement. TxHash is rarely present.
type PlacedOrder struct {
	OrderHash string
	TxHash    string
}

// Order statuses the engine understands. Anything else is "not yet".
const (
	OrderStatusPending   = "pending"
	OrderStatusExecuted  = "executed"
	OrderStatusExpired   = "expired"
	OrderStatusCancelled = "cancelled"
	OrderStatusRefunded  = "refunded"
)

type OrderStatus struct {
	Status string
	TxHash string
}

// Fill is a partial execution that is ready to accept its secret.
type Fill struct {
	Idx int
}

// SwapService is the swap-aggregation collaborator (quote, order, status,
// fills, secret submission). Implementations own typed-data signing against
// the wallet they were constructed with.
type SwapService interface {
	GetQuote(ctx context.Context, params QuoteParams) (*Quote, error)
	PlaceOrder(ctx context.Context, quote *Quote, params OrderParams) (*PlacedOrder, error)
	OrderStatus(ctx context.Context, orderHash string) (*OrderStatus, error)
	ReadyFills(ctx context.Context, orderHash string) ([]Fill, error)
	SubmitSecret(ctx context.Context, orderHash string, secret string) error
}
