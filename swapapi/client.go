// Package swapapi talks to the intent-swap aggregation service and owns the
// order signing flow against the payer's wallet.
package swapapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"gochainpay/engine"
)

// TypedDataSigner is the externally supplied signing capability. The client
// forwards the service's typed-data payload to it verbatim.
type TypedDataSigner interface {
	SignTypedData(ctx context.Context, typed apitypes.TypedData) ([]byte, error)
}

// Client implements engine.SwapService over the aggregator's REST API.
type Client struct {
	baseURL string
	authKey string
	signer  TypedDataSigner
	httpc   *http.Client
	log     *zap.Logger
}

func New(baseURL, authKey string, signer TypedDataSigner, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		authKey: authKey,
		signer:  signer,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

type quoteRequest struct {
	SrcChain        int64  `json:"srcChain"`
	DstChain        int64  `json:"dstChain"`
	SrcTokenAddress string `json:"srcTokenAddress"`
	DstTokenAddress string `json:"dstTokenAddress"`
	Amount          string `json:"amount"`
	WalletAddress   string `json:"walletAddress"`
	EnableEstimate  bool   `json:"enableEstimate"`
}

type quoteResponse struct {
	QuoteID string `json:"quoteId"`
	Preset  struct {
		SecretsCount int `json:"secretsCount"`
	} `json:"recommendedPreset"`
}

// GetQuote prices the swap. The raw response body is retained and echoed
// back on order build so the service can bind the order to its quote.
func (c *Client) GetQuote(ctx context.Context, params engine.QuoteParams) (*engine.Quote, error) {
	body, err := c.do(ctx, http.MethodPost, "/quoter/quote/receive", quoteRequest{
		SrcChain:        params.SrcNetwork,
		DstChain:        params.DstNetwork,
		SrcTokenAddress: params.SrcToken,
		DstTokenAddress: params.DstToken,
		Amount:          params.Amount,
		WalletAddress:   params.WalletAddress,
		EnableEstimate:  true,
	})
	if err != nil {
		return nil, err
	}

	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "decoding quote response")
	}
	return &engine.Quote{
		QuoteID: resp.QuoteID,
		Params:  params,
		Preset:  engine.Preset{SecretsCount: resp.Preset.SecretsCount},
		Raw:     body,
	}, nil
}

type buildOrderRequest struct {
	QuoteID       string          `json:"quoteId"`
	Quote         json.RawMessage `json:"quote"`
	WalletAddress string          `json:"walletAddress"`
	HashLock      string          `json:"hashLock"`
	SecretHashes  []string        `json:"secretHashes"`
	Fee           *orderFee       `json:"fee,omitempty"`
}

type orderFee struct {
	TakingFeeBps      int    `json:"takingFeeBps"`
	TakingFeeReceiver string `json:"takingFeeReceiver"`
}

type buildOrderResponse struct {
	OrderHash string          `json:"orderHash"`
	TypedData json.RawMessage `json:"typedData"`
}

type submitOrderRequest struct {
	OrderHash string `json:"orderHash"`
	Signature string `json:"signature"`
}

type submitOrderResponse struct {
	OrderHash string `json:"orderHash"`
	TxHash    string `json:"txHash"`
}

// PlaceOrder builds the order, has the wallet sign the service's typed-data
// payload exactly as received, and submits the signature. Re-deriving any of
// the domain/types/primaryType/message fields here would silently produce an
// invalid signature.
func (c *Client) PlaceOrder(ctx context.Context, quote *engine.Quote, params engine.OrderParams) (*engine.PlacedOrder, error) {
	hashes := make([]string, len(params.SecretHashes))
	for i, h := range params.SecretHashes {
		hashes[i] = h.Hex()
	}
	buildReq := buildOrderRequest{
		QuoteID:       quote.QuoteID,
		Quote:         quote.Raw,
		WalletAddress: params.WalletAddress,
		HashLock:      params.HashLock.Hex(),
		SecretHashes:  hashes,
	}
	if params.Fee != nil {
		buildReq.Fee = &orderFee{
			TakingFeeBps:      params.Fee.TakingFeeBps,
			TakingFeeReceiver: params.Fee.TakingFeeReceiver,
		}
	}

	body, err := c.do(ctx, http.MethodPost, "/relayer/order/build", buildReq)
	if err != nil {
		return nil, err
	}
	var built buildOrderResponse
	if err := json.Unmarshal(body, &built); err != nil {
		return nil, errors.Wrap(err, "decoding order build response")
	}

	signature, err := c.signOrder(ctx, built.TypedData)
	if err != nil {
		return nil, err
	}

	body, err = c.do(ctx, http.MethodPost, "/relayer/order/submit", submitOrderRequest{
		OrderHash: built.OrderHash,
		Signature: hexutil.Encode(signature),
	})
	if err != nil {
		return nil, err
	}
	var submitted submitOrderResponse
	if err := json.Unmarshal(body, &submitted); err != nil {
		return nil, errors.Wrap(err, "decoding order submit response")
	}
	if submitted.OrderHash == "" {
		submitted.OrderHash = built.OrderHash
	}
	return &engine.PlacedOrder{OrderHash: submitted.OrderHash, TxHash: submitted.TxHash}, nil
}

// signOrder decodes and validates the typed-data payload, then forwards it
// to the signer untouched. A payload missing any of the four fields is a
// signing error, not a retry.
func (c *Client) signOrder(ctx context.Context, raw json.RawMessage) ([]byte, error) {
	var typed apitypes.TypedData
	if err := json.Unmarshal(raw, &typed); err != nil {
		return nil, &engine.TransferError{Kind: engine.KindSigningFailed, Err: errors.Wrap(err, "malformed typed data payload")}
	}
	if typed.PrimaryType == "" || len(typed.Types) == 0 || typed.Message == nil {
		return nil, &engine.TransferError{Kind: engine.KindSigningFailed, Err: errors.New("typed data payload missing domain/types/primaryType/message")}
	}
	signature, err := c.signer.SignTypedData(ctx, typed)
	if err != nil {
		return nil, &engine.TransferError{Kind: engine.KindSigningFailed, Err: err}
	}
	return signature, nil
}

type orderStatusResponse struct {
	Status string `json:"status"`
	TxHash string `json:"txHash"`
}

func (c *Client) OrderStatus(ctx context.Context, orderHash string) (*engine.OrderStatus, error) {
	body, err := c.do(ctx, http.MethodGet, "/relayer/order/status/"+orderHash, nil)
	if err != nil {
		return nil, err
	}
	var resp orderStatusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "decoding order status response")
	}
	return &engine.OrderStatus{Status: resp.Status, TxHash: resp.TxHash}, nil
}

type readyFillsResponse struct {
	Fills []struct {
		Idx int `json:"idx"`
	} `json:"fills"`
}

func (c *Client) ReadyFills(ctx context.Context, orderHash string) ([]engine.Fill, error) {
	body, err := c.do(ctx, http.MethodGet, "/relayer/order/ready-to-accept-secret-fills/"+orderHash, nil)
	if err != nil {
		return nil, err
	}
	var resp readyFillsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "decoding ready fills response")
	}
	fills := make([]engine.Fill, 0, len(resp.Fills))
	for _, f := range resp.Fills {
		fills = append(fills, engine.Fill{Idx: f.Idx})
	}
	return fills, nil
}

type submitSecretRequest struct {
	OrderHash string `json:"orderHash"`
	Secret    string `json:"secret"`
}

func (c *Client) SubmitSecret(ctx context.Context, orderHash string, secret string) error {
	_, err := c.do(ctx, http.MethodPost, "/relayer/order/secret", submitSecretRequest{
		OrderHash: orderHash,
		Secret:    secret,
	})
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, "encoding request")
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, errors.Wrap(err, "building swap service request")
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.authKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "querying swap service")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading swap service response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("swap service returned status %d: %s", resp.StatusCode, truncate(body))
	}
	return body, nil
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}

var _ engine.SwapService = (*Client)(nil)
