// Package attestation talks to the bridge's message attestation service.
package attestation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"gochainpay/engine"
)

// Client implements engine.AttestationClient over the service's REST API:
// GET {base}/v2/messages/{domain}?transactionHash={hash}.
type Client struct {
	baseURL string
	httpc   *http.Client
	log     *zap.Logger
}

func New(baseURL string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

type messageEnvelope struct {
	Messages []struct {
		Status      string `json:"status"`
		Message     string `json:"message"`
		Attestation string `json:"attestation"`
	} `json:"messages"`
}

// Message returns the attestation for a burn transaction, or
// engine.ErrAttestationNotReady while the service has nothing complete yet.
// The proof blobs are passed through opaquely.
func (c *Client) Message(ctx context.Context, sourceDomain int32, burnTx common.Hash) (*engine.Attestation, error) {
	url := fmt.Sprintf("%s/v2/messages/%d?transactionHash=%s", c.baseURL, sourceDomain, burnTx.Hex())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building attestation request")
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "querying attestation service")
	}
	defer resp.Body.Close()

	// not-found means the burn has not been indexed yet, retry later
	if resp.StatusCode == http.StatusNotFound {
		return nil, engine.ErrAttestationNotReady
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("attestation service returned status %d", resp.StatusCode)
	}

	var envelope messageEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, errors.Wrap(err, "decoding attestation response")
	}
	if len(envelope.Messages) == 0 {
		return nil, engine.ErrAttestationNotReady
	}

	msg := envelope.Messages[0]
	// any status other than complete, including unknown ones, is "not yet"
	if msg.Status != "complete" {
		c.log.Debug("attestation pending", zap.String("status", msg.Status), zap.String("tx", burnTx.Hex()))
		return nil, engine.ErrAttestationNotReady
	}

	message, err := hexutil.Decode(msg.Message)
	if err != nil {
		return nil, errors.Wrap(err, "decoding attestation message bytes")
	}
	proof, err := hexutil.Decode(msg.Attestation)
	if err != nil {
		return nil, errors.Wrap(err, "decoding attestation proof bytes")
	}
	return &engine.Attestation{Message: message, Attestation: proof}, nil
}
