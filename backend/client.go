// Package backend talks to the payment backend. The backend is an opaque
// collaborator reached only through the narrow submit contract, so the client
// stays fire-and-forget: a failed report is logged and not retried.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type SubmitRequest struct {
	TxID          string `json:"tx_id"`
	ProductID     string `json:"product_id,omitempty"`
	SourceChainID int64  `json:"sourceChainId,omitempty"`
	Attestation   string `json:"attestation,omitempty"`
}

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

// SubmitTransaction reports the final transfer identifier for a payment.
func (c *Client) SubmitTransaction(ctx context.Context, sub SubmitRequest) error {
	if c.baseURL == "" {
		// backend reporting disabled
		return nil
	}

	body, err := json.Marshal(sub)
	if err != nil {
		return errors.Wrap(err, "marshal submit request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tx/submit", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build submit request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "submit transaction")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return errors.Errorf("backend submit: unexpected status %d", resp.StatusCode)
	}

	c.log.Info("reported transaction to backend",
		zap.String("tx_id", sub.TxID),
		zap.String("product_id", sub.ProductID))
	return nil
}

func (c *Client) Report(sub SubmitRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := c.SubmitTransaction(ctx, sub); err != nil {
		c.log.Warn(fmt.Sprintf("backend report failed: %s", err.Error()))
	}
}
