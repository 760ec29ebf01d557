package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func postNewPayment(t *testing.T, req NewPaymentRequest) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()

	body, err := json.Marshal(req)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	NewPayment(rec, httptest.NewRequest(http.MethodPost, "/payment/new", bytes.NewReader(body)))

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func validNewPaymentRequest() NewPaymentRequest {
	return NewPaymentRequest{
		ProductID:    "product-1234",
		PayerAddress: "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		SourceChain:  1,
		DestChain:    8453,
		Amount:       "10.00",
	}
}

func TestNewPaymentRejectsUnknownTransferType(t *testing.T) {
	req := validNewPaymentRequest()
	req.TransferType = "instant"

	rec, resp := postNewPayment(t, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "error", resp.Status)
	require.Equal(t, "transferType", resp.Field)
}

func TestNewPaymentAcceptsSpeedClasses(t *testing.T) {
	// fast, standard and unset all pass the speed gate; these requests then
	// stop at the signature check, proving the gate let them through
	for _, transferType := range []string{"fast", "standard", ""} {
		req := validNewPaymentRequest()
		req.TransferType = transferType

		rec, resp := postNewPayment(t, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "signature", resp.Field)
	}
}

func TestNewPaymentRejectsMissingReceiver(t *testing.T) {
	req := validNewPaymentRequest()
	req.ProductID = ""
	req.UserAlias = ""

	rec, resp := postNewPayment(t, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "productId", resp.Field)
}

func TestNewPaymentRejectsUnknownChain(t *testing.T) {
	req := validNewPaymentRequest()
	req.DestChain = 999999

	rec, resp := postNewPayment(t, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "destChain", resp.Field)
}
