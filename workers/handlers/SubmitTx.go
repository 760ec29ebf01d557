package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"gochainpay/redis"
)

type SubmitTxRequest struct {
	PaymentID string `json:"paymentId"`
	TxID      string `json:"tx_id"`
}

// SubmitTx records an externally executed transaction against a payment and
// hands it to the confirmation watcher.
func SubmitTx(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		responseJSON(w, &APIResponse{
			Status:  "error",
			Message: "Error reading request body",
		}, http.StatusBadRequest)
		return
	}

	var req SubmitTxRequest
	err = json.Unmarshal(body, &req)
	if err != nil {
		responseJSON(w, &APIResponse{
			Status:  "error",
			Message: "Cannot unmarshal input JSON",
		}, http.StatusBadRequest)
		return
	}

	if req.PaymentID == "" || req.TxID == "" {
		responseJSON(w, &APIResponse{
			Status:  "error",
			Message: "Payment id and tx id must both be provided",
		}, http.StatusBadRequest)
		return
	}

	rec, err := redis.FindPaymentByID(req.PaymentID)
	if err != nil {
		responseJSON(w, &APIResponse{
			Status:  "error",
			Message: "Error looking up payment",
		}, http.StatusInternalServerError)
		return
	}
	if rec == nil {
		responseJSON(w, &APIResponse{
			Status:  "error",
			Message: "Payment not found",
		}, http.StatusNotFound)
		return
	}

	if rec.Status != "pending" {
		responseJSON(w, &APIResponse{
			Status:  "error",
			Message: "Payment is not awaiting an external transaction",
		}, http.StatusConflict)
		return
	}

	prevStatus := rec.Status
	rec.Status = "executing"
	rec.TxOrOrderID = req.TxID
	rec.TsUpdated = time.Now().Unix()

	if err := redis.ChangePaymentStatus(rec, prevStatus); err != nil {
		logger.Error("Error storing payment record: " + err.Error())
		responseJSON(w, &APIResponse{
			Status:  "error",
			Message: "Error recording transaction",
		}, http.StatusInternalServerError)
		return
	}

	responseJSON(w, &APIResponse{
		Status: "ok",
	}, http.StatusOK)
}
