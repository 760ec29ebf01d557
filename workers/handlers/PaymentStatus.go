package handlers

import (
	"net/http"

	"github.com/go-chi/chi"

	"gochainpay/redis"
)

func PaymentStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := redis.FindPaymentByID(id)
	if err != nil {
		logger.Warn("Error finding payment record: " + err.Error())
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

	responseJSON(w, &APIPaymentStatusResponse{
		Status:      "ok",
		Payment:     rec.Status,
		Route:       rec.Route,
		Step:        rec.Step,
		TxOrOrderID: rec.TxOrOrderID,
		Logs:        rec.Logs,
		Message:     rec.Message,
	}, http.StatusOK)
}
