package handlers

import (
	"net/http"

	"gochainpay/redis"
)

func GetFailedPayments(w http.ResponseWriter, r *http.Request) {

	failed, err := redis.FindAllPaymentsByStatus("failed")

	if err != nil {
		responseJSON(w, nil, 500)
		return
	}

	responseJSON(w, failed, 200)
}
