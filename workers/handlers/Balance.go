package handlers

import (
	"net/http"

	"github.com/go-chi/chi"

	"gochainpay/registry"
)

// Balance reports the custodian's stablecoin balance on the named chain as a
// plain decimal string.
func Balance(w http.ResponseWriter, r *http.Request) {
	chainName := chi.URLParam(r, "chain")

	d, ok := registry.ByName(chainName)
	if !ok {
		responseJSON(w, &APIResponse{
			Status:  "error",
			Field:   "chain",
			Message: "Chain not provided or not supported",
		}, http.StatusBadRequest)
		return
	}

	balance, err := bridge.GetBalance(r.Context(), d.ChainID)
	if err != nil {
		logger.Warn("Error getting balance: " + err.Error())
		responsePlain(w, []byte("error"), http.StatusInternalServerError)
		return
	}

	responsePlain(w, []byte(balance), http.StatusOK)
}
