package handlers

import (
	"net/http"
)

// prev. bridge implementation compatibility
func State(w http.ResponseWriter, r *http.Request) {
	responseJSON(w, &APIStateResponse{
		Status:  "ok",
		Address: publicAddress,
	}, http.StatusOK)
}
