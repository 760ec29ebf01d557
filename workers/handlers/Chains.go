package handlers

import (
	"net/http"

	"gochainpay/registry"
)

type APIChainResponse struct {
	Name        string `json:"name"`
	ChainID     int64  `json:"chainId"`
	USDCAddress string `json:"usdcAddress"`
	Bridge      bool   `json:"bridge"`
	Swap        bool   `json:"swap"`
}

// Chains lists every chain payments can be routed across, with the protocols
// available on each.
func Chains(w http.ResponseWriter, r *http.Request) {
	descriptors := registry.All()

	chains := make([]APIChainResponse, 0, len(descriptors))
	for _, d := range descriptors {
		_, swapErr := registry.NetworkEnumFor(d.ChainID)
		chains = append(chains, APIChainResponse{
			Name:        d.Name,
			ChainID:     d.ChainID,
			USDCAddress: d.USDCAddress,
			Bridge:      registry.BridgeSupported(d.ChainID),
			Swap:        swapErr == nil,
		})
	}

	responseJSON(w, chains, http.StatusOK)
}
