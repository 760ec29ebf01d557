package handlers

type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
}

type APIPaymentResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
	// custodian address the payer funds for execution
	Address string `json:"address,omitempty"`
}

type APIPaymentStatusResponse struct {
	Status      string   `json:"status"`
	Payment     string   `json:"payment"`
	Route       string   `json:"route,omitempty"`
	Step        string   `json:"step,omitempty"`
	TxOrOrderID string   `json:"txOrOrderId,omitempty"`
	Logs        []string `json:"logs,omitempty"`
	Message     string   `json:"message,omitempty"`
}

type APIStateResponse struct {
	Status  string `json:"status"`
	Address string `json:"address,omitempty"`
	Message string `json:"message,omitempty"`
}
