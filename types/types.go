package types

// PaymentRecord is a single cross-chain payment having a status.
// Records are stored as JSON blobs inside per-status Redis sets.
type PaymentRecord struct {
	ID           string
	Status       string
	ProductID    string
	UserAlias    string
	PayerAddress string
	SourceChain  int64
	DestChain    int64
	Asset        string // asset contract address on the source chain
	Amount       string // decimal string in asset units, e.g. "12.5"
	TransferType string // "fast" or "standard", picked by the payer
	Route        string // "bridge" or "swap", filled when the engine picks a route
	Step         string // last engine step observed
	TxOrOrderID  string // burn/mint tx hash or swap order id
	Logs         []string
	TsCreated    int64
	TsUpdated    int64
	Message      string // messages that help to track processing/errors
}
