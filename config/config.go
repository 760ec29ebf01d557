package config

type Configuration struct {
	// Server config
	Server struct {
		UseSSL    bool   `yaml:"ssl"`
		RedisPort int    `yaml:"redis_port"`
		RedisHost string `yaml:"redis_host"`
		LogLevel  string `yaml:"log_level"`
	} `yaml:"server"`
	// custodial wallet executing transfers
	EVM struct {
		PublicAddress string `yaml:"address"`
		PrivateKey    string `yaml:"private_key"`
	} `yaml:"EVM"`
	// attestation bridge service
	Attestation struct {
		BaseURL     string `yaml:"base_url"`
		MaxAttempts int    `yaml:"max_attempts"`
	} `yaml:"attestation"`
	// intent-swap aggregation service
	Swap struct {
		BaseURL         string `yaml:"base_url"`
		AuthKey         string `yaml:"auth_key"`
		FeeBps          int    `yaml:"fee_bps"`
		MaxPollAttempts int    `yaml:"max_poll_attempts"`
	} `yaml:"swap"`
	// opaque payment backend, reached via the submit contract only
	Backend struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"backend"`
	// destination-chain confirmations before a payment counts as settled
	Confirmations int `yaml:"confirmations"`
}

var Config Configuration

// maximum number of EVM RPC retries
const EVM_RETRIES = 3

var PaymentStatusSets = map[string]string{
	"pending":   "payments:pending",   // payment created, transfer not started
	"executing": "payments:executing", // transfer in flight or awaiting destination confirmations
	"success":   "payments:success",   // destination transaction confirmed
	"failed":    "payments:failed",    // terminal engine error, log trail retained
}
