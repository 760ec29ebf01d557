package workers

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"gochainpay/EVMRPC"
	"gochainpay/attestation"
	"gochainpay/backend"
	"gochainpay/config"
	"gochainpay/engine"
	"gochainpay/swapapi"
	"gochainpay/wallet"
	"gochainpay/workers/handlers"
)

// WorkerShutdown signals worker loops to exit after the HTTP server stops.
var WorkerShutdown = false

var (
	logger   *zap.Logger
	custody  *wallet.KeyedWallet
	reader   *EVMRPC.Reader
	selector *engine.Selector
	reporter *backend.Client
)

// Init wires the custodial wallet, both transfer engines and the selector
// from config. Must run after config.Init.
func Init(log *zap.Logger) error {
	logger = log

	w, err := wallet.NewKeyedWallet(config.Config.EVM.PrivateKey, log)
	if err != nil {
		return err
	}
	if config.Config.EVM.PublicAddress != "" &&
		!strings.EqualFold(config.Config.EVM.PublicAddress, w.Address().Hex()) {
		return fmt.Errorf("configured address %s does not match the custodial key address %s",
			config.Config.EVM.PublicAddress, w.Address().Hex())
	}
	custody = w
	reader = EVMRPC.NewReader()

	att := attestation.New(config.Config.Attestation.BaseURL, log)
	swapSvc := swapapi.New(config.Config.Swap.BaseURL, config.Config.Swap.AuthKey, custody, log)

	bridgeEng := engine.NewBridgeEngine(custody, reader, att, engine.BridgeConfig{
		AttestationMaxAttempts: config.Config.Attestation.MaxAttempts,
		MintRetries:            config.EVM_RETRIES,
		Logger:                 log,
	})
	swapEng := engine.NewSwapEngine(custody, swapSvc, engine.SwapConfig{
		MaxPollAttempts: config.Config.Swap.MaxPollAttempts,
		FeeBps:          config.Config.Swap.FeeBps,
		Logger:          log,
	})

	selector = engine.NewSelector(bridgeEng, swapEng)
	reporter = backend.New(config.Config.Backend.BaseURL, log)

	handlers.Init(bridgeEng, custody.Address().Hex(), log)
	return nil
}
