package engine

import (
	"context"

	"gochainpay/registry"
)

// Route names which protocol the selector chose.
type Route string

const (
	RouteBridge Route = "bridge"
	RouteSwap   Route = "swap"
)

// RouteInput is the chosen path between payer and receiver. Asset is the
// source-chain token the payer spends; DestAsset defaults to the destination
// chain's bridge stablecoin when empty. Amount is a decimal string.
type RouteInput struct {
	SourceChainID      int64
	DestinationChainID int64
	Asset              string
	DestAsset          string
	Amount             string
	TransferType       string
	DestinationAddress string
}

// Result is the unified shape both engines are translated into, so the
// caller never learns which protocol ran.
type Result struct {
	Route       Route
	Step        string
	Logs        []string
	Error       error
	TxOrOrderID string
	IsLoading   bool
	IsSuccess   bool
	IsError     bool
}

// Selector gates the attestation-bridge path and falls back to the
// intent-swap path, unifying both engines behind one interface.
type Selector struct {
	bridge *BridgeEngine
	swap   *SwapEngine

	lastRoute Route
}

func NewSelector(bridge *BridgeEngine, swap *SwapEngine) *Selector {
	return &Selector{bridge: bridge, swap: swap}
}

// ChooseRoute is pure and re-evaluated on every call: the bridge path is
// eligible only when both chains support the bridge and the asset is the
// bridge's designated stablecoin on the source chain.
func (s *Selector) ChooseRoute(in RouteInput) Route {
	if registry.BridgeSupported(in.SourceChainID) &&
		registry.BridgeSupported(in.DestinationChainID) &&
		registry.IsBridgeStablecoin(in.SourceChainID, in.Asset) {
		return RouteBridge
	}
	return RouteSwap
}

// ExecuteTransfer routes to the chosen engine and returns the unified result.
func (s *Selector) ExecuteTransfer(ctx context.Context, in RouteInput) (Result, error) {
	route := s.ChooseRoute(in)
	s.lastRoute = route

	switch route {
	case RouteBridge:
		_, err := s.bridge.ExecuteTransfer(ctx, TransferRequest{
			SourceChainID:      in.SourceChainID,
			DestinationChainID: in.DestinationChainID,
			Amount:             in.Amount,
			TransferType:       in.TransferType,
			DestinationAddress: in.DestinationAddress,
		})
		return s.resultFor(route), err
	default:
		req, err := s.swapRequest(in)
		if err != nil {
			return s.resultFor(route), err
		}
		_, err = s.swap.ExecuteTransfer(ctx, req)
		return s.resultFor(route), err
	}
}

// swapRequest re-expresses the logical route in the swap engine's parameter
// shape: explicit token addresses and base-unit amount.
func (s *Selector) swapRequest(in RouteInput) (SwapRequest, error) {
	amount, err := ParseUnits(in.Amount, registry.USDCDecimals)
	if err != nil {
		return SwapRequest{}, wrapErr(KindConfiguration, err)
	}
	destAsset := in.DestAsset
	if destAsset == "" {
		if d, ok := registry.ByChainID(in.DestinationChainID); ok {
			destAsset = d.USDCAddress
		}
	}
	return SwapRequest{
		SourceChainID:      in.SourceChainID,
		DestinationChainID: in.DestinationChainID,
		SrcTokenAddress:    in.Asset,
		DstTokenAddress:    destAsset,
		Amount:             amount.String(),
		DestinationAddress: in.DestinationAddress,
	}, nil
}

// Result reports the latest unified state of whichever engine last ran.
func (s *Selector) Result() Result {
	return s.resultFor(s.lastRoute)
}

// Reset resets both engines.
func (s *Selector) Reset() {
	s.bridge.Reset()
	s.swap.Reset()
}

func (s *Selector) resultFor(route Route) Result {
	var snap Snapshot
	var success, failed string
	switch route {
	case RouteBridge:
		snap = s.bridge.Snapshot()
		success, failed = string(StepCompleted), string(StepError)
	default:
		route = RouteSwap
		snap = s.swap.Snapshot()
		success, failed = string(FusionStepCompleted), string(FusionStepError)
	}
	return Result{
		Route:       route,
		Step:        snap.Step,
		Logs:        snap.Logs,
		Error:       snap.Err,
		TxOrOrderID: snap.TxOrOrderID,
		IsLoading:   snap.Running,
		IsSuccess:   snap.Step == success,
		IsError:     snap.Step == failed,
	}
}
