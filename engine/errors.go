package engine

import (
	"errors"
	"fmt"
)

// Kind classifies a terminal transfer failure. Fatal kinds are never retried
// by the engine; the caller retries by building a fresh request after reset.
type Kind string

const (
	KindConfiguration        Kind = "configuration"
	KindWalletNotConnected   Kind = "wallet-not-connected"
	KindApprovalFailed       Kind = "approval-failed"
	KindBurnFailed           Kind = "burn-failed"
	KindAttestationFailed    Kind = "attestation-failed"
	KindAttestationTimeout   Kind = "attestation-timeout"
	KindInsufficientGas      Kind = "insufficient-gas"
	KindMintExecutionFailed  Kind = "mint-execution-failed"
	KindUnsupportedChain     Kind = "unsupported-chain"
	KindQuoteFailed          Kind = "quote-failed"
	KindOrderPlacementFailed Kind = "order-placement-failed"
	KindSigningFailed        Kind = "signing-failed"
	KindExecutionFailed      Kind = "execution-failed"
	KindExecutionTimeout     Kind = "execution-timeout"
)

// TransferError carries the failure kind together with the underlying cause.
type TransferError struct {
	Kind Kind
	Err  error
}

func (e *TransferError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err.Error())
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// wrapErr attaches a kind to err. Passing an already-kinded error through is
// a no-op so inner failures keep their original classification.
func wrapErr(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var te *TransferError
	if errors.As(err, &te) {
		return err
	}
	return &TransferError{Kind: kind, Err: err}
}

func errf(kind Kind, format string, args ...any) error {
	return &TransferError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the failure kind, or "" for unclassified errors.
func KindOf(err error) Kind {
	var te *TransferError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}
