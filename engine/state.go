package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// TransferStep is the attestation-bridge state machine. Strict linear
// progression, no backward transitions; error is reachable from any
// non-terminal step.
type TransferStep string

const (
	StepIdle               TransferStep = "idle"
	StepApproving          TransferStep = "approving"
	StepBurning            TransferStep = "burning"
	StepWaitingAttestation TransferStep = "waiting-attestation"
	StepMinting            TransferStep = "minting"
	StepCompleted          TransferStep = "completed"
	StepError              TransferStep = "error"
)

// FusionTransferStep is the intent-swap state machine.
type FusionTransferStep string

const (
	FusionStepIdle             FusionTransferStep = "idle"
	FusionStepGettingQuote     FusionTransferStep = "getting-quote"
	FusionStepPlacingOrder     FusionTransferStep = "placing-order"
	FusionStepWaitingExecution FusionTransferStep = "waiting-execution"
	FusionStepCompleted        FusionTransferStep = "completed"
	FusionStepError            FusionTransferStep = "error"
)

// Snapshot is a caller-facing copy of the engine state at one point in time.
type Snapshot struct {
	Step        string
	Logs        []string
	Err         error
	TxOrOrderID string
	Running     bool
}

// transferState is owned exclusively by one engine instance. Callers only
// ever see Snapshot copies. The mutex is required because the swap engine
// polls from two goroutines; everything else is sequential.
type transferState struct {
	mu          sync.Mutex
	initial     string
	step        string
	logs        []string
	lastErr     error
	txOrOrderID string
	running     bool
	cancel      context.CancelFunc
}

func newTransferState(initial string) *transferState {
	return &transferState{initial: initial, step: initial}
}

// begin marks a run in progress and derives a cancelable context so Reset can
// stop in-flight polling. A second concurrent run on the same engine is a
// caller bug and is rejected. The log trail always belongs to exactly one
// run, so any previous run's trail is dropped here.
func (s *transferState) begin(parent context.Context) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, errors.New("transfer already in progress, reset first")
	}
	ctx, cancel := context.WithCancel(parent)
	s.running = true
	s.cancel = cancel
	s.step = s.initial
	s.logs = nil
	s.lastErr = nil
	s.txOrOrderID = ""
	return ctx, nil
}

func (s *transferState) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *transferState) setStep(step string) {
	s.mu.Lock()
	s.step = step
	s.mu.Unlock()
}

// logf appends a timestamped trace line. The log is append-only and never
// reordered; it is the support-facing trail for failed transfers.
func (s *transferState) logf(format string, args ...any) {
	line := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	s.mu.Lock()
	s.logs = append(s.logs, line)
	s.mu.Unlock()
}

func (s *transferState) fail(err error) {
	s.mu.Lock()
	s.step = string(StepError)
	s.lastErr = err
	s.mu.Unlock()
}

func (s *transferState) complete(step string, id string) {
	s.mu.Lock()
	s.step = step
	if id != "" {
		s.txOrOrderID = id
	}
	s.mu.Unlock()
}

func (s *transferState) setTxID(id string) {
	s.mu.Lock()
	s.txOrOrderID = id
	s.mu.Unlock()
}

func (s *transferState) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	logs := make([]string, len(s.logs))
	copy(logs, s.logs)
	return Snapshot{
		Step:        s.step,
		Logs:        logs,
		Err:         s.lastErr,
		TxOrOrderID: s.txOrOrderID,
		Running:     s.running,
	}
}

// reset cancels any in-flight run and clears everything back to the initial
// step. Safe from any state.
func (s *transferState) reset(initial string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.running = false
	s.step = initial
	s.logs = nil
	s.lastErr = nil
	s.txOrOrderID = ""
}
