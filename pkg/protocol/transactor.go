package protocol

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/daceq/daceq-go/pkg/log"
	"github.com/daceq/daceq-go/pkg/transport"
)

// DefaultAckTimeout bounds how long a step waits for its input report.
const DefaultAckTimeout = 1 * time.Second

// State represents the transaction state.
type State uint8

const (
	// StateIdle indicates no transaction in flight.
	StateIdle State = iota

	// StateSending indicates output reports are being written.
	StateSending

	// StateAwaitingAck indicates a step is waiting for its input report.
	StateAwaitingAck

	// StateCommitted indicates the last sequence fully landed.
	StateCommitted

	// StateFailed indicates the last sequence broke mid-flight. The
	// device state is unknown until re-read.
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateSending:
		return "SENDING"
	case StateAwaitingAck:
		return "AWAITING_ACK"
	case StateCommitted:
		return "COMMITTED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Transactor executes write sequences against one transport and tracks
// the transaction state machine. It also implements Conn for codec
// driven reads. Safe for concurrent use; sequences are serialized.
type Transactor struct {
	mu sync.Mutex

	tr     transport.Transport
	clock  transport.Clock
	logger log.Logger

	// Log identity
	handleID string
	family   string

	state      State
	ackTimeout time.Duration
}

// NewTransactor creates a transactor over an open transport.
// A nil logger disables protocol capture.
func NewTransactor(tr transport.Transport, clock transport.Clock, logger log.Logger, handleID, family string) *Transactor {
	if clock == nil {
		clock = transport.RealClock{}
	}
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Transactor{
		tr:         tr,
		clock:      clock,
		logger:     logger,
		handleID:   handleID,
		family:     family,
		state:      StateIdle,
		ackTimeout: DefaultAckTimeout,
	}
}

// SetAckTimeout overrides the per-step ack timeout.
func (t *Transactor) SetAckTimeout(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ackTimeout = d
}

// State returns the current transaction state.
func (t *Transactor) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Run executes the sequence. On any step failure the transaction moves
// to Failed and the error identifies the failing step; nothing is
// retried. A nil error means the sequence reached Committed.
func (t *Transactor) Run(seq WriteSequence) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.setState(StateSending, seq.Name)
	for i, step := range seq.Steps {
		if err := t.runStep(step); err != nil {
			t.setState(StateFailed, step.Name)
			return fmt.Errorf("%s: step %d (%s): %w", seq.Name, i, step.Name, err)
		}
	}
	t.setState(StateCommitted, seq.Name)
	return nil
}

func (t *Transactor) runStep(step Step) error {
	if _, err := t.tr.Write(step.Report); err != nil {
		t.logError(log.LayerTransport, err, step.Name)
		return fmt.Errorf("%w: %w", ErrTransportFailure, err)
	}
	t.logPacket(log.DirectionOut, step.Report)

	if step.WantAck {
		t.setState(StateAwaitingAck, step.Name)
		report, err := t.tr.Read(t.ackTimeout)
		if err != nil {
			t.logError(log.LayerTransport, err, step.Name)
			return t.classifyReadError(step, err)
		}
		t.logPacket(log.DirectionIn, report)
		t.setState(StateSending, step.Name)
	}

	if step.SettleAfter > 0 {
		t.wait(step.SettleAfter, step.Name)
	}
	return nil
}

func (t *Transactor) classifyReadError(step Step, err error) error {
	if errors.Is(err, transport.ErrTimeout) {
		if step.Kind == StepCommit {
			return fmt.Errorf("%w: %w", ErrCommitNotConfirmed, err)
		}
		return fmt.Errorf("%w: %w", ErrTransportTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrTransportFailure, err)
}

// Send implements Conn.
func (t *Transactor) Send(report []byte) error {
	if _, err := t.tr.Write(report); err != nil {
		t.logError(log.LayerTransport, err, "send")
		return fmt.Errorf("%w: %w", ErrTransportFailure, err)
	}
	t.logPacket(log.DirectionOut, report)
	return nil
}

// Receive implements Conn.
func (t *Transactor) Receive(timeout time.Duration) ([]byte, error) {
	report, err := t.tr.Read(timeout)
	if err != nil {
		t.logError(log.LayerTransport, err, "receive")
		if errors.Is(err, transport.ErrTimeout) {
			return nil, fmt.Errorf("%w: %w", ErrTransportTimeout, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTransportFailure, err)
	}
	t.logPacket(log.DirectionIn, report)
	return report, nil
}

// Wait implements Conn.
func (t *Transactor) Wait(d time.Duration, reason string) {
	t.wait(d, reason)
}

func (t *Transactor) wait(d time.Duration, reason string) {
	t.logger.Log(log.Event{
		Timestamp: t.clock.Now(),
		HandleID:  t.handleID,
		Family:    t.family,
		Layer:     log.LayerCodec,
		Category:  log.CategoryWait,
		Wait:      &log.WaitEvent{Duration: d, Reason: reason},
	})
	t.clock.Sleep(d)
}

func (t *Transactor) setState(s State, reason string) {
	if s == t.state {
		return
	}
	old := t.state
	t.state = s
	t.logger.Log(log.Event{
		Timestamp: t.clock.Now(),
		HandleID:  t.handleID,
		Family:    t.family,
		Layer:     log.LayerSession,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityTransaction,
			OldState: old.String(),
			NewState: s.String(),
			Reason:   reason,
		},
	})
}

func (t *Transactor) logPacket(dir log.Direction, data []byte) {
	t.logger.Log(log.Event{
		Timestamp: t.clock.Now(),
		HandleID:  t.handleID,
		Family:    t.family,
		Direction: dir,
		Layer:     log.LayerTransport,
		Category:  log.CategoryPacket,
		Packet:    log.NewPacketEvent(data),
	})
}

func (t *Transactor) logError(layer log.Layer, err error, context string) {
	t.logger.Log(log.Event{
		Timestamp: t.clock.Now(),
		HandleID:  t.handleID,
		Family:    t.family,
		Layer:     layer,
		Category:  log.CategoryError,
		Error:     &log.ErrorEventData{Layer: layer, Message: err.Error(), Context: context},
	})
}

// Compile-time interface satisfaction check.
var _ Conn = (*Transactor)(nil)
