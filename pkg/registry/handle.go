package registry

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/daceq/daceq-go/pkg/log"
	"github.com/daceq/daceq-go/pkg/peq"
	"github.com/daceq/daceq-go/pkg/protocol"
	"github.com/daceq/daceq-go/pkg/transport"
)

// Handle is an open session with one device. Methods serialize on an
// internal mutex; a handle is safe to share but operations run one at
// a time.
type Handle struct {
	// ID correlates log events from this session.
	ID string

	// Device is the matched device this handle is bound to.
	Device Device

	registry *Registry
	codec    protocol.Codec
	tr       transport.Transport
	logger   log.Logger

	mu     sync.Mutex
	closed bool
}

func newHandle(r *Registry, dev Device, tr transport.Transport, codec protocol.Codec) *Handle {
	h := &Handle{
		ID:       uuid.New().String(),
		Device:   dev,
		registry: r,
		codec:    codec,
		tr:       tr,
		logger:   r.logger,
	}
	h.logState("", "open")
	return h
}

// Capabilities returns the device's capability record.
func (h *Handle) Capabilities() peq.DeviceCapabilities {
	return h.codec.Capabilities()
}

// ReadProfile reads the currently active profile from the device.
func (h *Handle) ReadProfile() (peq.PEQProfile, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return peq.PEQProfile{}, transport.ErrClosed
	}
	caps := h.codec.Capabilities()
	if !caps.SupportsRead {
		return peq.PEQProfile{}, fmt.Errorf("%w: %s devices cannot report settings",
			protocol.ErrUnsupportedOperation, h.Device.Family)
	}

	p, err := h.codec.ReadProfile(h.transactor())
	if err != nil {
		h.logError(err, "read profile")
		return peq.PEQProfile{}, err
	}
	return p, nil
}

// WriteProfile encodes and writes a full profile. Unused device slots
// are cleared so nothing stale survives. Warnings report lossy
// encodings on an otherwise successful write.
func (h *Handle) WriteProfile(p peq.PEQProfile) ([]protocol.Warning, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, transport.ErrClosed
	}
	caps := h.codec.Capabilities()
	if !caps.SupportsWrite {
		return nil, fmt.Errorf("%w: %s devices cannot accept settings",
			protocol.ErrUnsupportedOperation, h.Device.Family)
	}

	seq, warnings, err := h.codec.EncodeProfile(p)
	if err != nil {
		return nil, err
	}
	if err := h.transactor().Run(seq); err != nil {
		h.logError(err, seq.Name)
		return nil, err
	}
	return warnings, nil
}

// SetPregain writes only the global pregain, leaving filters alone.
func (h *Handle) SetPregain(db float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return transport.ErrClosed
	}

	seq, err := h.codec.EncodePregain(db)
	if err != nil {
		return err
	}
	if err := h.transactor().Run(seq); err != nil {
		h.logError(err, seq.Name)
		return err
	}
	return nil
}

// Close releases the transport and the device slot. Closing twice
// returns transport.ErrClosed.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return transport.ErrClosed
	}
	h.closed = true
	h.registry.release(h)
	h.logState("open", "closed")
	return h.tr.Close()
}

// transactor builds a fresh transactor for one sequence. Transactors
// are single-shot; reusing one across writes would carry stale state.
func (h *Handle) transactor() *protocol.Transactor {
	return protocol.NewTransactor(h.tr, h.registry.clock, h.logger, h.ID, h.Device.Family)
}

func (h *Handle) logState(from, to string) {
	h.logger.Log(log.Event{
		Timestamp: h.registry.clock.Now(),
		HandleID:  h.ID,
		Layer:     log.LayerSession,
		Category:  log.CategoryState,
		Family:    h.Device.Family,
		Product:   h.Device.Info.Product,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityHandle,
			OldState: from,
			NewState: to,
		},
	})
}

func (h *Handle) logError(err error, context string) {
	h.logger.Log(log.Event{
		Timestamp: h.registry.clock.Now(),
		HandleID:  h.ID,
		Layer:     log.LayerSession,
		Category:  log.CategoryError,
		Family:    h.Device.Family,
		Product:   h.Device.Info.Product,
		Error: &log.ErrorEventData{
			Layer:   log.LayerSession,
			Message: err.Error(),
			Context: context,
		},
	})
}
