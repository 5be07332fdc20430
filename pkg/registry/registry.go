package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/daceq/daceq-go/pkg/log"
	"github.com/daceq/daceq-go/pkg/peq"
	"github.com/daceq/daceq-go/pkg/protocol"
	"github.com/daceq/daceq-go/pkg/protocol/moondrop"
	"github.com/daceq/daceq-go/pkg/protocol/qudelix"
	"github.com/daceq/daceq-go/pkg/protocol/tanchjim"
	"github.com/daceq/daceq-go/pkg/transport"
)

var (
	// ErrDeviceNotFound indicates no supported device matched the
	// selection.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrAmbiguousDevice indicates more than one device matched and
	// no index was given.
	ErrAmbiguousDevice = errors.New("multiple devices found, select one by index")

	// ErrDeviceBusy indicates the device already has an open handle.
	ErrDeviceBusy = errors.New("device already open")
)

// Family binds a device family name to its match rule and codec.
type Family struct {
	// Name is the family identifier ("tanchjim", "moondrop", "qudelix").
	Name string

	// Matches reports whether an enumerated interface belongs to the
	// family.
	Matches func(transport.DeviceInfo) bool

	// NewCodec returns a fresh codec for a matched device.
	NewCodec func() protocol.Codec
}

// Families returns the built-in family table. Order is fixed; a device
// belongs to the first family that matches it.
func Families() []Family {
	return []Family{
		{Name: "tanchjim", Matches: tanchjim.Matches, NewCodec: func() protocol.Codec { return tanchjim.New() }},
		{Name: "moondrop", Matches: moondrop.Matches, NewCodec: func() protocol.Codec { return moondrop.New() }},
		{Name: "qudelix", Matches: qudelix.Matches, NewCodec: func() protocol.Codec { return qudelix.New() }},
	}
}

// Device is one matched device with its stable selection index.
type Device struct {
	// Index is the zero-based position in enumeration order.
	Index int

	// Family names the protocol family handling the device.
	Family string

	// Info is the underlying HID interface.
	Info transport.DeviceInfo
}

// Config carries the registry's collaborators. Enumerator and Opener
// are required; the rest default.
type Config struct {
	Enumerator transport.Enumerator
	Opener     transport.Opener

	// Logger receives protocol events from every handle. Nil disables
	// logging.
	Logger log.Logger

	// Clock drives settle waits. Nil means wall clock.
	Clock transport.Clock

	// Families overrides the built-in family table. Nil means Families().
	Families []Family
}

// Registry matches enumerated devices to families and opens handles.
type Registry struct {
	enum     transport.Enumerator
	opener   transport.Opener
	logger   log.Logger
	clock    transport.Clock
	families []Family

	mu   sync.Mutex
	open map[string]*Handle // by interface path
}

// New creates a registry from cfg.
func New(cfg Config) *Registry {
	r := &Registry{
		enum:     cfg.Enumerator,
		opener:   cfg.Opener,
		logger:   cfg.Logger,
		clock:    cfg.Clock,
		families: cfg.Families,
		open:     make(map[string]*Handle),
	}
	if r.logger == nil {
		r.logger = log.NoopLogger{}
	}
	if r.clock == nil {
		r.clock = transport.RealClock{}
	}
	if r.families == nil {
		r.families = Families()
	}
	return r
}

// ListDevices enumerates and returns every supported device in
// enumeration order. An empty list is not an error.
func (r *Registry) ListDevices() ([]Device, error) {
	infos, err := r.enum.Enumerate()
	if err != nil {
		return nil, fmt.Errorf("enumerate: %w", err)
	}

	var devices []Device
	for _, info := range infos {
		for _, fam := range r.families {
			if fam.Matches(info) {
				devices = append(devices, Device{
					Index:  len(devices),
					Family: fam.Name,
					Info:   info,
				})
				break
			}
		}
	}
	return devices, nil
}

// Select resolves an index to a device. A negative index means "the
// only device": it succeeds only when exactly one device is present.
func (r *Registry) Select(index int) (Device, error) {
	devices, err := r.ListDevices()
	if err != nil {
		return Device{}, err
	}
	if index < 0 {
		switch len(devices) {
		case 0:
			return Device{}, ErrDeviceNotFound
		case 1:
			return devices[0], nil
		default:
			return Device{}, fmt.Errorf("%w: %d candidates", ErrAmbiguousDevice, len(devices))
		}
	}
	if index >= len(devices) {
		return Device{}, fmt.Errorf("%w: index %d, %d devices", ErrDeviceNotFound, index, len(devices))
	}
	return devices[index], nil
}

// Open opens a handle to the device at index. See Select for index
// semantics. At most one handle per physical device may be open.
func (r *Registry) Open(index int) (*Handle, error) {
	dev, err := r.Select(index)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.open[dev.Info.Path]; busy {
		return nil, fmt.Errorf("%w: %s", ErrDeviceBusy, dev.Info.Path)
	}

	tr, err := r.opener.Open(dev.Info)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dev.Info.Path, err)
	}

	h := newHandle(r, dev, tr, r.codecFor(dev.Family))
	r.open[dev.Info.Path] = h
	return h, nil
}

func (r *Registry) codecFor(family string) protocol.Codec {
	for _, fam := range r.families {
		if fam.Name == family {
			return fam.NewCodec()
		}
	}
	return nil
}

func (r *Registry) release(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.open[h.Device.Info.Path] == h {
		delete(r.open, h.Device.Info.Path)
	}
}

// GetCapabilities reports the capability record of the device at index
// without opening it.
func (r *Registry) GetCapabilities(index int) (peq.DeviceCapabilities, error) {
	dev, err := r.Select(index)
	if err != nil {
		return peq.DeviceCapabilities{}, err
	}
	return r.codecFor(dev.Family).Capabilities(), nil
}

// ReadProfile opens the device at index, reads its profile and closes
// the handle.
func (r *Registry) ReadProfile(index int) (peq.PEQProfile, error) {
	h, err := r.Open(index)
	if err != nil {
		return peq.PEQProfile{}, err
	}
	defer h.Close()
	return h.ReadProfile()
}

// WriteProfile opens the device at index, writes the profile and
// closes the handle. Returned warnings describe lossy encodings; the
// write itself succeeded.
func (r *Registry) WriteProfile(index int, p peq.PEQProfile) ([]protocol.Warning, error) {
	h, err := r.Open(index)
	if err != nil {
		return nil, err
	}
	defer h.Close()
	return h.WriteProfile(p)
}

// SetPregain opens the device at index, sets the global pregain and
// closes the handle.
func (r *Registry) SetPregain(index int, db float64) error {
	h, err := r.Open(index)
	if err != nil {
		return err
	}
	defer h.Close()
	return h.SetPregain(db)
}
