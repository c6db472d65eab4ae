package device

import (
	"maps"
	"slices"

	"github.com/go-ctap/fido2/pkg/fidoerr"
	"github.com/go-ctap/fido2/pkg/fidotypes"
)

// Creator constructs Device instances for a hardware family. A creator
// may claim support for device types beyond the one it is registered
// under; Priority breaks ties between such claims (higher wins).
type Creator interface {
	Create(info fidotypes.DeviceInfo) (Device, error)
	Supports(info fidotypes.DeviceInfo) bool
	Priority() int
	Name() string
}

// Factory maps device types to creators. New hardware families plug in
// through Register without touching the Manager.
type Factory struct {
	creators map[fidotypes.DeviceType]Creator
}

func NewFactory() *Factory {
	return &Factory{
		creators: make(map[fidotypes.DeviceType]Creator),
	}
}

// Register binds a creator to a device type, replacing any previous
// registration for that type.
func (f *Factory) Register(deviceType fidotypes.DeviceType, creator Creator) {
	f.creators[deviceType] = creator
}

// CreateDevice resolves a creator for the device info and instantiates
// the Device. Resolution order: exact registration, then the
// highest-priority creator claiming support, then the Generic creator.
func (f *Factory) CreateDevice(info fidotypes.DeviceInfo) (Device, error) {
	if creator, ok := f.creators[info.DeviceType]; ok {
		return creator.Create(info)
	}

	var best Creator
	for _, deviceType := range slices.Sorted(maps.Keys(f.creators)) {
		creator := f.creators[deviceType]
		if !creator.Supports(info) {
			continue
		}
		if best == nil || creator.Priority() > best.Priority() {
			best = creator
		}
	}
	if best != nil {
		return best.Create(info)
	}

	if creator, ok := f.creators[fidotypes.DeviceTypeGeneric]; ok {
		return creator.Create(info)
	}

	return nil, &fidoerr.UnsupportedDeviceError{DeviceType: info.DeviceType}
}
