package usbhid

import (
	"github.com/go-ctap/fido2/pkg/device"
	"github.com/go-ctap/fido2/pkg/fidotypes"
	"github.com/go-ctap/fido2/pkg/options"
)

// Creator builds HID-backed devices for one hardware family. All
// families share the transport; the creator mostly carries identity
// and priority so specialized families win over the generic one.
type Creator struct {
	deviceType fidotypes.DeviceType
	priority   int
	opts       []options.Option
}

var _ device.Creator = (*Creator)(nil)

func NewCreator(deviceType fidotypes.DeviceType, priority int, opts ...options.Option) *Creator {
	return &Creator{
		deviceType: deviceType,
		priority:   priority,
		opts:       opts,
	}
}

func (c *Creator) Create(info fidotypes.DeviceInfo) (device.Device, error) {
	return NewHIDDevice(info, c.opts...), nil
}

func (c *Creator) Supports(info fidotypes.DeviceInfo) bool {
	if c.deviceType == fidotypes.DeviceTypeGeneric {
		return info.Transport == fidotypes.TransportUSB
	}
	return info.DeviceType == c.deviceType
}

func (c *Creator) Priority() int { return c.priority }

func (c *Creator) Name() string { return string(c.deviceType) }

// NewFactory returns a factory with every known family registered plus
// the generic fallback.
func NewFactory(opts ...options.Option) *device.Factory {
	factory := device.NewFactory()
	for _, typ := range []fidotypes.DeviceType{
		fidotypes.DeviceTypeYubiKey,
		fidotypes.DeviceTypeCanoKey,
		fidotypes.DeviceTypeNitrokey,
		fidotypes.DeviceTypeSoloKey,
	} {
		factory.Register(typ, NewCreator(typ, 10, opts...))
	}
	factory.Register(fidotypes.DeviceTypeGeneric, NewCreator(fidotypes.DeviceTypeGeneric, 0, opts...))

	return factory
}
