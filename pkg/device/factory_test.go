package device

import (
	"testing"

	"github.com/go-ctap/fido2/pkg/fidoerr"
	"github.com/go-ctap/fido2/pkg/fidotypes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func supportsUSB(info fidotypes.DeviceInfo) bool {
	return info.Transport == fidotypes.TransportUSB
}

func TestFactoryExactRegistration(t *testing.T) {
	yubikey := &stubCreator{name: "yubikey"}
	generic := &stubCreator{name: "generic", supports: supportsUSB}

	f := NewFactory()
	f.Register(fidotypes.DeviceTypeYubiKey, yubikey)
	f.Register(fidotypes.DeviceTypeGeneric, generic)

	dev, err := f.CreateDevice(info("yk", fidotypes.DeviceTypeYubiKey))
	require.NoError(t, err)
	assert.Equal(t, "yk", dev.Info().ID)
	assert.Contains(t, yubikey.created, "yk")
	assert.NotContains(t, generic.created, "yk")
}

func TestFactoryPriorityBreaksSupportTies(t *testing.T) {
	low := &stubCreator{name: "low", priority: 1, supports: supportsUSB}
	high := &stubCreator{name: "high", priority: 10, supports: supportsUSB}

	f := NewFactory()
	f.Register(fidotypes.DeviceTypeSoloKey, low)
	f.Register(fidotypes.DeviceTypeNitrokey, high)

	_, err := f.CreateDevice(info("nk3", fidotypes.DeviceTypeCanoKey))
	require.NoError(t, err)
	assert.Contains(t, high.created, "nk3")
	assert.NotContains(t, low.created, "nk3")
}

func TestFactoryGenericFallback(t *testing.T) {
	generic := &stubCreator{name: "generic"}

	f := NewFactory()
	f.Register(fidotypes.DeviceTypeGeneric, generic)

	_, err := f.CreateDevice(info("unknown", fidotypes.DeviceType("newvendor")))
	require.NoError(t, err)
	assert.Contains(t, generic.created, "unknown")
}

func TestFactoryUnsupportedDevice(t *testing.T) {
	f := NewFactory()

	_, err := f.CreateDevice(info("x", fidotypes.DeviceTypeYubiKey))
	var unsupported *fidoerr.UnsupportedDeviceError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, fidotypes.DeviceTypeYubiKey, unsupported.DeviceType)
}
