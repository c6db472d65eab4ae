package usbhid

import (
	"testing"

	"github.com/go-ctap/fido2/pkg/fidotypes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scanEntry(id string) fidotypes.DeviceInfo {
	return fidotypes.DeviceInfo{ID: id, Name: id, Transport: fidotypes.TransportUSB}
}

func TestDiffScansConnect(t *testing.T) {
	events := diffScans(
		[]fidotypes.DeviceInfo{scanEntry("a")},
		[]fidotypes.DeviceInfo{scanEntry("a"), scanEntry("b")},
	)

	require.Len(t, events, 1)
	assert.Equal(t, fidotypes.DeviceEventConnected, events[0].Type)
	assert.Equal(t, "b", events[0].DeviceID)
	require.NotNil(t, events[0].Info)
	assert.Equal(t, "b", events[0].Info.ID)
}

func TestDiffScansDisconnect(t *testing.T) {
	events := diffScans(
		[]fidotypes.DeviceInfo{scanEntry("a"), scanEntry("b")},
		[]fidotypes.DeviceInfo{scanEntry("b")},
	)

	require.Len(t, events, 1)
	assert.Equal(t, fidotypes.DeviceEventDisconnected, events[0].Type)
	assert.Equal(t, "a", events[0].DeviceID)
}

func TestDiffScansMixed(t *testing.T) {
	events := diffScans(
		[]fidotypes.DeviceInfo{scanEntry("a"), scanEntry("b")},
		[]fidotypes.DeviceInfo{scanEntry("b"), scanEntry("c")},
	)

	require.Len(t, events, 2)
	byID := map[string]fidotypes.DeviceEventType{}
	for _, ev := range events {
		byID[ev.DeviceID] = ev.Type
	}
	assert.Equal(t, fidotypes.DeviceEventConnected, byID["c"])
	assert.Equal(t, fidotypes.DeviceEventDisconnected, byID["a"])
}

func TestDiffScansNoChanges(t *testing.T) {
	snapshot := []fidotypes.DeviceInfo{scanEntry("a")}
	assert.Empty(t, diffScans(snapshot, snapshot))
	assert.Empty(t, diffScans(nil, nil))
}

func TestDiffScansInitialSnapshot(t *testing.T) {
	events := diffScans(nil, []fidotypes.DeviceInfo{scanEntry("a"), scanEntry("b")})

	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, fidotypes.DeviceEventConnected, ev.Type)
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "YubiKey 5 NFC", displayName(fidotypes.DeviceTypeYubiKey, "YubiKey 5 NFC"))
	assert.Equal(t, "yubikey", displayName(fidotypes.DeviceTypeYubiKey, ""))
}
