// Package device defines the capability contracts for authenticator
// hardware (Device, Discovery, Creator) and the Manager that aggregates
// discovery sources and owns exclusive access to connected devices.
package device

import (
	"context"
	"time"

	"github.com/go-ctap/fido2/pkg/fidotypes"
)

// DefaultMaxMessageSize is the CTAP2 default maximum message size.
const DefaultMaxMessageSize uint = 7609

// DefaultOperationTimeout bounds a single device round trip.
const DefaultOperationTimeout = 30 * time.Second

// Device is an exclusively-owned communication endpoint for one
// authenticator. Implementations are provided by transport backends;
// everything above this interface is transport agnostic.
type Device interface {
	// Info returns the identity snapshot this device was created from.
	Info() fidotypes.DeviceInfo

	// Connect establishes the transport session.
	Connect(ctx context.Context) error

	// Disconnect tears the session down. Disconnecting a device that is
	// not connected is a no-op.
	Disconnect(ctx context.Context) error

	// IsConnected reports whether a session is currently established.
	IsConnected() bool

	// SendRaw writes one request and returns the device's response. The
	// payload is opaque to the device; framing is the backend's concern.
	SendRaw(ctx context.Context, data []byte) ([]byte, error)

	// MaxMessageSize is the largest request payload the device accepts.
	MaxMessageSize() uint

	// OperationTimeout is the device's default per-operation deadline.
	OperationTimeout() time.Duration
}

// Discovery scans for devices on one platform/transport and can emit a
// live event stream. Scan and Watch are independent; callers may use
// either or both.
type Discovery interface {
	// Scan returns the set of currently visible devices. An empty result
	// is not an error.
	Scan(ctx context.Context) ([]fidotypes.DeviceInfo, error)

	// Watch starts a live stream of connect/disconnect/error events. The
	// stream ends when the context is cancelled or StopWatch is called.
	Watch(ctx context.Context) (<-chan fidotypes.DeviceEvent, error)

	// StopWatch releases the watch subscription; calling it with no
	// active watch is a no-op.
	StopWatch() error

	// IsDeviceAvailable re-scans and reports membership of the id.
	IsDeviceAvailable(ctx context.Context, deviceID string) (bool, error)
}
