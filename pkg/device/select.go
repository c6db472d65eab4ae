package device

import (
	"context"
	"time"

	"github.com/go-ctap/fido2/pkg/fidoerr"
	"github.com/go-ctap/fido2/pkg/fidotypes"

	"github.com/samber/mo"
)

// WaitForDevice blocks until a device matching the predicate shows up
// in a scan or the timeout elapses. A nil predicate matches any
// device. The manager re-scans on a fixed cadence; use Watch for an
// event-driven stream instead.
func (m *Manager) WaitForDevice(ctx context.Context, timeout time.Duration, match func(fidotypes.DeviceInfo) bool) (fidotypes.DeviceInfo, error) {
	if match == nil {
		match = func(fidotypes.DeviceInfo) bool { return true }
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Either a matching device or a scan error, whichever comes first.
	result := make(chan mo.Either[fidotypes.DeviceInfo, error], 1)

	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()

		for {
			devices, err := m.ScanDevices(ctx)
			if err != nil {
				result <- mo.Right[fidotypes.DeviceInfo, error](err)
				return
			}
			for _, info := range devices {
				if match(info) {
					result <- mo.Left[fidotypes.DeviceInfo, error](info)
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fidotypes.DeviceInfo{}, ctx.Err()
	case <-timer.C:
		return fidotypes.DeviceInfo{}, &fidoerr.TimeoutError{Seconds: uint(timeout / time.Second)}
	case res := <-result:
		if err, ok := res.Right(); ok {
			return fidotypes.DeviceInfo{}, err
		}
		return res.MustLeft(), nil
	}
}
