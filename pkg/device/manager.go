package device

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/go-ctap/fido2/pkg/fidoerr"
	"github.com/go-ctap/fido2/pkg/fidotypes"
	"github.com/go-ctap/fido2/pkg/options"

	"github.com/samber/lo"
)

// Manager orchestrates discovery sources and owns the set of connected
// devices. The connection table is guarded by one reader/writer lock:
// queries take the read lock, mutations and WithDevice take the write
// lock. That serializes operations against all devices, not just the
// target; callers needing cross-device parallelism run independent
// Manager instances.
type Manager struct {
	mu          sync.RWMutex
	logger      *slog.Logger
	factory     *Factory
	discoveries []Discovery
	connected   map[string]Device

	watchMu     sync.Mutex
	watchCancel context.CancelFunc
}

func NewManager(factory *Factory, opts ...options.Option) *Manager {
	oo := options.NewOptions(opts...)

	return &Manager{
		logger:    oo.Logger,
		factory:   factory,
		connected: make(map[string]Device),
	}
}

// AddDiscovery appends a discovery source. Sources are queried in the
// order they were added.
func (m *Manager) AddDiscovery(d Discovery) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discoveries = append(m.discoveries, d)
}

// ScanDevices queries every discovery source, concatenates the results
// and deduplicates them by device id: a stable sort followed by
// adjacent-duplicate removal, so the surviving entry per id is
// deterministic regardless of source ordering.
func (m *Manager) ScanDevices(ctx context.Context) ([]fidotypes.DeviceInfo, error) {
	m.mu.RLock()
	discoveries := slices.Clone(m.discoveries)
	m.mu.RUnlock()

	var all []fidotypes.DeviceInfo
	for _, d := range discoveries {
		devices, err := d.Scan(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, devices...)
	}

	slices.SortStableFunc(all, func(a, b fidotypes.DeviceInfo) int {
		return strings.Compare(a.ID, b.ID)
	})
	all = slices.CompactFunc(all, func(a, b fidotypes.DeviceInfo) bool {
		return a.ID == b.ID
	})

	return all, nil
}

// IsDeviceAvailable re-scans and reports whether the id is visible.
func (m *Manager) IsDeviceAvailable(ctx context.Context, deviceID string) (bool, error) {
	devices, err := m.ScanDevices(ctx)
	if err != nil {
		return false, err
	}
	return slices.ContainsFunc(devices, func(d fidotypes.DeviceInfo) bool {
		return d.ID == deviceID
	}), nil
}

// ConnectDevice re-scans, instantiates a Device for the matching id via
// the factory, connects it, and only on success inserts it into the
// connection table. A failure at any step leaves the table unchanged.
// Reconnecting an already-connected id replaces the previous entry
// after disconnecting it.
func (m *Manager) ConnectDevice(ctx context.Context, deviceID string) error {
	devices, err := m.ScanDevices(ctx)
	if err != nil {
		return err
	}

	idx := slices.IndexFunc(devices, func(d fidotypes.DeviceInfo) bool {
		return d.ID == deviceID
	})
	if idx < 0 {
		return &fidoerr.DeviceNotFoundError{ID: deviceID}
	}

	dev, err := m.factory.CreateDevice(devices[idx])
	if err != nil {
		return err
	}
	if err := dev.Connect(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.connected[deviceID]; ok {
		if err := prev.Disconnect(ctx); err != nil {
			m.logger.Warn("disconnecting replaced device failed",
				"deviceID", deviceID, "error", err)
		}
	}
	m.connected[deviceID] = dev

	return nil
}

// DisconnectDevice removes the entry and disconnects the device.
// Disconnecting an id that is not connected is a no-op.
func (m *Manager) DisconnectDevice(ctx context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dev, ok := m.connected[deviceID]
	if !ok {
		return nil
	}
	delete(m.connected, deviceID)

	return dev.Disconnect(ctx)
}

// DisconnectAll disconnects every connected device best-effort: a
// failure on one device is logged and joined into the returned error
// but does not abort disconnection of the others. The table is empty
// afterwards either way.
func (m *Manager) DisconnectAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for deviceID, dev := range m.connected {
		if err := dev.Disconnect(ctx); err != nil {
			m.logger.Warn("disconnect failed", "deviceID", deviceID, "error", err)
			errs = append(errs, err)
		}
	}
	m.connected = make(map[string]Device)

	return errors.Join(errs...)
}

// WithDevice grants fn exclusive access to the connected device for the
// duration of the call. This is the only sanctioned way to operate on a
// connected device; handles never escape the manager's lock.
func (m *Manager) WithDevice(ctx context.Context, deviceID string, fn func(ctx context.Context, dev Device) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dev, ok := m.connected[deviceID]
	if !ok {
		return &fidoerr.DeviceNotFoundError{ID: deviceID}
	}

	return fn(ctx, dev)
}

// ConnectedDeviceIDs returns the ids of all connected devices, sorted.
func (m *Manager) ConnectedDeviceIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := lo.Keys(m.connected)
	slices.Sort(ids)
	return ids
}

// IsConnected reports whether the id has a live connection table entry.
func (m *Manager) IsConnected(deviceID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.connected[deviceID]
	return ok
}

// Watch merges the event streams of every discovery source into one
// channel. The stream ends when the context is cancelled or StopWatch
// is called; the merged channel is closed once all forwarders drain.
func (m *Manager) Watch(ctx context.Context) (<-chan fidotypes.DeviceEvent, error) {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()

	if m.watchCancel != nil {
		return nil, errors.New("fido2: watch already active")
	}

	m.mu.RLock()
	discoveries := slices.Clone(m.discoveries)
	m.mu.RUnlock()

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan fidotypes.DeviceEvent, 16)

	var wg sync.WaitGroup
	for _, d := range discoveries {
		events, err := d.Watch(ctx)
		if err != nil {
			cancel()
			return nil, err
		}

		wg.Add(1)
		go func(events <-chan fidotypes.DeviceEvent) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-events:
					if !ok {
						return
					}
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}(events)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	m.watchCancel = cancel
	return out, nil
}

// StopWatch ends an active watch. Calling it without one is a no-op;
// no further events are delivered afterwards.
func (m *Manager) StopWatch() {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()

	if m.watchCancel == nil {
		return
	}
	m.watchCancel()
	m.watchCancel = nil

	m.mu.RLock()
	discoveries := slices.Clone(m.discoveries)
	m.mu.RUnlock()

	for _, d := range discoveries {
		if err := d.StopWatch(); err != nil {
			m.logger.Warn("stopping discovery watch failed", "error", err)
		}
	}
}
