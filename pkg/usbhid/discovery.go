package usbhid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/go-ctap/fido2/pkg/device"
	"github.com/go-ctap/fido2/pkg/fidoerr"
	"github.com/go-ctap/fido2/pkg/fidotypes"
	"github.com/go-ctap/fido2/pkg/options"

	"github.com/sstallion/go-hid"
)

const (
	fidoUsagePage uint16 = 0xf1d0
	fidoUsage     uint16 = 0x01

	defaultPollInterval = time.Second
)

// Discovery enumerates FIDO authenticators over USB HID. Watch is
// poll-based: periodic scans are diffed against the previous snapshot
// and the differences become connect/disconnect events.
type Discovery struct {
	logger       *slog.Logger
	pollInterval time.Duration

	mu          sync.Mutex
	watchCancel context.CancelFunc
}

var _ device.Discovery = (*Discovery)(nil)

func NewDiscovery(opts ...options.Option) *Discovery {
	oo := options.NewOptions(opts...)

	return &Discovery{
		logger:       oo.Logger,
		pollInterval: defaultPollInterval,
	}
}

// Scan enumerates HID interfaces on the FIDO usage page and classifies
// them against the known-device table.
func (d *Discovery) Scan(_ context.Context) ([]fidotypes.DeviceInfo, error) {
	var devices []fidotypes.DeviceInfo
	err := hid.Enumerate(hid.VendorIDAny, hid.ProductIDAny, func(hi *hid.DeviceInfo) error {
		if hi.UsagePage != fidoUsagePage || hi.Usage != fidoUsage {
			return nil
		}

		typ := classify(hi.VendorID, hi.ProductID)
		info := fidotypes.NewDeviceInfo(
			deviceID(typ, hi.VendorID, hi.ProductID, hi.SerialNbr),
			displayName(typ, hi.ProductStr),
			hi.MfrStr,
			hi.ProductStr,
			hi.VendorID,
			hi.ProductID,
			typ,
			fidotypes.TransportUSB,
		)
		info.SerialNumber = hi.SerialNbr
		info.Capabilities = slices.Clone(familyCapabilities[typ])

		devices = append(devices, info)
		return nil
	})
	if err != nil {
		return nil, fidoerr.Communication("HID enumeration failed", err)
	}

	return devices, nil
}

// IsDeviceAvailable reports whether the id shows up in a fresh scan.
func (d *Discovery) IsDeviceAvailable(ctx context.Context, deviceID string) (bool, error) {
	devices, err := d.Scan(ctx)
	if err != nil {
		return false, err
	}
	return slices.ContainsFunc(devices, func(info fidotypes.DeviceInfo) bool {
		return info.ID == deviceID
	}), nil
}

// Watch starts the poll loop. The channel closes when the context is
// cancelled or StopWatch is called.
func (d *Discovery) Watch(ctx context.Context) (<-chan fidotypes.DeviceEvent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.watchCancel != nil {
		return nil, errors.New("usbhid: watch already active")
	}

	ctx, cancel := context.WithCancel(ctx)
	d.watchCancel = cancel

	events := make(chan fidotypes.DeviceEvent, 16)
	go d.pollLoop(ctx, events)

	return events, nil
}

// StopWatch ends an active watch; without one it is a no-op.
func (d *Discovery) StopWatch() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.watchCancel != nil {
		d.watchCancel()
		d.watchCancel = nil
	}
	return nil
}

func (d *Discovery) pollLoop(ctx context.Context, events chan<- fidotypes.DeviceEvent) {
	defer close(events)

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	var previous []fidotypes.DeviceInfo
	for {
		current, err := d.Scan(ctx)
		if err != nil {
			d.logger.Warn("device scan failed during watch", "error", err)
		} else {
			for _, ev := range diffScans(previous, current) {
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}
			}
			previous = current
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// diffScans turns two scan snapshots into connect and disconnect
// events keyed by device id.
func diffScans(previous, current []fidotypes.DeviceInfo) []fidotypes.DeviceEvent {
	prevByID := make(map[string]fidotypes.DeviceInfo, len(previous))
	for _, info := range previous {
		prevByID[info.ID] = info
	}
	currByID := make(map[string]fidotypes.DeviceInfo, len(current))
	for _, info := range current {
		currByID[info.ID] = info
	}

	var events []fidotypes.DeviceEvent
	for _, info := range current {
		if _, ok := prevByID[info.ID]; !ok {
			events = append(events, fidotypes.DeviceEvent{
				Type:     fidotypes.DeviceEventConnected,
				Info:     &info,
				DeviceID: info.ID,
				Message:  fmt.Sprintf("%s connected", info.Name),
			})
		}
	}
	for _, info := range previous {
		if _, ok := currByID[info.ID]; !ok {
			events = append(events, fidotypes.DeviceEvent{
				Type:     fidotypes.DeviceEventDisconnected,
				DeviceID: info.ID,
				Message:  fmt.Sprintf("%s disconnected", info.Name),
			})
		}
	}

	return events
}

func displayName(typ fidotypes.DeviceType, productStr string) string {
	if productStr != "" {
		return productStr
	}
	return string(typ)
}
