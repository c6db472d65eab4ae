package usbhid

import (
	"context"
	"crypto/rand"
	"log/slog"
	"sync"
	"time"

	"github.com/go-ctap/fido2/pkg/device"
	"github.com/go-ctap/fido2/pkg/fidoerr"
	"github.com/go-ctap/fido2/pkg/fidotypes"
	"github.com/go-ctap/fido2/pkg/options"

	"github.com/sstallion/go-hid"
)

const readTimeout = 500 * time.Millisecond

// HIDDevice is a CTAPHID transport over one USB HID interface. A
// logical channel is negotiated on Connect and used for every exchange
// until Disconnect.
type HIDDevice struct {
	info   fidotypes.DeviceInfo
	logger *slog.Logger

	mu      sync.Mutex
	handle  *hid.Device
	channel channelID
	timeout time.Duration
	maxMsg  uint
}

var _ device.Device = (*HIDDevice)(nil)

func NewHIDDevice(info fidotypes.DeviceInfo, opts ...options.Option) *HIDDevice {
	oo := options.NewOptions(opts...)

	timeout := oo.Timeout
	if timeout <= 0 {
		timeout = device.DefaultOperationTimeout
	}

	return &HIDDevice{
		info:    info,
		logger:  oo.Logger,
		timeout: timeout,
		maxMsg:  device.DefaultMaxMessageSize,
	}
}

func (d *HIDDevice) Info() fidotypes.DeviceInfo { return d.info }

func (d *HIDDevice) MaxMessageSize() uint { return d.maxMsg }

func (d *HIDDevice) OperationTimeout() time.Duration { return d.timeout }

func (d *HIDDevice) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handle != nil
}

// Connect opens the HID interface and negotiates a channel. The HID
// path is resolved by re-enumeration at connect time, so a device that
// was re-plugged since the scan still connects.
func (d *HIDDevice) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle != nil {
		return nil
	}

	path, err := resolvePath(d.info)
	if err != nil {
		return err
	}

	handle, err := hid.OpenPath(path)
	if err != nil {
		return fidoerr.Communication("cannot open HID device", err)
	}

	channel, err := initChannel(ctx, handle)
	if err != nil {
		_ = handle.Close()
		return err
	}

	d.handle = handle
	d.channel = channel
	d.logger.Debug("HID device connected", "deviceID", d.info.ID, "path", path)

	return nil
}

// Disconnect closes the HID interface. Disconnecting a device that is
// not connected is a no-op.
func (d *HIDDevice) Disconnect(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle == nil {
		return nil
	}

	err := d.handle.Close()
	d.handle = nil
	if err != nil {
		return fidoerr.Communication("cannot close HID device", err)
	}
	return nil
}

// SendRaw wraps the message in CTAPHID CBOR framing, writes the report
// sequence and reassembles the response message. The returned bytes
// start with the CTAP status byte.
func (d *HIDDevice) SendRaw(ctx context.Context, payload []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle == nil {
		return nil, fidoerr.Communication("device is not connected", nil)
	}
	if uint(len(payload)) > d.maxMsg {
		return nil, &fidoerr.InvalidParametersError{Reason: "message exceeds device maximum"}
	}

	for _, frame := range encodeFrames(d.channel, hidCBOR, payload) {
		if _, err := d.handle.Write(frame); err != nil {
			return nil, fidoerr.Communication("HID write failed", err)
		}
	}

	_, data, err := readMessage(&handleReader{ctx: ctx, handle: d.handle}, d.channel)
	if err != nil {
		return nil, err
	}

	return data, nil
}

// handleReader adapts a HID handle to the framing layer's reader,
// polling with short timeouts so context cancellation is honored
// between reports.
type handleReader struct {
	ctx    context.Context
	handle *hid.Device
}

func (r *handleReader) readReport(buf []byte) (int, error) {
	for {
		if err := r.ctx.Err(); err != nil {
			return 0, err
		}

		n, err := r.handle.ReadWithTimeout(buf, readTimeout)
		if err != nil {
			return 0, fidoerr.Communication("HID read failed", err)
		}
		if n > 0 {
			return n, nil
		}
	}
}

// initChannel performs the broadcast init handshake and returns the
// allocated channel.
func initChannel(ctx context.Context, handle *hid.Device) (channelID, error) {
	nonce := make([]byte, 8)
	if _, err := rand.Read(nonce); err != nil {
		return channelID{}, err
	}

	for _, frame := range encodeFrames(broadcastChannel, hidInit, nonce) {
		if _, err := handle.Write(frame); err != nil {
			return channelID{}, fidoerr.Communication("HID write failed", err)
		}
	}

	reader := &handleReader{ctx: ctx, handle: handle}
	for {
		cmd, data, err := readMessage(reader, broadcastChannel)
		if err != nil {
			return channelID{}, err
		}
		if cmd != hidInit || len(data) < 17 {
			return channelID{}, fidoerr.Communication("malformed init response", nil)
		}
		// Another platform client may be mid-handshake; only the
		// response carrying our nonce is ours.
		if [8]byte(data[:8]) != [8]byte(nonce) {
			continue
		}

		return channelID(data[8:12]), nil
	}
}

// resolvePath finds the current HID path for the device identity.
func resolvePath(info fidotypes.DeviceInfo) (string, error) {
	var path string
	err := hid.Enumerate(info.VendorID, info.ProductID, func(hi *hid.DeviceInfo) error {
		if hi.UsagePage != fidoUsagePage || hi.Usage != fidoUsage {
			return nil
		}
		if info.SerialNumber != "" && hi.SerialNbr != info.SerialNumber {
			return nil
		}
		if path == "" {
			path = hi.Path
		}
		return nil
	})
	if err != nil {
		return "", fidoerr.Communication("HID enumeration failed", err)
	}
	if path == "" {
		return "", &fidoerr.DeviceNotFoundError{ID: info.ID}
	}

	return path, nil
}
