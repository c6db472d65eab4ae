package fidotypes

import (
	"slices"
	"time"
)

// DeviceType classifies a hardware security key family.
type DeviceType string

const (
	DeviceTypeYubiKey  DeviceType = "yubikey"
	DeviceTypeCanoKey  DeviceType = "canokey"
	DeviceTypeNitrokey DeviceType = "nitrokey"
	DeviceTypeSoloKey  DeviceType = "solokey"
	DeviceTypeGeneric  DeviceType = "generic"
)

// TransportType is the communication channel a device is reachable over.
type TransportType string

const (
	TransportUSB       TransportType = "usb"
	TransportNFC       TransportType = "nfc"
	TransportBluetooth TransportType = "bluetooth"
	TransportHybrid    TransportType = "hybrid"
)

// Capability is a declared device feature.
type Capability string

const (
	CapabilityFIDO2   Capability = "fido2"
	CapabilityFIDOU2F Capability = "u2f"
	CapabilityOATH    Capability = "oath"
	CapabilityPIV     Capability = "piv"
	CapabilityOpenPGP Capability = "openpgp"
	CapabilityOTP     Capability = "otp"
)

// DeviceInfo is the identity and capability snapshot of a physical
// authenticator as seen by a discovery source. The ID is stable across
// scans; it is derived from the device type, vendor ID and product ID.
type DeviceInfo struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Manufacturer    string        `json:"manufacturer"`
	ProductName     string        `json:"productName"`
	SerialNumber    string        `json:"serialNumber,omitempty"`
	VendorID        uint16        `json:"vendorId"`
	ProductID       uint16        `json:"productId"`
	DeviceType      DeviceType    `json:"deviceType"`
	Transport       TransportType `json:"transport"`
	Capabilities    []Capability  `json:"capabilities"`
	FirmwareVersion string        `json:"firmwareVersion,omitempty"`
	LastSeen        time.Time     `json:"lastSeen"`
}

// NewDeviceInfo builds a DeviceInfo with an empty capability set and
// the last-seen timestamp set to now.
func NewDeviceInfo(
	id, name, manufacturer, productName string,
	vendorID, productID uint16,
	deviceType DeviceType,
	transport TransportType,
) DeviceInfo {
	return DeviceInfo{
		ID:           id,
		Name:         name,
		Manufacturer: manufacturer,
		ProductName:  productName,
		VendorID:     vendorID,
		ProductID:    productID,
		DeviceType:   deviceType,
		Transport:    transport,
		Capabilities: make([]Capability, 0),
		LastSeen:     time.Now().UTC(),
	}
}

// HasCapability reports whether the device declares the capability.
func (d *DeviceInfo) HasCapability(c Capability) bool {
	return slices.Contains(d.Capabilities, c)
}

// AddCapability appends a capability; adding one already present is a no-op.
func (d *DeviceInfo) AddCapability(c Capability) {
	if !slices.Contains(d.Capabilities, c) {
		d.Capabilities = append(d.Capabilities, c)
	}
}

// Touch refreshes the last-seen timestamp.
func (d *DeviceInfo) Touch() {
	d.LastSeen = time.Now().UTC()
}

// DeviceEventType discriminates watch stream events.
type DeviceEventType string

const (
	DeviceEventConnected    DeviceEventType = "connected"
	DeviceEventDisconnected DeviceEventType = "disconnected"
	DeviceEventError        DeviceEventType = "error"
)

// DeviceEvent is a single item of a discovery watch stream.
// Info is set for connect events; DeviceID identifies the device for
// disconnect and error events; Message carries the error text.
type DeviceEvent struct {
	Type     DeviceEventType
	Info     *DeviceInfo
	DeviceID string
	Message  string
}
