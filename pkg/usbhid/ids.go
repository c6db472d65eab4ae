package usbhid

import (
	"fmt"

	"github.com/go-ctap/fido2/pkg/fidotypes"
)

// vidPid keys the known-device table.
type vidPid struct {
	VendorID  uint16
	ProductID uint16
}

// knownDevices maps USB vendor/product pairs of common authenticator
// families. Anything not listed enumerates as a generic FIDO device.
var knownDevices = map[vidPid]fidotypes.DeviceType{
	{0x1050, 0x0010}: fidotypes.DeviceTypeYubiKey,
	{0x1050, 0x0018}: fidotypes.DeviceTypeYubiKey,
	{0x1050, 0x0030}: fidotypes.DeviceTypeYubiKey,
	{0x1050, 0x0407}: fidotypes.DeviceTypeYubiKey,
	{0x1050, 0x0410}: fidotypes.DeviceTypeYubiKey,
	{0x20a0, 0x42d4}: fidotypes.DeviceTypeCanoKey,
	{0x20a0, 0x42b1}: fidotypes.DeviceTypeNitrokey,
	{0x20a0, 0x42b2}: fidotypes.DeviceTypeNitrokey,
	{0x0483, 0xa2ca}: fidotypes.DeviceTypeSoloKey,
	{0x1209, 0x5070}: fidotypes.DeviceTypeSoloKey,
}

// familyCapabilities lists what each family's firmware ships beyond
// FIDO2 itself.
var familyCapabilities = map[fidotypes.DeviceType][]fidotypes.Capability{
	fidotypes.DeviceTypeYubiKey: {
		fidotypes.CapabilityFIDO2,
		fidotypes.CapabilityFIDOU2F,
		fidotypes.CapabilityOATH,
		fidotypes.CapabilityPIV,
		fidotypes.CapabilityOpenPGP,
		fidotypes.CapabilityOTP,
	},
	fidotypes.DeviceTypeCanoKey: {
		fidotypes.CapabilityFIDO2,
		fidotypes.CapabilityFIDOU2F,
		fidotypes.CapabilityOATH,
		fidotypes.CapabilityPIV,
		fidotypes.CapabilityOpenPGP,
	},
	fidotypes.DeviceTypeNitrokey: {
		fidotypes.CapabilityFIDO2,
		fidotypes.CapabilityFIDOU2F,
		fidotypes.CapabilityOATH,
		fidotypes.CapabilityOpenPGP,
	},
	fidotypes.DeviceTypeSoloKey: {
		fidotypes.CapabilityFIDO2,
		fidotypes.CapabilityFIDOU2F,
	},
	fidotypes.DeviceTypeGeneric: {
		fidotypes.CapabilityFIDO2,
	},
}

// classify returns the device family for a vendor/product pair.
func classify(vendorID, productID uint16) fidotypes.DeviceType {
	if typ, ok := knownDevices[vidPid{vendorID, productID}]; ok {
		return typ
	}
	return fidotypes.DeviceTypeGeneric
}

// deviceID builds a stable identifier. The serial number disambiguates
// two plugged-in devices of the same model when the firmware reports
// one.
func deviceID(typ fidotypes.DeviceType, vendorID, productID uint16, serial string) string {
	id := fmt.Sprintf("%s-%04x-%04x", typ, vendorID, productID)
	if serial != "" {
		id += "-" + serial
	}
	return id
}
