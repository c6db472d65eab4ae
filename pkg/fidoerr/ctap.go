package fidoerr

import "fmt"

// CTAP status codes the message table and classification helpers refer
// to by name.
const (
	ctapChannelBusy  byte = 0x06
	ctapProcessing   byte = 0x16
	ctapPinBlocked   byte = 0x26
	ctapPinRequired  byte = 0x2A
	ctapUpRequired   byte = 0x2F
	ctapKeepaliveCxl byte = 0x21
)

var ctapMessages = map[byte]string{
	0x01: "Invalid command",
	0x02: "Invalid parameter",
	0x03: "Invalid length",
	0x04: "Invalid sequence",
	0x05: "Message timeout",
	0x06: "Channel busy",
	0x0A: "Lock required",
	0x0B: "Invalid channel",
	0x10: "CBOR unexpected type",
	0x11: "Invalid CBOR",
	0x12: "Missing parameter",
	0x13: "Limit exceeded",
	0x14: "Unsupported extension",
	0x15: "Credential excluded",
	0x16: "Processing",
	0x17: "Invalid credential",
	0x18: "User action pending",
	0x19: "Operation pending",
	0x1A: "No operations",
	0x1B: "Unsupported algorithm",
	0x1C: "Operation denied",
	0x1D: "Key store full",
	0x1E: "No operation pending",
	0x1F: "Unsupported option",
	0x20: "Invalid option",
	0x21: "Keep alive cancel",
	0x22: "No credentials",
	0x23: "User action timeout",
	0x24: "Not allowed",
	0x25: "PIN invalid",
	0x26: "PIN blocked",
	0x27: "PIN auth invalid",
	0x28: "PIN auth blocked",
	0x29: "PIN not set",
	0x2A: "PIN required",
	0x2B: "PIN policy violation",
	0x2C: "PIN token expired",
	0x2D: "Request too large",
	0x2E: "Action timeout",
	0x2F: "Up required",
	0x30: "UV blocked",
	0x31: "Integrity failure",
	0x32: "Invalid subcommand",
	0x33: "UV invalid",
	0x34: "Unauthorized permission",
}

// CTAPError is an authenticator-reported status code. Unrecognized codes
// still round-trip: the raw byte is preserved and rendered in hex.
type CTAPError struct {
	Code byte
}

// NewCTAPError wraps a non-zero status byte.
func NewCTAPError(code byte) *CTAPError {
	return &CTAPError{Code: code}
}

// Message returns the fixed human-readable text for the status code.
func (e *CTAPError) Message() string {
	if msg, ok := ctapMessages[e.Code]; ok {
		return msg
	}
	return fmt.Sprintf("Unknown error code: %#04x", e.Code)
}

func (e *CTAPError) Error() string {
	return fmt.Sprintf("fido2: CTAP error code: %#04x - %s", e.Code, e.Message())
}
