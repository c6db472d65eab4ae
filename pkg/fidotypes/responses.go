package fidotypes

import "github.com/google/uuid"

// Version is a protocol version string reported by GetInfo.
type Version string

const (
	VersionFIDO20    Version = "FIDO_2_0"
	VersionFIDO21Pre Version = "FIDO_2_1_PRE"
	VersionFIDO21    Version = "FIDO_2_1"
	VersionU2FV2     Version = "U2F_V2"
)

// AuthenticatorInfo mirrors the authenticatorGetInfo response. Decoded
// once and treated as an immutable value object afterwards.
type AuthenticatorInfo struct {
	Versions                         []Version                      `cbor:"1,keyasint" json:"versions"`
	Extensions                       []string                       `cbor:"2,keyasint,omitempty" json:"extensions,omitempty"`
	AAGUID                           uuid.UUID                      `cbor:"3,keyasint" json:"aaguid"`
	Options                          map[string]bool                `cbor:"4,keyasint,omitempty" json:"options,omitempty"`
	MaxMsgSize                       uint                           `cbor:"5,keyasint,omitempty" json:"maxMsgSize,omitempty"`
	PinUvAuthProtocols               []PinUvAuthProtocol            `cbor:"6,keyasint,omitempty" json:"pinUvAuthProtocols,omitempty"`
	MaxCredentialCountInList         uint                           `cbor:"7,keyasint,omitempty" json:"maxCredentialCountInList,omitempty"`
	MaxCredentialIDLength            uint                           `cbor:"8,keyasint,omitempty" json:"maxCredentialIdLength,omitempty"`
	Transports                       []string                       `cbor:"9,keyasint,omitempty" json:"transports,omitempty"`
	Algorithms                       []PublicKeyCredentialParameter `cbor:"10,keyasint,omitempty" json:"algorithms,omitempty"`
	MaxSerializedLargeBlobArray      uint                           `cbor:"11,keyasint,omitempty" json:"maxSerializedLargeBlobArray,omitempty"`
	ForcePINChange                   bool                           `cbor:"12,keyasint,omitempty" json:"forcePinChange,omitempty"`
	MinPINLength                     uint                           `cbor:"13,keyasint,omitempty" json:"minPinLength,omitempty"`
	FirmwareVersion                  uint                           `cbor:"14,keyasint,omitempty" json:"firmwareVersion,omitempty"`
	MaxCredBlobLength                uint                           `cbor:"15,keyasint,omitempty" json:"maxCredBlobLength,omitempty"`
	MaxRPIDsForSetMinPINLength       uint                           `cbor:"16,keyasint,omitempty" json:"maxRpIdsForSetMinPinLength,omitempty"`
	PreferredPlatformUvAttempts      uint                           `cbor:"17,keyasint,omitempty" json:"preferredPlatformUvAttempts,omitempty"`
	UvModality                       uint                           `cbor:"18,keyasint,omitempty" json:"uvModality,omitempty"`
	Certifications                   map[string]uint64              `cbor:"19,keyasint,omitempty" json:"certifications,omitempty"`
	RemainingDiscoverableCredentials uint                           `cbor:"20,keyasint,omitempty" json:"remainingDiscoverableCredentials,omitempty"`
	VendorPrototypeConfigCommands    []uint                         `cbor:"21,keyasint,omitempty" json:"vendorPrototypeConfigCommands,omitempty"`
}

// SupportsVersion reports whether the authenticator lists the version.
func (i *AuthenticatorInfo) SupportsVersion(v Version) bool {
	for _, have := range i.Versions {
		if have == v {
			return true
		}
	}
	return false
}

// AttestationObject mirrors the authenticatorMakeCredential response.
type AttestationObject struct {
	Format               string         `cbor:"1,keyasint" json:"fmt"`
	AuthData             []byte         `cbor:"2,keyasint" json:"authData"`
	AttestationStatement map[string]any `cbor:"3,keyasint,omitempty" json:"attStmt,omitempty"`
}

// AssertionObject mirrors the authenticatorGetAssertion response.
// NumberOfCredentials is only present on the first assertion of a
// multi-credential sequence.
type AssertionObject struct {
	Credential          PublicKeyCredentialDescriptor `cbor:"1,keyasint" json:"credential"`
	AuthData            []byte                        `cbor:"2,keyasint" json:"authData"`
	Signature           []byte                        `cbor:"3,keyasint" json:"signature"`
	User                *User                         `cbor:"4,keyasint,omitempty" json:"user,omitempty"`
	NumberOfCredentials uint                          `cbor:"5,keyasint,omitempty" json:"numberOfCredentials,omitempty"`
}
