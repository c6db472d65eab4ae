package fidotypes

// PinUvAuthProtocol is a PIN/UV auth protocol version number.
type PinUvAuthProtocol uint

const (
	PinUvAuthProtocolOne PinUvAuthProtocol = iota + 1
	PinUvAuthProtocolTwo
)

// RelyingParty identifies the service a credential is scoped to.
type RelyingParty struct {
	ID   string `cbor:"id" json:"id"`
	Name string `cbor:"name,omitempty" json:"name,omitempty"`
}

// User describes the account a credential is created for.
type User struct {
	ID          []byte `cbor:"id" json:"id"`
	Name        string `cbor:"name" json:"name"`
	DisplayName string `cbor:"displayName" json:"displayName"`
}

// PublicKeyCredentialParameter names an accepted credential algorithm.
type PublicKeyCredentialParameter struct {
	Type      string `cbor:"type" json:"type"`
	Algorithm int64  `cbor:"alg" json:"alg"`
}

// PublicKeyCredentialDescriptor references an existing credential.
type PublicKeyCredentialDescriptor struct {
	Type       string   `cbor:"type" json:"type"`
	ID         []byte   `cbor:"id" json:"id"`
	Transports []string `cbor:"transports,omitempty" json:"transports,omitempty"`
}

// MakeCredentialOptions is the boolean option bundle for credential
// creation. Nil fields are omitted from the request entirely, leaving
// the authenticator's defaults in effect.
type MakeCredentialOptions struct {
	ResidentKey      *bool
	UserVerification *bool
	UserPresence     *bool
}

// GetAssertionOptions is the boolean option bundle for assertions.
type GetAssertionOptions struct {
	UserPresence     *bool
	UserVerification *bool
}

// MakeCredentialParams is the request payload for credential creation.
// PinUvAuthParam must never be set without PinUvAuthProtocol: the engine
// rejects such requests before contacting the device.
type MakeCredentialParams struct {
	ClientDataHash    []byte
	RP                RelyingParty
	User              User
	PubKeyCredParams  []PublicKeyCredentialParameter
	ExcludeList       []PublicKeyCredentialDescriptor
	Extensions        map[string]any
	Options           MakeCredentialOptions
	PinUvAuthParam    []byte
	PinUvAuthProtocol PinUvAuthProtocol
}

// GetAssertionParams is the request payload for assertion retrieval.
// The same PinUvAuthParam/PinUvAuthProtocol pairing invariant applies.
type GetAssertionParams struct {
	RPID              string
	ClientDataHash    []byte
	AllowList         []PublicKeyCredentialDescriptor
	Extensions        map[string]any
	Options           GetAssertionOptions
	PinUvAuthParam    []byte
	PinUvAuthProtocol PinUvAuthProtocol
}
