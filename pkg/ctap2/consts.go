package ctap2

// Command is a CTAP2 authenticator command byte. It prefixes the CBOR
// request body on the wire and selects how the response is decoded.
type Command byte

const (
	CommandMakeCredential   Command = 0x01
	CommandGetAssertion     Command = 0x02
	CommandGetInfo          Command = 0x04
	CommandClientPIN        Command = 0x06
	CommandReset            Command = 0x07
	CommandGetNextAssertion Command = 0x08
)

// ClientPINSubCommand selects the operation of an authenticatorClientPIN
// request.
type ClientPINSubCommand uint

const (
	ClientPINSubCommandGetPINRetries ClientPINSubCommand = iota + 1
	ClientPINSubCommandGetKeyAgreement
	ClientPINSubCommandSetPIN
	ClientPINSubCommandChangePIN
	ClientPINSubCommandGetPinToken
)

// Option keys understood in makeCredential/getAssertion options maps.
type Option string

const (
	OptionResidentKey      Option = "rk"
	OptionUserPresence     Option = "up"
	OptionUserVerification Option = "uv"
)

const (
	// statusSuccess is the CTAP status byte that prefixes every
	// well-formed response.
	statusSuccess byte = 0x00

	// statusKeepaliveCancel is returned by authenticators that answer a
	// cancel request with the keepalive-cancel code instead of success.
	statusKeepaliveCancel byte = 0x21
)

// cancelPacket is the fixed four-byte cancel request. It is not a CBOR
// command and carries no body.
var cancelPacket = []byte{0x3f, 0x00, 0x00, 0x00}

const (
	minPINLength = 4
	maxPINLength = 8
	pinPadLength = 64
)
