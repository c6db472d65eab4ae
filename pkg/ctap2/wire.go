package ctap2

import (
	"github.com/go-ctap/fido2/pkg/fidotypes"

	"github.com/ldclabs/cose/key"
)

type makeCredentialRequest struct {
	ClientDataHash    []byte                                    `cbor:"1,keyasint"`
	RP                fidotypes.RelyingParty                    `cbor:"2,keyasint"`
	User              fidotypes.User                            `cbor:"3,keyasint"`
	PubKeyCredParams  []fidotypes.PublicKeyCredentialParameter  `cbor:"4,keyasint"`
	ExcludeList       []fidotypes.PublicKeyCredentialDescriptor `cbor:"5,keyasint,omitempty"`
	Extensions        map[string]any                            `cbor:"6,keyasint,omitempty"`
	Options           map[Option]bool                           `cbor:"7,keyasint,omitempty"`
	PinUvAuthParam    []byte                                    `cbor:"8,keyasint,omitempty"`
	PinUvAuthProtocol fidotypes.PinUvAuthProtocol               `cbor:"9,keyasint,omitempty"`
}

type getAssertionRequest struct {
	RPID              string                                    `cbor:"1,keyasint"`
	ClientDataHash    []byte                                    `cbor:"2,keyasint"`
	AllowList         []fidotypes.PublicKeyCredentialDescriptor `cbor:"3,keyasint,omitempty"`
	Extensions        map[string]any                            `cbor:"4,keyasint,omitempty"`
	Options           map[Option]bool                           `cbor:"5,keyasint,omitempty"`
	PinUvAuthParam    []byte                                    `cbor:"6,keyasint,omitempty"`
	PinUvAuthProtocol fidotypes.PinUvAuthProtocol               `cbor:"7,keyasint,omitempty"`
}

type clientPINRequest struct {
	PinUvAuthProtocol fidotypes.PinUvAuthProtocol `cbor:"1,keyasint,omitempty"`
	SubCommand        ClientPINSubCommand         `cbor:"2,keyasint"`
	KeyAgreement      key.Key                     `cbor:"3,keyasint,omitempty"`
	PinUvAuthParam    []byte                      `cbor:"4,keyasint,omitempty"`
	NewPinEnc         []byte                      `cbor:"5,keyasint,omitempty"`
	PinHashEnc        []byte                      `cbor:"6,keyasint,omitempty"`
}

type clientPINResponse struct {
	KeyAgreement    key.Key `cbor:"1,keyasint,omitempty"`
	PinUvAuthToken  []byte  `cbor:"2,keyasint,omitempty"`
	PinRetries      uint    `cbor:"3,keyasint,omitempty"`
	PowerCycleState bool    `cbor:"4,keyasint,omitempty"`
}

func newMakeCredentialRequest(params *fidotypes.MakeCredentialParams) *makeCredentialRequest {
	return &makeCredentialRequest{
		ClientDataHash:    params.ClientDataHash,
		RP:                params.RP,
		User:              params.User,
		PubKeyCredParams:  params.PubKeyCredParams,
		ExcludeList:       params.ExcludeList,
		Extensions:        params.Extensions,
		Options: optionsMap(map[Option]*bool{
			OptionResidentKey:      params.Options.ResidentKey,
			OptionUserPresence:     params.Options.UserPresence,
			OptionUserVerification: params.Options.UserVerification,
		}),
		PinUvAuthParam:    params.PinUvAuthParam,
		PinUvAuthProtocol: params.PinUvAuthProtocol,
	}
}

func newGetAssertionRequest(params *fidotypes.GetAssertionParams) *getAssertionRequest {
	return &getAssertionRequest{
		RPID:           params.RPID,
		ClientDataHash: params.ClientDataHash,
		AllowList:      params.AllowList,
		Extensions:     params.Extensions,
		Options: optionsMap(map[Option]*bool{
			OptionUserPresence:     params.Options.UserPresence,
			OptionUserVerification: params.Options.UserVerification,
		}),
		PinUvAuthParam:    params.PinUvAuthParam,
		PinUvAuthProtocol: params.PinUvAuthProtocol,
	}
}

// optionsMap drops unset entries so the request leaves the
// authenticator's defaults untouched. Returns nil when nothing is set.
func optionsMap(set map[Option]*bool) map[Option]bool {
	var out map[Option]bool
	for opt, v := range set {
		if v == nil {
			continue
		}
		if out == nil {
			out = make(map[Option]bool)
		}
		out[opt] = *v
	}
	return out
}
