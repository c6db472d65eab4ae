package ctap2

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"slices"
	"testing"
	"time"

	"github.com/go-ctap/fido2/pkg/device"
	"github.com/go-ctap/fido2/pkg/fidoerr"
	"github.com/go-ctap/fido2/pkg/fidotypes"
	"github.com/go-ctap/fido2/pkg/options"
	"github.com/go-ctap/fido2/pkg/pinuv"

	"github.com/fxamacker/cbor/v2"
	"github.com/ldclabs/cose/key"
	coseecdh "github.com/ldclabs/cose/key/ecdh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAuthenticator is a scripted device-side CTAP2 implementation. It
// performs the real ECDH handshake and PIN encryption symmetrically to
// the engine, so the ClientPIN flows are exercised end to end without
// hardware.
type fakeAuthenticator struct {
	t       *testing.T
	number  fidotypes.PinUvAuthProtocol
	proto   *pinuv.Protocol
	encMode cbor.EncMode

	devPriv    *ecdh.PrivateKey
	devCoseKey key.Key

	pinHash     []byte
	retries     uint
	token       []byte
	resetStatus byte
	requests    int
}

var _ device.Device = (*fakeAuthenticator)(nil)

func newFakeAuthenticator(t *testing.T, number fidotypes.PinUvAuthProtocol) *fakeAuthenticator {
	t.Helper()

	// The Protocol instance only dispatches KDF/Encrypt/Decrypt by
	// version; the device-side key pair is generated separately.
	proto, err := pinuv.New(number)
	require.NoError(t, err)

	devPriv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	devCoseKey, err := coseecdh.KeyFromPublic(devPriv.Public().(*ecdh.PublicKey))
	require.NoError(t, err)

	encMode, err := cbor.CTAP2EncOptions().EncMode()
	require.NoError(t, err)

	token := make([]byte, 32)
	_, err = rand.Read(token)
	require.NoError(t, err)

	return &fakeAuthenticator{
		t:          t,
		number:     number,
		proto:      proto,
		encMode:    encMode,
		devPriv:    devPriv,
		devCoseKey: devCoseKey,
		retries:    8,
		token:      token,
	}
}

func (f *fakeAuthenticator) Info() fidotypes.DeviceInfo {
	return fidotypes.DeviceInfo{ID: "fake-0000-0000", DeviceType: fidotypes.DeviceTypeGeneric}
}

func (f *fakeAuthenticator) Connect(context.Context) error    { return nil }
func (f *fakeAuthenticator) Disconnect(context.Context) error { return nil }
func (f *fakeAuthenticator) IsConnected() bool                { return true }
func (f *fakeAuthenticator) MaxMessageSize() uint             { return device.DefaultMaxMessageSize }
func (f *fakeAuthenticator) OperationTimeout() time.Duration  { return time.Second }

func (f *fakeAuthenticator) SendRaw(_ context.Context, payload []byte) ([]byte, error) {
	f.requests++

	if bytes.Equal(payload, cancelPacket) {
		return []byte{statusKeepaliveCancel}, nil
	}

	switch Command(payload[0]) {
	case CommandGetInfo:
		return f.handleGetInfo()
	case CommandClientPIN:
		return f.handleClientPIN(payload[1:])
	case CommandReset:
		if f.resetStatus != statusSuccess {
			return []byte{f.resetStatus}, nil
		}
		f.pinHash = nil
		f.retries = 8
		return []byte{statusSuccess}, nil
	default:
		return []byte{0x01}, nil
	}
}

func (f *fakeAuthenticator) handleGetInfo() ([]byte, error) {
	info := &fidotypes.AuthenticatorInfo{
		Versions:           []fidotypes.Version{fidotypes.VersionFIDO20, fidotypes.VersionFIDO21},
		Options:            map[string]bool{"clientPin": f.pinHash != nil},
		MaxMsgSize:         device.DefaultMaxMessageSize,
		PinUvAuthProtocols: []fidotypes.PinUvAuthProtocol{f.number},
	}
	b, err := f.encMode.Marshal(info)
	require.NoError(f.t, err)

	return slices.Concat([]byte{statusSuccess}, b), nil
}

func (f *fakeAuthenticator) handleClientPIN(body []byte) ([]byte, error) {
	var req clientPINRequest
	require.NoError(f.t, cbor.Unmarshal(body, &req))

	switch req.SubCommand {
	case ClientPINSubCommandGetPINRetries:
		return f.respond(&clientPINResponse{PinRetries: f.retries})

	case ClientPINSubCommandGetKeyAgreement:
		return f.respond(&clientPINResponse{KeyAgreement: f.devCoseKey})

	case ClientPINSubCommandSetPIN:
		if f.pinHash != nil {
			return []byte{0x24}, nil
		}
		secret := f.sharedSecret(req.KeyAgreement)
		if !f.authValid(secret, req.NewPinEnc, req.PinUvAuthParam) {
			return []byte{0x27}, nil
		}
		f.pinHash = f.decryptPinHash(secret, req.NewPinEnc)
		return []byte{statusSuccess}, nil

	case ClientPINSubCommandChangePIN:
		secret := f.sharedSecret(req.KeyAgreement)
		if !f.authValid(secret, slices.Concat(req.NewPinEnc, req.PinHashEnc), req.PinUvAuthParam) {
			return []byte{0x27}, nil
		}
		if status := f.checkPinHash(secret, req.PinHashEnc); status != statusSuccess {
			return []byte{status}, nil
		}
		f.pinHash = f.decryptPinHash(secret, req.NewPinEnc)
		f.retries = 8
		return []byte{statusSuccess}, nil

	case ClientPINSubCommandGetPinToken:
		secret := f.sharedSecret(req.KeyAgreement)
		if status := f.checkPinHash(secret, req.PinHashEnc); status != statusSuccess {
			return []byte{status}, nil
		}
		tokenEnc, err := f.proto.Encrypt(secret, f.token)
		require.NoError(f.t, err)
		return f.respond(&clientPINResponse{PinUvAuthToken: tokenEnc})

	default:
		return []byte{0x32}, nil
	}
}

func (f *fakeAuthenticator) respond(resp *clientPINResponse) ([]byte, error) {
	b, err := f.encMode.Marshal(resp)
	require.NoError(f.t, err)
	return slices.Concat([]byte{statusSuccess}, b), nil
}

func (f *fakeAuthenticator) sharedSecret(platformKey key.Key) []byte {
	pub, err := coseecdh.KeyToPublic(platformKey)
	require.NoError(f.t, err)
	z, err := f.devPriv.ECDH(pub)
	require.NoError(f.t, err)
	secret, err := f.proto.KDF(z)
	require.NoError(f.t, err)
	return secret
}

func (f *fakeAuthenticator) authValid(secret, message, param []byte) bool {
	want, err := pinuv.Authenticate(f.number, secret, message)
	require.NoError(f.t, err)
	return bytes.Equal(want, param)
}

// decryptPinHash recovers the padded PIN and stores its hash the way a
// real authenticator does.
func (f *fakeAuthenticator) decryptPinHash(secret, newPinEnc []byte) []byte {
	padded, err := f.proto.Decrypt(secret, newPinEnc)
	require.NoError(f.t, err)
	pin := bytes.TrimRight(padded, "\x00")
	sum := sha256.Sum256(pin)
	return sum[:16]
}

// checkPinHash returns the status of a PIN proof: invalid-PIN with
// retry bookkeeping on mismatch, PIN-blocked when retries run out.
func (f *fakeAuthenticator) checkPinHash(secret, pinHashEnc []byte) byte {
	if f.pinHash == nil {
		return 0x29
	}
	got, err := f.proto.Decrypt(secret, pinHashEnc)
	require.NoError(f.t, err)
	if !bytes.Equal(got, f.pinHash) {
		f.retries--
		if f.retries == 0 {
			return 0x26
		}
		return 0x25
	}
	return statusSuccess
}

func newTestEngine(t *testing.T, number fidotypes.PinUvAuthProtocol) (*Engine, *fakeAuthenticator) {
	t.Helper()
	fake := newFakeAuthenticator(t, number)
	engine := NewEngine(fake, options.WithPinUvAuthProtocol(number))
	return engine, fake
}

func TestGetInfo(t *testing.T) {
	engine, _ := newTestEngine(t, fidotypes.PinUvAuthProtocolOne)

	info, err := engine.GetInfo(t.Context())
	require.NoError(t, err)

	assert.True(t, info.SupportsVersion(fidotypes.VersionFIDO21))
	assert.False(t, info.Options["clientPin"])
	assert.EqualValues(t, device.DefaultMaxMessageSize, info.MaxMsgSize)
}

func TestSetAndVerifyPIN(t *testing.T) {
	for _, number := range []fidotypes.PinUvAuthProtocol{
		fidotypes.PinUvAuthProtocolOne,
		fidotypes.PinUvAuthProtocolTwo,
	} {
		engine, fake := newTestEngine(t, number)
		ctx := t.Context()

		require.NoError(t, engine.SetPIN(ctx, "123456"))
		assert.False(t, engine.HasPinToken())

		require.NoError(t, engine.VerifyPIN(ctx, "123456"))
		assert.True(t, engine.HasPinToken())

		// The stored token must be the one the device minted.
		message := []byte("client data hash")
		param, proto, err := engine.Authorize(message)
		require.NoError(t, err)
		assert.Equal(t, number, proto)

		want, err := pinuv.Authenticate(number, fake.token, message)
		require.NoError(t, err)
		assert.Equal(t, want, param)
	}
}

func TestVerifyPINWrongPIN(t *testing.T) {
	engine, fake := newTestEngine(t, fidotypes.PinUvAuthProtocolOne)
	ctx := t.Context()

	require.NoError(t, engine.SetPIN(ctx, "123456"))

	err := engine.VerifyPIN(ctx, "654321")
	var ctapErr *fidoerr.CTAPError
	require.ErrorAs(t, err, &ctapErr)
	assert.EqualValues(t, 0x25, ctapErr.Code)
	assert.False(t, engine.HasPinToken())
	assert.EqualValues(t, 7, fake.retries)
}

func TestVerifyPINSkipsLengthValidation(t *testing.T) {
	engine, _ := newTestEngine(t, fidotypes.PinUvAuthProtocolOne)
	ctx := t.Context()

	require.NoError(t, engine.SetPIN(ctx, "123456"))

	// A too-short PIN still goes to the device; rejection is the
	// device's call, not a local parameter error.
	err := engine.VerifyPIN(ctx, "123")
	var paramErr *fidoerr.InvalidParametersError
	require.NotErrorAs(t, err, &paramErr)
	var ctapErr *fidoerr.CTAPError
	require.ErrorAs(t, err, &ctapErr)
}

func TestSetPINValidatesLengthBeforeIO(t *testing.T) {
	engine, fake := newTestEngine(t, fidotypes.PinUvAuthProtocolOne)

	var paramErr *fidoerr.InvalidParametersError
	require.ErrorAs(t, engine.SetPIN(t.Context(), "123"), &paramErr)
	require.ErrorAs(t, engine.SetPIN(t.Context(), "123456789"), &paramErr)
	assert.Zero(t, fake.requests)
}

func TestChangePIN(t *testing.T) {
	engine, fake := newTestEngine(t, fidotypes.PinUvAuthProtocolTwo)
	ctx := t.Context()

	require.NoError(t, engine.SetPIN(ctx, "123456"))
	require.NoError(t, engine.VerifyPIN(ctx, "123456"))
	require.True(t, engine.HasPinToken())

	require.NoError(t, engine.ChangePIN(ctx, "123456", "abcdef"))

	// The old token died with the old PIN.
	assert.False(t, engine.HasPinToken())
	assert.EqualValues(t, 8, fake.retries)

	require.NoError(t, engine.VerifyPIN(ctx, "abcdef"))
	assert.True(t, engine.HasPinToken())
}

func TestChangePINValidatesNewPINBeforeIO(t *testing.T) {
	engine, fake := newTestEngine(t, fidotypes.PinUvAuthProtocolOne)

	var paramErr *fidoerr.InvalidParametersError
	require.ErrorAs(t, engine.ChangePIN(t.Context(), "123456", "ab"), &paramErr)
	assert.Zero(t, fake.requests)
}

func TestChangePINWrongCurrentKeepsToken(t *testing.T) {
	engine, _ := newTestEngine(t, fidotypes.PinUvAuthProtocolOne)
	ctx := t.Context()

	require.NoError(t, engine.SetPIN(ctx, "123456"))
	require.NoError(t, engine.VerifyPIN(ctx, "123456"))

	var ctapErr *fidoerr.CTAPError
	require.ErrorAs(t, engine.ChangePIN(ctx, "000000", "abcdef"), &ctapErr)
	assert.EqualValues(t, 0x25, ctapErr.Code)
	assert.True(t, engine.HasPinToken())
}

func TestResetClearsPinToken(t *testing.T) {
	engine, fake := newTestEngine(t, fidotypes.PinUvAuthProtocolOne)
	ctx := t.Context()

	require.NoError(t, engine.SetPIN(ctx, "123456"))
	require.NoError(t, engine.VerifyPIN(ctx, "123456"))
	require.True(t, engine.HasPinToken())

	require.NoError(t, engine.Reset(ctx))
	assert.False(t, engine.HasPinToken())
	assert.Nil(t, fake.pinHash)
}

func TestFailedResetKeepsPinToken(t *testing.T) {
	engine, fake := newTestEngine(t, fidotypes.PinUvAuthProtocolOne)
	ctx := t.Context()

	require.NoError(t, engine.SetPIN(ctx, "123456"))
	require.NoError(t, engine.VerifyPIN(ctx, "123456"))
	require.True(t, engine.HasPinToken())

	// A rejected reset leaves the device PIN in place, so the token
	// minted under it stays valid.
	fake.resetStatus = 0x27

	err := engine.Reset(ctx)
	var ctapErr *fidoerr.CTAPError
	require.ErrorAs(t, err, &ctapErr)
	assert.EqualValues(t, 0x27, ctapErr.Code)
	assert.True(t, engine.HasPinToken())
	assert.NotNil(t, fake.pinHash)
}

func TestGetPINRetries(t *testing.T) {
	engine, fake := newTestEngine(t, fidotypes.PinUvAuthProtocolOne)
	fake.retries = 5

	retries, err := engine.GetPINRetries(t.Context())
	require.NoError(t, err)
	assert.EqualValues(t, 5, retries)
}

func TestDeviceLockoutAfterRetriesExhausted(t *testing.T) {
	engine, fake := newTestEngine(t, fidotypes.PinUvAuthProtocolOne)
	ctx := t.Context()

	require.NoError(t, engine.SetPIN(ctx, "123456"))
	fake.retries = 1

	err := engine.VerifyPIN(ctx, "000000")
	require.Error(t, err)
	assert.True(t, fidoerr.IsDeviceLocked(err))
}

func TestCancelAcceptsKeepaliveCancelStatus(t *testing.T) {
	engine, _ := newTestEngine(t, fidotypes.PinUvAuthProtocolOne)
	require.NoError(t, engine.Cancel(t.Context()))
}

func TestAuthorizeWithoutToken(t *testing.T) {
	engine, _ := newTestEngine(t, fidotypes.PinUvAuthProtocolOne)

	_, _, err := engine.Authorize([]byte("message"))
	require.ErrorIs(t, err, fidoerr.ErrPinRequired)
	assert.True(t, fidoerr.IsPinRequired(err))
}

func TestMakeCredentialParamWithoutProtocol(t *testing.T) {
	engine, fake := newTestEngine(t, fidotypes.PinUvAuthProtocolOne)

	_, err := engine.MakeCredential(t.Context(), &fidotypes.MakeCredentialParams{
		PinUvAuthParam: []byte{0x01},
	})
	var paramErr *fidoerr.InvalidParametersError
	require.ErrorAs(t, err, &paramErr)
	assert.Zero(t, fake.requests)
}

func TestGetAssertionParamWithoutProtocol(t *testing.T) {
	engine, fake := newTestEngine(t, fidotypes.PinUvAuthProtocolOne)

	_, err := engine.GetAssertion(t.Context(), &fidotypes.GetAssertionParams{
		PinUvAuthParam: []byte{0x01},
	})
	var paramErr *fidoerr.InvalidParametersError
	require.ErrorAs(t, err, &paramErr)
	assert.Zero(t, fake.requests)
}

// erroringDevice answers every exchange with a fixed status byte.
type erroringDevice struct {
	fakeAuthenticator
	status byte
}

func (d *erroringDevice) SendRaw(context.Context, []byte) ([]byte, error) {
	return []byte{d.status}, nil
}

func TestPinRequiredStatusMapping(t *testing.T) {
	engine := NewEngine(&erroringDevice{status: 0x2A})

	_, err := engine.GetInfo(t.Context())
	require.Error(t, err)
	assert.True(t, fidoerr.IsPinRequired(err))
}

// emptyDevice answers with no bytes at all.
type emptyDevice struct{ fakeAuthenticator }

func (d *emptyDevice) SendRaw(context.Context, []byte) ([]byte, error) {
	return nil, nil
}

func TestEmptyResponse(t *testing.T) {
	engine := NewEngine(&emptyDevice{})

	_, err := engine.GetInfo(t.Context())
	var commErr *fidoerr.CommunicationError
	require.ErrorAs(t, err, &commErr)
}

// blockingDevice never answers until the context is cancelled.
type blockingDevice struct{ fakeAuthenticator }

func (d *blockingDevice) SendRaw(ctx context.Context, _ []byte) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (d *blockingDevice) OperationTimeout() time.Duration { return 50 * time.Millisecond }

func TestOperationTimeout(t *testing.T) {
	engine := NewEngine(&blockingDevice{})

	_, err := engine.GetInfo(t.Context())
	var timeoutErr *fidoerr.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.True(t, fidoerr.IsRetryable(err))
}

func TestContextCancellation(t *testing.T) {
	engine := NewEngine(&blockingDevice{})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := engine.GetInfo(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

// slowDevice never answers and advertises a long device-side deadline,
// so only the engine's own timeout can cut the call short.
type slowDevice struct{ fakeAuthenticator }

func (d *slowDevice) SendRaw(ctx context.Context, _ []byte) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (d *slowDevice) OperationTimeout() time.Duration { return 10 * time.Second }

func TestExplicitTimeoutOverridesDevice(t *testing.T) {
	engine := NewEngine(&slowDevice{}, options.WithTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := engine.GetInfo(t.Context())
	var timeoutErr *fidoerr.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Less(t, time.Since(start), time.Second)
}

type staticDiscovery struct{ devices []fidotypes.DeviceInfo }

func (d *staticDiscovery) Scan(context.Context) ([]fidotypes.DeviceInfo, error) {
	return d.devices, nil
}

func (d *staticDiscovery) Watch(context.Context) (<-chan fidotypes.DeviceEvent, error) {
	return nil, nil
}

func (d *staticDiscovery) StopWatch() error { return nil }

func (d *staticDiscovery) IsDeviceAvailable(_ context.Context, deviceID string) (bool, error) {
	return slices.ContainsFunc(d.devices, func(info fidotypes.DeviceInfo) bool {
		return info.ID == deviceID
	}), nil
}

type blockingCreator struct{}

func (blockingCreator) Create(fidotypes.DeviceInfo) (device.Device, error) {
	return &blockingDevice{}, nil
}

func (blockingCreator) Supports(fidotypes.DeviceInfo) bool { return true }
func (blockingCreator) Priority() int                      { return 0 }
func (blockingCreator) Name() string                       { return "blocking" }

// A send that times out must not disturb the manager's connection
// table; the caller decides whether to disconnect afterwards.
func TestTimedOutSendLeavesConnectionIntact(t *testing.T) {
	info := fidotypes.DeviceInfo{ID: "stuck-0000-0000", DeviceType: fidotypes.DeviceTypeGeneric}

	factory := device.NewFactory()
	factory.Register(fidotypes.DeviceTypeGeneric, blockingCreator{})

	m := device.NewManager(factory)
	m.AddDiscovery(&staticDiscovery{devices: []fidotypes.DeviceInfo{info}})

	require.NoError(t, m.ConnectDevice(t.Context(), info.ID))

	err := m.WithDevice(t.Context(), info.ID, func(ctx context.Context, dev device.Device) error {
		_, err := NewEngine(dev).GetInfo(ctx)
		return err
	})
	var timeoutErr *fidoerr.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)

	assert.Equal(t, []string{info.ID}, m.ConnectedDeviceIDs())
	assert.True(t, m.IsConnected(info.ID))
}
