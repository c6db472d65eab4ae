package options

import (
	"log/slog"
	"time"

	"github.com/go-ctap/fido2/pkg/fidotypes"

	"github.com/fxamacker/cbor/v2"
)

// DefaultTimeout bounds a single CTAP2 request/response round trip.
const DefaultTimeout = 30 * time.Second

type Options struct {
	Logger            *slog.Logger
	EncMode           cbor.EncMode
	Timeout           time.Duration
	PinUvAuthProtocol fidotypes.PinUvAuthProtocol
}

type Option func(*Options)

func WithLogger(logger *slog.Logger) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

func WithEncMode(encMode cbor.EncMode) Option {
	return func(opts *Options) {
		opts.EncMode = encMode
	}
}

// WithTimeout overrides the per-operation timeout. A zero Timeout means
// unset; consumers fall back to the device default or DefaultTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(opts *Options) {
		opts.Timeout = timeout
	}
}

// WithPinUvAuthProtocol sets the preferred PIN/UV auth protocol version
// for ClientPIN flows.
func WithPinUvAuthProtocol(p fidotypes.PinUvAuthProtocol) Option {
	return func(opts *Options) {
		opts.PinUvAuthProtocol = p
	}
}

func NewOptions(opts ...Option) *Options {
	encMode, _ := cbor.CTAP2EncOptions().EncMode()
	oo := &Options{
		Logger:            slog.Default(),
		EncMode:           encMode,
		PinUvAuthProtocol: fidotypes.PinUvAuthProtocolOne,
	}

	for _, opt := range opts {
		opt(oo)
	}

	return oo
}
