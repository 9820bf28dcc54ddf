package cbin

import (
	"log/slog"
)

// options holds codec configuration
type options struct {
	logger        *slog.Logger
	key           []byte
	opaqueField   int32
	opaqueTrailer [4]byte
}

// Option is a function that configures codec options
type Option func(*options)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithKey sets the XOR key used to decrypt and encrypt bodies
func WithKey(key []byte) Option {
	return func(o *options) {
		o.key = append([]byte(nil), key...)
	}
}

// WithOpaqueField sets the value written to the opaque header field of
// documents that carry no header of their own
func WithOpaqueField(v int32) Option {
	return func(o *options) {
		o.opaqueField = v
	}
}

// WithOpaqueTrailer sets the trailer written to documents that carry no
// header of their own
func WithOpaqueTrailer(trailer [4]byte) Option {
	return func(o *options) {
		o.opaqueTrailer = trailer
	}
}

// defaultOptions returns the default configuration
func defaultOptions() options {
	return options{
		logger:        slog.Default(),
		key:           DefaultKey(),
		opaqueField:   DefaultOpaqueField,
		opaqueTrailer: DefaultOpaqueTrailer,
	}
}
