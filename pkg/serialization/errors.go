package serialization

import "errors"

// Domain errors - DRY principle
var (
	ErrShortPayload       = errors.New("payload shorter than header")
	ErrInvalidHeader      = errors.New("payload header is not a draft envelope")
	ErrUnsupportedVersion = errors.New("unsupported envelope version")
	ErrUnknownCodec       = errors.New("unknown codec")
	ErrUnknownCompression = errors.New("unknown compression")
	ErrMissingKey         = errors.New("payload is encrypted but no key is configured")
	ErrInvalidCiphertext  = errors.New("invalid ciphertext size")
	ErrInvalidKeySize     = errors.New("encryption key must be 16, 24 or 32 bytes")
)
