// Package serialization turns draft payloads into self-describing blobs for
// the draft stores: an encoded body, optionally compressed and encrypted,
// behind a short header naming how it was written. A blob written with one
// configuration is readable by a serializer configured differently.
// PRINCIPLES:
// - KISS: Simple interface with multiple codec implementations
// - SOLID: Interface segregation for different serializers
package serialization

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// Envelope layout: magic "BG", version, codec id, compression id, flags.
const (
	magic0        = 'B'
	magic1        = 'G'
	version       = 1
	headerSize    = 6
	flagEncrypted = 1 << 0
)

// SerializationConfig holds serialization settings
type SerializationConfig struct {
	Codec       Codec
	Compression CompressionType
	EncryptKey  []byte // AES key (16, 24 or 32 bytes)
}

// Serializer provides complete serialization with compression and encryption
// PRINCIPLES:
// - KISS: Simple interface hiding complex operations
// - SRP: Single responsibility for complete serialization pipeline
type Serializer struct {
	config SerializationConfig
}

// NewSerializer creates a new serializer with configuration
func NewSerializer(config SerializationConfig) (*Serializer, error) {
	if config.Codec == nil {
		config.Codec = NewMsgPackCodec()
	}
	if config.Compression == "" {
		config.Compression = CompressionNone
	}
	if _, ok := compressionIDs[config.Compression]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompression, config.Compression)
	}
	switch len(config.EncryptKey) {
	case 0, 16, 24, 32:
	default:
		return nil, ErrInvalidKeySize
	}
	return &Serializer{config: config}, nil
}

// DefaultSerializer creates a serializer with sensible defaults
func DefaultSerializer() *Serializer {
	return &Serializer{config: SerializationConfig{
		Codec:       NewMsgPackCodec(),
		Compression: CompressionZstd,
	}}
}

// Serialize encodes, compresses, and encrypts data
func (s *Serializer) Serialize(v interface{}) ([]byte, error) {
	data, err := s.config.Codec.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("codec encoding failed: %w", err)
	}

	data, err = compress(s.config.Compression, data)
	if err != nil {
		return nil, fmt.Errorf("compression failed: %w", err)
	}

	var flags byte
	if len(s.config.EncryptKey) > 0 {
		data, err = encrypt(s.config.EncryptKey, data)
		if err != nil {
			return nil, fmt.Errorf("encryption failed: %w", err)
		}
		flags |= flagEncrypted
	}

	out := make([]byte, 0, headerSize+len(data))
	out = append(out, magic0, magic1, version, s.config.Codec.id(), compressionIDs[s.config.Compression], flags)
	return append(out, data...), nil
}

// Deserialize reads the header, then decrypts, decompresses, and decodes data
func (s *Serializer) Deserialize(data []byte, v interface{}) error {
	if len(data) < headerSize {
		return ErrShortPayload
	}
	if data[0] != magic0 || data[1] != magic1 {
		return ErrInvalidHeader
	}
	if data[2] != version {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, data[2])
	}
	codec, err := codecByID(data[3])
	if err != nil {
		return err
	}
	compression, err := compressionByID(data[4])
	if err != nil {
		return err
	}
	flags, body := data[5], data[headerSize:]

	if flags&flagEncrypted != 0 {
		if len(s.config.EncryptKey) == 0 {
			return ErrMissingKey
		}
		body, err = decrypt(s.config.EncryptKey, body)
		if err != nil {
			return fmt.Errorf("decryption failed: %w", err)
		}
	}

	body, err = decompress(compression, body)
	if err != nil {
		return fmt.Errorf("decompression failed: %w", err)
	}

	if err := codec.Decode(body, v); err != nil {
		return fmt.Errorf("codec decoding failed: %w", err)
	}
	return nil
}

// Describe names the configured pipeline, e.g. "msgpack+zstd+aes".
func (s *Serializer) Describe() string {
	name := s.config.Codec.Name() + "+" + string(s.config.Compression)
	if len(s.config.EncryptKey) > 0 {
		name += "+aes"
	}
	return name
}

// encrypt encrypts data using AES-GCM
func encrypt(key, data []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, data, nil), nil
}

// decrypt decrypts data using AES-GCM
func decrypt(key, data []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, ErrInvalidCiphertext
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
