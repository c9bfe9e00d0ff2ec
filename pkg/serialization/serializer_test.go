package serialization

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/flowgraph/blockgraph/internal/core/graph"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() graph.Record {
	return graph.Record{
		Nodes: []graph.Node{
			{ID: "1", Type: "custom", Position: &graph.Position{X: 80, Y: 282}, Data: json.RawMessage(`{"type":"start","title":"Start"}`)},
			{ID: "2", Type: "custom", Width: 244, Height: 98, Data: json.RawMessage(`{"type":"llm","prompt_template":[{"text":"{{#1.q#}}"}]}`)},
		},
		Edges: []graph.Edge{
			{ID: "1-2", Type: "custom", Source: "1", SourceHandle: "source", Target: "2", TargetHandle: "target",
				Data: &graph.EdgeData{SourceType: graph.BlockStart, TargetType: graph.BlockLLM}},
		},
		Viewport: &graph.Viewport{Zoom: 0.7},
	}
}

func key(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	_, err := rand.Read(k)
	require.NoError(t, err)
	return k
}

func TestCodecs(t *testing.T) {
	for _, codec := range []Codec{NewJSONCodec(), NewMsgPackCodec()} {
		t.Run(codec.Name(), func(t *testing.T) {
			encoded, err := codec.Encode(sampleRecord())
			require.NoError(t, err)
			assert.NotEmpty(t, encoded)

			var decoded graph.Record
			require.NoError(t, codec.Decode(encoded, &decoded))
			assert.Empty(t, cmp.Diff(sampleRecord(), decoded))
		})
	}
}

func TestSerializer_RoundTrip(t *testing.T) {
	k := key(t)
	for _, codec := range []Codec{NewJSONCodec(), NewMsgPackCodec()} {
		for _, compression := range []CompressionType{CompressionNone, CompressionGzip, CompressionZstd} {
			for _, encryptKey := range [][]byte{nil, k} {
				name := fmt.Sprintf("%s/%s/encrypted=%v", codec.Name(), compression, encryptKey != nil)
				t.Run(name, func(t *testing.T) {
					s, err := NewSerializer(SerializationConfig{Codec: codec, Compression: compression, EncryptKey: encryptKey})
					require.NoError(t, err)

					blob, err := s.Serialize(sampleRecord())
					require.NoError(t, err)

					var decoded graph.Record
					require.NoError(t, s.Deserialize(blob, &decoded))
					assert.Empty(t, cmp.Diff(sampleRecord(), decoded))
				})
			}
		}
	}
}

func TestSerializer_ReadsOtherConfigurations(t *testing.T) {
	writer, err := NewSerializer(SerializationConfig{Codec: NewJSONCodec(), Compression: CompressionGzip})
	require.NoError(t, err)
	blob, err := writer.Serialize(sampleRecord())
	require.NoError(t, err)

	var decoded graph.Record
	require.NoError(t, DefaultSerializer().Deserialize(blob, &decoded))
	assert.Empty(t, cmp.Diff(sampleRecord(), decoded))
}

func TestSerializer_Describe(t *testing.T) {
	assert.Equal(t, "msgpack+zstd", DefaultSerializer().Describe())

	s, err := NewSerializer(SerializationConfig{Codec: NewJSONCodec(), EncryptKey: key(t)})
	require.NoError(t, err)
	assert.Equal(t, "json+none+aes", s.Describe())
}

func TestNewSerializer_Errors(t *testing.T) {
	_, err := NewSerializer(SerializationConfig{Compression: "lz4"})
	assert.ErrorIs(t, err, ErrUnknownCompression)

	_, err = NewSerializer(SerializationConfig{EncryptKey: []byte("short")})
	assert.ErrorIs(t, err, ErrInvalidKeySize)
}

func TestSerializer_ErrorHandling(t *testing.T) {
	s := DefaultSerializer()
	valid, err := s.Serialize(sampleRecord())
	require.NoError(t, err)

	corrupt := func(i int, b byte) []byte {
		out := append([]byte(nil), valid...)
		out[i] = b
		return out
	}

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{name: "short payload", data: []byte("BG"), wantErr: ErrShortPayload},
		{name: "bad magic", data: corrupt(0, 'X'), wantErr: ErrInvalidHeader},
		{name: "future version", data: corrupt(2, 9), wantErr: ErrUnsupportedVersion},
		{name: "unknown codec", data: corrupt(3, 7), wantErr: ErrUnknownCodec},
		{name: "unknown compression", data: corrupt(4, 7), wantErr: ErrUnknownCompression},
		{name: "encrypted without key", data: corrupt(5, flagEncrypted), wantErr: ErrMissingKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out graph.Record
			assert.ErrorIs(t, s.Deserialize(tt.data, &out), tt.wantErr)
		})
	}

	t.Run("wrong key", func(t *testing.T) {
		w, err := NewSerializer(SerializationConfig{EncryptKey: key(t)})
		require.NoError(t, err)
		r, err := NewSerializer(SerializationConfig{EncryptKey: key(t)})
		require.NoError(t, err)

		blob, err := w.Serialize(sampleRecord())
		require.NoError(t, err)
		var out graph.Record
		assert.ErrorContains(t, r.Deserialize(blob, &out), "decryption failed")
	})
}

func TestParseCompressionAndCodecByName(t *testing.T) {
	c, err := ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, c)

	c, err = ParseCompression("zstd")
	require.NoError(t, err)
	assert.Equal(t, CompressionZstd, c)

	_, err = ParseCompression("brotli")
	assert.ErrorIs(t, err, ErrUnknownCompression)

	codec, err := CodecByName("")
	require.NoError(t, err)
	assert.Equal(t, "msgpack", codec.Name())

	_, err = CodecByName("xml")
	assert.ErrorIs(t, err, ErrUnknownCodec)
}
