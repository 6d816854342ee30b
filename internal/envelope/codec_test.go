package envelope

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vault-store/internal/domain"
)

func testIV() [domain.IVSize]byte {
	var iv [domain.IVSize]byte
	for i := range iv {
		iv[i] = byte(i + 1)
	}
	return iv
}

func TestSerialize_Layout(t *testing.T) {
	env := domain.Envelope{
		Compression: domain.CompressionDeflate,
		IV:          testIV(),
		Ciphertext:  []byte{0xaa, 0xbb, 0xcc},
	}

	data := Serialize(env)

	require.Len(t, data, HeaderSize+3)
	assert.Equal(t, byte(1), data[0])
	assert.Equal(t, env.IV[:], data[1:13])
	assert.Equal(t, []byte{0xaa, 0xbb, 0xcc}, data[13:])
}

func TestDeserialize_RoundTrip(t *testing.T) {
	for _, c := range []domain.Compression{domain.CompressionNone, domain.CompressionDeflate} {
		env := domain.Envelope{Compression: c, IV: testIV(), Ciphertext: []byte("ciphertext-and-tag")}

		got, err := Deserialize(Serialize(env))

		require.NoError(t, err)
		assert.Equal(t, env.Compression, got.Compression)
		assert.Equal(t, env.IV, got.IV)
		assert.True(t, bytes.Equal(env.Ciphertext, got.Ciphertext))
	}
}

func TestDeserialize_HeaderOnly(t *testing.T) {
	data := make([]byte, HeaderSize)

	got, err := Deserialize(data)

	require.NoError(t, err)
	assert.False(t, got.Compressed())
	assert.Empty(t, got.Ciphertext)
}

func TestDeserialize_TooShort(t *testing.T) {
	for _, n := range []int{0, 1, HeaderSize - 1} {
		_, err := Deserialize(make([]byte, n))
		assert.ErrorIs(t, err, domain.ErrMalformedEnvelope, "length %d", n)
	}
}

func TestDeserialize_UnknownFlag(t *testing.T) {
	data := make([]byte, HeaderSize+4)
	data[0] = 7

	_, err := Deserialize(data)

	assert.ErrorIs(t, err, domain.ErrMalformedEnvelope)
}

func TestDeserialize_DoesNotAliasInput(t *testing.T) {
	data := Serialize(domain.Envelope{IV: testIV(), Ciphertext: []byte{1, 2, 3}})

	env, err := Deserialize(data)
	require.NoError(t, err)
	data[HeaderSize] = 0xff

	assert.Equal(t, byte(1), env.Ciphertext[0])
}
