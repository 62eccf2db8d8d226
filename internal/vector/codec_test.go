package vector

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeLayout(t *testing.T) {
	vec := []float32{1.5, -2.25, 0}
	blob := Encode(vec)

	require.Len(t, blob, 4+4*len(vec))
	assert.Equal(t, uint32(len(vec)), binary.LittleEndian.Uint32(blob))
	assert.Equal(t, math.Float32bits(1.5), binary.LittleEndian.Uint32(blob[4:]))
	assert.Equal(t, math.Float32bits(-2.25), binary.LittleEndian.Uint32(blob[8:]))
}

func TestRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		vec  []float32
	}{
		{name: "single element", vec: []float32{42.0}},
		{name: "typical embedding values", vec: []float32{0.013, -0.44, 0.991, 0.0001, -1}},
		{name: "extremes", vec: []float32{math.MaxFloat32, -math.MaxFloat32, math.SmallestNonzeroFloat32}},
		{name: "zeros", vec: make([]float32, 384)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			decoded, err := Decode(Encode(tc.vec))
			require.NoError(t, err)
			assert.Equal(t, tc.vec, decoded)
		})
	}
}

// NaN compares unequal to itself, so special values are checked by bit
// pattern rather than ==.
func TestRoundTripSpecialFloats(t *testing.T) {
	vec := []float32{
		float32(math.NaN()),
		float32(math.Inf(1)),
		float32(math.Inf(-1)),
	}

	decoded, err := Decode(Encode(vec))
	require.NoError(t, err)
	require.Len(t, decoded, len(vec))

	for i := range vec {
		assert.Equal(t, math.Float32bits(vec[i]), math.Float32bits(decoded[i]),
			"element %d must round-trip bit-exactly", i)
	}
}

func TestRoundTripMaxDimension(t *testing.T) {
	vec := make([]float32, MaxDimension)
	for i := range vec {
		vec[i] = float32(i) * 0.001
	}

	decoded, err := Decode(Encode(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, decoded)
}

func TestDecodeRejectsMalformedBlobs(t *testing.T) {
	dim5 := func(payloadFloats int) []byte {
		blob := make([]byte, 4+4*payloadFloats)
		binary.LittleEndian.PutUint32(blob, 5)
		return blob
	}

	testCases := []struct {
		name string
		blob []byte
	}{
		{name: "empty", blob: nil},
		{name: "shorter than header", blob: []byte{1, 2, 3}},
		{name: "zero dimension", blob: make([]byte, 4)},
		{name: "dimension above maximum", blob: func() []byte {
			blob := make([]byte, 4)
			binary.LittleEndian.PutUint32(blob, MaxDimension+1)
			return blob
		}()},
		{name: "truncated payload", blob: dim5(4)},
		{name: "over-long payload", blob: dim5(6)},
		{name: "header only", blob: dim5(0)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			vec, err := Decode(tc.blob)
			require.Error(t, err)
			assert.Nil(t, vec, "decode must never return a partial vector")

			var decodeErr *DecodeError
			assert.ErrorAs(t, err, &decodeErr)
		})
	}
}

func TestDecodeSizeMismatchReportsByteCounts(t *testing.T) {
	blob := make([]byte, 4+4*2)
	binary.LittleEndian.PutUint32(blob, 3)

	_, err := Decode(blob)
	require.Error(t, err)

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, 4+4*3, decodeErr.ExpectedBytes)
	assert.Equal(t, 4+4*2, decodeErr.ActualBytes)
}
