package vector

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// MaxDimension bounds the declared vector dimension of a stored blob.
	// Anything larger is treated as corruption rather than a real embedding.
	MaxDimension = 10000

	// headerSize is the length of the little-endian uint32 dimension header.
	headerSize = 4

	// floatSize is the byte width of one encoded float32 element.
	floatSize = 4
)

// DecodeError describes a malformed embedding blob. Decode never returns a
// truncated or best-effort vector; it either yields the full declared
// dimension or this error.
type DecodeError struct {
	Reason        string
	ExpectedBytes int
	ActualBytes   int
}

func (e *DecodeError) Error() string {
	if e.ExpectedBytes > 0 {
		return fmt.Sprintf("decode embedding: %s (expected %d bytes, got %d)",
			e.Reason, e.ExpectedBytes, e.ActualBytes)
	}
	return fmt.Sprintf("decode embedding: %s", e.Reason)
}

// Encode serializes a float32 vector as a 4-byte little-endian dimension
// header followed by each element as a little-endian float32. Total length
// is exactly 4 + 4*len(vec). NaN and infinities are preserved bit-for-bit.
func Encode(vec []float32) []byte {
	blob := make([]byte, headerSize+floatSize*len(vec))
	binary.LittleEndian.PutUint32(blob, uint32(len(vec)))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(blob[headerSize+i*floatSize:], math.Float32bits(v))
	}
	return blob
}

// Decode parses a blob produced by Encode, validating the dimension header
// against the payload length before reading any element.
func Decode(blob []byte) ([]float32, error) {
	if len(blob) < headerSize {
		return nil, &DecodeError{Reason: "blob too short for dimension header",
			ExpectedBytes: headerSize, ActualBytes: len(blob)}
	}

	dim := binary.LittleEndian.Uint32(blob)
	if dim == 0 {
		return nil, &DecodeError{Reason: "dimension cannot be zero"}
	}
	if dim > MaxDimension {
		return nil, &DecodeError{Reason: fmt.Sprintf("dimension %d exceeds maximum allowed %d", dim, MaxDimension)}
	}

	expected := headerSize + floatSize*int(dim)
	if len(blob) != expected {
		return nil, &DecodeError{Reason: "size mismatch",
			ExpectedBytes: expected, ActualBytes: len(blob)}
	}

	vec := make([]float32, dim)
	for i := range vec {
		bits := binary.LittleEndian.Uint32(blob[headerSize+i*floatSize:])
		vec[i] = math.Float32frombits(bits)
	}
	return vec, nil
}
