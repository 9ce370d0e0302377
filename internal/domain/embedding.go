package domain

import (
	"database/sql/driver"
	"encoding/binary"
	"errors"
	"math"
)

// Embedding is a fixed-length feature vector for an image or label text.
// Embeddings are only comparable when produced by the same encoder fingerprint.
type Embedding []float32

// Dim returns the vector length.
func (e Embedding) Dim() int {
	return len(e)
}

// Vector stores an Embedding as a little-endian float32 blob.
type Vector []float32

// GormDataType maps Vector to blob (sqlite) or bytea (postgres).
func (Vector) GormDataType() string {
	return "bytes"
}

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: 4 bytes per component, little-endian.
//   - error: always nil.
func (v Vector) Value() (driver.Value, error) {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf, nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if the type is unexpected or the length is not a multiple of 4.
func (v *Vector) Scan(value interface{}) error {
	if value == nil {
		*v = Vector{}
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan Vector")
		}
		b = []byte(str)
	}
	if len(b)%4 != 0 {
		return errors.New("failed to scan Vector: truncated blob")
	}
	out := make(Vector, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	*v = out
	return nil
}
