package embed

import (
	"fmt"
	"strings"

	"github.com/x448/float16"
)

// DType is the storage precision of an embedding matrix.
type DType string

const (
	FP32 DType = "fp32"
	FP16 DType = "fp16"
)

// ParseDType accepts "fp16"/"float16" and "fp32"/"float32".
func ParseDType(s string) (DType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fp32", "float32", "":
		return FP32, nil
	case "fp16", "float16", "half":
		return FP16, nil
	}
	return "", fmt.Errorf("unknown dtype %q", s)
}

// ByteSize is the number of bytes one element occupies on disk.
func (d DType) ByteSize() int {
	if d == FP16 {
		return 2
	}
	return 4
}

// Matrix is a dense row-major block of embeddings. Data always holds
// float32 values; for FP16 matrices every value is already rounded to
// half precision so that scores are identical before and after a save.
type Matrix struct {
	Rows  int
	Dim   int
	DType DType
	Data  []float32
}

// NewMatrix allocates a zero matrix.
func NewMatrix(rows, dim int, dtype DType) Matrix {
	return Matrix{Rows: rows, Dim: dim, DType: dtype, Data: make([]float32, rows*dim)}
}

// Row returns a view of row i. The slice aliases the matrix data.
func (m Matrix) Row(i int) []float32 {
	return m.Data[i*m.Dim : (i+1)*m.Dim]
}

// SetRow copies v into row i, applying the matrix precision.
func (m Matrix) SetRow(i int, v []float32) {
	row := m.Row(i)
	copy(row, v)
	if m.DType == FP16 {
		RoundFP16(row)
	}
}

// RoundFP16 rounds every value in v to the nearest half-precision float, in place.
func RoundFP16(v []float32) {
	for i, x := range v {
		v[i] = float16.Fromfloat32(x).Float32()
	}
}

// EncodeFP16 converts a float32 value to its half-precision bit pattern.
func EncodeFP16(x float32) uint16 {
	return float16.Fromfloat32(x).Bits()
}

// DecodeFP16 converts a half-precision bit pattern back to float32.
func DecodeFP16(bits uint16) float32 {
	return float16.Frombits(bits).Float32()
}
