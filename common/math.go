package common

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

// SliceToBytes converts any slice to a byte slice for GPU buffer uploads.
// Uses unsafe pointer operations to create a view into the original data.
// WARNING: The returned slice shares memory with the input - do not modify.
//
// Parameters:
//   - data: source slice of any type
//
// Returns:
//   - []byte: byte slice view of the input data, or nil if input is empty
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), int(size)*len(data))
}

// BytesToSlice copies a little-endian byte buffer into a freshly allocated slice of T.
// Trailing bytes that do not form a whole element are ignored.
//
// Parameters:
//   - data: the source bytes
//
// Returns:
//   - []T: the decoded elements
func BytesToSlice[T any](data []byte) []T {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if size == 0 || len(data) < size {
		return nil
	}
	out := make([]T, len(data)/size)
	copy(SliceToBytes(out), data)
	return out
}

// PutFloat32s writes the values little-endian into buf starting at offset.
//
// Parameters:
//   - buf: destination buffer
//   - offset: byte offset of the first value
//   - values: the floats to write
//
// Returns:
//   - int: the offset just past the last written value
func PutFloat32s(buf []byte, offset int, values ...float32) int {
	for _, v := range values {
		binary.LittleEndian.PutUint32(buf[offset:], math.Float32bits(v))
		offset += 4
	}
	return offset
}

// PutInt32s writes the values little-endian into buf starting at offset.
func PutInt32s(buf []byte, offset int, values ...int32) int {
	for _, v := range values {
		binary.LittleEndian.PutUint32(buf[offset:], uint32(v))
		offset += 4
	}
	return offset
}

// PutUint32s writes the values little-endian into buf starting at offset.
func PutUint32s(buf []byte, offset int, values ...uint32) int {
	for _, v := range values {
		binary.LittleEndian.PutUint32(buf[offset:], v)
		offset += 4
	}
	return offset
}

// PutUint64s writes the values little-endian into buf starting at offset.
func PutUint64s(buf []byte, offset int, values ...uint64) int {
	for _, v := range values {
		binary.LittleEndian.PutUint64(buf[offset:], v)
		offset += 8
	}
	return offset
}

// Float32At reads a little-endian float32 at offset.
func Float32At(buf []byte, offset int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[offset:]))
}

// ComposeTRS builds a column-major model matrix as T * R * S, the glTF node convention.
//
// Parameters:
//   - translation: the translation vector
//   - rotation: the rotation quaternion (need not be normalized)
//   - scale: the per-axis scale
//
// Returns:
//   - mgl32.Mat4: the composed matrix
func ComposeTRS(translation mgl32.Vec3, rotation mgl32.Quat, scale mgl32.Vec3) mgl32.Mat4 {
	t := mgl32.Translate3D(translation.X(), translation.Y(), translation.Z())
	r := rotation.Normalize().Mat4()
	s := mgl32.Scale3D(scale.X(), scale.Y(), scale.Z())
	return t.Mul4(r).Mul4(s)
}

// PutMat4 writes a column-major matrix into buf starting at offset.
//
// Returns:
//   - int: the offset just past the matrix (offset + 64)
func PutMat4(buf []byte, offset int, m mgl32.Mat4) int {
	return PutFloat32s(buf, offset, m[:]...)
}
