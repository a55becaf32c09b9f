// Package common holds plain helper types and functions shared across the engine: byte packing for
// GPU uploads, transform helpers and image decoding.
package common

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// TextureStagingData holds RGBA8 pixel data pending GPU upload.
type TextureStagingData struct {
	// Pixels is tightly packed RGBA, 4 bytes per pixel, row-major.
	Pixels []byte
	// Width is the texture width in pixels.
	Width uint32
	// Height is the texture height in pixels.
	Height uint32
}

// DecodeRGBA decodes any registered image format (png, jpeg, bmp, tiff, webp) and converts it
// to RGBA8. Images without an alpha channel come back fully opaque.
//
// Parameters:
//   - r: the encoded image stream
//
// Returns:
//   - TextureStagingData: the decoded pixels
//   - string: the format name reported by the decoder
//   - error: error if the stream is not a recognised image
func DecodeRGBA(r io.Reader) (TextureStagingData, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return TextureStagingData{}, "", fmt.Errorf("failed to decode image: %w", err)
	}
	rgba := ToRGBA(img)
	return TextureStagingData{
		Pixels: rgba.Pix,
		Width:  uint32(rgba.Rect.Dx()),
		Height: uint32(rgba.Rect.Dy()),
	}, format, nil
}

// DecodeRGBABytes is DecodeRGBA over an in-memory buffer.
func DecodeRGBABytes(data []byte) (TextureStagingData, string, error) {
	return DecodeRGBA(bytes.NewReader(data))
}

// DecodeRGBAFile opens and decodes the image file at path.
func DecodeRGBAFile(path string) (TextureStagingData, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return TextureStagingData{}, "", fmt.Errorf("failed to open image %s: %w", path, err)
	}
	defer f.Close()
	return DecodeRGBA(f)
}

// ToRGBA returns img as a zero-origin *image.RGBA, converting when needed.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) && rgba.Stride == rgba.Rect.Dx()*4 {
		return rgba
	}
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Rect, img, bounds.Min, draw.Src)
	return rgba
}

// Thumbnail scales src so that its longest side is maxSize pixels, keeping the aspect ratio.
// Images already within maxSize are returned unchanged.
//
// Parameters:
//   - src: the source image
//   - maxSize: the longest side of the result in pixels (must be > 0)
//
// Returns:
//   - *image.RGBA: the scaled image
func Thumbnail(src image.Image, maxSize int) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSize <= 0 || (w <= maxSize && h <= maxSize) {
		return ToRGBA(src)
	}
	if w >= h {
		h = max(1, h*maxSize/w)
		w = maxSize
	} else {
		w = max(1, w*maxSize/h)
		h = maxSize
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Rect, src, b, xdraw.Src, nil)
	return dst
}
