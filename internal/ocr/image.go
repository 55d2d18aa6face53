package ocr

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"math"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// formats tesseract (leptonica) reads without conversion.
var nativeFormats = map[string]bool{
	"png":  true,
	"jpeg": true,
	"tiff": true,
	"bmp":  true,
}

// fitPixels scales img down, keeping aspect ratio, so it holds at most limit pixels.
func fitPixels(img image.Image, limit int) image.Image {
	b := img.Bounds()
	px := b.Dx() * b.Dy()
	if limit <= 0 || px <= limit {
		return img
	}
	f := math.Sqrt(float64(limit) / float64(px))
	w := max(1, int(float64(b.Dx())*f))
	h := max(1, int(float64(b.Dy())*f))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("png encode: %w", err)
	}
	return buf.Bytes(), nil
}

// prepareImage returns bytes tesseract can read directly. Formats it cannot
// read and images above the pixel ceiling are re-encoded as PNG. Undecodable
// input is passed through untouched.
func prepareImage(data []byte, maxPixels int) ([]byte, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return data, "", err
	}
	if nativeFormats[format] && (maxPixels <= 0 || cfg.Width*cfg.Height <= maxPixels) {
		return data, format, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data, format, err
	}
	out, err := encodePNG(fitPixels(img, maxPixels))
	if err != nil {
		return data, format, err
	}
	return out, format, nil
}

// bitmapBytes estimates the memory an RGBA render of bound at dpi holds.
func bitmapBytes(bound image.Rectangle, dpi float64) int64 {
	scale := dpi / 72
	w := int64(math.Ceil(float64(bound.Dx()) * scale))
	h := int64(math.Ceil(float64(bound.Dy()) * scale))
	return w * h * 4
}
