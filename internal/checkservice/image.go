package checkservice

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const dataURLPrefix = "data:image/"

var errInvalidFormat = errors.New("Invalid image format")

// ImageOptions controls how uploaded screenshots are normalized before they
// reach the model.
type ImageOptions struct {
	MaxBytes int
	Width    int
	Height   int
	Quality  int
}

func DefaultImageOptions() ImageOptions {
	return ImageOptions{MaxBytes: 20 * 1024 * 1024, Width: 800, Height: 600, Quality: 85}
}

// ParseDataURL checks the size limit against the raw data URL and returns the
// decoded payload.
func ParseDataURL(dataURL string, maxBytes int) ([]byte, error) {
	if maxBytes > 0 && len(dataURL) > maxBytes {
		return nil, fmt.Errorf("Image too large: %d bytes > %d bytes", len(dataURL), maxBytes)
	}
	if !strings.HasPrefix(dataURL, dataURLPrefix) {
		return nil, errInvalidFormat
	}
	_, payload, ok := strings.Cut(dataURL, ",")
	if !ok || payload == "" {
		return nil, errInvalidFormat
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	return raw, nil
}

// Compress decodes raw, scales it to the configured size and re-encodes it as
// JPEG on an opaque white background.
func Compress(raw []byte, opts ImageOptions) ([]byte, error) {
	src, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("encode %s as jpeg: %w", format, err)
	}
	return buf.Bytes(), nil
}

// JPEGDataURL wraps compressed bytes for the chat completions image part.
func JPEGDataURL(b []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(b)
}
