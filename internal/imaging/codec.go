// Package imaging converts between the base64 payloads carried in requests
// and the in-memory pixel buffers handed to the transform engine.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"
	"unicode"

	// Decoders registered with image.Decode
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/wondr/rembg/internal/apperrors"
	"github.com/wondr/rembg/internal/config"
)

// DataURLPrefix is prepended to every encoded output
const DataURLPrefix = "data:image/png;base64,"

var compressionLevels = map[string]png.CompressionLevel{
	"best":    png.BestCompression,
	"default": png.DefaultCompression,
	"speed":   png.BestSpeed,
	"none":    png.NoCompression,
}

// Codec is immutable after construction and safe for concurrent use.
type Codec struct {
	encoder   png.Encoder
	maxPixels int
}

func NewCodec(cfg config.ImageConfig) *Codec {
	level, ok := compressionLevels[cfg.Compression]
	if !ok {
		level = png.BestCompression
	}
	return &Codec{
		encoder:   png.Encoder{CompressionLevel: level},
		maxPixels: cfg.MaxPixels,
	}
}

// Decode accepts bare base64 or a data URL and returns an opaque RGB buffer.
// Alpha is discarded, not composited.
func (c *Codec) Decode(payload string) (*image.NRGBA, error) {
	raw, err := decodeBase64(payload)
	if err != nil {
		return nil, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, apperrors.New(apperrors.UnsupportedFormat, "Invalid image data", err)
	}
	if c.maxPixels > 0 && cfg.Width*cfg.Height > c.maxPixels {
		return nil, apperrors.Newf(apperrors.ImageTooLarge, "image is %dx%d, limit is %d pixels", cfg.Width, cfg.Height, c.maxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, apperrors.New(apperrors.UnsupportedFormat, "Invalid image data", err)
	}
	return toRGB(img), nil
}

// Encode writes img as PNG and returns it as a data URL
func (c *Codec) Encode(img image.Image) (string, error) {
	if img == nil {
		return "", apperrors.New(apperrors.EncodeFailed, "no image to encode", nil)
	}

	var buf bytes.Buffer
	if err := c.encoder.Encode(&buf, img); err != nil {
		return "", apperrors.New(apperrors.EncodeFailed, "failed to encode output image", err)
	}
	return DataURLPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func decodeBase64(payload string) ([]byte, error) {
	if i := strings.IndexByte(payload, ','); i >= 0 {
		payload = payload[i+1:]
	}
	payload = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, payload)
	payload = strings.TrimRight(payload, "=")

	if payload == "" {
		return nil, apperrors.New(apperrors.BadBase64, "Invalid image data", errors.New("empty payload"))
	}
	raw, err := base64.RawStdEncoding.DecodeString(payload)
	if err != nil {
		return nil, apperrors.New(apperrors.BadBase64, "Invalid image data", err)
	}
	return raw, nil
}

func toRGB(src image.Image) *image.NRGBA {
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	switch s := src.(type) {
	case *image.NRGBA:
		for y := 0; y < b.Dy(); y++ {
			srcRow := s.Pix[s.PixOffset(b.Min.X, b.Min.Y+y):]
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+4*b.Dx()], srcRow[:4*b.Dx()])
		}
	case *image.Gray, *image.Gray16, *image.YCbCr, *image.CMYK:
		// no alpha channel
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	default:
		// keep the stored color of transparent pixels
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				dst.SetNRGBA(x, y, straightColor(src.At(b.Min.X+x, b.Min.Y+y)))
			}
		}
	}

	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// straightColor returns c without alpha premultiplication. Colors that only
// expose premultiplied values lose the RGB of fully transparent pixels.
func straightColor(c color.Color) color.NRGBA {
	switch v := c.(type) {
	case color.NRGBA:
		return v
	case color.NRGBA64:
		return color.NRGBA{R: uint8(v.R >> 8), G: uint8(v.G >> 8), B: uint8(v.B >> 8), A: uint8(v.A >> 8)}
	default:
		return color.NRGBAModel.Convert(c).(color.NRGBA)
	}
}
