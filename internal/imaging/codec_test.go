package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wondr/rembg/internal/apperrors"
	"github.com/wondr/rembg/internal/config"
	"golang.org/x/image/bmp"
)

func testCodec() *Codec {
	return NewCodec(config.ImageConfig{Compression: "best", MaxPixels: 40_000_000})
}

func opaquePNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestDecode_OpaquePNG(t *testing.T) {
	img, err := testCodec().Decode(opaquePNG(t, 100, 100))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 100), img.Bounds())
	assert.Equal(t, color.NRGBA{R: 10, G: 20, B: 200, A: 255}, img.NRGBAAt(10, 20))
}

func TestDecode_Idempotent(t *testing.T) {
	payload := opaquePNG(t, 32, 16)
	c := testCodec()

	first, err := c.Decode(payload)
	require.NoError(t, err)
	second, err := c.Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, first.Pix, second.Pix)
}

func TestDecode_DataURLMatchesBareBase64(t *testing.T) {
	payload := opaquePNG(t, 20, 20)
	c := testCodec()

	bare, err := c.Decode(payload)
	require.NoError(t, err)
	prefixed, err := c.Decode("data:image/png;base64," + payload)
	require.NoError(t, err)
	assert.Equal(t, bare.Pix, prefixed.Pix)
}

func TestDecode_ToleratesWhitespaceAndMissingPadding(t *testing.T) {
	payload := opaquePNG(t, 7, 3)
	wrapped := strings.TrimRight(payload[:10]+"\n"+payload[10:], "=")

	img, err := testCodec().Decode(wrapped)
	require.NoError(t, err)
	assert.Equal(t, 7, img.Bounds().Dx())
}

func TestDecode_DropsAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 0, B: 0, A: 0})
	src.SetNRGBA(1, 0, color.NRGBA{R: 0, G: 128, B: 0, A: 64})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	img, err := testCodec().Decode(base64.StdEncoding.EncodeToString(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 255, G: 0, B: 0, A: 255}, img.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{R: 0, G: 128, B: 0, A: 255}, img.NRGBAAt(1, 0))
}

func TestDecode_GrayAndPalettedBecomeRGB(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 1, 1))
	gray.SetGray(0, 0, color.Gray{Y: 77})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, gray))

	img, err := testCodec().Decode(base64.StdEncoding.EncodeToString(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 77, G: 77, B: 77, A: 255}, img.NRGBAAt(0, 0))

	pal := image.NewPaletted(image.Rect(0, 0, 1, 1), color.Palette{color.RGBA{R: 1, G: 2, B: 3, A: 255}})
	buf.Reset()
	require.NoError(t, png.Encode(&buf, pal))

	img, err = testCodec().Decode(base64.StdEncoding.EncodeToString(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 1, G: 2, B: 3, A: 255}, img.NRGBAAt(0, 0))

	// transparent palette entry keeps its stored color
	pal = image.NewPaletted(image.Rect(0, 0, 2, 1), color.Palette{
		color.NRGBA{R: 200, G: 10, B: 10, A: 0},
		color.NRGBA{R: 0, G: 0, B: 255, A: 255},
	})
	pal.SetColorIndex(1, 0, 1)
	buf.Reset()
	require.NoError(t, png.Encode(&buf, pal))

	img, err = testCodec().Decode(base64.StdEncoding.EncodeToString(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 200, G: 10, B: 10, A: 255}, img.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{R: 0, G: 0, B: 255, A: 255}, img.NRGBAAt(1, 0))
}

func TestToRGB_StraightAlphaSources(t *testing.T) {
	wide := image.NewNRGBA64(image.Rect(0, 0, 1, 1))
	wide.SetNRGBA64(0, 0, color.NRGBA64{R: 0x1234, G: 0xab00, B: 0xff00, A: 0})

	assert.Equal(t, color.NRGBA{R: 0x12, G: 0xab, B: 0xff, A: 255}, toRGB(wide).NRGBAAt(0, 0))

	half := image.NewRGBA(image.Rect(0, 0, 1, 1))
	half.SetRGBA(0, 0, color.RGBA{R: 50, G: 0, B: 0, A: 128})

	assert.Equal(t, uint8(255), toRGB(half).NRGBAAt(0, 0).A)
	assert.InDelta(t, 99, int(toRGB(half).NRGBAAt(0, 0).R), 1)
}

func TestDecode_OtherFormats(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 8, 6))

	var jpg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, src, nil))
	var bm bytes.Buffer
	require.NoError(t, bmp.Encode(&bm, src))

	for name, data := range map[string][]byte{"jpeg": jpg.Bytes(), "bmp": bm.Bytes()} {
		t.Run(name, func(t *testing.T) {
			img, err := testCodec().Decode(base64.StdEncoding.EncodeToString(data))
			require.NoError(t, err)
			assert.Equal(t, image.Rect(0, 0, 8, 6), img.Bounds())
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		code    apperrors.Code
	}{
		{"empty", "", apperrors.BadBase64},
		{"prefix only", "data:image/png;base64,", apperrors.BadBase64},
		{"corrupt base64", "!!!not base64!!!", apperrors.BadBase64},
		{"not an image", base64.StdEncoding.EncodeToString([]byte("hello world")), apperrors.UnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testCodec().Decode(tt.payload)
			assert.Equal(t, tt.code, apperrors.CodeOf(err))
			assert.Equal(t, apperrors.KindCodec, apperrors.KindOf(err))
		})
	}
}

func TestDecode_TooLarge(t *testing.T) {
	c := NewCodec(config.ImageConfig{Compression: "speed", MaxPixels: 100})
	_, err := c.Decode(opaquePNG(t, 11, 10))
	assert.Equal(t, apperrors.ImageTooLarge, apperrors.CodeOf(err))
}

func TestEncode_RoundTrip(t *testing.T) {
	c := testCodec()
	src, err := c.Decode(opaquePNG(t, 100, 100))
	require.NoError(t, err)

	out, err := c.Encode(src)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, DataURLPrefix))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(out, DataURLPrefix))
	require.NoError(t, err)
	decoded, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, src.Bounds(), decoded.Bounds())

	again, err := c.Decode(out)
	require.NoError(t, err)
	assert.Equal(t, src.Pix, again.Pix)
}

func TestEncode_Nil(t *testing.T) {
	_, err := testCodec().Encode(nil)
	assert.Equal(t, apperrors.EncodeFailed, apperrors.CodeOf(err))
}
