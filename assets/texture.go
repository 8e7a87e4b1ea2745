package assets

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/cockroachdb/errors"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Texture is a decoded image as tightly packed 8-bit RGBA rows, top row first.
type Texture struct {
	Width  int
	Height int
	Pixels []byte
}

func (t *Texture) SizeBytes() int {
	return t.Width * t.Height * 4
}

// DecodeTexture decodes any registered image format (PNG, JPEG, BMP, TIFF,
// WebP) into RGBA8.
func DecodeTexture(r io.Reader) (*Texture, error) {
	decodedImage, format, err := image.Decode(r)
	if err != nil {
		return nil, errors.Wrap(err, "decode texture")
	}

	size := decodedImage.Bounds().Size()
	if size.X == 0 || size.Y == 0 {
		return nil, errors.Newf("decode texture: %s image has zero extent %dx%d", format, size.X, size.Y)
	}

	rgba := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	draw.Draw(rgba, rgba.Bounds(), decodedImage, decodedImage.Bounds().Min, draw.Src)

	return &Texture{
		Width:  size.X,
		Height: size.Y,
		Pixels: rgba.Pix,
	}, nil
}
