package encoder

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/timmy/armscan/internal/domain"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// loadImage decodes the file at path.
// Missing and undecodable files both map to domain.ErrInvalidImage.
func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %w", domain.ErrInvalidImage, path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode %s: %w", domain.ErrInvalidImage, path, err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: %s has no pixels", domain.ErrInvalidImage, path)
	}
	return img, nil
}

// squareRGB flattens alpha onto white, center-crops to a square and resizes
// to size x size with bilinear filtering.
func squareRGB(img image.Image, size int) *image.RGBA {
	b := img.Bounds()
	flat := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(flat, flat.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(flat, flat.Bounds(), img, b.Min, draw.Over)

	side := min(b.Dx(), b.Dy())
	x0 := (b.Dx() - side) / 2
	y0 := (b.Dy() - side) / 2
	crop := image.Rect(x0, y0, x0+side, y0+side)

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), flat, crop, draw.Src, nil)
	return dst
}

// chwTensor converts an RGB image to a channel-major float tensor with
// per-channel (v/255 - mean) / std normalisation.
func chwTensor(img *image.RGBA, mean, std []float64) []float32 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	plane := w * h
	out := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := img.PixOffset(x, y)
			px := img.Pix[off : off+3]
			for c := 0; c < 3; c++ {
				v := float64(px[c]) / 255
				out[c*plane+y*w+x] = float32((v - mean[c]) / std[c])
			}
		}
	}
	return out
}

// preprocess runs the full decode, resize and normalise pipeline.
func preprocess(path string, size int, mean, std []float64) ([]float32, error) {
	img, err := loadImage(path)
	if err != nil {
		return nil, err
	}
	return chwTensor(squareRGB(img, size), mean, std), nil
}
