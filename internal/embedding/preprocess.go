package embedding

import (
	"fmt"
	"image"
	"os"

	// Register decoders for the source image formats.
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// CLIP pixel normalization constants (per RGB channel).
var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// LoadImage opens and decodes the image file at path.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// PreprocessImage resizes img to size x size, converts it to a 3-channel RGB
// representation, and returns CHW-ordered float32 pixel values normalized with the
// CLIP mean and standard deviation.
func PreprocessImage(img image.Image, size int) []float32 {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	pixels := make([]float32, 3*size*size)
	plane := size * size
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			offset := dst.PixOffset(x, y)
			pos := y*size + x
			for c := 0; c < 3; c++ {
				v := float32(dst.Pix[offset+c]) / 255.0
				pixels[c*plane+pos] = (v - clipMean[c]) / clipStd[c]
			}
		}
	}
	return pixels
}
