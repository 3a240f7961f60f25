package detector

import (
	"fmt"
	"image"

	"github.com/nfnt/resize"
)

// prepareInput resizes the frame to the model's square input and fills
// dst with normalized CHW RGB values.
func prepareInput(img image.Image, dst []float32, size int) error {
	plane := size * size
	if len(dst) != 3*plane {
		return fmt.Errorf("input buffer size %d, want %d", len(dst), 3*plane)
	}

	resized := resize.Resize(uint(size), uint(size), img, resize.Lanczos3)

	idx := 0
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			dst[idx] = float32(r>>8) / 255.0
			dst[idx+plane] = float32(g>>8) / 255.0
			dst[idx+2*plane] = float32(b>>8) / 255.0
			idx++
		}
	}
	return nil
}
