package detector

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/FelipeCardozo0/PokeBowl-Inventory/pkg/types"
)

var boxColors = []color.RGBA{
	{R: 0, G: 200, B: 80, A: 255},
	{R: 255, G: 160, B: 0, A: 255},
	{R: 80, G: 140, B: 255, A: 255},
	{R: 235, G: 80, B: 120, A: 255},
	{R: 180, G: 100, B: 240, A: 255},
	{R: 0, G: 190, B: 190, A: 255},
}

// Annotate draws boxes and class/confidence labels onto the frame.
func Annotate(frame *types.Frame, ds types.DetectionSet) {
	if frame.Mat == nil {
		return
	}

	for _, det := range ds.Detections {
		clr := boxColors[det.ClassID%len(boxColors)]
		rect := image.Rect(det.BBox.X1, det.BBox.Y1, det.BBox.X2, det.BBox.Y2)
		gocv.Rectangle(frame.Mat, rect, clr, 2)

		label := fmt.Sprintf("%s %.2f", det.ClassName, det.Confidence)
		org := image.Pt(det.BBox.X1, det.BBox.Y1-6)
		if org.Y < 12 {
			org.Y = det.BBox.Y2 + 16
		}
		gocv.PutText(frame.Mat, label, org, gocv.FontHersheySimplex, 0.5, clr, 1)
	}

	if frame.Stale {
		gocv.PutText(frame.Mat, "STALE", image.Pt(10, 24),
			gocv.FontHersheySimplex, 0.7, color.RGBA{R: 255, G: 60, B: 60, A: 255}, 2)
	}
}

// EncodeJPEG encodes the frame at the given quality.
func EncodeJPEG(frame *types.Frame, quality int) ([]byte, error) {
	if frame.Mat == nil {
		return nil, fmt.Errorf("frame has no pixel data")
	}
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, *frame.Mat,
		[]int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	defer buf.Close()

	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())
	return data, nil
}

// Renderer turns a frame plus its detections into a broadcast JPEG.
type Renderer struct {
	Quality int
}

// Render annotates the frame in place and encodes it.
func (r Renderer) Render(frame *types.Frame, ds types.DetectionSet) ([]byte, error) {
	quality := r.Quality
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	Annotate(frame, ds)
	return EncodeJPEG(frame, quality)
}
