package detector

import (
	"sort"

	"github.com/FelipeCardozo0/PokeBowl-Inventory/pkg/types"
)

// decodeOutputs converts raw model output to detections in original
// frame coordinates. Layout is [4+classes][anchors]: center x, center
// y, width, height, then one row of scores per class.
func decodeOutputs(out []float32, anchors int, classes []string,
	confThreshold, iouThreshold float64, frameW, frameH, inputSize int) []types.Detection {

	if len(out) < (4+len(classes))*anchors {
		return nil
	}

	xScale := float64(frameW) / float64(inputSize)
	yScale := float64(frameH) / float64(inputSize)

	var candidates []types.Detection
	for i := 0; i < anchors; i++ {
		classID := -1
		best := confThreshold
		for c := range classes {
			if score := float64(out[(4+c)*anchors+i]); score >= best {
				best = score
				classID = c
			}
		}
		if classID < 0 {
			continue
		}

		xc := float64(out[i])
		yc := float64(out[anchors+i])
		w := float64(out[2*anchors+i])
		h := float64(out[3*anchors+i])

		candidates = append(candidates, types.Detection{
			ClassID:    classID,
			ClassName:  classes[classID],
			Confidence: best,
			BBox: types.BoundingBox{
				X1: clamp(int((xc-w/2)*xScale), 0, frameW),
				Y1: clamp(int((yc-h/2)*yScale), 0, frameH),
				X2: clamp(int((xc+w/2)*xScale), 0, frameW),
				Y2: clamp(int((yc+h/2)*yScale), 0, frameH),
			},
		})
	}

	return applyNMS(candidates, iouThreshold)
}

// applyNMS greedily suppresses overlapping boxes of the same class.
func applyNMS(dets []types.Detection, iouThreshold float64) []types.Detection {
	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].Confidence > dets[j].Confidence
	})

	var kept []types.Detection
	suppressed := make([]bool, len(dets))
	for i := range dets {
		if suppressed[i] {
			continue
		}
		kept = append(kept, dets[i])
		for j := i + 1; j < len(dets); j++ {
			if suppressed[j] || dets[j].ClassID != dets[i].ClassID {
				continue
			}
			if iou(dets[i].BBox, dets[j].BBox) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}

// iou computes intersection over union of two boxes.
func iou(a, b types.BoundingBox) float64 {
	ix1 := max(a.X1, b.X1)
	iy1 := max(a.Y1, b.Y1)
	ix2 := min(a.X2, b.X2)
	iy2 := min(a.Y2, b.Y2)

	iw := ix2 - ix1
	ih := iy2 - iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}

	inter := float64(iw * ih)
	areaA := float64((a.X2 - a.X1) * (a.Y2 - a.Y1))
	areaB := float64((b.X2 - b.X1) * (b.Y2 - b.Y1))
	union := areaA + areaB - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
