package detector

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FelipeCardozo0/PokeBowl-Inventory/pkg/types"
)

// rawOutput builds a [4+classes][anchors] tensor with every score zero.
func rawOutput(anchors, classes int) []float32 {
	return make([]float32, (4+classes)*anchors)
}

// setAnchor writes one candidate box into the tensor.
func setAnchor(out []float32, anchors, i int, xc, yc, w, h float32, classID int, score float32) {
	out[i] = xc
	out[anchors+i] = yc
	out[2*anchors+i] = w
	out[3*anchors+i] = h
	out[(4+classID)*anchors+i] = score
}

func TestDecodeOutputsScalesToFrame(t *testing.T) {
	classes := []string{"salmon_poke", "tuna_poke"}
	anchors := 4
	out := rawOutput(anchors, len(classes))
	// A 100x100 box centered at (320, 320) in 640-space.
	setAnchor(out, anchors, 0, 320, 320, 100, 100, 1, 0.9)

	dets := decodeOutputs(out, anchors, classes, 0.25, 0.45, 1280, 720, 640)
	require.Len(t, dets, 1)

	d := dets[0]
	assert.Equal(t, "tuna_poke", d.ClassName)
	assert.Equal(t, 1, d.ClassID)
	assert.InDelta(t, 0.9, d.Confidence, 1e-6)
	// x scales by 2, y by 720/640.
	assert.Equal(t, 540, d.BBox.X1)
	assert.Equal(t, 740, d.BBox.X2)
	assert.Equal(t, 303, d.BBox.Y1)
	assert.Equal(t, 416, d.BBox.Y2)
}

func TestDecodeOutputsFiltersLowConfidence(t *testing.T) {
	classes := []string{"salmon_poke"}
	anchors := 2
	out := rawOutput(anchors, len(classes))
	setAnchor(out, anchors, 0, 100, 100, 50, 50, 0, 0.2)
	setAnchor(out, anchors, 1, 300, 300, 50, 50, 0, 0.6)

	dets := decodeOutputs(out, anchors, classes, 0.25, 0.45, 640, 640, 640)
	require.Len(t, dets, 1)
	assert.InDelta(t, 0.6, dets[0].Confidence, 1e-6)
}

func TestDecodeOutputsClampsToFrame(t *testing.T) {
	classes := []string{"salmon_poke"}
	anchors := 1
	out := rawOutput(anchors, len(classes))
	// Box hangs off the top-left corner.
	setAnchor(out, anchors, 0, 10, 10, 100, 100, 0, 0.8)

	dets := decodeOutputs(out, anchors, classes, 0.25, 0.45, 640, 640, 640)
	require.Len(t, dets, 1)
	assert.Equal(t, 0, dets[0].BBox.X1)
	assert.Equal(t, 0, dets[0].BBox.Y1)
	assert.Equal(t, 60, dets[0].BBox.X2)
	assert.Equal(t, 60, dets[0].BBox.Y2)
}

func TestDecodeOutputsShortTensor(t *testing.T) {
	dets := decodeOutputs(make([]float32, 3), 4, []string{"salmon_poke"}, 0.25, 0.45, 640, 640, 640)
	assert.Nil(t, dets)
}

func TestNMSSuppressesOverlapsWithinClass(t *testing.T) {
	box := types.BoundingBox{X1: 100, Y1: 100, X2: 200, Y2: 200}
	shifted := types.BoundingBox{X1: 110, Y1: 100, X2: 210, Y2: 200}
	far := types.BoundingBox{X1: 400, Y1: 400, X2: 500, Y2: 500}

	dets := []types.Detection{
		{ClassID: 0, Confidence: 0.7, BBox: shifted},
		{ClassID: 0, Confidence: 0.9, BBox: box},
		{ClassID: 0, Confidence: 0.8, BBox: far},
	}

	kept := applyNMS(dets, 0.45)
	require.Len(t, kept, 2)
	// Highest confidence wins; the heavy overlap is suppressed.
	assert.InDelta(t, 0.9, kept[0].Confidence, 1e-6)
	assert.InDelta(t, 0.8, kept[1].Confidence, 1e-6)
}

func TestNMSKeepsOverlapsAcrossClasses(t *testing.T) {
	box := types.BoundingBox{X1: 100, Y1: 100, X2: 200, Y2: 200}

	dets := []types.Detection{
		{ClassID: 0, Confidence: 0.9, BBox: box},
		{ClassID: 1, Confidence: 0.8, BBox: box},
	}

	kept := applyNMS(dets, 0.45)
	assert.Len(t, kept, 2)
}

func TestIoU(t *testing.T) {
	a := types.BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100}

	assert.InDelta(t, 1.0, iou(a, a), 1e-9)
	assert.Zero(t, iou(a, types.BoundingBox{X1: 200, Y1: 200, X2: 300, Y2: 300}))

	// Half-width overlap: 50*100 over (100*100)*2 - 5000.
	b := types.BoundingBox{X1: 50, Y1: 0, X2: 150, Y2: 100}
	assert.InDelta(t, 5000.0/15000.0, iou(a, b), 1e-9)
}

func TestClassifyRunError(t *testing.T) {
	assert.ErrorIs(t, classifyRunError(errors.New("failed to allocate memory")), ErrResourceExhausted)
	assert.ErrorIs(t, classifyRunError(errors.New("resource exhausted on device")), ErrResourceExhausted)
	assert.ErrorIs(t, classifyRunError(errors.New("invalid dimensions")), ErrInference)
}
