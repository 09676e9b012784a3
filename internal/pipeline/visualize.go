package pipeline

import (
	"image"
	"image/color"

	"github.com/MeKo-Tech/ocrlite/internal/detector"
	"github.com/MeKo-Tech/ocrlite/internal/utils"
)

// annotate draws the boxes, still in padded coordinates, on a copy of padded
// and crops the copy back to the original image area.
func annotate(padded *image.NRGBA, boxes []detector.TextBox, size image.Point, pad int, c color.NRGBA) image.Image {
	out := utils.Clone(padded)
	pb := padded.Bounds()
	thickness := utils.LineThickness(pb.Dx(), pb.Dy())
	for _, b := range boxes {
		utils.DrawQuad(out, b.Polygon(), c, thickness)
	}
	if pad <= 0 {
		return out
	}
	return utils.Crop(out, image.Rectangle{Min: image.Pt(pad, pad), Max: image.Pt(pad, pad).Add(size)})
}
