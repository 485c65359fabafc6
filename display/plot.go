package display

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.jpl.nasa.gov/bdube/bullseye/profile"
)

var (
	measuredColor  = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	referenceColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// ProfilePlot makes a plot of one projection and its Gaussian reference
func ProfilePlot(p profile.Projection) (*plot.Plot, error) {
	pl := plot.New()
	pl.Title.Text = p.Name
	pl.X.Label.Text = "position (µm)"
	pl.Y.Label.Text = "intensity"
	if len(p.Coord) == 0 {
		return pl, nil
	}

	measured := make(plotter.XYs, len(p.Coord))
	reference := make(plotter.XYs, len(p.Coord))
	for i, x := range p.Coord {
		measured[i] = plotter.XY{X: x, Y: p.Measured[i]}
		reference[i] = plotter.XY{X: x, Y: p.Reference[i]}
	}
	ml, err := plotter.NewLine(measured)
	if err != nil {
		return nil, fmt.Errorf("display: %s measured: %w", p.Name, err)
	}
	ml.Width = vg.Points(1)
	ml.Color = measuredColor

	rl, err := plotter.NewLine(reference)
	if err != nil {
		return nil, fmt.Errorf("display: %s reference: %w", p.Name, err)
	}
	rl.Width = vg.Points(1)
	rl.Color = referenceColor
	rl.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	pl.Add(plotter.NewGrid(), ml, rl)
	pl.Legend.Add("measured", ml)
	pl.Legend.Add("gaussian", rl)
	pl.Legend.Top = true
	return pl, nil
}

// WriteProfiles draws the four projections of a set on a 2x2 grid and
// writes it to w as a PNG
func WriteProfiles(w io.Writer, s profile.Set, width, height vg.Length) error {
	all := s.All()
	plots := make([][]*plot.Plot, 2)
	for i := range plots {
		plots[i] = make([]*plot.Plot, 2)
		for j := range plots[i] {
			p, err := ProfilePlot(all[2*i+j])
			if err != nil {
				return err
			}
			plots[i][j] = p
		}
	}

	img := vgimg.New(width, height)
	dc := draw.New(img)
	t := draw.Tiles{
		Rows:      2,
		Cols:      2,
		PadX:      vg.Millimeter,
		PadY:      vg.Millimeter,
		PadTop:    vg.Points(2),
		PadBottom: vg.Points(2),
		PadLeft:   vg.Points(2),
		PadRight:  vg.Points(2),
	}
	canvases := plot.Align(plots, t, dc)
	for i := range plots {
		for j := range plots[i] {
			plots[i][j].Draw(canvases[i][j])
		}
	}
	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(w); err != nil {
		return fmt.Errorf("display: writing profiles: %w", err)
	}
	return nil
}
