package report

import (
	"bytes"
	"fmt"
	"os"

	mg "github.com/erkkah/margaid"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Plot sizes.
const (
	svgWidth, svgHeight = 1024, 400
	pngWidth, pngHeight = 8 * vg.Inch, 4 * vg.Inch
)

func title(c *Curve) string {
	return fmt.Sprintf("Learning rate = %g", c.LearningRate)
}

// RenderSVG draws cost against epoch.
func RenderSVG(c *Curve) ([]byte, error) {
	if len(c.Costs) == 0 {
		return nil, errors.New("empty learning curve")
	}
	series := mg.NewSeries(mg.Titled("cost"))
	for epoch, cost := range c.Costs {
		series.Add(mg.MakeValue(float64(epoch), cost))
	}

	diagram := mg.New(svgWidth, svgHeight,
		mg.WithAutorange(mg.XAxis, series),
		mg.WithProjection(mg.XAxis, mg.Lin),
		mg.WithAutorange(mg.YAxis, series),
		mg.WithProjection(mg.YAxis, mg.Lin),
		mg.WithInset(70),
		mg.WithPadding(2),
		mg.WithColorScheme(90),
		mg.WithBackgroundColor("#f8f8f8"),
	)
	diagram.Line(series, mg.UsingAxes(mg.XAxis, mg.YAxis), mg.UsingMarker("square"), mg.UsingStrokeWidth(2))
	diagram.Axis(series, mg.XAxis, diagram.ValueTicker('f', 0, 10), false, "Epoch")
	diagram.Axis(series, mg.YAxis, diagram.ValueTicker('g', 3, 10), true, "Cost")
	diagram.Frame()
	diagram.Title(title(c))

	var buf bytes.Buffer
	if err := diagram.Render(&buf); err != nil {
		return nil, errors.Wrap(err, "failed to render learning curve")
	}
	return buf.Bytes(), nil
}

// WriteSVG renders the curve to an SVG file.
func WriteSVG(path string, c *Curve) error {
	svg, err := RenderSVG(c)
	if err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(path, svg, 0o644), "failed to write %q", path)
}

// WritePNG renders the curve to a PNG file.
func WritePNG(path string, c *Curve) error {
	if len(c.Costs) == 0 {
		return errors.New("empty learning curve")
	}
	p := plot.New()
	p.Title.Text = title(c)
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = "Cost"

	points := make(plotter.XYs, len(c.Costs))
	for epoch, cost := range c.Costs {
		points[epoch].X = float64(epoch)
		points[epoch].Y = cost
	}
	line, scatter, err := plotter.NewLinePoints(points)
	if err != nil {
		return errors.Wrap(err, "failed to build learning curve plot")
	}
	p.Add(line, scatter, plotter.NewGrid())
	if err := p.Save(pngWidth, pngHeight, path); err != nil {
		return errors.Wrapf(err, "failed to write %q", path)
	}
	return nil
}
