package main

import (
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"go.viam.com/stereocal/calibration"
)

// writeReportPlot draws the reprojection error of every view as a pair of bars, one per camera.
func writeReportPlot(path string, report *calibration.Report) error {
	p := plot.New()
	p.Title.Text = "Reprojection error per view"
	p.X.Label.Text = "view"
	p.Y.Label.Text = "RMS error (px)"

	cam1 := make(plotter.Values, len(report.ViewErrors))
	cam2 := make(plotter.Values, len(report.ViewErrors))
	for i, e := range report.ViewErrors {
		cam1[i], cam2[i] = e[0], e[1]
	}
	width := vg.Points(8)
	for i, values := range []plotter.Values{cam1, cam2} {
		bars, err := plotter.NewBarChart(values, width)
		if err != nil {
			return errors.Wrap(err, "cannot build report chart")
		}
		bars.LineStyle.Width = vg.Length(0)
		bars.Color = plotutil.Color(i)
		bars.Offset = width * vg.Length(2*i-1) / 2
		p.Add(bars)
		p.Legend.Add([]string{"camera 1", "camera 2"}[i], bars)
	}
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "cannot write report %q", path)
	}
	return nil
}
