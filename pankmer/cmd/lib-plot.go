// Copyright © 2023-2024 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package cmd

import (
	"image/color"

	"github.com/shenwei356/PanKmer/pankmer/cmd/histogram"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// the x range of the plot is limited to [1, plotMaxX*peak].
var plotMaxX = 4

// plotHistogram plots the raw and smoothed histograms, with the peak marked.
func plotHistogram(h histogram.Histogram, peak uint64, title string, file string) error {
	n := h.MaxCount()
	if peak > 0 && int(peak)*plotMaxX < n {
		n = int(peak) * plotMaxX
	}
	smoothed := histogram.Smooth(h)

	raw := make(plotter.XYs, 0, n)
	smooth := make(plotter.XYs, 0, n)
	for i := 1; i <= n; i++ {
		raw = append(raw, plotter.XY{X: float64(i), Y: float64(h[i])})
		smooth = append(smooth, plotter.XY{X: float64(i), Y: smoothed[i]})
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "k-mer abundance"
	p.Y.Label.Text = "frequency"
	p.Add(plotter.NewGrid())

	lRaw, err := plotter.NewLine(raw)
	if err != nil {
		return err
	}
	lRaw.LineStyle.Width = vg.Points(1)
	lRaw.LineStyle.Color = color.RGBA{R: 150, G: 150, B: 150, A: 255}

	lSmooth, err := plotter.NewLine(smooth)
	if err != nil {
		return err
	}
	lSmooth.LineStyle.Width = vg.Points(1.5)
	lSmooth.LineStyle.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}

	p.Add(lRaw, lSmooth)
	p.Legend.Add("raw", lRaw)
	p.Legend.Add("smoothed", lSmooth)

	if peak > 0 && int(peak) <= n {
		pt, err := plotter.NewScatter(plotter.XYs{{X: float64(peak), Y: smoothed[peak]}})
		if err != nil {
			return err
		}
		pt.GlyphStyle.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
		pt.GlyphStyle.Radius = vg.Points(3)
		p.Add(pt)
		p.Legend.Add("peak", pt)
	}
	p.Legend.Top = true

	return p.Save(6*vg.Inch, 4*vg.Inch, file)
}
