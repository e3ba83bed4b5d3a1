package render

import (
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/apexlog/trackmap-service-go/pkg/model"
)

//nolint:gochecknoglobals // palette
var sectionColors = map[model.SectionType]color.Color{
	model.SectionStraight:     color.RGBA{R: 0x9e, G: 0x9e, B: 0x9e, A: 0xff},
	model.SectionSlightCorner: color.RGBA{R: 0xff, G: 0xa7, B: 0x26, A: 0xff},
	model.SectionSharpCorner:  color.RGBA{R: 0xff, G: 0x52, B: 0x52, A: 0xff},
}

// renderPNG draws the racing line colored by section type and marks the
// detected corners.
//
//nolint:cyclop // by design
func renderPNG(trackMap *model.TrackMap, path string) error {
	p := plot.New()
	p.Title.Text = trackMap.TrackName
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	rl := trackMap.RacingLine
	legendDone := make(map[model.SectionType]bool)
	for _, section := range trackMap.Sections {
		pts := make(plotter.XYs, 0, section.EndIndex-section.StartIndex+1)
		for i := section.StartIndex; i <= section.EndIndex && i < len(rl); i++ {
			pts = append(pts, plotter.XY{X: rl[i].X, Y: rl[i].Y})
		}
		if len(pts) < 2 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = sectionColors[section.Type]
		line.Width = vg.Points(2)
		p.Add(line)
		if !legendDone[section.Type] {
			p.Legend.Add(string(section.Type), line)
			legendDone[section.Type] = true
		}
	}

	if len(trackMap.Features) > 0 {
		pts := make(plotter.XYs, 0, len(trackMap.Features))
		for _, feature := range trackMap.Features {
			pts = append(pts, plotter.XY{X: feature.Position.X, Y: feature.Position.Y})
		}
		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return err
		}
		scatter.GlyphStyle.Color = color.RGBA{R: 0xd3, G: 0x2f, B: 0x2f, A: 0xff}
		scatter.GlyphStyle.Radius = vg.Points(4)
		p.Add(scatter)
		p.Legend.Add("corners", scatter)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	return p.Save(10*vg.Inch, 10*vg.Inch, path)
}
