package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/kestrel-robotics/gatekeeper/internal/db"
)

// RenderSessionPlots writes PNG charts for a session into outputDir:
// distance.png with the filtered distance series and the gate threshold, and
// decisions.png with the marker and continue flags over time.
func RenderSessionPlots(frames []db.FrameRow, thresholdCM int, outputDir string) error {
	if len(frames) == 0 {
		return fmt.Errorf("no frames to plot")
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	if err := renderDistancePlot(frames, thresholdCM, filepath.Join(outputDir, "distance.png")); err != nil {
		return err
	}
	return renderDecisionPlot(frames, filepath.Join(outputDir, "decisions.png"))
}

func renderDistancePlot(frames []db.FrameRow, thresholdCM int, path string) error {
	p := plot.New()
	p.Title.Text = "Subject Distance"
	p.X.Label.Text = "frame"
	p.Y.Label.Text = "distance (cm)"

	pts := make(plotter.XYs, 0, len(frames))
	for _, f := range frames {
		if !f.DistanceValid {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(f.FrameIndex), Y: float64(f.DistanceCM)})
	}

	if len(pts) > 0 {
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("failed to build distance line: %w", err)
		}
		line.Width = vg.Points(1)
		line.Color = color.RGBA{B: 255, A: 255}
		p.Add(line)
		p.Legend.Add("distance", line)
	}

	threshold := plotter.XYs{
		{X: float64(frames[0].FrameIndex), Y: float64(thresholdCM)},
		{X: float64(frames[len(frames)-1].FrameIndex), Y: float64(thresholdCM)},
	}
	thresholdLine, err := plotter.NewLine(threshold)
	if err != nil {
		return fmt.Errorf("failed to build threshold line: %w", err)
	}
	thresholdLine.Width = vg.Points(1)
	thresholdLine.Color = color.RGBA{R: 255, A: 255}
	thresholdLine.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(thresholdLine)
	p.Legend.Add("threshold", thresholdLine)

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

func renderDecisionPlot(frames []db.FrameRow, path string) error {
	p := plot.New()
	p.Title.Text = "Gate Decisions"
	p.X.Label.Text = "frame"
	p.Y.Label.Text = "flag"
	p.Y.Min = -0.1
	p.Y.Max = 2.3

	markerPts := make(plotter.XYs, 0, len(frames))
	continuePts := make(plotter.XYs, 0, len(frames))
	for _, f := range frames {
		markerPts = append(markerPts, plotter.XY{X: float64(f.FrameIndex), Y: boolOffset(f.MarkerDetected, 1.2)})
		continuePts = append(continuePts, plotter.XY{X: float64(f.FrameIndex), Y: boolOffset(f.MayContinue, 0)})
	}

	markerLine, err := plotter.NewLine(markerPts)
	if err != nil {
		return fmt.Errorf("failed to build marker line: %w", err)
	}
	markerLine.Width = vg.Points(1)
	markerLine.Color = color.RGBA{G: 180, A: 255}
	p.Add(markerLine)
	p.Legend.Add("marker (offset)", markerLine)

	continueLine, err := plotter.NewLine(continuePts)
	if err != nil {
		return fmt.Errorf("failed to build continue line: %w", err)
	}
	continueLine.Width = vg.Points(1)
	continueLine.Color = color.RGBA{B: 255, A: 255}
	p.Add(continueLine)
	p.Legend.Add("may_continue", continueLine)

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// boolOffset maps a flag to 0/1 shifted by offset so two binary series do not
// overlap on the same axes.
func boolOffset(b bool, offset float64) float64 {
	if b {
		return offset + 1
	}
	return offset
}
