// Package report computes summary statistics over recorded sessions and
// renders them as PNG charts for offline review.
package report

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/kestrel-robotics/gatekeeper/internal/db"
)

// Summary aggregates one session's recorded decisions.
type Summary struct {
	SessionID   string `json:"session_id"`
	FrameCount  int    `json:"frame_count"`
	FirstFrame  int64  `json:"first_frame"`
	LastFrame   int64  `json:"last_frame"`

	MarkerFrames   int     `json:"marker_frames"`
	ContinueFrames int     `json:"continue_frames"`
	ContinueRatio  float64 `json:"continue_ratio"`
	LongestStopRun int     `json:"longest_stop_run"`

	// Distance stats cover only frames with a valid reading.
	DistanceSamples int     `json:"distance_samples"`
	DistanceMeanCM  float64 `json:"distance_mean_cm"`
	DistanceStdDev  float64 `json:"distance_stddev_cm"`
	DistanceMinCM   float64 `json:"distance_min_cm"`
	DistanceMaxCM   float64 `json:"distance_max_cm"`
	DistanceP50CM   float64 `json:"distance_p50_cm"`
	DistanceP95CM   float64 `json:"distance_p95_cm"`
}

// Summarize computes a Summary over the given frames. An empty input yields a
// zero Summary.
func Summarize(frames []db.FrameRow) Summary {
	var s Summary
	if len(frames) == 0 {
		return s
	}

	s.SessionID = frames[0].SessionID
	s.FrameCount = len(frames)
	s.FirstFrame = frames[0].FrameIndex
	s.LastFrame = frames[len(frames)-1].FrameIndex

	var distances []float64
	stopRun := 0
	for _, f := range frames {
		if f.MarkerDetected {
			s.MarkerFrames++
		}
		if f.MayContinue {
			s.ContinueFrames++
			stopRun = 0
		} else {
			stopRun++
			if stopRun > s.LongestStopRun {
				s.LongestStopRun = stopRun
			}
		}
		if f.DistanceValid {
			distances = append(distances, float64(f.DistanceCM))
		}
	}
	s.ContinueRatio = float64(s.ContinueFrames) / float64(s.FrameCount)

	if len(distances) > 0 {
		s.DistanceSamples = len(distances)
		s.DistanceMeanCM = stat.Mean(distances, nil)
		s.DistanceStdDev = stat.StdDev(distances, nil)

		sorted := append([]float64(nil), distances...)
		sort.Float64s(sorted)
		s.DistanceMinCM = sorted[0]
		s.DistanceMaxCM = sorted[len(sorted)-1]
		s.DistanceP50CM = stat.Quantile(0.5, stat.Empirical, sorted, nil)
		s.DistanceP95CM = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	}

	return s
}
