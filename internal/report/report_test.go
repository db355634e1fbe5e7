package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-robotics/gatekeeper/internal/db"
)

func sampleFrames() []db.FrameRow {
	return []db.FrameRow{
		{SessionID: "s1", FrameIndex: 1, MarkerDetected: true, MayContinue: true, DistanceCM: 100, DistanceValid: true},
		{SessionID: "s1", FrameIndex: 2, MarkerDetected: true, MayContinue: true, DistanceCM: 110, DistanceValid: true},
		{SessionID: "s1", FrameIndex: 3, MayContinue: false, DistanceCM: 90, DistanceValid: true},
		{SessionID: "s1", FrameIndex: 4, MayContinue: false},
		{SessionID: "s1", FrameIndex: 5, MayContinue: false, DistanceCM: 120, DistanceValid: true},
		{SessionID: "s1", FrameIndex: 6, MarkerDetected: true, MayContinue: true, DistanceCM: 130, DistanceValid: true},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleFrames())

	assert.Equal(t, "s1", s.SessionID)
	assert.Equal(t, 6, s.FrameCount)
	assert.Equal(t, int64(1), s.FirstFrame)
	assert.Equal(t, int64(6), s.LastFrame)
	assert.Equal(t, 3, s.MarkerFrames)
	assert.Equal(t, 3, s.ContinueFrames)
	assert.Equal(t, 0.5, s.ContinueRatio)
	assert.Equal(t, 3, s.LongestStopRun)

	// Invalid-distance frame is excluded from distance stats.
	assert.Equal(t, 5, s.DistanceSamples)
	assert.Equal(t, 110.0, s.DistanceMeanCM)
	assert.Equal(t, 90.0, s.DistanceMinCM)
	assert.Equal(t, 130.0, s.DistanceMaxCM)
	assert.Equal(t, 110.0, s.DistanceP50CM)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.FrameCount)
	assert.Zero(t, s.DistanceSamples)
}

func TestRenderSessionPlots(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, RenderSessionPlots(sampleFrames(), 100, dir))

	for _, name := range []string{"distance.png", "decisions.png"} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, "missing plot %s", name)
		assert.NotZero(t, info.Size(), "plot %s is empty", name)
	}
}

func TestRenderSessionPlotsEmpty(t *testing.T) {
	assert.Error(t, RenderSessionPlots(nil, 100, t.TempDir()))
}
