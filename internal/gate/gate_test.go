package gate

import "testing"

func TestDistanceOverride(t *testing.T) {
	// Far target: gate opens regardless of vision state.
	in := Input{
		MarkerDetected:     false,
		ClassifierEnabled:  true,
		ClassifierDetected: false,
		DistanceCM:         200,
		DistanceValid:      true,
		ThresholdCM:        100,
	}
	if !Decide(in) {
		t.Error("distance 200 > threshold 100 must open the gate unconditionally")
	}

	// At exactly the threshold the override does not apply.
	in.DistanceCM = 100
	if Decide(in) {
		t.Error("distance equal to threshold must not trigger the override")
	}
}

func TestInvalidDistanceNeverOverrides(t *testing.T) {
	in := Input{
		MarkerDetected: false,
		DistanceCM:     500,
		DistanceValid:  false,
		ThresholdCM:    100,
	}
	if Decide(in) {
		t.Error("gate opened on a distance reading that was never received")
	}
}

func TestClassifierEnabledRequiresBoth(t *testing.T) {
	tests := []struct {
		marker, classifier bool
		want               bool
	}{
		{false, false, false},
		{true, false, false},
		{false, true, false},
		{true, true, true},
	}
	for _, tc := range tests {
		in := Input{
			MarkerDetected:     tc.marker,
			ClassifierEnabled:  true,
			ClassifierDetected: tc.classifier,
			DistanceCM:         50,
			DistanceValid:      true,
			ThresholdCM:        100,
		}
		if got := Decide(in); got != tc.want {
			t.Errorf("marker=%v classifier=%v: Decide() = %v, want %v",
				tc.marker, tc.classifier, got, tc.want)
		}
	}
}

func TestClassifierDisabledMarkerAlone(t *testing.T) {
	in := Input{
		MarkerDetected:    true,
		ClassifierEnabled: false,
		// Stale classifier verdict must not matter once disabled.
		ClassifierDetected: false,
		DistanceCM:         50,
		DistanceValid:      true,
		ThresholdCM:        100,
	}
	if !Decide(in) {
		t.Error("classifier disabled: marker alone should open the gate")
	}

	in.MarkerDetected = false
	if Decide(in) {
		t.Error("classifier disabled: no marker should close the gate")
	}
}
