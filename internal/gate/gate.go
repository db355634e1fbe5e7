// Package gate holds the safety decision that governs whether the robot may
// keep moving. The decision is a pure function of the latest vision state and
// the latest range reading; it performs no I/O and keeps no state.
package gate

// Input carries everything the gate needs for one frame.
type Input struct {
	// MarkerDetected is the stabilized marker signal for this frame.
	MarkerDetected bool

	// ClassifierEnabled reports whether the secondary classifier subsystem is
	// active. When it is off its vote is not required.
	ClassifierEnabled bool

	// ClassifierDetected is the classifier's latest published verdict.
	ClassifierDetected bool

	// DistanceCM is the most recent range reading in centimeters.
	// DistanceValid is false until the first reading arrives.
	DistanceCM    int
	DistanceValid bool

	// ThresholdCM is the range beyond which the target is considered far
	// enough that vision state is ignored entirely.
	ThresholdCM int
}

// Decide returns whether the robot may continue moving.
//
// A valid range reading beyond the threshold grants passage unconditionally:
// the target is too far away to be a hazard regardless of what the cameras
// see. This override applies even when the detectors actively disagree; it is
// a policy choice inherited from field tuning, which is why the threshold is a
// runtime tunable rather than a constant.
//
// Inside the threshold the vision detectors decide. With the classifier
// enabled both signals must agree (a missing detection on either side could be
// a false negative hiding a real hazard, so the combination is a conservative
// AND). With the classifier disabled the marker alone decides.
func Decide(in Input) bool {
	if in.DistanceValid && in.DistanceCM > in.ThresholdCM {
		return true
	}
	if in.ClassifierEnabled {
		return in.MarkerDetected && in.ClassifierDetected
	}
	return in.MarkerDetected
}
