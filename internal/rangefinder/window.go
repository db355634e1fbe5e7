package rangefinder

// minWindow keeps the minimum over the last n values pushed. The sensor
// occasionally reads through a person and reports the wall behind them; a
// sliding minimum suppresses those outlier spikes toward the far side.
type minWindow struct {
	values []int
	size   int
	next   int
	filled bool
}

func newMinWindow(size int) *minWindow {
	if size < 1 {
		size = 1
	}
	return &minWindow{
		values: make([]int, size),
		size:   size,
	}
}

// Push records v and returns the minimum over the current window.
func (w *minWindow) Push(v int) int {
	w.values[w.next] = v
	w.next++
	if w.next == w.size {
		w.next = 0
		w.filled = true
	}

	span := w.size
	if !w.filled {
		span = w.next
	}
	min := w.values[0]
	for _, value := range w.values[1:span] {
		if value < min {
			min = value
		}
	}
	return min
}

// Reset discards all recorded values.
func (w *minWindow) Reset() {
	w.next = 0
	w.filled = false
}
