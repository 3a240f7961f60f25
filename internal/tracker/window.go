package tracker

// window is a fixed-capacity ring of per-frame counts. Once full,
// pushing evicts the oldest value.
type window struct {
	vals []int
	head int
	n    int
}

func newWindow(capacity int) *window {
	return &window{vals: make([]int, capacity)}
}

func (w *window) push(v int) {
	if w.n < len(w.vals) {
		w.vals[(w.head+w.n)%len(w.vals)] = v
		w.n++
		return
	}
	w.vals[w.head] = v
	w.head = (w.head + 1) % len(w.vals)
}

func (w *window) len() int { return w.n }

func (w *window) full() bool { return w.n == len(w.vals) }

// values returns the contents oldest first.
func (w *window) values() []int {
	out := make([]int, w.n)
	for i := 0; i < w.n; i++ {
		out[i] = w.vals[(w.head+i)%len(w.vals)]
	}
	return out
}

func (w *window) allZero() bool {
	for i := 0; i < w.n; i++ {
		if w.vals[(w.head+i)%len(w.vals)] != 0 {
			return false
		}
	}
	return true
}
