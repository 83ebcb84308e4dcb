package drawings

// Replay walks a fixed snapshot of a room's drawings in submission order.
// It is not safe for concurrent use; the gateway owns each Replay.
type Replay struct {
	items []Drawing
	pos   int
}

func newReplay(items []Drawing) *Replay {
	return &Replay{items: items}
}

// Next returns the next drawing, or false once the snapshot is exhausted.
func (r *Replay) Next() (Drawing, bool) {
	if r.pos >= len(r.items) {
		return Drawing{}, false
	}
	d := r.items[r.pos]
	r.pos++
	return d, true
}

func (r *Replay) Len() int {
	return len(r.items)
}

func (r *Replay) Remaining() int {
	return len(r.items) - r.pos
}
