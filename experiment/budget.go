package experiment

// Decision is the result of Tracker.TryAdmit.
type Decision struct {
	Accepted    bool
	WouldExceed bool // caller must Rollback the same size
}

// Tracker accounts for accepted images against the size and count ceilings.
//
// TryAdmit adds tentatively: when it reports WouldExceed the addition is
// still applied and the caller is expected to Rollback it before the
// iteration ends. Outside that window, size equals the sum of the sizes of
// accepted images that were not rolled back. A Rollback restores the total
// saved by the matching TryAdmit bit for bit.
type Tracker struct {
	maxSize   float64
	maxImages int

	size  float64
	count int

	prev    float64 // size before the pending admission
	pending bool
}

// NewTracker creates a Tracker with fixed ceilings.
func NewTracker(maxSize float64, maxImages int) *Tracker {
	return &Tracker{maxSize: maxSize, maxImages: maxImages}
}

// TryAdmit adds size to the cumulative total and reports whether the new
// total stays within the size ceiling.
func (t *Tracker) TryAdmit(size float64) Decision {
	t.prev, t.pending = t.size, true
	t.size += size
	if t.size > t.maxSize {
		return Decision{WouldExceed: true}
	}
	return Decision{Accepted: true}
}

// Rollback undoes the last TryAdmit. Without a pending admission it
// subtracts size instead.
func (t *Tracker) Rollback(size float64) {
	if t.pending {
		t.size, t.pending = t.prev, false
		return
	}
	t.size -= size
}

// RecordAccepted settles the pending admission, increments the accepted
// count and returns the new value.
func (t *Tracker) RecordAccepted() int {
	t.pending = false
	t.count++
	return t.count
}

// Size returns the cumulative accepted size in size units.
func (t *Tracker) Size() float64 { return t.size }

// Count returns the number of accepted images.
func (t *Tracker) Count() int { return t.count }

// CountCeilingReached reports whether the accepted count hit MaxImages.
func (t *Tracker) CountCeilingReached() bool { return t.count >= t.maxImages }
