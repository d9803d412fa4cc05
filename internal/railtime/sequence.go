package railtime

// SequenceWindow is the width of the wrapping 12-bit packet-sequence space
// (spec.md §3).
const SequenceWindow = 1 << 12

const sequenceMask = SequenceWindow - 1

// SequenceId is a 12-bit wrapping packet identifier. Subtraction is modular
// and yields a signed distance; it is meaningless for ids farther apart than
// half the window, since the wrap makes "ahead" and "behind" ambiguous past
// that point (spec.md §3).
type SequenceId struct {
	value uint16
	valid bool
}

// InvalidSequenceId is the sentinel "no id" value.
var InvalidSequenceId = SequenceId{}

// NewSequenceId constructs a valid id, masking v into the 12-bit window.
func NewSequenceId(v uint32) SequenceId {
	return SequenceId{value: uint16(v & sequenceMask), valid: true}
}

// IsValid distinguishes a real id from the sentinel.
func (s SequenceId) IsValid() bool { return s.valid }

// Value returns the raw 12-bit value. Only meaningful when IsValid.
func (s SequenceId) Value() uint16 { return s.value }

// Next returns the id one step ahead, wrapping at the window boundary.
func (s SequenceId) Next() SequenceId {
	return NewSequenceId(uint32(s.value) + 1)
}

// Sub returns the signed modular distance s - other: positive means s is
// ahead of other, negative means behind. The result is only meaningful when
// the true separation is less than half the window (spec.md §3): the result
// always lies within ±SequenceWindow/2, so Sub cannot tell a corrupt or
// adversarial id farther away than that from a nearer one.
func (s SequenceId) Sub(other SequenceId) int32 {
	diff := int32(s.value) - int32(other.value)
	switch {
	case diff > SequenceWindow/2:
		diff -= SequenceWindow
	case diff < -SequenceWindow/2:
		diff += SequenceWindow
	}
	return diff
}

// IsNewerThan reports whether s is ahead of other in modular sequence order.
func (s SequenceId) IsNewerThan(other SequenceId) bool {
	if !s.valid {
		return false
	}
	if !other.valid {
		return true
	}
	return s.Sub(other) > 0
}
