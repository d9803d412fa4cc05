package railroom

// MetricsSink receives the optional traffic/reliability counters a room
// produces (spec.md §2's ambient observability stack): payload bytes moved
// in each direction, deltas left out of a send tick's packet (over
// MAXSIZE_ENTITY, past the packet's total cap, or failing to encode), and
// reliable-event resend attempts. A room with none installed runs with all
// four as no-ops.
type MetricsSink interface {
	AddBytesSent(n uint64)
	AddBytesReceived(n uint64)
	IncDroppedDelta()
	IncEventRetry()
}

type noopMetrics struct{}

func (noopMetrics) AddBytesSent(uint64)     {}
func (noopMetrics) AddBytesReceived(uint64) {}
func (noopMetrics) IncDroppedDelta()        {}
func (noopMetrics) IncEventRetry()          {}
