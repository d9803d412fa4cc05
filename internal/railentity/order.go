// Package railentity implements the server- and client-side entity state
// machines (spec.md §4.7): ServerEntity drives authoritative simulation and
// command application; ClientEntity drives the frozen/proxy/controlled+
// predicted update paths and rollback/replay.
package railentity

// Order is an entity's update-order bucket (spec.md §3). Entities update in
// bucket order within a tick so that, e.g., a vehicle (Early) simulates
// before the passengers (Normal) that read its position.
type Order int

const (
	Early Order = iota
	Normal
	Late
	VeryLate
)
