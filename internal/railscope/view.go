// Package railscope implements the client View and server Scope tables
// (spec.md §4.8): the client's running summary of what it has received, and
// the server's per-client visibility/ack state for every entity.
package railscope

import (
	"sort"

	"github.com/araex/railgunnet-go/internal/railstate"
	"github.com/araex/railgunnet-go/internal/railtime"
)

// ViewEntry is one entity's record in a client's View.
type ViewEntry struct {
	EntityId              railstate.EntityId
	LastReceivedTick      railtime.Tick
	LastReceivedLocalTick railtime.Tick
	IsFrozen              bool
}

// View is the client's EntityId -> {lastReceivedTick, lastReceivedLocalTick,
// isFrozen} map (spec.md §3), sent back to the server as the client's ack
// view on every C2S packet.
type View struct {
	entries map[railstate.EntityId]ViewEntry
}

// NewView builds an empty view.
func NewView() *View {
	return &View{entries: make(map[railstate.EntityId]ViewEntry)}
}

// Record stores a decoded delta's receipt, called once per delta after
// processing a server packet (spec.md §4.8).
func (v *View) Record(id railstate.EntityId, senderTick, localTick railtime.Tick, isFrozen bool) {
	v.entries[id] = ViewEntry{
		EntityId:              id,
		LastReceivedTick:      senderTick,
		LastReceivedLocalTick: localTick,
		IsFrozen:              isFrozen,
	}
}

// Forget removes an entity from the view, e.g. once it is fully removed.
func (v *View) Forget(id railstate.EntityId) {
	delete(v.entries, id)
}

// Snapshot returns every entry sorted by descending LastReceivedTick, so the
// newest acknowledgments are serialized first when the C2S packet is
// MTU-bounded (spec.md §4.8).
func (v *View) Snapshot() []ViewEntry {
	out := make([]ViewEntry, 0, len(v.entries))
	for _, e := range v.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[j].LastReceivedTick.Before(out[i].LastReceivedTick)
	})
	return out
}
