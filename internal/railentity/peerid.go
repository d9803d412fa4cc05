package railentity

import "github.com/rs/xid"

// PeerId is the opaque per-connection identifier a controller reference
// points at. Entities never hold a live *Peer (spec.md §9's "model cyclic
// references as stable ids plus lookup tables"); railroom resolves a PeerId
// back to its Peer when it needs to, e.g. to read EstimatedRemoteTick.
type PeerId = xid.ID
