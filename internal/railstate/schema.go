package railstate

import "github.com/araex/railgunnet-go/internal/railbits"

// Flags is the changed-mutable-field bitmask (spec.md §4.6 step 2). At most
// FlagBits fields may be mutable in one schema.
type Flags uint32

// FlagBits is the width of the mutable-field flag word.
const FlagBits = 32

// AllFlags marks every mutable field as changed — used when no basis exists
// (a fresh snapshot) or the caller forces a full resend.
const AllFlags Flags = 1<<FlagBits - 1

// Has reports whether bit i (0-indexed) is set.
func (f Flags) Has(i int) bool { return f&(1<<uint(i)) != 0 }

// Set returns f with bit i set.
func (f Flags) Set(i int) Flags { return f | (1 << uint(i)) }

// Schema is the hand-written encode/decode/compare/apply contract spec.md
// §9's design notes call for in place of the source's reflection-driven,
// attribute-tagged field sections. One Schema[S] implementation exists per
// user entity type S, partitioning S's fields into the three sections
// spec.md §3 describes: mutable (delta-encoded, flagged), controller-only
// (full, controller-visible only), and immutable (full, sent once).
//
// All methods are pure with respect to S: Compare/Copy never touch the
// wire, Encode/Decode never touch a second S. This keeps CreateDelta/
// ApplyDelta usable both for in-process rollback replay (Copy) and for
// actual wire packing (Encode/Decode) against the same schema.
type Schema[S any] interface {
	// FactoryType is this schema's wire discriminator.
	FactoryType() FactoryType

	// CompareMutable returns the flag word of mutable fields that differ
	// between basis and target. Equal inputs must return 0.
	CompareMutable(basis, target *S) Flags

	// EncodeMutable writes each field flagged in flags, in schema order.
	EncodeMutable(b *railbits.Buffer, s *S, flags Flags) error
	// DecodeMutable reads each field flagged in flags into s, in schema
	// order, leaving unflagged fields untouched.
	DecodeMutable(b *railbits.Buffer, s *S, flags Flags) error
	// CopyMutable copies each field flagged in flags from src to dst,
	// without touching the wire — used for in-process delta application
	// and rollback/replay.
	CopyMutable(dst, src *S, flags Flags)

	// EncodeController writes the controller-only fields in full.
	EncodeController(b *railbits.Buffer, s *S) error
	DecodeController(b *railbits.Buffer, s *S) error
	CopyController(dst, src *S)

	// EncodeImmutable writes the immutable fields in full (sent once, at
	// creation).
	EncodeImmutable(b *railbits.Buffer, s *S) error
	DecodeImmutable(b *railbits.Buffer, s *S) error
	CopyImmutable(dst, src *S)
}
