package railstate

import (
	"github.com/araex/railgunnet-go/internal/railbits"
	"github.com/araex/railgunnet-go/internal/railcodec"
	"github.com/araex/railgunnet-go/internal/railtime"
)

var tickCodec railcodec.Tick

// Command is a user-defined input record tagged with its author-client-tick
// and an IsNewCommand flag (spec.md §3). Sent client-to-server in batches of
// at most COMMAND_SEND_COUNT, buffered server-side in a dejitter ring, and
// replayed client-side during rollback.
type Command[C any] struct {
	ClientTick   railtime.Tick
	IsNewCommand bool
	Data         C
}

// CommandSchema is the encode/decode contract a user command type
// implements — commands are never delta-compressed (spec.md §3 only
// partitions State into mutable/controller/immutable sections), so this is
// a plain full-value codec, mirroring the teacher's RPC builders rather than
// Schema's flagged-field shape.
type CommandSchema[C any] interface {
	Encode(b *railbits.Buffer, c *C) error
	Decode(b *railbits.Buffer, c *C) error
}

// EncodeCommand writes a command's envelope (client tick, IsNewCommand) plus
// its payload.
func EncodeCommand[C any](b *railbits.Buffer, schema CommandSchema[C], cmd *Command[C]) error {
	tickCodec.Write(b, cmd.ClientTick)
	b.WriteBool(cmd.IsNewCommand)
	return schema.Encode(b, &cmd.Data)
}

// DecodeCommand reads a command written by EncodeCommand.
func DecodeCommand[C any](b *railbits.Buffer, schema CommandSchema[C]) (*Command[C], error) {
	tick, err := tickCodec.Read(b)
	if err != nil {
		return nil, err
	}
	isNew, err := b.ReadBool()
	if err != nil {
		return nil, err
	}
	cmd := &Command[C]{ClientTick: tick, IsNewCommand: isNew}
	if err := schema.Decode(b, &cmd.Data); err != nil {
		return nil, err
	}
	return cmd, nil
}
