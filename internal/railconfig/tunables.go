// Package railconfig carries the engine's two kinds of configuration:
// compile-time wire tunables (spec.md §6, never hot-reloaded — changing them
// changes the wire format) and shell-level settings loaded with viper and
// hot-reloaded with fsnotify (listen address, log level, server name).
package railconfig

import "time"

// TickInterval is the wall-clock duration of one room tick. It governs the
// tick-pump loop in cmd/railserver and cmd/railclient, not the wire format
// itself, but it is colocated here since ServerSendRate/ClientSendRate are
// expressed in ticks of this duration.
const TickInterval = 50 * time.Millisecond

// Wire tunables (spec.md §6). These are part of the wire contract between
// client and server builds and are therefore compile-time constants, never
// sourced from the hot-reloadable shell config below.
const (
	ServerSendRate     uint32 = 2 // ticks/packet
	ClientSendRate     uint32 = 2
	CommandSendCount          = 40
	CommandBufferCount        = 40
	DejitterBufferLength      = 50
	ViewTicks                 = 100
	HistoryChunks             = 6
	DataBufferSize            = 2048

	PackcapMessageTotal  = 1200
	PackcapEarlyEvents   = 370
	PackcapCommands      = 670
	MaxsizeEntity        = 100
	MaxsizeEvent         = 100
	MaxsizeCommandUpdate = 335

	VarintFallbackSize = 10 // bytes; railcodec converts to bits
	StringLengthMax    = 63
)
