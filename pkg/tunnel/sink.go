package tunnel

// PacketSink receives decrypted packets from the pipeline. version is 4 or 6.
// Deliver runs on the orchestration goroutine; slow sinks stall the tunnel.
type PacketSink interface {
	Deliver(packet []byte, version int)
}

// SinkFunc adapts a function to the PacketSink interface.
type SinkFunc func(packet []byte, version int)

// Deliver calls f.
func (f SinkFunc) Deliver(packet []byte, version int) {
	f(packet, version)
}

// DiscardSink drops every packet.
var DiscardSink PacketSink = SinkFunc(func([]byte, int) {})
