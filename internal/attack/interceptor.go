// Package attack defines the traffic-interception seam between PLC
// agents and the coordinator. The shipped implementation is a pure
// pass-through; a real attack module would sniff or rewrite the encoded
// JSON messages here.
package attack

// Interceptor sees every encoded message crossing the PLC/SCADA link.
type Interceptor interface {
	InterceptRequest(payload []byte) []byte
	InterceptReply(payload []byte) []byte
}

// Passthrough forwards traffic unchanged.
type Passthrough struct{}

// InterceptRequest returns the payload unmodified.
func (Passthrough) InterceptRequest(payload []byte) []byte { return payload }

// InterceptReply returns the payload unmodified.
func (Passthrough) InterceptReply(payload []byte) []byte { return payload }
