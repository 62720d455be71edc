// Package mctp is a minimal MCTP (DSP0236) endpoint stack.
//
// Ownership boundary:
// - transport header encode/decode
// - message fragmentation and reassembly
// - tag allocation and request/response matching
// - per-message-type listeners
// - timer-driven expiry (Update / UpdateLoop)
//
// The stack never touches the bus directly; outbound packets go through a
// Sender and inbound packets arrive via Stack.Inbound.
package mctp
