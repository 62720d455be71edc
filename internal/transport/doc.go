// Package transport carries MCTP packets over a QEMU i2c chardev socket.
//
// Ownership boundary:
// - connection setup (listen/dial by role), split into send/receive halves
// - outbound Sender: fragment -> SMBus encode -> chardev frame -> write
// - inbound Receiver: read frame -> validate -> SMBus decode -> stack
//
// Fatal conditions (stream desynchronization, broken connection) are
// returned as *FatalError. Address mismatches and SMBus decode failures
// drop one frame; only a run of ReceiverConfig.MaxDecodeErrors consecutive
// decode failures stops the receiver.
package transport
