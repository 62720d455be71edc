// Package protocol owns wire contract and parsing primitives.
//
// Ownership boundary:
// - bus address primitives shared by the chardev and SMBus layers
// - frame/header primitives (protocol/frame)
// - MCTP-over-SMBus encapsulation (protocol/smbus)
//
// Canonical references (consult before changes):
// - qemu/include/hw/i2c/chardev_i2c.h
// - DMTF DSP0237 (MCTP SMBus/I2C transport binding)
package protocol
