package mctp

import "fmt"

// EID is an MCTP endpoint identifier.
type EID uint8

const (
	EIDNull      EID = 0x00
	EIDBroadcast EID = 0xff
)

// Valid reports whether e is assignable to an endpoint (0x08..0xfe).
func (e EID) Valid() bool {
	return e >= 0x08 && e != EIDBroadcast
}

func (e EID) String() string {
	return fmt.Sprintf("eid(%d)", uint8(e))
}

// MsgType is the 7-bit MCTP message type.
type MsgType uint8

const (
	MsgTypeControl MsgType = 0x00
	MsgTypePLDM    MsgType = 0x01
	MsgTypeNCSI    MsgType = 0x02
	MsgTypeNVMeMI  MsgType = 0x04
	MsgTypeSPDM    MsgType = 0x05
	MsgTypeVendor  MsgType = 0x7e

	maxMsgType MsgType = 0x7f
)

// MaxTagValue is the largest 3-bit message tag.
const MaxTagValue = 7

// Tag correlates the packets of one message and a request with its response.
// Owner is set on requests (TO bit).
type Tag struct {
	Value uint8
	Owner bool
}

func (t Tag) String() string {
	if t.Owner {
		return fmt.Sprintf("tag(%d,owner)", t.Value)
	}
	return fmt.Sprintf("tag(%d)", t.Value)
}

// Message is one reassembled MCTP message.
type Message struct {
	Type    MsgType
	IC      bool
	Source  EID
	Dest    EID
	Tag     Tag
	Payload []byte
}
