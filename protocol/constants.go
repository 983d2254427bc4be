package protocol

// ProtocolVersion is the flash driver wire protocol version implemented by this library.
const ProtocolVersion = "1.0"

// Frame structure constants.
const (
	// StartOfPacket is the frame start marker (0x01)
	StartOfPacket = 0x01

	// EndOfPacket is the frame end marker (0x17)
	EndOfPacket = 0x17

	// RequestHeaderSize is the request header size in bytes:
	// SOP(1) + OPCODE(1) + PORT(4) + OBJECT(4) + ADDR(4) + SIZE(4) + LEN(4)
	RequestHeaderSize = 22

	// ResponseHeaderSize is the response header size in bytes:
	// SOP(1) + STATUS(4) + LEN(4)
	ResponseHeaderSize = 9

	// TrailerSize is CHECKSUM(2) + EOP(1)
	TrailerSize = 3

	// MaxPayloadSize bounds a single frame payload. One erase unit of the
	// largest supported NAND (512KiB) plus its out-of-band area fits.
	MaxPayloadSize = 1 << 20
)

// Opcode identifies a Flash Driver Service operation.
type Opcode byte

// Operation codes.
const (
	// OpInfo queries {metaSize, writeSize, eraseSize}
	OpInfo Opcode = 0x01

	// OpWriteRaw programs a page (data and out-of-band area) at a byte offset
	OpWriteRaw Opcode = 0x02

	// OpWriteMeta programs only the out-of-band area of an erase unit
	OpWriteMeta Opcode = 0x03

	// OpErase erases a run of erase units
	OpErase Opcode = 0x04

	// OpIsBad queries the bad-block marker of an erase unit
	OpIsBad Opcode = 0x05

	// OpReadRaw reads bytes at a byte offset
	OpReadRaw Opcode = 0x06

	// OpAttribute queries the Attribute Service; the payload is the key
	OpAttribute Opcode = 0x10
)

func (o Opcode) String() string {
	switch o {
	case OpInfo:
		return "info"
	case OpWriteRaw:
		return "writeRaw"
	case OpWriteMeta:
		return "writeMeta"
	case OpErase:
		return "erase"
	case OpIsBad:
		return "isBad"
	case OpReadRaw:
		return "readRaw"
	case OpAttribute:
		return "attribute"
	default:
		return "unknown"
	}
}

// Status codes. Non-negative values mean success; their meaning is
// operation-specific (byte count, bad flag). Negative values are errors.
const (
	// StatusOK is the plain success status
	StatusOK int32 = 0

	// StatusIO indicates the device failed the operation
	StatusIO int32 = -5

	// StatusInvalidArgs indicates a malformed or misaligned request
	StatusInvalidArgs int32 = -22

	// StatusOutOfRange indicates the address range exceeds the device
	StatusOutOfRange int32 = -34

	// StatusBadFrame indicates the service could not decode the request frame
	StatusBadFrame int32 = -74

	// StatusNotSupported indicates the opcode or attribute is not implemented
	StatusNotSupported int32 = -95
)

// Attribute keys understood by the Attribute Service.
const (
	// AttrSize is the total logical size of the device in bytes
	AttrSize = "size"
)

// Payload sizes.
const (
	// InfoPayloadSize is the info response payload: metaSize, writeSize, eraseSize (u32 each)
	InfoPayloadSize = 12

	// AttributePayloadSize is an integer attribute value (u64)
	AttributePayloadSize = 8

	// CleanMarkerSize is the encoded size of the clean marker record
	CleanMarkerSize = 8
)

// JFFS2 clean marker fields.
const (
	// CleanMarkerMagic is the JFFS2 node magic (0x1985)
	CleanMarkerMagic uint16 = 0x1985

	// CleanMarkerNodeType is the JFFS2 clean marker node type (0x2003)
	CleanMarkerNodeType uint16 = 0x2003
)
