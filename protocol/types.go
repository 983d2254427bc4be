package protocol

import (
	"encoding/binary"
	"fmt"
)

// DeviceHandle names a flash device or partition exposed by the Flash Driver Service.
// It is comparable and can be used as a map key.
type DeviceHandle struct {
	// Port is the service endpoint the device is reachable through
	Port uint32

	// Object is the device or partition id within that service
	Object uint32
}

func (h DeviceHandle) String() string {
	return fmt.Sprintf("%d:%d", h.Port, h.Object)
}

// Request is one of the closed set of Flash Driver Service requests.
// Every concrete type carries only the fields its operation needs.
type Request interface {
	// Opcode returns the wire operation code
	Opcode() Opcode

	// Address is the byte offset the request targets (0 when unused)
	Address() uint32

	// Size is the byte length the request covers (0 when unused)
	Size() uint32

	// Payload returns the request data, or nil
	Payload() []byte

	isRequest()
}

// InfoRequest asks for the device page, out-of-band and erase sizes.
type InfoRequest struct{}

// WriteRawRequest programs Data (page data followed by out-of-band bytes) at Addr.
type WriteRawRequest struct {
	Addr uint32
	Data []byte
}

// WriteMetaRequest programs Data into the out-of-band area of the unit at Addr.
type WriteMetaRequest struct {
	Addr uint32
	Data []byte
}

// EraseRequest erases Length bytes starting at the erase-unit aligned Addr.
type EraseRequest struct {
	Addr   uint32
	Length uint32
}

// IsBadRequest queries the bad-block marker of the unit at Addr.
type IsBadRequest struct {
	Addr uint32
}

// ReadRawRequest reads Length bytes at Addr.
type ReadRawRequest struct {
	Addr   uint32
	Length uint32
}

// AttributeRequest queries the Attribute Service for Key. It only appears on the
// wire; in-process callers use AttributeService directly.
type AttributeRequest struct {
	Key string
}

func (InfoRequest) Opcode() Opcode      { return OpInfo }
func (WriteRawRequest) Opcode() Opcode  { return OpWriteRaw }
func (WriteMetaRequest) Opcode() Opcode { return OpWriteMeta }
func (EraseRequest) Opcode() Opcode     { return OpErase }
func (IsBadRequest) Opcode() Opcode     { return OpIsBad }
func (ReadRawRequest) Opcode() Opcode   { return OpReadRaw }
func (AttributeRequest) Opcode() Opcode { return OpAttribute }

func (InfoRequest) Address() uint32        { return 0 }
func (r WriteRawRequest) Address() uint32  { return r.Addr }
func (r WriteMetaRequest) Address() uint32 { return r.Addr }
func (r EraseRequest) Address() uint32     { return r.Addr }
func (r IsBadRequest) Address() uint32     { return r.Addr }
func (r ReadRawRequest) Address() uint32   { return r.Addr }
func (AttributeRequest) Address() uint32   { return 0 }

func (InfoRequest) Size() uint32        { return 0 }
func (r WriteRawRequest) Size() uint32  { return uint32(len(r.Data)) }
func (r WriteMetaRequest) Size() uint32 { return uint32(len(r.Data)) }
func (r EraseRequest) Size() uint32     { return r.Length }
func (IsBadRequest) Size() uint32       { return 0 }
func (r ReadRawRequest) Size() uint32   { return r.Length }
func (AttributeRequest) Size() uint32   { return 0 }

func (InfoRequest) Payload() []byte        { return nil }
func (r WriteRawRequest) Payload() []byte  { return r.Data }
func (r WriteMetaRequest) Payload() []byte { return r.Data }
func (EraseRequest) Payload() []byte       { return nil }
func (IsBadRequest) Payload() []byte       { return nil }
func (ReadRawRequest) Payload() []byte     { return nil }
func (r AttributeRequest) Payload() []byte { return []byte(r.Key) }

func (InfoRequest) isRequest()      {}
func (WriteRawRequest) isRequest()  {}
func (WriteMetaRequest) isRequest() {}
func (EraseRequest) isRequest()     {}
func (IsBadRequest) isRequest()     {}
func (ReadRawRequest) isRequest()   {}
func (AttributeRequest) isRequest() {}

// Response is the common reply envelope of both services.
type Response struct {
	// Status is negative on error; otherwise operation-specific
	Status int32

	// Payload is the reply data, or nil
	Payload []byte
}

// OK reports whether the status is non-negative.
func (r *Response) OK() bool {
	return r.Status >= 0
}

// Info is the payload of an info reply.
type Info struct {
	// MetaSize is the out-of-band bytes per page
	MetaSize uint32

	// WriteSize is the data bytes per page
	WriteSize uint32

	// EraseSize is the bytes per erase unit
	EraseSize uint32
}

// MarshalBinary encodes the info payload (u32 little-endian fields).
func (i Info) MarshalBinary() ([]byte, error) {
	buf := make([]byte, InfoPayloadSize)
	binary.LittleEndian.PutUint32(buf[0:4], i.MetaSize)
	binary.LittleEndian.PutUint32(buf[4:8], i.WriteSize)
	binary.LittleEndian.PutUint32(buf[8:12], i.EraseSize)
	return buf, nil
}

// CleanMarker is the JFFS2 clean marker node written to the out-of-band area of
// an erased, known-good unit.
type CleanMarker struct {
	Magic    uint16
	NodeType uint16
	TotalLen uint32
}

// NewCleanMarker returns the fixed marker record.
func NewCleanMarker() CleanMarker {
	return CleanMarker{
		Magic:    CleanMarkerMagic,
		NodeType: CleanMarkerNodeType,
		TotalLen: CleanMarkerSize,
	}
}

// MarshalBinary encodes the marker little-endian, as JFFS2 expects on little-endian targets.
func (m CleanMarker) MarshalBinary() ([]byte, error) {
	buf := make([]byte, CleanMarkerSize)
	binary.LittleEndian.PutUint16(buf[0:2], m.Magic)
	binary.LittleEndian.PutUint16(buf[2:4], m.NodeType)
	binary.LittleEndian.PutUint32(buf[4:8], m.TotalLen)
	return buf, nil
}

// UnmarshalBinary decodes and validates a marker record.
func (m *CleanMarker) UnmarshalBinary(data []byte) error {
	if len(data) < CleanMarkerSize {
		return fmt.Errorf("clean marker too short: got %d bytes, need %d", len(data), CleanMarkerSize)
	}
	m.Magic = binary.LittleEndian.Uint16(data[0:2])
	m.NodeType = binary.LittleEndian.Uint16(data[2:4])
	m.TotalLen = binary.LittleEndian.Uint32(data[4:8])

	if m.Magic != CleanMarkerMagic {
		return fmt.Errorf("invalid clean marker magic: 0x%04X", m.Magic)
	}
	if m.NodeType != CleanMarkerNodeType {
		return fmt.Errorf("invalid clean marker node type: 0x%04X", m.NodeType)
	}
	if m.TotalLen != CleanMarkerSize {
		return fmt.Errorf("invalid clean marker length: %d", m.TotalLen)
	}
	return nil
}
