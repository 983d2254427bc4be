package protocol

import (
	"encoding/binary"
	"fmt"
)

// BuildRequestFrame constructs a request frame addressed to device h.
//
// Frame structure:
//
//	[SOP][OPCODE][PORT(4)][OBJECT(4)][ADDR(4)][SIZE(4)][LEN(4)][PAYLOAD...][CHECKSUM_L][CHECKSUM_H][EOP]
//
// Returns the complete frame ready to send, or an error if validation fails.
func BuildRequestFrame(h DeviceHandle, req Request) ([]byte, error) {
	if req == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}

	payload := req.Payload()
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload length %d exceeds maximum %d bytes", len(payload), MaxPayloadSize)
	}

	switch r := req.(type) {
	case WriteRawRequest, WriteMetaRequest:
		if len(payload) == 0 {
			return nil, fmt.Errorf("%s data cannot be empty", r.Opcode())
		}
	case AttributeRequest:
		if r.Key == "" {
			return nil, fmt.Errorf("attribute key cannot be empty")
		}
	}

	frame := make([]byte, RequestHeaderSize, RequestHeaderSize+len(payload)+TrailerSize)
	frame[0] = StartOfPacket
	frame[1] = byte(req.Opcode())
	binary.LittleEndian.PutUint32(frame[2:6], h.Port)
	binary.LittleEndian.PutUint32(frame[6:10], h.Object)
	binary.LittleEndian.PutUint32(frame[10:14], req.Address())
	binary.LittleEndian.PutUint32(frame[14:18], req.Size())
	binary.LittleEndian.PutUint32(frame[18:22], uint32(len(payload)))

	frame = append(frame, payload...)

	return appendTrailer(frame), nil
}

// ParseRequestFrame validates a request frame and decodes the device handle and
// the concrete request variant it carries.
func ParseRequestFrame(frame []byte) (DeviceHandle, Request, error) {
	var h DeviceHandle

	if len(frame) < RequestHeaderSize+TrailerSize {
		return h, nil, fmt.Errorf("frame too short: got %d bytes, minimum is %d", len(frame), RequestHeaderSize+TrailerSize)
	}

	payloadLen := binary.LittleEndian.Uint32(frame[18:22])
	payload, err := checkFrame(frame, RequestHeaderSize, payloadLen)
	if err != nil {
		return h, nil, err
	}

	h.Port = binary.LittleEndian.Uint32(frame[2:6])
	h.Object = binary.LittleEndian.Uint32(frame[6:10])
	addr := binary.LittleEndian.Uint32(frame[10:14])
	size := binary.LittleEndian.Uint32(frame[14:18])

	// Copy so callers may keep the request after the frame buffer is reused.
	var data []byte
	if len(payload) > 0 {
		data = append([]byte(nil), payload...)
	}

	switch op := Opcode(frame[1]); op {
	case OpInfo:
		return h, InfoRequest{}, nil
	case OpWriteRaw:
		return h, WriteRawRequest{Addr: addr, Data: data}, nil
	case OpWriteMeta:
		return h, WriteMetaRequest{Addr: addr, Data: data}, nil
	case OpErase:
		return h, EraseRequest{Addr: addr, Length: size}, nil
	case OpIsBad:
		return h, IsBadRequest{Addr: addr}, nil
	case OpReadRaw:
		return h, ReadRawRequest{Addr: addr, Length: size}, nil
	case OpAttribute:
		return h, AttributeRequest{Key: string(data)}, nil
	default:
		return h, nil, fmt.Errorf("unrecognized opcode 0x%02X", byte(op))
	}
}

// appendTrailer appends the checksum over frame[1:] and the end-of-packet marker.
func appendTrailer(frame []byte) []byte {
	checksum := calculatePacketChecksum(frame[1:])
	frame = binary.LittleEndian.AppendUint16(frame, checksum)
	return append(frame, EndOfPacket)
}

// checkFrame validates the SOP/EOP markers, total length and checksum of a frame
// with the given header size, and returns the payload slice.
func checkFrame(frame []byte, headerSize int, payloadLen uint32) ([]byte, error) {
	if frame[0] != StartOfPacket {
		return nil, fmt.Errorf("invalid start of packet: got 0x%02X, expected 0x%02X", frame[0], StartOfPacket)
	}

	if frame[len(frame)-1] != EndOfPacket {
		return nil, fmt.Errorf("invalid end of packet: got 0x%02X, expected 0x%02X", frame[len(frame)-1], EndOfPacket)
	}

	if payloadLen > MaxPayloadSize {
		return nil, fmt.Errorf("payload length %d exceeds maximum %d bytes", payloadLen, MaxPayloadSize)
	}

	expectedLen := headerSize + int(payloadLen) + TrailerSize
	if len(frame) != expectedLen {
		return nil, fmt.Errorf("frame length mismatch: got %d bytes, expected %d (header=%d + payload=%d + trailer=%d)",
			len(frame), expectedLen, headerSize, payloadLen, TrailerSize)
	}

	checksumExpected := binary.LittleEndian.Uint16(frame[len(frame)-3 : len(frame)-1])
	checksumActual := calculatePacketChecksum(frame[1 : len(frame)-3])
	if checksumExpected != checksumActual {
		return nil, fmt.Errorf("checksum mismatch: got 0x%04X, expected 0x%04X",
			checksumActual, checksumExpected)
	}

	return frame[headerSize : headerSize+int(payloadLen)], nil
}
