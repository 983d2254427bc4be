package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// BuildResponseFrame constructs a response frame.
//
// Frame structure:
//
//	[SOP][STATUS(4)][LEN(4)][PAYLOAD...][CHECKSUM_L][CHECKSUM_H][EOP]
func BuildResponseFrame(resp *Response) ([]byte, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}
	if len(resp.Payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload length %d exceeds maximum %d bytes", len(resp.Payload), MaxPayloadSize)
	}

	frame := make([]byte, ResponseHeaderSize, ResponseHeaderSize+len(resp.Payload)+TrailerSize)
	frame[0] = StartOfPacket
	binary.LittleEndian.PutUint32(frame[1:5], uint32(resp.Status))
	binary.LittleEndian.PutUint32(frame[5:9], uint32(len(resp.Payload)))
	frame = append(frame, resp.Payload...)

	return appendTrailer(frame), nil
}

// ParseResponse extracts the status code and payload from a response frame.
// Validates frame structure, length, and checksum.
func ParseResponse(frame []byte) (*Response, error) {
	if len(frame) < ResponseHeaderSize+TrailerSize {
		return nil, fmt.Errorf("frame too short: got %d bytes, minimum is %d", len(frame), ResponseHeaderSize+TrailerSize)
	}

	payloadLen := binary.LittleEndian.Uint32(frame[5:9])
	payload, err := checkFrame(frame, ResponseHeaderSize, payloadLen)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Status: int32(binary.LittleEndian.Uint32(frame[1:5])),
	}
	if len(payload) > 0 {
		resp.Payload = append([]byte(nil), payload...)
	}

	return resp, nil
}

// ReadRequestFrame reads one complete request frame from r.
func ReadRequestFrame(r io.Reader) ([]byte, error) {
	return readFrame(r, RequestHeaderSize, 18)
}

// ReadResponseFrame reads one complete response frame from r.
func ReadResponseFrame(r io.Reader) ([]byte, error) {
	return readFrame(r, ResponseHeaderSize, 5)
}

// readFrame reads a header of headerSize bytes, takes the payload length from
// the u32 at lenOffset, then reads the payload and trailer.
func readFrame(r io.Reader, headerSize, lenOffset int) ([]byte, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	if header[0] != StartOfPacket {
		return nil, fmt.Errorf("invalid start of packet: got 0x%02X, expected 0x%02X", header[0], StartOfPacket)
	}

	payloadLen := binary.LittleEndian.Uint32(header[lenOffset : lenOffset+4])
	if payloadLen > MaxPayloadSize {
		return nil, fmt.Errorf("payload length %d exceeds maximum %d bytes", payloadLen, MaxPayloadSize)
	}

	frame := make([]byte, headerSize+int(payloadLen)+TrailerSize)
	copy(frame, header)
	if _, err := io.ReadFull(r, frame[headerSize:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	return frame, nil
}

// ParseInfoResponse parses the info reply payload.
//
// Data format (InfoPayloadSize bytes):
//
//	[META_SIZE(4)][WRITE_SIZE(4)][ERASE_SIZE(4)]
func ParseInfoResponse(data []byte) (*Info, error) {
	if len(data) != InfoPayloadSize {
		return nil, fmt.Errorf("invalid data length for info response: got %d bytes, expected %d", len(data), InfoPayloadSize)
	}

	info := &Info{
		MetaSize:  binary.LittleEndian.Uint32(data[0:4]),
		WriteSize: binary.LittleEndian.Uint32(data[4:8]),
		EraseSize: binary.LittleEndian.Uint32(data[8:12]),
	}

	return info, nil
}

// EncodeAttributeValue encodes an integer attribute reply payload.
func EncodeAttributeValue(v uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, v)
}

// ParseAttributeResponse parses an integer attribute reply payload.
//
// Data format (8 bytes):
//
//	[VALUE(8)]
func ParseAttributeResponse(data []byte) (uint64, error) {
	if len(data) != AttributePayloadSize {
		return 0, fmt.Errorf("invalid data length for attribute response: got %d bytes, expected %d", len(data), AttributePayloadSize)
	}

	return binary.LittleEndian.Uint64(data), nil
}
