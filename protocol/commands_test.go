package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRequestFrameLayout(t *testing.T) {
	h := DeviceHandle{Port: 7, Object: 3}
	data := []byte{0xDE, 0xAD, 0xBE, 0xEF}

	frame, err := BuildRequestFrame(h, WriteRawRequest{Addr: 0x2100, Data: data})
	require.NoError(t, err)

	require.Len(t, frame, RequestHeaderSize+len(data)+TrailerSize)
	assert.Equal(t, byte(StartOfPacket), frame[0])
	assert.Equal(t, byte(OpWriteRaw), frame[1])
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(frame[2:6]))
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(frame[6:10]))
	assert.Equal(t, uint32(0x2100), binary.LittleEndian.Uint32(frame[10:14]))
	assert.Equal(t, uint32(len(data)), binary.LittleEndian.Uint32(frame[14:18]))
	assert.Equal(t, uint32(len(data)), binary.LittleEndian.Uint32(frame[18:22]))
	assert.Equal(t, data, frame[RequestHeaderSize:RequestHeaderSize+len(data)])
	assert.Equal(t, byte(EndOfPacket), frame[len(frame)-1])
}

func TestBuildRequestFrameValidation(t *testing.T) {
	h := DeviceHandle{}

	tests := []struct {
		name   string
		req    Request
		errMsg string
	}{
		{
			name:   "nil request",
			req:    nil,
			errMsg: "request cannot be nil",
		},
		{
			name:   "empty raw write",
			req:    WriteRawRequest{Addr: 0},
			errMsg: "writeRaw data cannot be empty",
		},
		{
			name:   "empty meta write",
			req:    WriteMetaRequest{Addr: 0},
			errMsg: "writeMeta data cannot be empty",
		},
		{
			name:   "empty attribute key",
			req:    AttributeRequest{},
			errMsg: "attribute key cannot be empty",
		},
		{
			name:   "oversized payload",
			req:    WriteRawRequest{Data: make([]byte, MaxPayloadSize+1)},
			errMsg: "exceeds maximum",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildRequestFrame(h, tt.req)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestRequestFrameDecodesVariant(t *testing.T) {
	h := DeviceHandle{Port: 1, Object: 2}

	tests := []Request{
		InfoRequest{},
		WriteRawRequest{Addr: 0x840, Data: []byte{1, 2, 3}},
		WriteMetaRequest{Addr: 0x20000, Data: []byte{0x85, 0x19, 0x03, 0x20, 0x08, 0, 0, 0}},
		EraseRequest{Addr: 0x40000, Length: 0x60000},
		IsBadRequest{Addr: 0x60000},
		ReadRawRequest{Addr: 0x10, Length: 64},
		AttributeRequest{Key: AttrSize},
	}

	for _, req := range tests {
		t.Run(req.Opcode().String(), func(t *testing.T) {
			frame, err := BuildRequestFrame(h, req)
			require.NoError(t, err)

			gotHandle, got, err := ParseRequestFrame(frame)
			require.NoError(t, err)
			assert.Equal(t, h, gotHandle)
			if diff := cmp.Diff(req, got); diff != "" {
				t.Errorf("decoded request mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseRequestFrameErrors(t *testing.T) {
	good, err := BuildRequestFrame(DeviceHandle{}, IsBadRequest{Addr: 0x20000})
	require.NoError(t, err)

	corrupt := func(f func([]byte) []byte) []byte {
		return f(append([]byte(nil), good...))
	}

	tests := []struct {
		name   string
		frame  []byte
		errMsg string
	}{
		{
			name:   "too short",
			frame:  good[:10],
			errMsg: "frame too short",
		},
		{
			name:   "bad start of packet",
			frame:  corrupt(func(b []byte) []byte { b[0] = 0x02; return b }),
			errMsg: "invalid start of packet",
		},
		{
			name:   "bad end of packet",
			frame:  corrupt(func(b []byte) []byte { b[len(b)-1] = 0x00; return b }),
			errMsg: "invalid end of packet",
		},
		{
			name:   "checksum mismatch",
			frame:  corrupt(func(b []byte) []byte { b[10] ^= 0xFF; return b }),
			errMsg: "checksum mismatch",
		},
		{
			name:   "length mismatch",
			frame:  corrupt(func(b []byte) []byte { return append(b[:len(b)-1], 0x00, EndOfPacket) }),
			errMsg: "frame length mismatch",
		},
		{
			name: "unknown opcode",
			frame: corrupt(func(b []byte) []byte {
				b[1] = 0x7F
				sum := calculatePacketChecksum(b[1 : len(b)-3])
				binary.LittleEndian.PutUint16(b[len(b)-3:], sum)
				return b
			}),
			errMsg: "unrecognized opcode 0x7F",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseRequestFrame(tt.frame)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestReadRequestFrame(t *testing.T) {
	first, err := BuildRequestFrame(DeviceHandle{Object: 1}, ReadRawRequest{Addr: 0, Length: 16})
	require.NoError(t, err)
	second, err := BuildRequestFrame(DeviceHandle{Object: 1}, WriteMetaRequest{Addr: 0x20000, Data: []byte{1, 2}})
	require.NoError(t, err)

	stream := bytes.NewReader(append(append([]byte(nil), first...), second...))

	got, err := ReadRequestFrame(stream)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	got, err = ReadRequestFrame(stream)
	require.NoError(t, err)
	assert.Equal(t, second, got)

	_, err = ReadRequestFrame(stream)
	assert.Error(t, err)
}
