package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculatePacketChecksum(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{
			name:     "empty data",
			data:     []byte{},
			expected: 0x0000, // 2's complement of 0 wraps
		},
		{
			name:     "single byte",
			data:     []byte{0x01},
			expected: 0xFFFF,
		},
		{
			name:     "multiple bytes",
			data:     []byte{0x01, 0x02, 0x03, 0x04},
			expected: 0xFFF6,
		},
		{
			name:     "all ones",
			data:     []byte{0xFF, 0xFF, 0xFF, 0xFF},
			expected: 0xFC04, // 2's complement of 0x03FC
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, calculatePacketChecksum(tt.data))
		})
	}
}

func TestChecksumCancelsSum(t *testing.T) {
	data := []byte{0x06, 0x10, 0x00, 0x20, 0x00, 0xAA}
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	assert.Equal(t, uint16(0), sum+calculatePacketChecksum(data))
}
