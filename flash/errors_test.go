package flash

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/moffa90/go-flashdev/protocol"
)

func TestErrorMessages(t *testing.T) {
	h := protocol.DeviceHandle{Port: 2, Object: 7}

	tests := []struct {
		name string
		err  error
		want []string
	}{
		{
			name: "transport",
			err:  &TransportError{Op: protocol.OpErase, Handle: h, Err: errors.New("broken pipe")},
			want: []string{"erase", "2:7", "broken pipe"},
		},
		{
			name: "device",
			err:  &DeviceError{Op: protocol.OpIsBad, Handle: h, Status: protocol.StatusIO},
			want: []string{"isBad", "I/O error", "(-5)"},
		},
		{
			name: "short write",
			err:  &ShortWriteError{Address: 0x2940, Requested: 2112, Actual: 2111},
			want: []string{"0x00002940", "requested 2112", "reported 2111"},
		},
		{
			name: "short read",
			err:  &ShortReadError{Address: 0, Requested: 64, Actual: 10},
			want: []string{"short read", "requested 64", "got 10"},
		},
		{
			name: "capacity",
			err:  &CapacityExceededError{Capacity: 2, Scanned: 4},
			want: []string{"too many bad blocks", "capacity 2", "4 units"},
		},
		{
			name: "not resolved",
			err:  &NotResolvedError{Handle: h, Reason: "erase size is zero"},
			want: []string{"2:7", "not resolved", "erase size is zero"},
		},
		{
			name: "address",
			err:  &AddressError{Unit: "page", Index: 1 << 31, Stride: 2112},
			want: []string{"page 2147483648", "stride 2112"},
		},
		{
			name: "alignment",
			err:  &AlignmentError{Address: 0x840, EraseSize: 0x20000},
			want: []string{"0x840", "0x20000"},
		},
		{
			name: "partial failure",
			err:  &PartialFailure{Attempted: 5, Succeeded: 3, Failed: 2, Skipped: 1, Err: errors.New("unit 0x00020000")},
			want: []string{"2 of 5", "3 written", "1 bad skipped", "unit 0x00020000"},
		},
		{
			name: "out of space",
			err:  &OutOfSpaceError{PagesWritten: 8, PagesTotal: 9, LastBlock: 8},
			want: []string{"block 8", "8 of 9 pages"},
		},
		{
			name: "verify",
			err:  &VerifyError{Page: 1, Address: 528, Offset: 0},
			want: []string{"page 1", "0x00000210", "byte 0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.want {
				assert.Contains(t, msg, s)
			}
		})
	}
}

func TestDeviceErrorUnwrapsToStatus(t *testing.T) {
	err := error(&DeviceError{Op: protocol.OpErase, Status: protocol.StatusOutOfRange})

	var statusErr *protocol.StatusError
	assert.True(t, errors.As(err, &statusErr))
	assert.Equal(t, protocol.StatusOutOfRange, statusErr.Status)
	assert.Equal(t, protocol.OpErase, statusErr.Operation)
}
