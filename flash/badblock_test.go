package flash

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-flashdev/protocol"
)

const unit = 131072

func TestIsBad(t *testing.T) {
	client, dev := newTestClient(t)
	dev.MarkBad(4)
	ctx := context.Background()

	bad, err := client.IsBad(ctx, handleA, 4*unit)
	require.NoError(t, err)
	assert.True(t, bad)

	bad, err = client.IsBlockBad(ctx, handleA, 5)
	require.NoError(t, err)
	assert.False(t, bad)

	// Results are never cached.
	dev.MarkBad(5)
	bad, err = client.IsBlockBad(ctx, handleA, 5)
	require.NoError(t, err)
	assert.True(t, bad)
	assert.Equal(t, 3, dev.Requests(protocol.OpIsBad))
}

func TestIsBadDeviceError(t *testing.T) {
	client, dev := newTestClient(t)
	dev.InjectStatus(protocol.OpIsBad, unit, protocol.StatusIO)

	_, err := client.IsBad(context.Background(), handleA, unit)
	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, protocol.OpIsBad, devErr.Op)
}

func TestScanRange(t *testing.T) {
	tests := []struct {
		name            string
		bad             []uint64
		start, size     uint32
		partitionOffset uint32
		capacity        int
		wantEntries     []uint32
		wantScanned     int
	}{
		{
			name:        "two bad of four",
			bad:         []uint64{1, 3},
			size:        4 * unit,
			capacity:    8,
			wantEntries: []uint32{1, 3},
			wantScanned: 4,
		},
		{
			name:        "no bad units",
			size:        4 * unit,
			capacity:    8,
			wantEntries: []uint32{},
			wantScanned: 4,
		},
		{
			name:        "empty range",
			capacity:    8,
			wantEntries: []uint32{},
			wantScanned: 0,
		},
		{
			name:        "partial last unit",
			bad:         []uint64{2},
			size:        2*unit + 1,
			capacity:    8,
			wantEntries: []uint32{2},
			wantScanned: 3,
		},
		{
			name:            "partition relative",
			bad:             []uint64{10, 12},
			start:           10 * unit,
			size:            4 * unit,
			partitionOffset: 0,
			capacity:        8,
			wantEntries:     []uint32{10, 12},
			wantScanned:     4,
		},
		{
			name:            "partition offset shifts entries",
			bad:             []uint64{1},
			size:            2 * unit,
			partitionOffset: 32 * unit,
			capacity:        8,
			wantEntries:     []uint32{33},
			wantScanned:     2,
		},
		{
			name:        "exactly at capacity",
			bad:         []uint64{0, 1},
			size:        3 * unit,
			capacity:    2,
			wantEntries: []uint32{0, 1},
			wantScanned: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, dev := newTestClient(t)
			dev.MarkBad(tt.bad...)

			table, scanned, err := client.ScanRange(context.Background(), handleA, tt.start, tt.size, tt.partitionOffset, tt.capacity)
			require.NoError(t, err)
			assert.Equal(t, tt.wantScanned, scanned)
			assert.Equal(t, tt.capacity, table.Capacity)
			if diff := cmp.Diff(tt.wantEntries, table.Entries); diff != "" {
				t.Errorf("entries mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestScanRangeCapacityExceeded(t *testing.T) {
	client, dev := newTestClient(t)
	dev.MarkBad(0, 2, 3)

	table, scanned, err := client.ScanRange(context.Background(), handleA, 0, 6*unit, 0, 2)

	var full *CapacityExceededError
	require.ErrorAs(t, err, &full)
	assert.Equal(t, 2, full.Capacity)
	assert.Equal(t, 4, full.Scanned)
	assert.Same(t, table, full.Table)
	assert.Equal(t, []uint32{0, 2}, table.Entries)
	assert.Equal(t, 4, scanned)
	assert.Equal(t, 4, dev.Requests(protocol.OpIsBad), "scan stops at the overflowing unit")
}

func TestScanRangeErrors(t *testing.T) {
	t.Run("misaligned start", func(t *testing.T) {
		client, dev := newTestClient(t)
		_, _, err := client.ScanRange(context.Background(), handleA, 100, unit, 0, 4)
		var align *AlignmentError
		require.ErrorAs(t, err, &align)
		assert.Equal(t, 0, dev.Requests(protocol.OpIsBad))
	})

	t.Run("detector failure", func(t *testing.T) {
		client, dev := newTestClient(t)
		dev.MarkBad(0)
		dev.InjectStatus(protocol.OpIsBad, 2*unit, protocol.StatusIO)

		table, scanned, err := client.ScanRange(context.Background(), handleA, 0, 4*unit, 0, 4)
		var devErr *DeviceError
		require.ErrorAs(t, err, &devErr)
		assert.Equal(t, 2, scanned)
		assert.Equal(t, []uint32{0}, table.Entries)
	})

	t.Run("range past address space", func(t *testing.T) {
		client, _ := newTestClient(t)
		_, _, err := client.ScanRange(context.Background(), handleA, 1<<31, 1<<31+unit, 0, 4)
		var addrErr *AddressError
		require.ErrorAs(t, err, &addrErr)
	})
}

func TestScanRangeProgress(t *testing.T) {
	var updates []Progress
	client, dev := newTestClient(t, WithProgressCallback(func(p Progress) {
		updates = append(updates, p)
	}))
	dev.MarkBad(1)

	_, _, err := client.ScanRange(context.Background(), handleA, 0, 4*unit, 0, 4)
	require.NoError(t, err)

	require.Len(t, updates, 4)
	last := updates[3]
	assert.Equal(t, PhaseScanning, last.Phase)
	assert.Equal(t, 4, last.Current)
	assert.Equal(t, 4, last.Total)
	assert.Equal(t, 100.0, last.Percentage)
	assert.Equal(t, 1, last.BadBlocks)
}

func TestBadBlockTable(t *testing.T) {
	table := NewBadBlockTable(3)
	assert.Equal(t, 0, table.Len())
	assert.False(t, table.Full())

	require.True(t, table.add(2))
	require.True(t, table.add(7))
	require.True(t, table.add(9))
	assert.False(t, table.add(11))

	assert.True(t, table.Full())
	assert.True(t, table.Contains(7))
	assert.False(t, table.Contains(8))
	assert.Equal(t, []uint32{2, 7, 9}, table.Entries)

	assert.True(t, NewBadBlockTable(-1).Full())
}
