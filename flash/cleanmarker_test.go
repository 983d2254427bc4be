package flash

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/moffa90/go-flashdev/protocol"
	"github.com/moffa90/go-flashdev/sim"
)

var jffs2Marker = []byte{0x85, 0x19, 0x03, 0x20, 0x08, 0x00, 0x00, 0x00}

func TestWriteCleanMarkers(t *testing.T) {
	client, dev := newTestClient(t)
	dev.MarkBad(2)

	result, err := client.WriteCleanMarkers(context.Background(), handleA, 0, 5*unit)
	require.NoError(t, err)
	assert.Equal(t, CleanMarkerResult{Attempted: 4, Succeeded: 4, Failed: 0, Skipped: 1}, result)

	for _, b := range []uint64{0, 1, 3, 4} {
		assert.Equal(t, jffs2Marker, dev.Marker(b), "block %d", b)
	}
	erased := []byte{sim.ErasedByte, sim.ErasedByte, sim.ErasedByte, sim.ErasedByte,
		sim.ErasedByte, sim.ErasedByte, sim.ErasedByte, sim.ErasedByte}
	assert.Equal(t, erased, dev.Marker(2), "bad unit must not be written")
	assert.Equal(t, 4, dev.Requests(protocol.OpWriteMeta))
}

func TestWriteCleanMarkersPartialFailure(t *testing.T) {
	client, dev := newTestClient(t)
	dev.InjectStatus(protocol.OpWriteMeta, 1*unit, protocol.StatusIO)
	dev.InjectStatus(protocol.OpIsBad, 3*unit, protocol.StatusIO)
	dev.MarkBad(4)

	result, err := client.WriteCleanMarkers(context.Background(), handleA, 0, 6*unit)
	assert.Equal(t, CleanMarkerResult{Attempted: 5, Succeeded: 3, Failed: 2, Skipped: 1}, result)

	var partial *PartialFailure
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 2, partial.Failed)
	assert.Equal(t, 3, partial.Succeeded)
	assert.Len(t, multierr.Errors(partial.Err), 2)

	var short *ShortWriteError
	assert.ErrorAs(t, err, &short)
	var devErr *DeviceError
	assert.ErrorAs(t, err, &devErr)

	// Units after the failures were still processed.
	assert.Equal(t, jffs2Marker, dev.Marker(5))
}

func TestWriteCleanMarkersMisaligned(t *testing.T) {
	client, dev := newTestClient(t)

	_, err := client.WriteCleanMarkers(context.Background(), handleA, unit/2, unit)
	var align *AlignmentError
	require.ErrorAs(t, err, &align)
	assert.Equal(t, 0, dev.Requests(protocol.OpIsBad))
}

func TestWriteCleanMarkersCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client, dev := newTestClient(t, WithProgressCallback(func(p Progress) {
		if p.Current == 2 {
			cancel()
		}
	}))

	result, err := client.WriteCleanMarkers(ctx, handleA, 0, 5*unit)
	assert.Equal(t, CleanMarkerResult{Attempted: 2, Succeeded: 2}, result)
	require.ErrorIs(t, err, context.Canceled)
	assert.ErrorContains(t, err, "cancelled after 2 of 5 units")

	var partial *PartialFailure
	assert.False(t, errors.As(err, &partial), "cancellation is not a partial failure")
	assert.Equal(t, 2, dev.Requests(protocol.OpWriteMeta))
}

func TestWriteCleanMarkersProgress(t *testing.T) {
	var updates []Progress
	client, dev := newTestClient(t, WithProgressCallback(func(p Progress) {
		updates = append(updates, p)
	}))
	dev.MarkBad(0)

	_, err := client.WriteCleanMarkers(context.Background(), handleA, 0, 3*unit)
	require.NoError(t, err)

	require.Len(t, updates, 3)
	assert.Equal(t, PhaseMarking, updates[2].Phase)
	assert.Equal(t, 16, updates[2].BytesWritten)
	assert.Equal(t, 1, updates[2].BadBlocks)
}
