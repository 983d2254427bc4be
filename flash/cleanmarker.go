package flash

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/multierr"

	"github.com/moffa90/go-flashdev/protocol"
)

// CleanMarkerResult counts the units visited by WriteCleanMarkers.
type CleanMarkerResult struct {
	// Attempted is the number of good units a marker write was tried on
	Attempted int

	// Succeeded is the number of units that received a marker
	Succeeded int

	// Failed is the number of good units whose check or write failed
	Failed int

	// Skipped is the number of bad units left untouched
	Skipped int
}

// WriteCleanMarkers writes the JFFS2 clean marker into the out-of-band area of
// every good erase unit in [start, start+size), so the filesystem can skip
// scanning them at mount time. Bad units are skipped without a write.
//
// Per-unit failures are counted rather than aborting the pass. If any unit
// failed, the returned error is a *PartialFailure carrying the counts and the
// combined per-unit errors. If ctx is cancelled mid-pass, the counts so far
// are returned with the wrapped context error.
func (c *Client) WriteCleanMarkers(ctx context.Context, h protocol.DeviceHandle, start, size uint32) (CleanMarkerResult, error) {
	var result CleanMarkerResult

	g, err := c.Geometry(ctx, h)
	if err != nil {
		return result, err
	}
	if !g.Aligned(uint64(start)) {
		return result, &AlignmentError{Address: uint64(start), EraseSize: g.EraseSize}
	}

	end := uint64(start) + uint64(size)
	if end > math.MaxUint32+1 {
		return result, &AddressError{Unit: "byte", Index: end, Stride: 1}
	}

	marker, err := protocol.NewCleanMarker().MarshalBinary()
	if err != nil {
		return result, err
	}

	startTime := time.Now()
	total := int((uint64(size) + uint64(g.EraseSize) - 1) / uint64(g.EraseSize))
	var errs error

	for addr := uint64(start); addr < end; addr += uint64(g.EraseSize) {
		if err := ctx.Err(); err != nil {
			visited := result.Attempted + result.Skipped
			c.logInfo("clean markers cancelled",
				"device", h.String(),
				"visited", visited,
				"total", total,
				"failed", result.Failed,
			)
			return result, fmt.Errorf("cancelled after %d of %d units: %w", visited, total, err)
		}

		unit := uint32(addr)
		bad, err := c.IsBad(ctx, h, unit)
		switch {
		case err != nil:
			result.Attempted++
			result.Failed++
			errs = multierr.Append(errs, fmt.Errorf("unit 0x%08X: %w", unit, err))
		case bad:
			result.Skipped++
			c.logDebug("skipping bad unit", "device", h.String(), "address", fmt.Sprintf("0x%08X", unit))
		default:
			result.Attempted++
			if _, err := c.WriteMeta(ctx, h, unit, marker); err != nil {
				result.Failed++
				errs = multierr.Append(errs, fmt.Errorf("unit 0x%08X: %w", unit, err))
			} else {
				result.Succeeded++
			}
		}

		done := result.Attempted + result.Skipped
		c.reportProgress(Progress{
			Phase:        PhaseMarking,
			Current:      done,
			Total:        total,
			Percentage:   percent(done, total),
			BytesWritten: result.Succeeded * len(marker),
			BadBlocks:    result.Skipped,
			ElapsedTime:  time.Since(startTime),
		})
	}

	c.logInfo("clean markers written",
		"device", h.String(),
		"written", result.Succeeded,
		"failed", result.Failed,
		"skipped", result.Skipped,
	)

	if errs != nil {
		return result, &PartialFailure{
			Attempted: result.Attempted,
			Succeeded: result.Succeeded,
			Failed:    result.Failed,
			Skipped:   result.Skipped,
			Err:       errs,
		}
	}

	return result, nil
}
