package flash

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/moffa90/go-flashdev/protocol"
)

// IsBad queries the bad block marker of the erase unit at byte address addr.
// The address must be unit aligned; that is the caller's responsibility.
// Results are never cached.
func (c *Client) IsBad(ctx context.Context, h protocol.DeviceHandle, addr uint32) (bool, error) {
	resp, err := c.do(ctx, h, protocol.IsBadRequest{Addr: addr})
	if err != nil {
		return false, err
	}
	if !resp.OK() {
		return false, &DeviceError{Op: protocol.OpIsBad, Handle: h, Status: resp.Status}
	}

	return resp.Status != 0, nil
}

// IsBlockBad queries the bad block marker of erase unit b.
func (c *Client) IsBlockBad(ctx context.Context, h protocol.DeviceHandle, b Block) (bool, error) {
	g, err := c.Geometry(ctx, h)
	if err != nil {
		return false, err
	}

	addr, err := g.BlockAddress(b)
	if err != nil {
		return false, err
	}

	return c.IsBad(ctx, h, addr)
}

// BadBlockTable is a bounded, ascending list of unusable erase unit indices
// (the DBBT consumed by the boot ROM or filesystem).
type BadBlockTable struct {
	// Entries are block indices relative to the partition origin, ascending and unique
	Entries []uint32

	// Capacity is the maximum number of entries
	Capacity int
}

// NewBadBlockTable returns an empty table bounded by capacity.
func NewBadBlockTable(capacity int) *BadBlockTable {
	if capacity < 0 {
		capacity = 0
	}
	return &BadBlockTable{
		Entries:  make([]uint32, 0, capacity),
		Capacity: capacity,
	}
}

// Len returns the number of entries.
func (t *BadBlockTable) Len() int {
	return len(t.Entries)
}

// Full reports whether another entry would exceed the capacity.
func (t *BadBlockTable) Full() bool {
	return len(t.Entries) >= t.Capacity
}

// Contains reports whether block is listed.
func (t *BadBlockTable) Contains(block uint32) bool {
	i := sort.Search(len(t.Entries), func(i int) bool { return t.Entries[i] >= block })
	return i < len(t.Entries) && t.Entries[i] == block
}

// add appends block, which must be larger than every existing entry.
// It returns false, leaving the table unchanged, when the table is full.
func (t *BadBlockTable) add(block uint32) bool {
	if t.Full() {
		return false
	}
	t.Entries = append(t.Entries, block)
	return true
}

// ScanRange builds a bad block table for the units in [start, start+size).
// Each bad unit at address addr is recorded as (partitionOffset+addr)/EraseSize.
//
// It returns the table and the number of units scanned. If the table would
// exceed capacity, the scan stops immediately and a *CapacityExceededError is
// returned together with the full table; the flash should then be considered
// unusable. Detector errors stop the scan and are returned with the partial table.
func (c *Client) ScanRange(ctx context.Context, h protocol.DeviceHandle, start, size, partitionOffset uint32, capacity int) (*BadBlockTable, int, error) {
	table := NewBadBlockTable(capacity)

	g, err := c.Geometry(ctx, h)
	if err != nil {
		return table, 0, err
	}
	if !g.Aligned(uint64(start)) {
		return table, 0, &AlignmentError{Address: uint64(start), EraseSize: g.EraseSize}
	}

	end := uint64(start) + uint64(size)
	if end > math.MaxUint32+1 {
		return table, 0, &AddressError{Unit: "byte", Index: end, Stride: 1}
	}

	startTime := time.Now()
	total := int((uint64(size) + uint64(g.EraseSize) - 1) / uint64(g.EraseSize))
	scanned := 0

	for addr := uint64(start); addr < end; addr += uint64(g.EraseSize) {
		bad, err := c.IsBad(ctx, h, uint32(addr))
		if err != nil {
			return table, scanned, err
		}
		scanned++

		if bad {
			block := uint32((uint64(partitionOffset) + addr) / uint64(g.EraseSize))
			if !table.add(block) {
				c.logError("bad block table full",
					"device", h.String(),
					"capacity", capacity,
					"scanned", scanned,
				)
				return table, scanned, &CapacityExceededError{
					Capacity: capacity,
					Scanned:  scanned,
					Table:    table,
				}
			}
			c.logDebug("bad block", "device", h.String(), "block", block)
		}

		c.reportProgress(Progress{
			Phase:       PhaseScanning,
			Current:     scanned,
			Total:       total,
			Percentage:  percent(scanned, total),
			BadBlocks:   table.Len(),
			ElapsedTime: time.Since(startTime),
		})
	}

	c.logInfo("scan complete",
		"device", h.String(),
		"scanned", scanned,
		"bad", table.Len(),
	)

	return table, scanned, nil
}
