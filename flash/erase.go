package flash

import (
	"context"
	"math"

	"github.com/moffa90/go-flashdev/protocol"
)

// Erase erases count units starting at unit start. The erase is all or
// nothing: any negative status is a *DeviceError. A count of zero is a no-op.
func (c *Client) Erase(ctx context.Context, h protocol.DeviceHandle, start Block, count uint32) error {
	if count == 0 {
		return nil
	}

	g, err := c.Geometry(ctx, h)
	if err != nil {
		return err
	}

	addr, err := g.BlockAddress(start)
	if err != nil {
		return err
	}

	size := uint64(count) * uint64(g.EraseSize)
	if size > math.MaxUint32 || uint64(addr)+size > math.MaxUint32+1 {
		return &AddressError{Unit: "block", Index: uint64(start) + uint64(count), Stride: g.EraseSize}
	}

	resp, err := c.do(ctx, h, protocol.EraseRequest{Addr: addr, Length: uint32(size)})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &DeviceError{Op: protocol.OpErase, Handle: h, Status: resp.Status}
	}

	c.logDebug("erased", "device", h.String(), "block", start, "count", count)
	return nil
}
