package flash

import (
	"context"
	"fmt"

	"github.com/moffa90/go-flashdev/protocol"
)

// WriteRaw programs data at page p. The raw address is p*(MetaSize+WriteSize),
// so data normally carries a full page followed by its out-of-band bytes.
//
// The write succeeds only if the service reports exactly len(data) bytes
// written; anything else is a *ShortWriteError.
func (c *Client) WriteRaw(ctx context.Context, h protocol.DeviceHandle, p Page, data []byte) (int, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("data cannot be empty")
	}

	g, err := c.Geometry(ctx, h)
	if err != nil {
		return 0, err
	}

	addr, err := g.PageAddress(p)
	if err != nil {
		return 0, err
	}

	return c.write(ctx, h, protocol.WriteRawRequest{Addr: addr, Data: data})
}

// WriteMeta programs data into the out-of-band area of the erase unit at the
// aligned byte address addr. It is the write path of the clean marker writer.
func (c *Client) WriteMeta(ctx context.Context, h protocol.DeviceHandle, addr uint32, data []byte) (int, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("data cannot be empty")
	}

	g, err := c.Geometry(ctx, h)
	if err != nil {
		return 0, err
	}
	if !g.Aligned(uint64(addr)) {
		return 0, &AlignmentError{Address: uint64(addr), EraseSize: g.EraseSize}
	}

	return c.write(ctx, h, protocol.WriteMetaRequest{Addr: addr, Data: data})
}

// ReadRaw reads n bytes at byte address addr. Reads are byte addressed
// because they serve verification rather than page I/O.
func (c *Client) ReadRaw(ctx context.Context, h protocol.DeviceHandle, addr uint32, n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("read length must be positive, got %d", n)
	}
	if n > protocol.MaxPayloadSize {
		return nil, fmt.Errorf("read length %d exceeds maximum %d bytes", n, protocol.MaxPayloadSize)
	}

	resp, err := c.do(ctx, h, protocol.ReadRawRequest{Addr: addr, Length: uint32(n)})
	if err != nil {
		return nil, err
	}

	if resp.Status != int32(n) {
		return nil, &ShortReadError{Address: addr, Requested: n, Actual: int(resp.Status)}
	}
	if len(resp.Payload) != n {
		return nil, &ShortReadError{Address: addr, Requested: n, Actual: len(resp.Payload)}
	}

	return resp.Payload, nil
}

// write issues a raw or meta write and checks the reported length.
func (c *Client) write(ctx context.Context, h protocol.DeviceHandle, req protocol.Request) (int, error) {
	resp, err := c.do(ctx, h, req)
	if err != nil {
		return 0, err
	}

	requested := len(req.Payload())
	if resp.Status != int32(requested) {
		c.logError("short write",
			"op", req.Opcode().String(),
			"address", fmt.Sprintf("0x%08X", req.Address()),
			"requested", requested,
			"status", resp.Status,
		)
		return 0, &ShortWriteError{Address: req.Address(), Requested: requested, Actual: int(resp.Status)}
	}

	return requested, nil
}
