package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/moffa90/go-flashdev/protocol"
)

var (
	_ protocol.Service          = &Device{}
	_ protocol.AttributeService = &Device{}
)

// ErasedByte is the value of an erased flash byte.
const ErasedByte = 0xFF

// MarkerOffset is where meta writes land inside the out-of-band area of the
// first page of a unit. Bytes 0-1 hold the factory bad block marker.
const MarkerOffset = 2

// Config describes the simulated chip.
type Config struct {
	MetaSize  uint32
	WriteSize uint32
	EraseSize uint32
	TotalSize uint64
}

// DefaultConfig returns a small 2KiB-page NAND: 64 bytes out-of-band, 128KiB
// erase units, 64 units.
func DefaultConfig() Config {
	return Config{
		MetaSize:  64,
		WriteSize: 2048,
		EraseSize: 131072,
		TotalSize: 64 * 131072,
	}
}

// Validate reports whether the sizes describe a consistent chip.
func (c Config) Validate() error {
	switch {
	case c.MetaSize == 0 || c.WriteSize == 0 || c.EraseSize == 0 || c.TotalSize == 0:
		return errors.Errorf("all sizes must be positive: %+v", c)
	case c.EraseSize%c.WriteSize != 0:
		return errors.Errorf("erase size %d is not a multiple of write size %d", c.EraseSize, c.WriteSize)
	case c.TotalSize%uint64(c.EraseSize) != 0:
		return errors.Errorf("total size %d is not a multiple of erase size %d", c.TotalSize, c.EraseSize)
	case c.MetaSize < MarkerOffset+protocol.CleanMarkerSize:
		return errors.Errorf("meta size %d cannot hold a clean marker", c.MetaSize)
	}
	return nil
}

func (c Config) stride() uint64        { return uint64(c.WriteSize) + uint64(c.MetaSize) }
func (c Config) pagesPerBlock() uint64 { return uint64(c.EraseSize / c.WriteSize) }
func (c Config) blocks() uint64        { return c.TotalSize / uint64(c.EraseSize) }
func (c Config) rawSize() uint64       { return c.TotalSize / uint64(c.WriteSize) * c.stride() }

type faultKey struct {
	op   protocol.Opcode
	addr uint32
}

// Device simulates a NAND chip behind the Flash Driver Service and the
// Attribute Service. Programming can only clear bits, as on real NAND, so
// pages must be erased before they are rewritten.
//
// Device is safe for concurrent use.
type Device struct {
	mu sync.Mutex

	cfg    Config
	raw    []byte
	bad    map[uint64]bool
	faults map[faultKey]int32
	counts map[protocol.Opcode]int
}

// New returns an erased device. It panics if cfg is inconsistent.
//
// Example:
//
//	dev := sim.New(sim.DefaultConfig())
//	dev.MarkBad(1, 3)
//	client := flash.New(dev, dev)
func New(cfg Config) *Device {
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	raw := make([]byte, cfg.rawSize())
	for i := range raw {
		raw[i] = ErasedByte
	}

	return &Device{
		cfg:    cfg,
		raw:    raw,
		bad:    make(map[uint64]bool),
		faults: make(map[faultKey]int32),
		counts: make(map[protocol.Opcode]int),
	}
}

// Config returns the chip description.
func (d *Device) Config() Config {
	return d.cfg
}

// MarkBad flags erase units as bad.
func (d *Device) MarkBad(blocks ...uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, b := range blocks {
		d.bad[b] = true
	}
}

// InjectStatus forces every op request at addr to return status without
// touching the chip. Use protocol.OpAttribute with address 0 for the size query.
func (d *Device) InjectStatus(op protocol.Opcode, addr uint32, status int32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.faults[faultKey{op, addr}] = status
}

// ClearFaults removes every injected status.
func (d *Device) ClearFaults() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.faults = make(map[faultKey]int32)
}

// Requests returns how many op requests the device has served.
func (d *Device) Requests(op protocol.Opcode) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.counts[op]
}

// ResetCounters zeroes the request counters.
func (d *Device) ResetCounters() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.counts = make(map[protocol.Opcode]int)
}

// RawPage returns a copy of page p, data followed by out-of-band bytes.
func (d *Device) RawPage(p uint64) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	off := p * d.cfg.stride()
	return append([]byte(nil), d.raw[off:off+d.cfg.stride()]...)
}

// Marker returns a copy of the meta write area of erase unit b.
func (d *Device) Marker(b uint64) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	off := d.markerOffset(b)
	return append([]byte(nil), d.raw[off:off+protocol.CleanMarkerSize]...)
}

// Do implements protocol.Service. The handle is ignored; use a Bus to host
// several devices.
func (d *Device) Do(ctx context.Context, h protocol.DeviceHandle, req protocol.Request) (*protocol.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.counts[req.Opcode()]++

	if status, ok := d.faults[faultKey{req.Opcode(), req.Address()}]; ok {
		return &protocol.Response{Status: status}, nil
	}

	switch r := req.(type) {
	case protocol.InfoRequest:
		return d.info()
	case protocol.WriteRawRequest:
		return d.writeRaw(r), nil
	case protocol.WriteMetaRequest:
		return d.writeMeta(r), nil
	case protocol.EraseRequest:
		return d.erase(r), nil
	case protocol.IsBadRequest:
		return d.isBad(r), nil
	case protocol.ReadRawRequest:
		return d.readRaw(r), nil
	case protocol.AttributeRequest:
		return d.attribute(r.Key), nil
	default:
		return status(protocol.StatusNotSupported), nil
	}
}

// Attribute implements protocol.AttributeService.
func (d *Device) Attribute(ctx context.Context, h protocol.DeviceHandle, key string) (*protocol.Response, error) {
	return d.Do(ctx, h, protocol.AttributeRequest{Key: key})
}

func (d *Device) info() (*protocol.Response, error) {
	payload, err := protocol.Info{
		MetaSize:  d.cfg.MetaSize,
		WriteSize: d.cfg.WriteSize,
		EraseSize: d.cfg.EraseSize,
	}.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &protocol.Response{Status: protocol.StatusOK, Payload: payload}, nil
}

func (d *Device) attribute(key string) *protocol.Response {
	if key != protocol.AttrSize {
		return status(protocol.StatusNotSupported)
	}
	return &protocol.Response{Status: protocol.StatusOK, Payload: protocol.EncodeAttributeValue(d.cfg.TotalSize)}
}

// writeRaw programs data at a raw (page stride) address.
func (d *Device) writeRaw(r protocol.WriteRawRequest) *protocol.Response {
	addr := uint64(r.Addr)
	if addr%d.cfg.stride() != 0 {
		return status(protocol.StatusInvalidArgs)
	}
	if addr+uint64(len(r.Data)) > uint64(len(d.raw)) {
		return status(protocol.StatusOutOfRange)
	}

	firstPage := addr / d.cfg.stride()
	lastPage := (addr + uint64(len(r.Data)) - 1) / d.cfg.stride()
	for p := firstPage; p <= lastPage; p++ {
		if d.bad[p/d.cfg.pagesPerBlock()] {
			return status(protocol.StatusIO)
		}
	}

	program(d.raw[addr:], r.Data)
	return status(int32(len(r.Data)))
}

// writeMeta programs data into the out-of-band area of the unit at a data address.
func (d *Device) writeMeta(r protocol.WriteMetaRequest) *protocol.Response {
	block, resp := d.unit(r.Addr)
	if resp != nil {
		return resp
	}
	if uint64(len(r.Data)) > uint64(d.cfg.MetaSize)-MarkerOffset {
		return status(protocol.StatusInvalidArgs)
	}
	if d.bad[block] {
		return status(protocol.StatusIO)
	}

	program(d.raw[d.markerOffset(block):], r.Data)
	return status(int32(len(r.Data)))
}

func (d *Device) erase(r protocol.EraseRequest) *protocol.Response {
	first, resp := d.unit(r.Addr)
	if resp != nil {
		return resp
	}
	if r.Length == 0 || r.Length%d.cfg.EraseSize != 0 {
		return status(protocol.StatusInvalidArgs)
	}

	count := uint64(r.Length / d.cfg.EraseSize)
	if first+count > d.cfg.blocks() {
		return status(protocol.StatusOutOfRange)
	}
	for b := first; b < first+count; b++ {
		if d.bad[b] {
			return status(protocol.StatusIO)
		}
	}

	blockBytes := d.cfg.pagesPerBlock() * d.cfg.stride()
	start := first * blockBytes
	end := (first + count) * blockBytes
	for i := start; i < end; i++ {
		d.raw[i] = ErasedByte
	}
	return status(protocol.StatusOK)
}

func (d *Device) isBad(r protocol.IsBadRequest) *protocol.Response {
	block, resp := d.unit(r.Addr)
	if resp != nil {
		return resp
	}
	if d.bad[block] {
		return status(1)
	}
	return status(0)
}

// readRaw reads from the raw (page stride) address space.
func (d *Device) readRaw(r protocol.ReadRawRequest) *protocol.Response {
	if r.Length == 0 {
		return status(protocol.StatusInvalidArgs)
	}
	addr := uint64(r.Addr)
	if addr+uint64(r.Length) > uint64(len(d.raw)) {
		return status(protocol.StatusOutOfRange)
	}

	payload := append([]byte(nil), d.raw[addr:addr+uint64(r.Length)]...)
	return &protocol.Response{Status: int32(r.Length), Payload: payload}
}

// unit maps an aligned data address to its erase unit, or returns an error response.
func (d *Device) unit(addr uint32) (uint64, *protocol.Response) {
	if addr%d.cfg.EraseSize != 0 {
		return 0, status(protocol.StatusInvalidArgs)
	}
	block := uint64(addr / d.cfg.EraseSize)
	if block >= d.cfg.blocks() {
		return 0, status(protocol.StatusOutOfRange)
	}
	return block, nil
}

// markerOffset is the raw offset of the meta write area of unit b.
func (d *Device) markerOffset(b uint64) uint64 {
	page := b * d.cfg.pagesPerBlock()
	return page*d.cfg.stride() + uint64(d.cfg.WriteSize) + MarkerOffset
}

// program clears bits of dst where data has zeros; NAND cannot set bits
// without an erase.
func program(dst, data []byte) {
	for i, b := range data {
		dst[i] &= b
	}
}

func status(code int32) *protocol.Response {
	return &protocol.Response{Status: code}
}

func (d *Device) String() string {
	return fmt.Sprintf("sim nand %d+%d/%d x%d", d.cfg.WriteSize, d.cfg.MetaSize, d.cfg.EraseSize, d.cfg.blocks())
}
