package flash

import (
	"fmt"
	"math"
)

// Page is a programmable page index. Its device address is Page*(MetaSize+WriteSize).
type Page uint32

// Block is an erase unit index. Its device address is Block*EraseSize.
type Block uint32

// Geometry describes the addressable layout of a flash device. All sizes are
// in bytes and positive once resolved.
type Geometry struct {
	// MetaSize is the out-of-band (spare) bytes per page
	MetaSize uint32

	// WriteSize is the data bytes per page
	WriteSize uint32

	// EraseSize is the bytes per erase unit
	EraseSize uint32

	// TotalSize is the logical size of the device, from the Attribute Service
	TotalSize uint64
}

// Validate reports whether every field is positive.
func (g Geometry) Validate() error {
	switch {
	case g.MetaSize == 0:
		return fmt.Errorf("meta size is zero")
	case g.WriteSize == 0:
		return fmt.Errorf("write size is zero")
	case g.EraseSize == 0:
		return fmt.Errorf("erase size is zero")
	case g.TotalSize == 0:
		return fmt.Errorf("total size is zero")
	}
	return nil
}

// PageStride is the size of one programmable page including its out-of-band area.
func (g Geometry) PageStride() uint32 {
	return g.MetaSize + g.WriteSize
}

// PagesPerBlock is the number of pages in one erase unit.
func (g Geometry) PagesPerBlock() uint32 {
	return g.EraseSize / g.WriteSize
}

// BlockCount is the number of erase units on the device.
func (g Geometry) BlockCount() uint64 {
	return g.TotalSize / uint64(g.EraseSize)
}

// PageAddress returns the raw byte address of page p.
func (g Geometry) PageAddress(p Page) (uint32, error) {
	return scaled("page", uint64(p), g.PageStride())
}

// BlockAddress returns the byte address of erase unit b.
func (g Geometry) BlockAddress(b Block) (uint32, error) {
	return scaled("block", uint64(b), g.EraseSize)
}

// BlockOf returns the erase unit containing byte address addr.
func (g Geometry) BlockOf(addr uint64) Block {
	return Block(addr / uint64(g.EraseSize))
}

// Aligned reports whether addr is on an erase unit boundary.
func (g Geometry) Aligned(addr uint64) bool {
	return addr%uint64(g.EraseSize) == 0
}

func (g Geometry) String() string {
	return fmt.Sprintf("page %d+%d, erase %d, total %d", g.WriteSize, g.MetaSize, g.EraseSize, g.TotalSize)
}

func scaled(unit string, index uint64, stride uint32) (uint32, error) {
	addr := index * uint64(stride)
	if addr > math.MaxUint32 {
		return 0, &AddressError{Unit: unit, Index: index, Stride: stride}
	}
	return uint32(addr), nil
}
