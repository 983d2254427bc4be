package flash

import (
	"fmt"

	"github.com/moffa90/go-flashdev/protocol"
)

// TransportError indicates a request could not be delivered to, or its reply
// received from, the Flash Driver Service or the Attribute Service.
type TransportError struct {
	Op     protocol.Opcode
	Handle protocol.DeviceHandle
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s on device %s: transport: %v", e.Op, e.Handle, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DeviceError indicates the service returned a negative status.
type DeviceError struct {
	Op     protocol.Opcode
	Handle protocol.DeviceHandle
	Status int32
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s on device %s: %s (%d)", e.Op, e.Handle, protocol.StatusName(e.Status), e.Status)
}

// Unwrap exposes the status as a protocol.StatusError.
func (e *DeviceError) Unwrap() error {
	return &protocol.StatusError{Operation: e.Op, Status: e.Status}
}

// ShortWriteError indicates the service did not report writing exactly the
// requested number of bytes. Actual is the raw status, so it is negative when
// the device failed the write outright.
type ShortWriteError struct {
	Address   uint32
	Requested int
	Actual    int
}

func (e *ShortWriteError) Error() string {
	return fmt.Sprintf("short write at 0x%08X: requested %d bytes, device reported %d",
		e.Address, e.Requested, e.Actual)
}

// ShortReadError indicates the service returned fewer bytes than requested.
type ShortReadError struct {
	Address   uint32
	Requested int
	Actual    int
}

func (e *ShortReadError) Error() string {
	return fmt.Sprintf("short read at 0x%08X: requested %d bytes, got %d",
		e.Address, e.Requested, e.Actual)
}

// CapacityExceededError indicates the bad block table would overflow. The flash
// should be treated as unusable. Table holds the entries collected before the
// scan stopped and Scanned the number of units queried.
type CapacityExceededError struct {
	Capacity int
	Scanned  int
	Table    *BadBlockTable
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("too many bad blocks: table capacity %d exceeded after scanning %d units",
		e.Capacity, e.Scanned)
}

// NotResolvedError indicates geometry was required but could not be obtained.
type NotResolvedError struct {
	Handle protocol.DeviceHandle
	Reason string
}

func (e *NotResolvedError) Error() string {
	return fmt.Sprintf("geometry of device %s not resolved: %s", e.Handle, e.Reason)
}

// AddressError indicates a page or block index does not fit the 32-bit device address space.
type AddressError struct {
	Unit   string
	Index  uint64
	Stride uint32
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("%s %d with stride %d is outside the 32-bit address space", e.Unit, e.Index, e.Stride)
}

// AlignmentError indicates a byte address that must sit on an erase unit boundary does not.
type AlignmentError struct {
	Address   uint64
	EraseSize uint32
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("address 0x%X is not aligned to erase size 0x%X", e.Address, e.EraseSize)
}

// PartialFailure reports a clean marker pass in which some units failed.
// Err combines the per-unit errors.
type PartialFailure struct {
	Attempted int
	Succeeded int
	Failed    int
	Skipped   int
	Err       error
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("clean markers: %d of %d units failed (%d written, %d bad skipped): %v",
		e.Failed, e.Attempted, e.Succeeded, e.Skipped, e.Err)
}

func (e *PartialFailure) Unwrap() error {
	return e.Err
}

// OutOfSpaceError indicates the device ran out of good erase units before the
// whole image was programmed.
type OutOfSpaceError struct {
	PagesWritten int
	PagesTotal   int
	LastBlock    Block
}

func (e *OutOfSpaceError) Error() string {
	return fmt.Sprintf("out of good blocks at block %d: %d of %d pages written",
		e.LastBlock, e.PagesWritten, e.PagesTotal)
}

// VerifyError indicates a page read back differs from what was written.
type VerifyError struct {
	Page    Page
	Address uint32
	Offset  int
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("verify page %d at 0x%08X: mismatch at byte %d", e.Page, e.Address, e.Offset)
}
