//go:build linux && (386 || amd64 || arm || arm64 || riscv64 || loong64 || s390x)

package mtd

import (
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/moffa90/go-flashdev/protocol"
)

// ioctl requests from <mtd/mtd-abi.h>.
const (
	memGetInfo     = 0x80204D01 // _IOR('M', 1, struct mtd_info_user)
	memErase       = 0x40084D02 // _IOW('M', 2, struct erase_info_user)
	memGetBadBlock = 0x40084D0B // _IOW('M', 11, __kernel_loff_t)
	memWrite       = 0xC0304D18 // _IOWR('M', 24, struct mtd_write_req)
	memRead        = 0xC0304D1A // _IOWR('M', 26, struct mtd_read_req)
)

// mtd_write_req modes.
const (
	opsAutoOOB = 1
	opsRaw     = 2
)

// mtdInfoUser mirrors struct mtd_info_user.
type mtdInfoUser struct {
	Type      uint8
	_         [3]byte
	Flags     uint32
	Size      uint32
	EraseSize uint32
	WriteSize uint32
	OOBSize   uint32
	_         uint64
}

// eraseInfoUser mirrors struct erase_info_user.
type eraseInfoUser struct {
	Start  uint32
	Length uint32
}

// mtdReq mirrors struct mtd_write_req and struct mtd_read_req.
type mtdReq struct {
	Start   uint64
	Len     uint64
	OOBLen  uint64
	UsrData uint64
	UsrOOB  uint64
	Mode    uint8
	_       [7]byte
}

type linuxChip struct {
	fd   int
	geom mtdInfoUser
}

func openChip(path string) (chip, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}

	c := &linuxChip{fd: fd}
	if _, errno := c.ioctl(memGetInfo, unsafe.Pointer(&c.geom)); errno != 0 {
		unix.Close(fd)
		return nil, errno
	}
	return c, nil
}

func (c *linuxChip) ioctl(req uintptr, arg unsafe.Pointer) (uintptr, unix.Errno) {
	r, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(c.fd), req, uintptr(arg))
	return r, errno
}

func status(errno unix.Errno) int32 {
	return -int32(errno)
}

func (c *linuxChip) info() (protocol.Info, int32) {
	return protocol.Info{
		MetaSize:  c.geom.OOBSize,
		WriteSize: c.geom.WriteSize,
		EraseSize: c.geom.EraseSize,
	}, protocol.StatusOK
}

// writeRaw programs data and out-of-band bytes page by page without ECC.
func (c *linuxChip) writeRaw(addr uint32, data []byte) int32 {
	if c.geom.WriteSize == 0 {
		return protocol.StatusNotSupported
	}

	pos := 0
	for _, span := range splitRaw(addr, uint32(len(data)), c.geom.WriteSize, c.geom.OOBSize) {
		if span.oobLen > 0 && span.oobOff > 0 {
			return protocol.StatusInvalidArgs
		}

		req := mtdReq{Start: span.offset + uint64(span.dataOff), Mode: opsRaw}
		dataPart := data[pos : pos+int(span.dataLen)]
		oobPart := data[pos+int(span.dataLen) : pos+int(span.dataLen+span.oobLen)]
		if len(dataPart) > 0 {
			req.Len = uint64(len(dataPart))
			req.UsrData = uint64(uintptr(unsafe.Pointer(&dataPart[0])))
		}
		if len(oobPart) > 0 {
			req.OOBLen = uint64(len(oobPart))
			req.UsrOOB = uint64(uintptr(unsafe.Pointer(&oobPart[0])))
		}

		_, errno := c.ioctl(memWrite, unsafe.Pointer(&req))
		runtime.KeepAlive(data)
		if errno != 0 {
			return status(errno)
		}
		pos += int(span.dataLen + span.oobLen)
	}

	return int32(pos)
}

// writeMeta places data in the free out-of-band bytes of the unit's first page.
func (c *linuxChip) writeMeta(addr uint32, data []byte) int32 {
	if len(data) == 0 {
		return protocol.StatusInvalidArgs
	}

	req := mtdReq{
		Start:  uint64(addr),
		OOBLen: uint64(len(data)),
		UsrOOB: uint64(uintptr(unsafe.Pointer(&data[0]))),
		Mode:   opsAutoOOB,
	}
	_, errno := c.ioctl(memWrite, unsafe.Pointer(&req))
	runtime.KeepAlive(data)
	if errno != 0 {
		return status(errno)
	}
	return int32(len(data))
}

func (c *linuxChip) erase(addr, length uint32) int32 {
	ei := eraseInfoUser{Start: addr, Length: length}
	if _, errno := c.ioctl(memErase, unsafe.Pointer(&ei)); errno != 0 {
		return status(errno)
	}
	return protocol.StatusOK
}

func (c *linuxChip) isBad(addr uint32) int32 {
	offset := int64(addr)
	r, errno := c.ioctl(memGetBadBlock, unsafe.Pointer(&offset))
	if errno != 0 {
		return status(errno)
	}
	if r != 0 {
		return 1
	}
	return 0
}

// readRaw reads data and out-of-band bytes page by page without ECC.
func (c *linuxChip) readRaw(addr, length uint32) ([]byte, int32) {
	if c.geom.WriteSize == 0 {
		return nil, protocol.StatusNotSupported
	}

	out := make([]byte, 0, length)
	oob := make([]byte, c.geom.OOBSize)
	for _, span := range splitRaw(addr, length, c.geom.WriteSize, c.geom.OOBSize) {
		data := make([]byte, span.dataLen)
		req := mtdReq{Start: span.offset + uint64(span.dataOff), Mode: opsRaw}
		if len(data) > 0 {
			req.Len = uint64(len(data))
			req.UsrData = uint64(uintptr(unsafe.Pointer(&data[0])))
		}
		if span.oobLen > 0 {
			req.OOBLen = uint64(len(oob))
			req.UsrOOB = uint64(uintptr(unsafe.Pointer(&oob[0])))
		}

		_, errno := c.ioctl(memRead, unsafe.Pointer(&req))
		runtime.KeepAlive(data)
		runtime.KeepAlive(oob)
		if errno != 0 {
			return nil, status(errno)
		}

		out = append(out, data...)
		out = append(out, oob[span.oobOff:span.oobOff+span.oobLen]...)
	}

	return out, int32(len(out))
}

func (c *linuxChip) Close() error {
	return unix.Close(c.fd)
}
