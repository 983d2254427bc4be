// Package mtd serves the Flash Driver Service and Attribute Service from Linux
// MTD character devices (/dev/mtdN).
//
// The object number of a device handle selects the MTD device: handle
// {Object: 3} is /dev/mtd3, and its attributes are read from
// /sys/class/mtd/mtd3. Device errors are reported as negated errno values,
// which match the protocol status codes.
package mtd

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/moffa90/go-flashdev/protocol"
)

var (
	_ protocol.Service          = &Service{}
	_ protocol.AttributeService = &Service{}
)

// Default locations of MTD device nodes and their sysfs attributes.
const (
	DefaultDevDir   = "/dev"
	DefaultSysfsDir = "/sys/class/mtd"
)

// chip is one open MTD device. Methods return a protocol status.
type chip interface {
	info() (protocol.Info, int32)
	writeRaw(addr uint32, data []byte) int32
	writeMeta(addr uint32, data []byte) int32
	erase(addr, length uint32) int32
	isBad(addr uint32) int32
	readRaw(addr, length uint32) ([]byte, int32)
	Close() error
}

// Config holds the service configuration.
type Config struct {
	// DevDir is the directory holding mtdN device nodes
	DevDir string

	// SysfsDir is the directory holding mtdN attribute directories
	SysfsDir string
}

// Option is a functional option for configuring the Service.
type Option func(*Config)

// WithDevDir overrides the device node directory. Default is /dev.
func WithDevDir(dir string) Option {
	return func(c *Config) {
		c.DevDir = dir
	}
}

// WithSysfsDir overrides the sysfs attribute directory. Default is /sys/class/mtd.
func WithSysfsDir(dir string) Option {
	return func(c *Config) {
		c.SysfsDir = dir
	}
}

// Service opens MTD devices on first use and keeps them open until Close.
//
// Service is safe for concurrent use.
type Service struct {
	mu     sync.Mutex
	config Config
	chips  map[uint32]chip
	open   func(path string) (chip, error)
}

// New returns a service over the MTD devices of this host.
//
// Example:
//
//	svc := mtd.New()
//	defer svc.Close()
//	client := flash.New(svc, svc)
//	g, err := client.Geometry(ctx, protocol.DeviceHandle{Object: 2})
func New(opts ...Option) *Service {
	cfg := Config{DevDir: DefaultDevDir, SysfsDir: DefaultSysfsDir}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Service{
		config: cfg,
		chips:  make(map[uint32]chip),
		open:   openChip,
	}
}

// DevicePath returns the device node serving h.
func (s *Service) DevicePath(h protocol.DeviceHandle) string {
	return filepath.Join(s.config.DevDir, "mtd"+strconv.FormatUint(uint64(h.Object), 10))
}

// Do implements protocol.Service.
func (s *Service) Do(ctx context.Context, h protocol.DeviceHandle, req protocol.Request) (*protocol.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if a, ok := req.(protocol.AttributeRequest); ok {
		return s.Attribute(ctx, h, a.Key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.chip(h)
	if err != nil {
		return nil, err
	}

	switch r := req.(type) {
	case protocol.InfoRequest:
		info, status := c.info()
		if status < 0 {
			return &protocol.Response{Status: status}, nil
		}
		payload, err := info.MarshalBinary()
		if err != nil {
			return nil, err
		}
		return &protocol.Response{Status: protocol.StatusOK, Payload: payload}, nil
	case protocol.WriteRawRequest:
		return &protocol.Response{Status: c.writeRaw(r.Addr, r.Data)}, nil
	case protocol.WriteMetaRequest:
		return &protocol.Response{Status: c.writeMeta(r.Addr, r.Data)}, nil
	case protocol.EraseRequest:
		return &protocol.Response{Status: c.erase(r.Addr, r.Length)}, nil
	case protocol.IsBadRequest:
		return &protocol.Response{Status: c.isBad(r.Addr)}, nil
	case protocol.ReadRawRequest:
		data, status := c.readRaw(r.Addr, r.Length)
		return &protocol.Response{Status: status, Payload: data}, nil
	default:
		return &protocol.Response{Status: protocol.StatusNotSupported}, nil
	}
}

// Attribute implements protocol.AttributeService. Any integer sysfs attribute
// of the device can be queried; "size" is the one geometry resolution uses.
func (s *Service) Attribute(ctx context.Context, h protocol.DeviceHandle, key string) (*protocol.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return &protocol.Response{Status: protocol.StatusInvalidArgs}, nil
	}

	dir := filepath.Join(s.config.SysfsDir, "mtd"+strconv.FormatUint(uint64(h.Object), 10))
	raw, err := os.ReadFile(filepath.Join(dir, key))
	if os.IsNotExist(err) {
		if _, statErr := os.Stat(dir); statErr != nil {
			return nil, errors.Wrapf(statErr, "device %s", h)
		}
		return &protocol.Response{Status: protocol.StatusNotSupported}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read attribute %q of device %s", key, h)
	}

	v, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 0, 64)
	if err != nil {
		return &protocol.Response{Status: protocol.StatusNotSupported}, nil
	}

	return &protocol.Response{Status: protocol.StatusOK, Payload: protocol.EncodeAttributeValue(v)}, nil
}

// Close closes every open device.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	for obj, c := range s.chips {
		err = multierr.Append(err, c.Close())
		delete(s.chips, obj)
	}
	return err
}

// chip returns the open device for h, opening it on first use.
func (s *Service) chip(h protocol.DeviceHandle) (chip, error) {
	if c, ok := s.chips[h.Object]; ok {
		return c, nil
	}

	path := s.DevicePath(h)
	c, err := s.open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	s.chips[h.Object] = c
	return c, nil
}

// pageSpan is the part of a raw write or read that falls in one page.
type pageSpan struct {
	// offset is the data-space address of the page
	offset uint64

	// dataOff and dataLen select bytes within the page's data area
	dataOff, dataLen uint32

	// oobOff and oobLen select bytes within the page's out-of-band area
	oobOff, oobLen uint32
}

// splitRaw maps the raw range [addr, addr+n) onto pages whose raw stride is
// writeSize+metaSize.
func splitRaw(addr, n, writeSize, metaSize uint32) []pageSpan {
	stride := uint64(writeSize) + uint64(metaSize)
	var spans []pageSpan

	pos := uint64(addr)
	end := uint64(addr) + uint64(n)
	for pos < end {
		page := pos / stride
		in := uint32(pos % stride)
		pageEnd := (page + 1) * stride
		if pageEnd > end {
			pageEnd = end
		}
		last := uint32(pageEnd - page*stride)

		span := pageSpan{offset: page * uint64(writeSize)}
		if in < writeSize {
			span.dataOff = in
			span.dataLen = min(last, writeSize) - in
		}
		if last > writeSize {
			from := max(in, writeSize)
			span.oobOff = from - writeSize
			span.oobLen = last - from
		}
		spans = append(spans, span)
		pos = pageEnd
	}

	return spans
}
