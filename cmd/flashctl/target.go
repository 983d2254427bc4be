package main

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/moffa90/go-flashdev/flash"
	"github.com/moffa90/go-flashdev/mtd"
	"github.com/moffa90/go-flashdev/protocol"
	"github.com/moffa90/go-flashdev/sim"
	"github.com/moffa90/go-flashdev/transport"
)

// targetOptions selects the device every subcommand operates on.
type targetOptions struct {
	target    string
	port      uint32
	object    uint32
	cacheSize int
	verbose   bool

	simWrite  uint32
	simMeta   uint32
	simErase  string
	simBlocks uint64
	simBad    []uint
}

func (o *targetOptions) register(fs *pflag.FlagSet) {
	fs.StringVarP(&o.target, "target", "t", "sim",
		"device to use: sim, mtd:N, /dev/mtdN or tcp:HOST:PORT")
	fs.Uint32Var(&o.port, "port", 0, "device handle port")
	fs.Uint32Var(&o.object, "object", 0, "device handle object (the N of mtd:N is used when set there)")
	fs.IntVar(&o.cacheSize, "cache-size", 1, "number of devices whose geometry stays resolved")
	fs.BoolVar(&o.verbose, "progress", false, "print progress updates")

	fs.Uint32Var(&o.simWrite, "sim-write-size", 2048, "simulated page data size")
	fs.Uint32Var(&o.simMeta, "sim-meta-size", 64, "simulated page out-of-band size")
	fs.StringVar(&o.simErase, "sim-erase-size", "128KiB", "simulated erase unit size")
	fs.Uint64Var(&o.simBlocks, "sim-blocks", 64, "simulated erase unit count")
	fs.UintSliceVar(&o.simBad, "sim-bad", nil, "simulated bad erase units")
}

// target is an opened device: the services that reach it and its handle.
type target struct {
	svc    protocol.Service
	attrs  protocol.AttributeService
	handle protocol.DeviceHandle
	close  func() error
}

func (o *targetOptions) open(ctx context.Context) (*target, error) {
	h := protocol.DeviceHandle{Port: o.port, Object: o.object}

	switch {
	case o.target == "sim":
		dev, err := o.simDevice()
		if err != nil {
			return nil, err
		}
		return &target{svc: dev, attrs: dev, handle: h, close: func() error { return nil }}, nil

	case strings.HasPrefix(o.target, "mtd:"):
		n, err := strconv.ParseUint(strings.TrimPrefix(o.target, "mtd:"), 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid target %q", o.target)
		}
		h.Object = uint32(n)
		svc := mtd.New()
		return &target{svc: svc, attrs: svc, handle: h, close: svc.Close}, nil

	case strings.HasPrefix(filepath.Base(o.target), "mtd"):
		n, err := strconv.ParseUint(strings.TrimPrefix(filepath.Base(o.target), "mtd"), 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid target %q", o.target)
		}
		h.Object = uint32(n)
		svc := mtd.New(mtd.WithDevDir(filepath.Dir(o.target)))
		return &target{svc: svc, attrs: svc, handle: h, close: svc.Close}, nil

	case strings.HasPrefix(o.target, "tcp:"):
		stream, err := transport.Dial(ctx, "tcp", strings.TrimPrefix(o.target, "tcp:"))
		if err != nil {
			return nil, err
		}
		return &target{svc: stream, attrs: stream, handle: h, close: stream.Close}, nil

	default:
		return nil, errors.Errorf("unknown target %q", o.target)
	}
}

func (o *targetOptions) simDevice() (*sim.Device, error) {
	erase, err := parseSize(o.simErase)
	if err != nil {
		return nil, errors.Wrap(err, "--sim-erase-size")
	}
	if erase == 0 || erase > 1<<31 {
		return nil, errors.Errorf("--sim-erase-size %d out of range", erase)
	}

	cfg := sim.Config{
		MetaSize:  o.simMeta,
		WriteSize: o.simWrite,
		EraseSize: uint32(erase),
		TotalSize: o.simBlocks * erase,
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid simulated geometry")
	}

	dev := sim.New(cfg)
	for _, b := range o.simBad {
		dev.MarkBad(uint64(b))
	}
	return dev, nil
}

func (o *targetOptions) client(t *target, extra ...flash.Option) *flash.Client {
	opts := []flash.Option{
		flash.WithLogger(glogLogger{}),
		flash.WithCacheSize(o.cacheSize),
	}
	return flash.New(t.svc, t.attrs, append(opts, extra...)...)
}
