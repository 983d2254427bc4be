package sim

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/moffa90/go-flashdev/protocol"
)

var (
	_ protocol.Service          = &Bus{}
	_ protocol.AttributeService = &Bus{}
)

// ErrNoDevice is returned for requests addressed to a handle nothing is attached to.
var ErrNoDevice = errors.New("no such device")

// Bus routes requests to simulated devices by handle, standing in for a
// driver service that exposes several chips or partitions.
type Bus struct {
	mu      sync.Mutex
	devices map[protocol.DeviceHandle]*Device
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{devices: make(map[protocol.DeviceHandle]*Device)}
}

// Attach exposes dev under h, replacing any previous device.
func (b *Bus) Attach(h protocol.DeviceHandle, dev *Device) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.devices[h] = dev
}

// Device returns the device attached under h.
func (b *Bus) Device(h protocol.DeviceHandle) (*Device, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	dev, ok := b.devices[h]
	return dev, ok
}

// Do implements protocol.Service.
func (b *Bus) Do(ctx context.Context, h protocol.DeviceHandle, req protocol.Request) (*protocol.Response, error) {
	dev, ok := b.Device(h)
	if !ok {
		return nil, errors.Wrapf(ErrNoDevice, "device %s", h)
	}
	return dev.Do(ctx, h, req)
}

// Attribute implements protocol.AttributeService.
func (b *Bus) Attribute(ctx context.Context, h protocol.DeviceHandle, key string) (*protocol.Response, error) {
	dev, ok := b.Device(h)
	if !ok {
		return nil, errors.Wrapf(ErrNoDevice, "device %s", h)
	}
	return dev.Attribute(ctx, h, key)
}
