package flash

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/moffa90/go-flashdev/protocol"
)

// Client turns the request/response Flash Driver Service into addressable
// erase and program operations, bad block detection and table building.
//
// Client is not safe for concurrent use. Callers targeting several devices
// from several goroutines must serialize access.
type Client struct {
	svc    protocol.Service
	attrs  protocol.AttributeService
	cache  *GeometryCache
	config Config
}

// New creates a new Client issuing requests to svc and attribute queries to attrs.
// When attrs is nil, svc must also implement protocol.AttributeService.
//
// Example:
//
//	dev := sim.New(sim.DefaultConfig())
//	client := flash.New(dev, dev,
//	    flash.WithLogger(myLogger),
//	    flash.WithCacheSize(2),
//	)
func New(svc protocol.Service, attrs protocol.AttributeService, opts ...Option) *Client {
	if svc == nil {
		panic("service cannot be nil")
	}
	if attrs == nil {
		a, ok := svc.(protocol.AttributeService)
		if !ok {
			panic("attribute service cannot be nil")
		}
		attrs = a
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	cache := cfg.Cache
	if cache == nil {
		cache = NewGeometryCache(cfg.CacheSize)
	}

	return &Client{
		svc:    svc,
		attrs:  attrs,
		cache:  cache,
		config: cfg,
	}
}

// Cache returns the geometry cache the client resolves through.
func (c *Client) Cache() *GeometryCache {
	return c.cache
}

// Geometry resolves the layout of device h.
//
// A cached entry is returned without issuing any request. Otherwise an info
// request and a size attribute query are issued; only when both succeed is the
// cache updated, so a failure leaves any previous entry in place.
func (c *Client) Geometry(ctx context.Context, h protocol.DeviceHandle) (Geometry, error) {
	if g, ok := c.cache.Get(h); ok {
		return g, nil
	}

	resp, err := c.do(ctx, h, protocol.InfoRequest{})
	if err != nil {
		return Geometry{}, err
	}
	if !resp.OK() {
		return Geometry{}, &DeviceError{Op: protocol.OpInfo, Handle: h, Status: resp.Status}
	}

	info, err := protocol.ParseInfoResponse(resp.Payload)
	if err != nil {
		return Geometry{}, &NotResolvedError{Handle: h, Reason: err.Error()}
	}

	totalSize, err := c.queryAttribute(ctx, h, protocol.AttrSize)
	if err != nil {
		return Geometry{}, err
	}

	g := Geometry{
		MetaSize:  info.MetaSize,
		WriteSize: info.WriteSize,
		EraseSize: info.EraseSize,
		TotalSize: totalSize,
	}
	if err := g.Validate(); err != nil {
		return Geometry{}, &NotResolvedError{Handle: h, Reason: err.Error()}
	}

	if evicted := c.cache.Add(h, g); evicted {
		c.logDebug("geometry cache eviction", "device", h.String())
	}

	c.logDebug("resolved geometry",
		"device", h.String(),
		"write_size", g.WriteSize,
		"meta_size", g.MetaSize,
		"erase_size", g.EraseSize,
		"total_size", g.TotalSize,
	)

	return g, nil
}

// Forget drops the cached geometry of h so the next operation re-resolves it.
func (c *Client) Forget(h protocol.DeviceHandle) {
	c.cache.Remove(h)
}

// Reset drops every cached geometry, for example after the devices behind
// the services were repartitioned.
func (c *Client) Reset() {
	c.cache.Purge()
}

// queryAttribute fetches an integer attribute of h from the Attribute Service.
func (c *Client) queryAttribute(ctx context.Context, h protocol.DeviceHandle, key string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, &TransportError{Op: protocol.OpAttribute, Handle: h, Err: err}
	}

	resp, err := c.attrs.Attribute(ctx, h, key)
	if err != nil {
		return 0, &TransportError{Op: protocol.OpAttribute, Handle: h, Err: err}
	}
	if resp == nil {
		return 0, &TransportError{Op: protocol.OpAttribute, Handle: h, Err: errors.New("nil response")}
	}
	if !resp.OK() {
		return 0, &DeviceError{Op: protocol.OpAttribute, Handle: h, Status: resp.Status}
	}

	v, err := protocol.ParseAttributeResponse(resp.Payload)
	if err != nil {
		return 0, &NotResolvedError{Handle: h, Reason: fmt.Sprintf("attribute %q: %v", key, err)}
	}

	return v, nil
}

// do issues a single request. Only delivery failures are returned as errors;
// the caller interprets the status.
func (c *Client) do(ctx context.Context, h protocol.DeviceHandle, req protocol.Request) (*protocol.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Op: req.Opcode(), Handle: h, Err: err}
	}

	resp, err := c.svc.Do(ctx, h, req)
	if err != nil {
		c.logError("request failed", "op", req.Opcode().String(), "device", h.String(), "error", err)
		return nil, &TransportError{Op: req.Opcode(), Handle: h, Err: err}
	}
	if resp == nil {
		return nil, &TransportError{Op: req.Opcode(), Handle: h, Err: errors.New("nil response")}
	}

	return resp, nil
}

// reportProgress calls the progress callback if configured.
func (c *Client) reportProgress(progress Progress) {
	if c.config.ProgressCallback != nil {
		c.config.ProgressCallback(progress)
	}
}

// logDebug logs a debug message if a logger is configured.
func (c *Client) logDebug(msg string, keysAndValues ...interface{}) {
	if c.config.Logger != nil {
		c.config.Logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if a logger is configured.
func (c *Client) logInfo(msg string, keysAndValues ...interface{}) {
	if c.config.Logger != nil {
		c.config.Logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if a logger is configured.
func (c *Client) logError(msg string, keysAndValues ...interface{}) {
	if c.config.Logger != nil {
		c.config.Logger.Error(msg, keysAndValues...)
	}
}
