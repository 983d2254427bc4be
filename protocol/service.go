package protocol

import "context"

// Service is the Flash Driver Service: it executes one request against the
// device named by h and returns the signed status reply.
//
// A non-nil error means the request could not be delivered or its reply could
// not be received. Device-level failures are reported through Response.Status.
type Service interface {
	Do(ctx context.Context, h DeviceHandle, req Request) (*Response, error)
}

// AttributeService is the generic key/value query interface of a device.
type AttributeService interface {
	Attribute(ctx context.Context, h DeviceHandle, key string) (*Response, error)
}
