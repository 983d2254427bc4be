package transport

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/moffa90/go-flashdev/protocol"
)

var (
	_ protocol.Service          = &Stream{}
	_ protocol.AttributeService = &Stream{}
)

// ErrBroken is returned by every request after an earlier one failed midway.
// The stream may hold a late reply at that point, so it is closed instead of
// being reused.
var ErrBroken = errors.New("stream broken by an earlier failure")

type deadliner interface {
	SetDeadline(t time.Time) error
}

// Stream carries Flash Driver Service and Attribute Service requests over a
// byte stream as checksummed frames. One request is in flight at a time.
//
// Stream is safe for concurrent use. A write, read or parse failure breaks
// the stream: it is closed and later requests fail with ErrBroken.
type Stream struct {
	mu     sync.Mutex
	rw     io.ReadWriter
	config Config
	broken error
}

// NewStream returns a stream over rw. rw is typically a net.Conn, a serial
// port or one end of a pipe.
//
// Example:
//
//	conn, _ := net.Dial("tcp", "target:5151")
//	svc := transport.NewStream(conn, transport.WithTimeout(2*time.Second))
//	client := flash.New(svc, svc)
func NewStream(rw io.ReadWriter, opts ...Option) *Stream {
	if rw == nil {
		panic("stream cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Stream{rw: rw, config: cfg}
}

// Dial connects to a flash service listening at address.
func Dial(ctx context.Context, network, address string, opts ...Option) (*Stream, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", address)
	}
	return NewStream(conn, opts...), nil
}

// Do implements protocol.Service.
func (s *Stream) Do(ctx context.Context, h protocol.DeviceHandle, req protocol.Request) (*protocol.Response, error) {
	frame, err := protocol.BuildRequestFrame(h, req)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.broken != nil {
		return nil, errors.Wrapf(ErrBroken, "%v", s.broken)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if d, ok := s.rw.(deadliner); ok {
		if deadline, ok := s.deadline(ctx); ok {
			if err := d.SetDeadline(deadline); err != nil {
				return nil, errors.Wrap(err, "set deadline")
			}
			defer func() { _ = d.SetDeadline(time.Time{}) }()
		}
	}

	if glog.V(2) {
		glog.Infof("-> %s %s addr=0x%08X size=%d", h, req.Opcode(), req.Address(), req.Size())
	}

	if _, err := s.rw.Write(frame); err != nil {
		return nil, s.fail(errors.Wrap(err, "write request"))
	}

	if s.config.CommandDelay > 0 {
		time.Sleep(s.config.CommandDelay)
	}

	raw, err := protocol.ReadResponseFrame(s.rw)
	if err != nil {
		return nil, s.fail(errors.Wrap(err, "read response"))
	}

	resp, err := protocol.ParseResponse(raw)
	if err != nil {
		return nil, s.fail(errors.Wrap(err, "parse response"))
	}

	if glog.V(2) {
		glog.Infof("<- %s %s status=%d payload=%d", h, req.Opcode(), resp.Status, len(resp.Payload))
	}

	return resp, nil
}

// Attribute implements protocol.AttributeService.
func (s *Stream) Attribute(ctx context.Context, h protocol.DeviceHandle, key string) (*protocol.Response, error) {
	return s.Do(ctx, h, protocol.AttributeRequest{Key: key})
}

// Close closes the underlying connection if it can be closed.
func (s *Stream) Close() error {
	if c, ok := s.rw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// fail marks the stream broken and closes it. The caller holds s.mu.
func (s *Stream) fail(err error) error {
	s.broken = err
	if c, ok := s.rw.(io.Closer); ok {
		if cerr := c.Close(); cerr != nil {
			glog.Warningf("close broken stream: %v", cerr)
		}
	}
	glog.V(1).Infof("stream broken: %v", err)
	return err
}

// deadline is the earlier of the context deadline and the configured timeout.
func (s *Stream) deadline(ctx context.Context) (time.Time, bool) {
	deadline, ok := ctx.Deadline()
	if s.config.Timeout > 0 {
		t := time.Now().Add(s.config.Timeout)
		if !ok || t.Before(deadline) {
			return t, true
		}
	}
	return deadline, ok
}
