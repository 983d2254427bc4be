package transport

import (
	"context"
	"io"
	"net"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/moffa90/go-flashdev/protocol"
)

// Server answers framed requests by forwarding them to a local Flash Driver
// Service and Attribute Service.
type Server struct {
	svc   protocol.Service
	attrs protocol.AttributeService
}

// NewServer returns a server backed by svc and attrs. When attrs is nil, svc
// must also implement protocol.AttributeService.
func NewServer(svc protocol.Service, attrs protocol.AttributeService) *Server {
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
	return &Server{svc: svc, attrs: attrs}
}

// ServeConn answers requests read from rw until the peer closes the stream or
// ctx is cancelled.
//
// A frame that is read completely but fails validation is answered with
// StatusBadFrame and the loop continues. A frame whose header is unreadable
// desynchronizes the stream, so it is answered and the connection is dropped.
// Service errors are answered with StatusIO.
func (s *Server) ServeConn(ctx context.Context, rw io.ReadWriter) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		raw, err := protocol.ReadRequestFrame(rw)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			glog.Errorf("unreadable request frame: %v", err)
			_ = s.reply(rw, &protocol.Response{Status: protocol.StatusBadFrame})
			return errors.Wrap(err, "read request")
		}

		resp := s.handle(ctx, raw)
		if err := s.reply(rw, resp); err != nil {
			return err
		}
	}
}

// handle parses one request frame and executes it.
func (s *Server) handle(ctx context.Context, raw []byte) *protocol.Response {
	h, req, err := protocol.ParseRequestFrame(raw)
	if err != nil {
		glog.Errorf("bad request frame: %v", err)
		return &protocol.Response{Status: protocol.StatusBadFrame}
	}

	if glog.V(2) {
		glog.Infof("serve %s %s addr=0x%08X size=%d", h, req.Opcode(), req.Address(), req.Size())
	}

	var resp *protocol.Response
	if a, ok := req.(protocol.AttributeRequest); ok {
		resp, err = s.attrs.Attribute(ctx, h, a.Key)
	} else {
		resp, err = s.svc.Do(ctx, h, req)
	}
	if err != nil {
		glog.Errorf("%s on %s: %v", req.Opcode(), h, err)
		return &protocol.Response{Status: protocol.StatusIO}
	}
	if resp == nil {
		return &protocol.Response{Status: protocol.StatusIO}
	}

	return resp
}

func (s *Server) reply(w io.Writer, resp *protocol.Response) error {
	frame, err := protocol.BuildResponseFrame(resp)
	if err != nil {
		glog.Errorf("build response: %v", err)
		frame, err = protocol.BuildResponseFrame(&protocol.Response{Status: protocol.StatusIO})
		if err != nil {
			return err
		}
	}
	_, err = w.Write(frame)
	return errors.Wrap(err, "write response")
}

// Serve accepts connections on l and serves each on its own goroutine until
// ctx is cancelled. It closes l before returning and returns nil on shutdown.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	eg, gctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		<-gctx.Done()
		return l.Close()
	})

	eg.Go(func() error {
		for {
			conn, err := l.Accept()
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return errors.Wrap(err, "accept")
			}

			glog.Infof("client connected: %s", conn.RemoteAddr())
			eg.Go(func() error {
				stop := context.AfterFunc(gctx, func() { _ = conn.Close() })
				defer stop()
				defer conn.Close()

				if err := s.ServeConn(gctx, conn); err != nil && gctx.Err() == nil {
					glog.Errorf("connection %s: %v", conn.RemoteAddr(), err)
				}
				glog.Infof("client disconnected: %s", conn.RemoteAddr())
				return nil
			})
		}
	})

	err := eg.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// ListenAndServe listens on the TCP address addr and serves svc and attrs.
func ListenAndServe(ctx context.Context, addr string, svc protocol.Service, attrs protocol.AttributeService) error {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", addr)
	}
	glog.Infof("serving flash devices on %s", l.Addr())
	return NewServer(svc, attrs).Serve(ctx, l)
}
