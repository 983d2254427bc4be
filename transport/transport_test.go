package transport

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-flashdev/flash"
	"github.com/moffa90/go-flashdev/protocol"
	"github.com/moffa90/go-flashdev/sim"
)

var testHandle = protocol.DeviceHandle{Port: 0, Object: 1}

// pipe serves bus on one end of an in-memory connection and returns a stream
// over the other end.
func pipe(t *testing.T, bus *sim.Bus, opts ...Option) *Stream {
	t.Helper()
	return servePipe(t, NewServer(bus, bus), opts...)
}

func servePipe(t *testing.T, srv *Server, opts ...Option) *Stream {
	t.Helper()
	client, server := net.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ServeConn(ctx, server) }()

	t.Cleanup(func() {
		cancel()
		_ = client.Close()
		_ = server.Close()
		<-done
	})

	return NewStream(client, opts...)
}

// slowIsBad delays the first is-bad request it serves.
type slowIsBad struct {
	protocol.Service
	delay time.Duration
	once  sync.Once
}

func (s *slowIsBad) Do(ctx context.Context, h protocol.DeviceHandle, req protocol.Request) (*protocol.Response, error) {
	if _, ok := req.(protocol.IsBadRequest); ok {
		s.once.Do(func() { time.Sleep(s.delay) })
	}
	return s.Service.Do(ctx, h, req)
}

func newBus(bad ...uint64) (*sim.Bus, *sim.Device) {
	dev := sim.New(sim.DefaultConfig())
	dev.MarkBad(bad...)
	bus := sim.NewBus()
	bus.Attach(testHandle, dev)
	return bus, dev
}

func TestStreamRoundTrip(t *testing.T) {
	bus, dev := newBus(1, 3)
	stream := pipe(t, bus)
	client := flash.New(stream, stream)
	ctx := context.Background()

	g, err := client.Geometry(ctx, testHandle)
	require.NoError(t, err)
	assert.Equal(t, uint32(2112), g.PageStride())

	table, scanned, err := client.ScanRange(ctx, testHandle, 0, 4*g.EraseSize, 0, 8)
	require.NoError(t, err)
	assert.Equal(t, 4, scanned)
	assert.Equal(t, []uint32{1, 3}, table.Entries)

	data := make([]byte, g.PageStride())
	for i := range data {
		data[i] = byte(i)
	}
	_, err = client.WriteRaw(ctx, testHandle, 2, data)
	require.NoError(t, err)

	got, err := client.ReadRaw(ctx, testHandle, 2*g.PageStride(), len(data))
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, data, dev.RawPage(2))
}

func TestStreamStatusPassThrough(t *testing.T) {
	bus, dev := newBus()
	dev.InjectStatus(protocol.OpWriteRaw, 5*2112, 2111)
	stream := pipe(t, bus)
	client := flash.New(stream, stream)

	_, err := client.WriteRaw(context.Background(), testHandle, 5, make([]byte, 2112))
	var short *flash.ShortWriteError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, 2111, short.Actual)
}

func TestServerServiceErrorIsIO(t *testing.T) {
	bus, _ := newBus()
	stream := pipe(t, bus)

	resp, err := stream.Do(context.Background(), protocol.DeviceHandle{Object: 99}, protocol.InfoRequest{})
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusIO, resp.Status)
}

func TestServerBadFrame(t *testing.T) {
	bus, _ := newBus()
	client, server := net.Pipe()
	defer client.Close()

	go func() {
		_ = NewServer(bus, bus).ServeConn(context.Background(), server)
		_ = server.Close()
	}()

	frame, err := protocol.BuildRequestFrame(testHandle, protocol.IsBadRequest{Addr: 0})
	require.NoError(t, err)
	frame[len(frame)-2] ^= 0xFF

	_, err = client.Write(frame)
	require.NoError(t, err)
	raw, err := protocol.ReadResponseFrame(client)
	require.NoError(t, err)
	resp, err := protocol.ParseResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusBadFrame, resp.Status)

	// The connection stays usable after a bad frame.
	stream := NewStream(client)
	resp, err = stream.Do(context.Background(), testHandle, protocol.IsBadRequest{Addr: 0})
	require.NoError(t, err)
	assert.Equal(t, int32(0), resp.Status)
}

func TestStreamCancelled(t *testing.T) {
	bus, dev := newBus()
	stream := pipe(t, bus)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := stream.Do(ctx, testHandle, protocol.InfoRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, dev.Requests(protocol.OpInfo))
}

func TestStreamTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	// Nothing reads the server end, so the write blocks until the deadline.
	stream := NewStream(client, WithTimeout(20*time.Millisecond))
	_, err := stream.Do(context.Background(), testHandle, protocol.InfoRequest{})
	require.Error(t, err)

	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

func TestStreamBrokenAfterTimeout(t *testing.T) {
	bus, _ := newBus(1)
	slow := &slowIsBad{Service: bus, delay: 200 * time.Millisecond}
	stream := servePipe(t, NewServer(slow, bus), WithTimeout(50*time.Millisecond))
	client := flash.New(stream, stream)
	ctx := context.Background()

	_, err := client.IsBlockBad(ctx, testHandle, 1)
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())

	// Give the late reply time to arrive. It must not answer the next request.
	time.Sleep(250 * time.Millisecond)

	bad, err := client.IsBlockBad(ctx, testHandle, 2)
	var tErr *flash.TransportError
	require.ErrorAs(t, err, &tErr)
	assert.ErrorIs(t, err, ErrBroken)
	assert.False(t, bad)

	_, err = stream.Do(ctx, testHandle, protocol.InfoRequest{})
	assert.ErrorIs(t, err, ErrBroken)
}

func TestStreamRejectsInvalidRequest(t *testing.T) {
	bus, _ := newBus()
	stream := pipe(t, bus)

	_, err := stream.Do(context.Background(), testHandle, protocol.WriteRawRequest{Addr: 0})
	assert.ErrorContains(t, err, "data cannot be empty")
}

func TestListenAndDial(t *testing.T) {
	bus, _ := newBus(2)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(bus, bus).Serve(ctx, l) }()

	stream, err := Dial(ctx, "tcp", l.Addr().String())
	require.NoError(t, err)

	client := flash.New(stream, nil)
	bad, err := client.IsBlockBad(ctx, testHandle, 2)
	require.NoError(t, err)
	assert.True(t, bad)

	require.NoError(t, stream.Close())
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
