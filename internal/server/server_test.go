package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fcoury/oxidedb-sub001/internal/command"
	"github.com/fcoury/oxidedb-sub001/internal/cursor"
	"github.com/fcoury/oxidedb-sub001/internal/value"
	"github.com/fcoury/oxidedb-sub001/internal/wire"
)

// startTestServer boots a Server against an ephemeral loopback port
// and returns its address plus a shutdown func that cancels the
// serving context and waits for Serve to return.
func startTestServer(t *testing.T) (addr string, shutdown func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	deps := &command.Deps{
		Cursors:       cursor.NewRegistry(nil, time.Minute),
		Logger:        zaptest.NewLogger(t),
		ServerVersion: "test",
	}
	srv := New(deps, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, ln)
	}()

	return ln.Addr().String(), func() {
		cancel()
		<-done
	}
}

func sendOpMsg(t *testing.T, conn net.Conn, requestID int32, cmd *value.Document) *value.Document {
	t.Helper()
	body, err := wire.EncodeOpMsg(0, cmd)
	require.NoError(t, err)
	require.NoError(t, wire.WriteFrame(conn, requestID, 0, wire.OpMsg, body))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	h, replyBody, err := wire.ReadFrame(conn, wire.DefaultMaxMessageSize)
	require.NoError(t, err)
	assert.Equal(t, wire.OpMsg, h.OpCode)
	assert.Equal(t, requestID, h.ResponseTo)

	msg, err := wire.DecodeOpMsg(replyBody)
	require.NoError(t, err)
	reply, err := msg.Merged()
	require.NoError(t, err)
	return reply
}

func TestServeAnswersPing(t *testing.T) {
	addr, shutdown := startTestServer(t)
	defer shutdown()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	cmd := value.NewDocument()
	cmd.Set("ping", value.Int32(1))
	cmd.Set("$db", value.String("admin"))

	reply := sendOpMsg(t, conn, 1, cmd)
	assert.Equal(t, float64(1), reply.Get("ok").F64)
}

func TestServeKeepsRequestsSerialOnOneConnection(t *testing.T) {
	addr, shutdown := startTestServer(t)
	defer shutdown()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	for i := int32(1); i <= 5; i++ {
		cmd := value.NewDocument()
		cmd.Set("whatsmyuri", value.Int32(1))
		cmd.Set("$db", value.String("admin"))
		reply := sendOpMsg(t, conn, i, cmd)
		assert.Equal(t, float64(1), reply.Get("ok").F64)
	}
}

func TestServeRejectsUnknownCommand(t *testing.T) {
	addr, shutdown := startTestServer(t)
	defer shutdown()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	cmd := value.NewDocument()
	cmd.Set("notARealCommand", value.Int32(1))
	cmd.Set("$db", value.String("admin"))

	reply := sendOpMsg(t, conn, 1, cmd)
	assert.Equal(t, float64(0), reply.Get("ok").F64)
	assert.NotEmpty(t, reply.Get("errmsg").Str)
}

func TestServeStopsAcceptingOnShutdown(t *testing.T) {
	addr, shutdown := startTestServer(t)
	shutdown()

	_, err := net.DialTimeout("tcp", addr, time.Second)
	assert.Error(t, err)
}
