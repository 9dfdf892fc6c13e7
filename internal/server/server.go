// Package server owns wire framing and the per-connection loop: it
// accepts TCP connections, decodes OP_MSG/OP_QUERY frames, drives them
// through internal/command's dispatcher, and writes the encoded reply
// back. internal/command never touches a socket; this package is the
// only place that does.
package server

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fcoury/oxidedb-sub001/internal/command"
	"github.com/fcoury/oxidedb-sub001/internal/wire"
)

// acceptPollInterval bounds how long Accept and a connection's Read
// block before re-checking the shutdown context, the same
// deadline-and-recheck idiom used to make a blocking accept/read loop
// cooperatively cancellable without a forced close.
const acceptPollInterval = time.Second

// Server is the TCP front end for one command.Deps: it owns no
// protocol state of its own beyond the listener loop, so the same
// Deps can be exercised directly by tests without going through a
// socket at all.
type Server struct {
	Deps           *command.Deps
	Logger         *zap.Logger
	MaxMessageSize int32
}

// New builds a Server with wire.DefaultMaxMessageSize as the frame cap
// unless overridden on the returned value.
func New(deps *command.Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		Deps:           deps,
		Logger:         logger.Named("server"),
		MaxMessageSize: wire.DefaultMaxMessageSize,
	}
}

// Serve runs the accept loop until ctx is cancelled. Cancellation stops
// the acceptor and closes ln first; every already-accepted connection keeps serving
// its current request to completion (no mid-request cancel) and exits
// on its own next poll, and Serve returns once every connection
// goroutine has done so. It never force-closes a live connection.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.Logger.Info("listening", zap.String("addr", ln.Addr().String()))
	var g errgroup.Group

acceptLoop:
	for {
		select {
		case <-ctx.Done():
			break acceptLoop
		default:
		}

		if dl, ok := ln.(interface{ SetDeadline(time.Time) error }); ok {
			_ = dl.SetDeadline(time.Now().Add(acceptPollInterval))
		}
		conn, err := ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				break acceptLoop
			}
			s.Logger.Error("accept failed", zap.Error(err))
			return err
		}

		g.Go(func() error {
			s.handleConn(ctx, conn)
			return nil
		})
	}

	_ = ln.Close()
	s.Logger.Info("acceptor stopped, draining in-flight sessions")
	_ = g.Wait()
	s.Logger.Info("all sessions drained")
	return nil
}
