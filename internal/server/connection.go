package server

import (
	"context"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/fcoury/oxidedb-sub001/internal/command"
	"github.com/fcoury/oxidedb-sub001/internal/mongoerr"
	"github.com/fcoury/oxidedb-sub001/internal/session"
	"github.com/fcoury/oxidedb-sub001/internal/value"
	"github.com/fcoury/oxidedb-sub001/internal/wire"
)

// handleConn owns one TCP connection end to end: session creation,
// the strictly-serial read-dispatch-write loop, and cursor cleanup on
// close. It never runs two requests from the same connection
// concurrently, matching the protocol's own request/response pairing.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	peer := conn.RemoteAddr().String()
	sess := session.New(peer)
	logger := s.Logger.With(zap.String("session", sess.ID), zap.String("peer", peer))
	logger.Debug("session opened")
	defer func() {
		if s.Deps.Cursors != nil {
			s.Deps.Cursors.KillAll(sess.ID)
		}
		logger.Debug("session closed")
	}()

	dc := &command.DispatchContext{Deps: s.Deps, Session: sess}
	allocator := wire.NewRequestIDAllocator()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := conn.SetReadDeadline(time.Now().Add(acceptPollInterval)); err != nil {
			logger.Debug("failed to set read deadline", zap.Error(err))
		}

		h, body, err := wire.ReadFrame(conn, s.MaxMessageSize)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if err != io.EOF {
				logger.Debug("connection read failed", zap.Error(err))
			}
			return
		}
		sess.Observe(h.RequestID)

		replyBody, opCode, ok := s.handleMessage(ctx, dc, h, body, logger)
		if !ok {
			return
		}
		if replyBody == nil {
			// moreToCome: the client doesn't expect a reply.
			continue
		}
		if err := wire.WriteFrame(conn, allocator.Next(), h.RequestID, opCode, replyBody); err != nil {
			logger.Debug("failed to write reply", zap.Error(err))
			return
		}
	}
}

// handleMessage decodes one frame, dispatches it, and encodes the
// reply body plus the opcode it must be framed with. ok is false when
// the frame itself couldn't be decoded or carries an opcode this
// server doesn't speak at all, in which case the connection is closed
// rather than answered.
func (s *Server) handleMessage(ctx context.Context, dc *command.DispatchContext, h wire.Header, body []byte, logger *zap.Logger) ([]byte, wire.OpCode, bool) {
	switch h.OpCode {
	case wire.OpMsg:
		msg, err := wire.DecodeOpMsg(body)
		if err != nil {
			logger.Debug("malformed OP_MSG", zap.Error(err))
			return nil, 0, false
		}
		cmd, err := msg.Merged()
		if err != nil {
			logger.Debug("malformed command document", zap.Error(err))
			return nil, 0, false
		}

		reply := s.dispatch(ctx, dc, h.RequestID, cmd)
		if msg.MoreToCome() {
			return nil, 0, true
		}
		out, err := wire.EncodeOpMsg(0, reply)
		if err != nil {
			logger.Error("failed to encode OP_MSG reply", zap.Error(err))
			return nil, 0, false
		}
		return out, wire.OpMsg, true

	case wire.OpQuery:
		q, err := wire.DecodeOpQuery(body)
		if err != nil {
			logger.Debug("malformed OP_QUERY", zap.Error(err))
			return nil, 0, false
		}
		// Only commands addressed to admin.$cmd -- the namespace of
		// the hello handshake some drivers still open with over the
		// legacy opcode -- are answered; anything addressed to a real
		// namespace has no handler here.
		if q.FullCollectionName != "admin.$cmd" {
			logger.Debug("rejecting legacy OP_QUERY outside the hello handshake", zap.String("ns", q.FullCollectionName))
			return nil, 0, false
		}
		cmd, err := q.QueryDocument()
		if err != nil {
			logger.Debug("malformed OP_QUERY document", zap.Error(err))
			return nil, 0, false
		}
		reply := s.dispatch(ctx, dc, h.RequestID, cmd)
		out, err := wire.EncodeOpReply(0, 0, 0, reply)
		if err != nil {
			logger.Error("failed to encode OP_REPLY", zap.Error(err))
			return nil, 0, false
		}
		return out, wire.OpReply, true

	default:
		logger.Debug("unsupported opcode, closing connection", zap.String("opcode", h.OpCode.String()))
		return nil, 0, false
	}
}

// dispatch extracts the target database and an optional maxTimeMS
// budget from cmd, runs it through the command dispatcher, and
// rewrites the reply to MaxTimeMSExpired if that budget elapsed before
// the handler returned -- whatever partial error the handler itself
// produced (a context-cancelled backend call, typically) is discarded
// in favor of the one code a driver actually expects for this case.
func (s *Server) dispatch(ctx context.Context, dc *command.DispatchContext, requestID int32, cmd *value.Document) *value.Document {
	db := "admin"
	if v := cmd.Get("$db"); v.Kind == value.KindString {
		db = v.Str
	}

	reqCtx := ctx
	if ms := maxTimeMSOf(cmd); ms > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
		defer cancel()
	}

	reply := dc.Dispatch(reqCtx, requestID, db, cmd)
	if reqCtx.Err() == context.DeadlineExceeded {
		return maxTimeExpiredReply()
	}
	return reply
}

func maxTimeMSOf(cmd *value.Document) int64 {
	v := cmd.Get("maxTimeMS")
	switch v.Kind {
	case value.KindInt32:
		return int64(v.I32)
	case value.KindInt64:
		return v.I64
	case value.KindDouble:
		return int64(v.F64)
	default:
		return 0
	}
}

func maxTimeExpiredReply() *value.Document {
	d := value.NewDocument()
	d.Set("ok", value.Double(0))
	d.Set("errmsg", value.String("operation exceeded time limit"))
	d.Set("code", value.Int32(int32(mongoerr.CodeMaxTimeMSExpired)))
	return d
}
