// Package command implements C6's handler table: given the command
// keyword identified from section 0's first field, look up a Handler,
// run it against the shared backend/aggregation/cursor collaborators,
// and hand back a reply document. The dispatcher itself never touches
// the wire -- it is driven by internal/server, which owns framing and
// the per-connection loop.
package command

import (
	"context"

	"go.uber.org/zap"

	"github.com/fcoury/oxidedb-sub001/internal/aggregate"
	"github.com/fcoury/oxidedb-sub001/internal/backend"
	"github.com/fcoury/oxidedb-sub001/internal/cursor"
	"github.com/fcoury/oxidedb-sub001/internal/mongoerr"
	"github.com/fcoury/oxidedb-sub001/internal/session"
	"github.com/fcoury/oxidedb-sub001/internal/value"
)

// Shadow is the out-of-band comparator hook (internal/shadow implements
// it); Dispatcher calls it after every command so the mirrored dispatch
// and result diff never sit on the client-visible response path.
type Shadow interface {
	Observe(ctx context.Context, requestID int32, db string, cmd *value.Document, reply *value.Document)
}

// Deps bundles the collaborators a Handler needs beyond the command
// document itself.
type Deps struct {
	Store   *backend.Store
	Cursors *cursor.Registry
	Logger  *zap.Logger
	Shadow  Shadow
	// ServerVersion is the string advertised to drivers by hello and
	// buildInfo.
	ServerVersion string
}

// Handler answers one command document, already merged from section
// 0/1 by wire.OpMsg.Merged, against db (the "$db" field the wire
// protocol attaches to every command). A returned error is rendered by
// Dispatch as {ok:0, errmsg, code}; a handler never builds that
// envelope itself.
type Handler func(ctx context.Context, dc *DispatchContext, db string, cmd *value.Document) (*value.Document, error)

// DispatchContext is the per-request view a Handler operates with:
// the shared Deps plus the originating session (for cursor ownership
// and the auth-stub handshake).
type DispatchContext struct {
	*Deps
	Session *session.Session
}

// registry maps a command keyword to its Handler. Populated by init()
// in this file's sibling files (admin.go, ddl.go, read.go, write.go, ...), each
// contributing the handlers for its area -- mirroring how the wire
// protocol itself has no notion of "grouping" commands, only a flat
// keyword namespace.
var registry = map[string]Handler{}

func register(name string, h Handler) {
	registry[name] = h
}

// Keyword returns the command keyword a decoded command document
// dispatches on: the first field name of section 0.
func Keyword(cmd *value.Document) string {
	pairs := cmd.Pairs()
	if len(pairs) == 0 {
		return ""
	}
	return pairs[0].Key
}

// Dispatch identifies cmd's command keyword, runs the matching
// handler, and always returns a well-formed reply document -- {ok:1,
// ...} from the handler's own result, or {ok:0, errmsg, code} if the
// keyword is unknown or the handler failed. It never returns a Go
// error itself: by the time a caller reaches the wire-encoding step,
// every failure has already been folded into the reply document.
func (dc *DispatchContext) Dispatch(ctx context.Context, requestID int32, db string, cmd *value.Document) *value.Document {
	keyword := Keyword(cmd)
	h, ok := registry[keyword]
	if !ok {
		reply := errorReply(mongoerr.New(mongoerr.CodeCommandNotFound, "no such command: %q", keyword))
		dc.observeShadow(ctx, requestID, db, cmd, reply)
		return reply
	}

	reply, err := h(ctx, dc, db, cmd)
	if err != nil {
		reply = errorReply(err)
	}
	dc.observeShadow(ctx, requestID, db, cmd, reply)
	return reply
}

func (dc *DispatchContext) observeShadow(ctx context.Context, requestID int32, db string, cmd, reply *value.Document) {
	if dc.Shadow == nil {
		return
	}
	dc.Shadow.Observe(ctx, requestID, db, cmd, reply)
}

// errorReply renders any error into the {ok:0, errmsg, code} envelope
// every command failure uses, classifying it through mongoerr if it
// isn't already tagged.
func errorReply(err error) *value.Document {
	code, msg := mongoerr.As(err)
	d := value.NewDocument()
	d.Set("ok", value.Double(0))
	d.Set("errmsg", value.String(msg))
	d.Set("code", value.Int32(int32(code)))
	return d
}

// okReply builds the common {ok: 1.0} success envelope, which callers
// extend with their own result fields.
func okReply() *value.Document {
	d := value.NewDocument()
	d.Set("ok", value.Double(1))
	return d
}

// aggregateEnv adapts Deps into the aggregate.Env a pipeline's
// $lookup/$out/$merge stages need: the backend store itself satisfies
// both CollectionSource and Sink, translated through the small adapter
// types in helpers.go so this package's Store dependency doesn't leak
// into internal/aggregate.
func (dc *DispatchContext) aggregateEnv(db string) *aggregate.Env {
	return &aggregate.Env{
		DB:     db,
		Lookup: storeCollectionSource{store: dc.Store},
		Sink:   storeSink{store: dc.Store},
	}
}
