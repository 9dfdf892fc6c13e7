package command

import (
	"context"

	"github.com/fcoury/oxidedb-sub001/internal/value"
)

// MinWireVersion/MaxWireVersion are advertised in hello/isMaster so a
// driver negotiating OP_MSG support accepts this server.
const (
	MinWireVersion = 0
	MaxWireVersion = 17
)

func init() {
	register("hello", handleHello)
	register("ismaster", handleHello)
	register("isMaster", handleHello)
	register("ping", handlePing)
	register("buildInfo", handleBuildInfo)
	register("buildinfo", handleBuildInfo)
	register("whatsmyuri", handleWhatsMyURI)
	register("getLog", handleGetLog)
	register("endSessions", handleEndSessions)
	register("saslStart", handleSaslStart)
	register("saslContinue", handleSaslContinue)
}

// handleHello answers hello/isMaster/ismaster identically: the common
// handshake every driver opens a connection with, whichever spelling
// it uses. The reply carries the fields a Go/Node/Python driver's
// handshake code actually inspects (ismaster, maxWireVersion,
// readOnly, logicalSessionTimeoutMinutes); replication-topology fields
// (setName, hosts, ...) are omitted since this server is always a
// single standalone node.
func handleHello(_ context.Context, dc *DispatchContext, _ string, cmd *value.Document) (*value.Document, error) {
	reply := okReply()
	reply.Set("ismaster", value.Bool(true))
	reply.Set("isWritablePrimary", value.Bool(true))
	reply.Set("maxBsonObjectSize", value.Int32(16*1024*1024))
	reply.Set("maxMessageSizeBytes", value.Int32(48*1024*1024))
	reply.Set("maxWriteBatchSize", value.Int32(100000))
	reply.Set("localTime", value.DateTime(0))
	reply.Set("logicalSessionTimeoutMinutes", value.Int32(30))
	reply.Set("minWireVersion", value.Int32(MinWireVersion))
	reply.Set("maxWireVersion", value.Int32(MaxWireVersion))
	reply.Set("readOnly", value.Bool(false))
	if dc.ServerVersion != "" {
		reply.Set("version", value.String(dc.ServerVersion))
	}
	// A driver's initial handshake sometimes rides over this same
	// command with a saslSupportedMechs probe attached; answer it with
	// an empty list since this server accepts any mechanism the stub
	// auth state machine is handed.
	if user := cmd.Get("saslSupportedMechs"); !user.IsMissing() {
		reply.Set("saslSupportedMechs", value.FromArray(nil))
	}
	return reply, nil
}

func handlePing(_ context.Context, _ *DispatchContext, _ string, _ *value.Document) (*value.Document, error) {
	return okReply(), nil
}

func handleBuildInfo(_ context.Context, dc *DispatchContext, _ string, _ *value.Document) (*value.Document, error) {
	reply := okReply()
	version := dc.ServerVersion
	if version == "" {
		version = "7.0.0"
	}
	reply.Set("version", value.String(version))
	reply.Set("gitVersion", value.String("oxidedb"))
	reply.Set("versionArray", value.FromArray([]value.Value{
		value.Int32(7), value.Int32(0), value.Int32(0), value.Int32(0),
	}))
	reply.Set("bits", value.Int32(64))
	reply.Set("maxBsonObjectSize", value.Int32(16*1024*1024))
	return reply, nil
}

func handleWhatsMyURI(_ context.Context, dc *DispatchContext, _ string, _ *value.Document) (*value.Document, error) {
	reply := okReply()
	peer := ""
	if dc.Session != nil {
		peer = dc.Session.PeerAddr
	}
	reply.Set("you", value.String(peer))
	return reply, nil
}

// handleGetLog answers the diagnostic getLog command with an empty log
// segment; real log retrieval is handled by the ambient logging
// subsystem's own sinks, not exposed over the wire.
func handleGetLog(_ context.Context, _ *DispatchContext, _ string, _ *value.Document) (*value.Document, error) {
	reply := okReply()
	reply.Set("totalLinesWritten", value.Int32(0))
	reply.Set("log", value.FromArray(nil))
	return reply, nil
}

// handleEndSessions drops every cursor the session owns -- the closest
// analogue this server has to MongoDB's logical session cleanup --
// and reports success; it never fails, matching driver expectations
// that session cleanup is best-effort.
func handleEndSessions(_ context.Context, dc *DispatchContext, _ string, _ *value.Document) (*value.Document, error) {
	if dc.Session != nil && dc.Cursors != nil {
		dc.Cursors.KillAll(dc.Session.ID)
	}
	return okReply(), nil
}

// handleSaslStart begins the (stubbed) SASL handshake: the mechanism
// is recorded on the session and answered with a conversation id, never
// a real credential check.
func handleSaslStart(_ context.Context, dc *DispatchContext, _ string, cmd *value.Document) (*value.Document, error) {
	mechanism := cmd.Get("mechanism")
	mech := ""
	if mechanism.Kind == value.KindString {
		mech = mechanism.Str
	}
	var convID int32
	if dc.Session != nil {
		convID = dc.Session.BeginAuth(mech)
	}
	reply := okReply()
	reply.Set("conversationId", value.Int32(convID))
	reply.Set("done", value.Bool(true))
	reply.Set("payload", value.Value{Kind: value.KindBinary})
	return reply, nil
}

func handleSaslContinue(_ context.Context, dc *DispatchContext, _ string, cmd *value.Document) (*value.Document, error) {
	convID := int32(optionalInt(cmd, "conversationId", 0))
	if dc.Session != nil {
		dc.Session.CompleteAuth(convID)
	}
	reply := okReply()
	reply.Set("conversationId", value.Int32(convID))
	reply.Set("done", value.Bool(true))
	reply.Set("payload", value.Value{Kind: value.KindBinary})
	return reply, nil
}
