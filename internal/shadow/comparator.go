// Package shadow implements the out-of-band comparator: on an admitted
// sample it mirrors the already-answered command to an upstream
// MongoDB and diffs the two replies, purely for observability. It
// never feeds back into the client-visible response -- Observe is
// called after the dispatcher has already built the reply the client
// will receive, and everything this package does from that point on
// runs on its own goroutine.
package shadow

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/fcoury/oxidedb-sub001/internal/value"
)

// DefaultTimeout bounds how long a single shadow round trip may run
// before it's abandoned, so a slow or wedged upstream never
// accumulates unbounded in-flight comparisons.
const DefaultTimeout = 5 * time.Second

// volatileFields are stripped from both replies before comparison:
// values this server and a genuinely healthy upstream are expected to
// disagree on by design (connection ids, wall-clock and cluster
// timestamps), not because either one is wrong.
var volatileFields = []string{"localTime", "connectionId", "$clusterTime", "operationTime"}

// Comparator is the Shadow implementation wired into command.Deps. A
// nil *Comparator is valid and Observe on it is a no-op, so disabling
// shadow comparison in config needs no separate conditional at the
// call site.
type Comparator struct {
	cfg    Config
	client *mongo.Client
	logger *zap.Logger

	observed   int64
	sampled    int64
	mismatched int64
	failed     int64
}

// Connect dials the upstream MongoDB named by cfg.Addr. It returns
// (nil, nil) when cfg.Enabled is false, the shape that lets callers
// always wire the result into command.Deps.Shadow without a branch.
func Connect(ctx context.Context, cfg Config, logger *zap.Logger) (*Comparator, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := options.Client().ApplyURI(cfg.Addr)
	if cfg.Username != "" {
		authDB := cfg.AuthDB
		if authDB == "" {
			authDB = "admin"
		}
		opts.SetAuth(options.Credential{
			Username:   cfg.Username,
			Password:   cfg.Password,
			AuthSource: authDB,
		})
	}

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return &Comparator{
		cfg:    cfg,
		client: client,
		logger: logger.Named("shadow"),
	}, nil
}

// Close disconnects the upstream client; safe to call on a nil
// Comparator.
func (c *Comparator) Close(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Disconnect(ctx)
}

// Observe implements command.Shadow. It decides admission synchronously
// (admission must be deterministic and cheap) but the round trip to
// the upstream server and the diff both run on a detached goroutine,
// so a slow or unreachable shadow target never delays the reply
// already on its way back to the real client.
func (c *Comparator) Observe(_ context.Context, requestID int32, db string, cmd, reply *value.Document) {
	if c == nil || c.client == nil {
		return
	}
	c.observed++
	if !admit(requestID, db, c.cfg.SampleRate, c.cfg.DeterministicSampling) {
		return
	}
	c.sampled++
	go c.compare(requestID, db, cmd, reply)
}

func (c *Comparator) compare(requestID int32, db string, cmd, reply *value.Document) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()

	upstreamDB := db
	if c.cfg.DBPrefix != "" {
		upstreamDB = c.cfg.DBPrefix + db
	}

	var upstreamRaw bson.Raw
	if err := c.client.Database(upstreamDB).RunCommand(ctx, value.ToBSON(cmd)).Decode(&upstreamRaw); err != nil {
		c.failed++
		c.logger.Warn("shadow dispatch failed",
			zap.Int32("request_id", requestID), zap.String("db", db), zap.Error(err))
		return
	}
	var upstreamD bson.D
	if err := bson.Unmarshal(upstreamRaw, &upstreamD); err != nil {
		c.failed++
		c.logger.Warn("shadow reply decode failed",
			zap.Int32("request_id", requestID), zap.String("db", db), zap.Error(err))
		return
	}
	upstreamDoc := value.FromBSON(upstreamD)

	if c.mismatch(reply, upstreamDoc) {
		c.mismatched++
		c.logger.Warn("shadow comparison mismatch",
			zap.Int32("request_id", requestID), zap.String("db", db))
	}
}

func (c *Comparator) mismatch(local, upstream *value.Document) bool {
	if c.cfg.Compare == "ok" {
		return !value.Equal(local.Get("ok"), upstream.Get("ok")) ||
			!value.Equal(local.Get("code"), upstream.Get("code"))
	}
	return !value.Equal(value.FromDocument(stripVolatile(local)), value.FromDocument(stripVolatile(upstream)))
}

func stripVolatile(doc *value.Document) *value.Document {
	out := value.NewDocument()
	for _, p := range doc.Pairs() {
		skip := false
		for _, f := range volatileFields {
			if p.Key == f {
				skip = true
				break
			}
		}
		if !skip {
			out.Set(p.Key, p.Value)
		}
	}
	return out
}

// Stats is a point-in-time snapshot of the comparator's counters, for
// diagnostics commands or a future metrics hook.
type Stats struct {
	Observed   int64
	Sampled    int64
	Mismatched int64
	Failed     int64
}

// Snapshot reports the comparator's counters. Safe on a nil
// Comparator, returning a zero Stats.
func (c *Comparator) Snapshot() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{Observed: c.observed, Sampled: c.sampled, Mismatched: c.mismatched, Failed: c.failed}
}
