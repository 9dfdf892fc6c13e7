package shadow

import "time"

// Config is the shadow comparator's own configuration, the shape
// internal/config binds its "shadow" section into.
type Config struct {
	Enabled bool
	Addr    string

	// DBPrefix is prepended to the client's $db when naming the
	// database addressed on the upstream server, so a shadow target
	// can be pointed at the same cluster as a differently-named
	// database without colliding with the real traffic it mirrors.
	DBPrefix string

	Timeout    time.Duration
	SampleRate float64

	// Mode selects what Observe does with an admitted sample.
	// "observe" is the only mode implemented: run the command
	// upstream, diff the reply, log on mismatch. There is no metrics
	// exporter to report into, so a "metrics" mode would have nowhere
	// to send its counts.
	Mode string

	// Compare selects how deep the reply diff goes. "full" compares
	// the entire reply document; "ok" only compares the ok/code
	// envelope, useful against an upstream whose result documents
	// carry server-specific fields (e.g. explain output) that would
	// otherwise show as permanent mismatches.
	Compare string

	// DeterministicSampling selects the stable request_id/db/sample_rate
	// hash (sampleHash in sample.go) over a plain per-call random draw.
	DeterministicSampling bool

	Username string
	Password string
	AuthDB   string
}
