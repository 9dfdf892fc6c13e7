package shadow

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fcoury/oxidedb-sub001/internal/value"
)

func TestConnectDisabledReturnsNilComparator(t *testing.T) {
	c, err := Connect(context.Background(), Config{Enabled: false}, nil)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestObserveOnNilComparatorIsNoop(t *testing.T) {
	var c *Comparator
	cmd := value.NewDocument()
	reply := value.NewDocument()
	c.Observe(context.Background(), 1, "admin", cmd, reply)
	assert.Equal(t, Stats{}, c.Snapshot())
}

func testComparator(t *testing.T) *Comparator {
	t.Helper()
	addr := os.Getenv("OXIDEDB_TEST_MONGODB_ADDR")
	if addr == "" {
		t.Skip("OXIDEDB_TEST_MONGODB_ADDR not set, skipping shadow integration test")
	}
	cfg := Config{
		Enabled:               true,
		Addr:                  addr,
		Timeout:               5 * time.Second,
		SampleRate:            1.0,
		Compare:               "ok",
		DeterministicSampling: true,
	}
	c, err := Connect(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, c)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func TestObserveAgainstLiveUpstreamCountsSamples(t *testing.T) {
	c := testComparator(t)

	cmd := value.NewDocument()
	cmd.Set("ping", value.Int32(1))
	cmd.Set("$db", value.String("admin"))

	reply := value.NewDocument()
	reply.Set("ok", value.Double(1))

	c.Observe(context.Background(), 1, "admin", cmd, reply)
	require.Eventually(t, func() bool {
		return c.Snapshot().Sampled == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMismatchDetectsOkFieldDivergence(t *testing.T) {
	c := &Comparator{cfg: Config{Compare: "ok"}}
	local := value.NewDocument()
	local.Set("ok", value.Double(1))
	upstream := value.NewDocument()
	upstream.Set("ok", value.Double(0))
	upstream.Set("code", value.Int32(1))

	assert.True(t, c.mismatch(local, upstream))
}

func TestMismatchIgnoresVolatileFieldsInFullCompare(t *testing.T) {
	c := &Comparator{cfg: Config{Compare: "full"}}
	local := value.NewDocument()
	local.Set("ok", value.Double(1))
	local.Set("localTime", value.String("2026-07-31T00:00:00Z"))
	upstream := value.NewDocument()
	upstream.Set("ok", value.Double(1))
	upstream.Set("localTime", value.String("2026-07-31T00:00:01Z"))

	assert.False(t, c.mismatch(local, upstream))
}

func TestMismatchFullCompareCatchesRealDivergence(t *testing.T) {
	c := &Comparator{cfg: Config{Compare: "full"}}
	local := value.NewDocument()
	local.Set("n", value.Int32(3))
	upstream := value.NewDocument()
	upstream.Set("n", value.Int32(4))

	assert.True(t, c.mismatch(local, upstream))
}
