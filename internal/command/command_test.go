package command

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/fcoury/oxidedb-sub001/internal/backend"
	"github.com/fcoury/oxidedb-sub001/internal/cursor"
	"github.com/fcoury/oxidedb-sub001/internal/session"
	"github.com/fcoury/oxidedb-sub001/internal/value"
)

// testDispatchContext builds a DispatchContext backed by a live Store,
// skipping when OXIDEDB_TEST_POSTGRES_URL isn't set, matching the
// skip-guard every backend-dependent test in this tree uses.
func testDispatchContext(t *testing.T) *DispatchContext {
	t.Helper()
	url := os.Getenv("OXIDEDB_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("OXIDEDB_TEST_POSTGRES_URL not set, skipping command integration test")
	}
	store, err := backend.Open(context.Background(), url, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(store.Close)

	cursors := cursor.NewRegistry(zap.NewNop(), time.Minute)
	return &DispatchContext{
		Deps: &Deps{
			Store:         store,
			Cursors:       cursors,
			Logger:        zaptest.NewLogger(t),
			ServerVersion: "test",
		},
		Session: session.New("127.0.0.1:0"),
	}
}

func TestKeywordReturnsFirstFieldName(t *testing.T) {
	cmd := value.NewDocument()
	cmd.Set("ping", value.Int32(1))
	cmd.Set("$db", value.String("admin"))
	assert.Equal(t, "ping", Keyword(cmd))
}

func TestKeywordEmptyDocument(t *testing.T) {
	assert.Equal(t, "", Keyword(value.NewDocument()))
}

func TestDispatchUnknownCommandRendersErrorReply(t *testing.T) {
	dc := &DispatchContext{Deps: &Deps{Logger: zaptest.NewLogger(t)}}
	cmd := value.NewDocument()
	cmd.Set("frobnicate", value.Int32(1))
	reply := dc.Dispatch(context.Background(), 1, "admin", cmd)

	ok, _ := reply.Get("ok").AsFloat64()
	assert.Equal(t, float64(0), ok)
	assert.True(t, reply.Has("errmsg"))
	assert.True(t, reply.Has("code"))
}

func TestDispatchRoutesToRegisteredHandler(t *testing.T) {
	dc := &DispatchContext{Deps: &Deps{Logger: zaptest.NewLogger(t)}}
	cmd := value.NewDocument()
	cmd.Set("ping", value.Int32(1))
	reply := dc.Dispatch(context.Background(), 1, "admin", cmd)

	ok, _ := reply.Get("ok").AsFloat64()
	assert.Equal(t, float64(1), ok)
}

type recordingShadow struct {
	calls int
}

func (r *recordingShadow) Observe(_ context.Context, _ int32, _ string, _ *value.Document, _ *value.Document) {
	r.calls++
}

func TestDispatchAlwaysObservesShadowWhenPresent(t *testing.T) {
	shadow := &recordingShadow{}
	dc := &DispatchContext{Deps: &Deps{Logger: zaptest.NewLogger(t), Shadow: shadow}}

	okCmd := value.NewDocument()
	okCmd.Set("ping", value.Int32(1))
	dc.Dispatch(context.Background(), 1, "admin", okCmd)

	badCmd := value.NewDocument()
	badCmd.Set("nosuchcommand", value.Int32(1))
	dc.Dispatch(context.Background(), 2, "admin", badCmd)

	assert.Equal(t, 2, shadow.calls)
}

func TestErrorReplyClassifiesUnknownError(t *testing.T) {
	reply := errorReply(assert.AnError)
	ok, _ := reply.Get("ok").AsFloat64()
	assert.Equal(t, float64(0), ok)
	assert.Equal(t, assert.AnError.Error(), reply.Get("errmsg").Str)
}

func TestOkReplyHasOkOne(t *testing.T) {
	reply := okReply()
	ok, _ := reply.Get("ok").AsFloat64()
	assert.Equal(t, float64(1), ok)
}
