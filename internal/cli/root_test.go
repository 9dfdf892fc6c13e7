package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewRootRegistersServeCommand(t *testing.T) {
	root := NewRoot(zaptest.NewLogger(t), "test")
	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, "serve", serve.Name())
}

func TestRunServeFailsFastWithoutPostgresURL(t *testing.T) {
	root := NewRoot(zaptest.NewLogger(t), "test")
	root.SetArgs([]string{"serve", "--listen-addr", "127.0.0.1:0"})
	t.Setenv("OXIDEDB_POSTGRES_URL", "")
	err := root.Execute()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "postgres_url")
}
