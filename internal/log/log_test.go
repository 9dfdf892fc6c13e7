package log

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewFailsWhenFileCannotBeOpened(t *testing.T) {
	origOpen, origChmod := openLogFile, chmodFile
	defer func() { openLogFile, chmodFile = origOpen, origChmod }()

	openLogFile = func(string, int, os.FileMode) (*os.File, error) {
		return nil, errors.New("boom")
	}

	logger, f, err := New()
	require.Error(t, err)
	assert.Nil(t, logger)
	assert.Nil(t, f)
	assert.Contains(t, err.Error(), "failed to open log file")
}

func TestNewFailsWhenChmodFails(t *testing.T) {
	origOpen, origChmod := openLogFile, chmodFile
	defer func() { openLogFile, chmodFile = origOpen, origChmod }()

	tmp, err := os.CreateTemp(t.TempDir(), "oxidedb-log")
	require.NoError(t, err)
	openLogFile = func(string, int, os.FileMode) (*os.File, error) { return tmp, nil }
	chmodFile = func(string, os.FileMode) error { return errors.New("denied") }

	logger, f, err := New()
	require.Error(t, err)
	assert.Nil(t, logger)
	assert.Nil(t, f)
	assert.Contains(t, err.Error(), "failed to set the log file permission")
}

func TestNewSucceeds(t *testing.T) {
	origOpen, origChmod := openLogFile, chmodFile
	defer func() { openLogFile, chmodFile = origOpen, origChmod }()

	tmp, err := os.CreateTemp(t.TempDir(), "oxidedb-log")
	require.NoError(t, err)
	openLogFile = func(string, int, os.FileMode) (*os.File, error) { return tmp, nil }
	chmodFile = func(string, os.FileMode) error { return nil }

	logger, f, err := New()
	require.NoError(t, err)
	assert.NotNil(t, logger)
	assert.NotNil(t, f)
}

func TestModuleFilteringHierarchy(t *testing.T) {
	var buf bytes.Buffer
	SetConsoleWriter(&buf)
	defer SetConsoleWriter(os.Stdout)

	origCfg := LogCfg
	LogCfg = zap.NewDevelopmentConfig()
	defer func() { LogCfg = origCfg }()

	logger, err := SetDebugModules(map[string]bool{
		ModuleWire: true,
	})
	require.NoError(t, err)

	logger.Named(ModuleWire).Debug("wire debug line")
	logger.Named(ModuleWire + ".session").Debug("wire session debug line")
	logger.Named(ModuleBackend).Debug("backend debug line")

	output := buf.String()
	assert.Contains(t, output, "wire debug line")
	assert.Contains(t, output, "wire session debug line")
	assert.NotContains(t, output, "backend debug line")
}

func TestModuleLoggerFactoryGlobalDebugEnablesEverything(t *testing.T) {
	factory := NewModuleLoggerFactory(nil, true, nil)
	assert.True(t, factory.IsDebugEnabled("anything"))
}

func TestModuleLoggerFactoryExplicitFalseWins(t *testing.T) {
	factory := NewModuleLoggerFactory(nil, false, map[string]bool{ModuleWire: false})
	assert.False(t, factory.IsDebugEnabled(ModuleWire))
}
